package store

import (
	"context"
	"database/sql"
	"time"
)

// Driver is the interface a store database driver implements.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate creates the schema if it does not exist.
	Migrate(ctx context.Context) error

	// Feedback model related methods.
	CreateFeedback(ctx context.Context, create *FeedbackRecord) (*FeedbackRecord, error)
	ListFeedback(ctx context.Context, find *FindFeedback) ([]*FeedbackRecord, error)
	DeleteFeedbackBefore(ctx context.Context, before time.Time) (int64, error)
	ListUsersWithFeedbackSince(ctx context.Context, since time.Time) ([]string, error)

	// CatalogEmbedding model related methods.
	UpsertCatalogEmbedding(ctx context.Context, upsert *CatalogEmbedding) (*CatalogEmbedding, error)
	ListCatalogEmbeddings(ctx context.Context, find *FindCatalogEmbedding) ([]*CatalogEmbedding, error)
	DeleteCatalogEmbeddings(ctx context.Context, domain string) error
}
