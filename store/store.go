package store

import (
	"context"
	"time"

	"github.com/carelink/medirank/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) CreateFeedback(ctx context.Context, create *FeedbackRecord) (*FeedbackRecord, error) {
	return s.driver.CreateFeedback(ctx, create)
}

func (s *Store) ListFeedback(ctx context.Context, find *FindFeedback) ([]*FeedbackRecord, error) {
	return s.driver.ListFeedback(ctx, find)
}

func (s *Store) DeleteFeedbackBefore(ctx context.Context, before time.Time) (int64, error) {
	return s.driver.DeleteFeedbackBefore(ctx, before)
}

func (s *Store) ListUsersWithFeedbackSince(ctx context.Context, since time.Time) ([]string, error) {
	return s.driver.ListUsersWithFeedbackSince(ctx, since)
}

func (s *Store) UpsertCatalogEmbedding(ctx context.Context, upsert *CatalogEmbedding) (*CatalogEmbedding, error) {
	return s.driver.UpsertCatalogEmbedding(ctx, upsert)
}

func (s *Store) ListCatalogEmbeddings(ctx context.Context, find *FindCatalogEmbedding) ([]*CatalogEmbedding, error) {
	return s.driver.ListCatalogEmbeddings(ctx, find)
}

func (s *Store) DeleteCatalogEmbeddings(ctx context.Context, domain string) error {
	return s.driver.DeleteCatalogEmbeddings(ctx, domain)
}
