package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/carelink/medirank/store"
)

// Catalog vector archival requires PostgreSQL with the pgvector extension.
// SQLite deployments rebuild indexes from the catalog source instead.

func (d *DB) UpsertCatalogEmbedding(ctx context.Context, upsert *store.CatalogEmbedding) (*store.CatalogEmbedding, error) {
	return nil, errors.New("catalog embedding storage requires PostgreSQL with pgvector extension")
}

func (d *DB) ListCatalogEmbeddings(ctx context.Context, find *store.FindCatalogEmbedding) ([]*store.CatalogEmbedding, error) {
	return nil, errors.New("catalog embedding storage requires PostgreSQL with pgvector extension")
}

func (d *DB) DeleteCatalogEmbeddings(ctx context.Context, domain string) error {
	// Return nil (success) so domain rebuilds work on sqlite.
	return nil
}
