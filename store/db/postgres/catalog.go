package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/carelink/medirank/store"
)

func (d *DB) UpsertCatalogEmbedding(ctx context.Context, upsert *store.CatalogEmbedding) (*store.CatalogEmbedding, error) {
	now := time.Now().Unix()
	stmt := `
		INSERT INTO catalog_embedding (entry_id, domain, model, embedding, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (entry_id, domain, model)
		DO UPDATE SET embedding = EXCLUDED.embedding, updated_ts = EXCLUDED.updated_ts
		RETURNING id, created_ts, updated_ts
	`
	var createdTs, updatedTs int64
	err := d.db.QueryRowContext(ctx, stmt,
		upsert.EntryID,
		upsert.Domain,
		upsert.Model,
		pgvector.NewVector(upsert.Embedding),
		now,
	).Scan(&upsert.ID, &createdTs, &updatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert catalog embedding")
	}
	upsert.CreatedTs = createdTs
	upsert.UpdatedTs = updatedTs
	return upsert, nil
}

func (d *DB) ListCatalogEmbeddings(ctx context.Context, find *store.FindCatalogEmbedding) ([]*store.CatalogEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.EntryID != nil {
		where, args = append(where, "entry_id = "+placeholder(len(args)+1)), append(args, *find.EntryID)
	}
	if find.Domain != nil {
		where, args = append(where, "domain = "+placeholder(len(args)+1)), append(args, *find.Domain)
	}
	if find.Model != nil {
		where, args = append(where, "model = "+placeholder(len(args)+1)), append(args, *find.Model)
	}

	query := `
		SELECT id, entry_id, domain, model, embedding, created_ts, updated_ts
		FROM catalog_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY entry_id
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list catalog embeddings")
	}
	defer rows.Close()

	list := []*store.CatalogEmbedding{}
	for rows.Next() {
		var embedding store.CatalogEmbedding
		var vector pgvector.Vector
		if err := rows.Scan(
			&embedding.ID,
			&embedding.EntryID,
			&embedding.Domain,
			&embedding.Model,
			&vector,
			&embedding.CreatedTs,
			&embedding.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan catalog embedding")
		}
		embedding.Embedding = vector.Slice()
		list = append(list, &embedding)
	}

	return list, rows.Err()
}

func (d *DB) DeleteCatalogEmbeddings(ctx context.Context, domain string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM catalog_embedding WHERE domain = $1", domain); err != nil {
		return errors.Wrap(err, "failed to delete catalog embeddings")
	}
	return nil
}
