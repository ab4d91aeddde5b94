package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/carelink/medirank/internal/profile"
	"github.com/carelink/medirank/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens the PostgreSQL connection described by the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Migrate(ctx context.Context) error {
	stmt := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS feedback (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		selected_at BIGINT NOT NULL,
		user_vector vector,
		entry_vector vector,
		travel_seconds BIGINT
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user_selected ON feedback (user_id, selected_at);

	CREATE TABLE IF NOT EXISTS catalog_embedding (
		id BIGSERIAL PRIMARY KEY,
		entry_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		model TEXT NOT NULL,
		embedding vector NOT NULL,
		created_ts BIGINT NOT NULL,
		updated_ts BIGINT NOT NULL,
		UNIQUE (entry_id, domain, model)
	);
	`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to migrate postgres schema")
	}
	return nil
}

// placeholder returns the n-th positional placeholder ($1, $2, ...).
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns n positional placeholders joined by commas.
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}
