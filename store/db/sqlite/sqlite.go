package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/carelink/medirank/internal/profile"
	"github.com/carelink/medirank/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a sqlite database at the profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// WAL keeps concurrent reads cheap; busy_timeout covers writer overlap.
	db, err := sql.Open("sqlite", profile.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", profile.DSN)
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
	CREATE TABLE IF NOT EXISTS feedback (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		entry_id TEXT NOT NULL,
		domain TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		selected_at INTEGER NOT NULL,
		user_vector BLOB,
		entry_vector BLOB,
		travel_seconds INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_user_selected ON feedback (user_id, selected_at);
	`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return errors.Wrap(err, "failed to migrate sqlite schema")
	}
	return nil
}
