package db

import (
	"github.com/pkg/errors"

	"github.com/carelink/medirank/internal/profile"
	"github.com/carelink/medirank/store"
	"github.com/carelink/medirank/store/db/postgres"
	"github.com/carelink/medirank/store/db/sqlite"
)

// NewDBDriver creates a new db driver based on profile.
//
// PostgreSQL is the production driver: catalog embeddings are stored with
// pgvector. SQLite covers development and tests; it stores feedback but
// declines catalog vector archival.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDB(profile)
	case "postgres":
		driver, err = postgres.NewDB(profile)
	default:
		return nil, errors.New("unknown db driver: only 'postgres' and 'sqlite' are supported")
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create db driver")
	}
	return driver, nil
}
