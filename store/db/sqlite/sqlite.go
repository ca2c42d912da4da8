package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/fridgesense/internal/profile"
	"github.com/hrygo/fridgesense/store"
)

// SQLite is supported for development and single-household deployments.
// It has no native vector index: VectorSearch reports
// store.ErrVectorSearchUnsupported and similarity search runs on the
// exhaustive application-layer cosine path instead.

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect with some sane settings:
	// - No foreign key constraints: explicit to prevent surprises on SQLite upgrades.
	// - Journal mode set to WAL: prevents locking issues.
	// With the `modernc.org/sqlite` driver each pragma must be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// SQLite: a single connection is optimal with WAL.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

const latestSchema = `
CREATE TABLE IF NOT EXISTS inventory_item (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	quantity TEXT NOT NULL DEFAULT '0',
	date_added TIMESTAMP NOT NULL,
	expiration_date TEXT NOT NULL DEFAULT '',
	image_data BLOB
);

CREATE INDEX IF NOT EXISTS idx_inventory_item_name ON inventory_item (name);

CREATE TABLE IF NOT EXISTS image_embedding (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	expiration_period INTEGER NOT NULL DEFAULT 7,
	embedding BLOB NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_ts INTEGER NOT NULL DEFAULT 0,
	updated_ts INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS recipe (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	ingredients TEXT NOT NULL DEFAULT '[]',
	instructions TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	meal_type TEXT NOT NULL DEFAULT '',
	created_ts INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY,
	dietary_restrictions TEXT NOT NULL DEFAULT '[]',
	preferred_cuisines TEXT NOT NULL DEFAULT '[]',
	updated_ts INTEGER NOT NULL DEFAULT 0
);
`

func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return nil
}
