package postgres

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"

	"github.com/hrygo/fridgesense/internal/profile"
	"github.com/hrygo/fridgesense/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a PostgreSQL database from the profile DSN.
// PostgreSQL with the pgvector extension is the recommended driver: it
// carries the native approximate vector index used by the low-latency
// search path.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	pgDB, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	pgDB.SetMaxOpenConns(10)
	pgDB.SetMaxIdleConns(5)

	driver := DB{db: pgDB, profile: profile}
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
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	quantity TEXT NOT NULL DEFAULT '0',
	date_added TIMESTAMPTZ NOT NULL DEFAULT now(),
	expiration_date TEXT NOT NULL DEFAULT '',
	image_data BYTEA
);

CREATE INDEX IF NOT EXISTS idx_inventory_item_name ON inventory_item (name);

CREATE TABLE IF NOT EXISTS image_embedding (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	expiration_period INTEGER NOT NULL DEFAULT 7,
	embedding vector(768) NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	created_ts BIGINT NOT NULL DEFAULT 0,
	updated_ts BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS recipe (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	ingredients JSONB NOT NULL DEFAULT '[]',
	instructions TEXT NOT NULL,
	source_url TEXT NOT NULL DEFAULT '',
	meal_type TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY,
	dietary_restrictions JSONB NOT NULL DEFAULT '[]',
	preferred_cuisines JSONB NOT NULL DEFAULT '[]',
	updated_ts BIGINT NOT NULL DEFAULT 0
);
`

// Migrate provisions the schema. The pgvector extension must be
// installed; the embedding column is typed at the fixed 768 dimensions.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errors.Wrap(err, "failed to create pgvector extension")
	}
	if _, err := d.db.ExecContext(ctx, latestSchema); err != nil {
		return errors.Wrap(err, "failed to apply latest schema")
	}
	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func placeholders(n int) string {
	list := []string{}
	for i := 1; i <= n; i++ {
		list = append(list, placeholder(i))
	}
	return strings.Join(list, ", ")
}
