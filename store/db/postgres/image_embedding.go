package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/store"
)

// UpsertImageEmbedding inserts or replaces an embedding record by id.
// ON CONFLICT keeps the write idempotent: re-storing the same id and
// content yields one row, not a duplicate or an error.
func (d *DB) UpsertImageEmbedding(ctx context.Context, upsert *store.ImageEmbedding) (*store.ImageEmbedding, error) {
	metadata, err := json.Marshal(upsert.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding metadata")
	}

	stmt := `
		INSERT INTO image_embedding (id, name, expiration_period, embedding, metadata, created_ts, updated_ts)
		VALUES (` + placeholders(7) + `)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			expiration_period = EXCLUDED.expiration_period,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata,
			updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts
	`

	vector := pgvector.NewVector(upsert.Embedding)
	err = d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.Name,
		upsert.ExpirationPeriod,
		vector,
		metadata,
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert image embedding")
	}

	return upsert, nil
}

// ListImageEmbeddings lists embedding records. Full scans back the
// exhaustive search fallback and are O(N) by design.
func (d *DB) ListImageEmbeddings(ctx context.Context, find *store.FindImageEmbedding) ([]*store.ImageEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = "+placeholder(len(args)+1)), append(args, *find.Name)
	}

	query := `
		SELECT id, name, expiration_period, embedding, metadata, created_ts, updated_ts
		FROM image_embedding
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list image embeddings")
	}
	defer rows.Close()

	list := []*store.ImageEmbedding{}
	for rows.Next() {
		record, err := scanImageEmbedding(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImageEmbedding(row rowScanner) (*store.ImageEmbedding, error) {
	var record store.ImageEmbedding
	var vector pgvector.Vector
	var metadata []byte
	err := row.Scan(
		&record.ID,
		&record.Name,
		&record.ExpirationPeriod,
		&vector,
		&metadata,
		&record.CreatedTs,
		&record.UpdatedTs,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan image embedding")
	}
	record.Embedding = vector.Slice()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal embedding metadata")
		}
	}
	return &record, nil
}

// CountImageEmbeddings returns the total number of stored embeddings.
func (d *DB) CountImageEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_embedding`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count image embeddings")
	}
	return count, nil
}

// EnsureVectorIndex provisions an HNSW cosine index over the embedding
// column. Provisioning failure degrades silently: search falls back to
// the exhaustive scan, so an index is an optimization, never a
// prerequisite.
func (d *DB) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	if dimensions != store.EmbeddingDimensions {
		return errors.Errorf("index dimensions %d do not match schema dimensions %d", dimensions, store.EmbeddingDimensions)
	}
	stmt := `
		CREATE INDEX IF NOT EXISTS idx_image_embedding_vector
		ON image_embedding USING hnsw (embedding vector_cosine_ops)
	`
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		slog.Warn("failed to provision vector index, search will use exhaustive scan", "error", err)
	}
	return nil
}

// VectorSearch ranks stored embeddings by cosine similarity using the
// pgvector cosine distance operator. pgvector reports distance in
// [0, 2]; similarity = 1 - distance.
func (d *DB) VectorSearch(ctx context.Context, opts *store.VectorSearchOptions) ([]*store.ImageEmbeddingMatch, error) {
	query := `
		SELECT id, name, expiration_period, embedding, metadata, created_ts, updated_ts,
			1 - (embedding <=> $1) AS score
		FROM image_embedding
		ORDER BY embedding <=> $1
		LIMIT $2
	`

	rows, err := d.db.QueryContext(ctx, query, pgvector.NewVector(opts.Vector), opts.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run vector search")
	}
	defer rows.Close()

	matches := []*store.ImageEmbeddingMatch{}
	for rows.Next() {
		var record store.ImageEmbedding
		var vector pgvector.Vector
		var metadata []byte
		var score float32
		err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.ExpirationPeriod,
			&vector,
			&metadata,
			&record.CreatedTs,
			&record.UpdatedTs,
			&score,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search row")
		}
		record.Embedding = vector.Slice()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal embedding metadata")
			}
		}
		matches = append(matches, &store.ImageEmbeddingMatch{Record: &record, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return matches, nil
}
