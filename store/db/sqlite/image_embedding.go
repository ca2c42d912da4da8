package sqlite

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/store"
)

// Vectors are stored as little-endian float32 BLOBs. Similarity search
// over them runs in the application layer (exhaustive scan); SQLite has
// no native approximate index here.

// float32ArrayToBLOB converts a []float32 to its BLOB representation.
// It validates that the vector has the expected dimension.
func float32ArrayToBLOB(vec []float32) ([]byte, error) {
	if len(vec) != store.EmbeddingDimensions {
		return nil, errors.Errorf("invalid vector dimension: got %d, want %d", len(vec), store.EmbeddingDimensions)
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf, nil
}

// blobToFloat32Array is the inverse of float32ArrayToBLOB.
func blobToFloat32Array(blob []byte) ([]float32, error) {
	expectedLen := store.EmbeddingDimensions * 4
	if len(blob) != expectedLen {
		return nil, errors.Errorf("invalid BLOB length: got %d, want %d", len(blob), expectedLen)
	}
	vec := make([]float32, store.EmbeddingDimensions)
	for i := 0; i < store.EmbeddingDimensions; i++ {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

func (d *DB) UpsertImageEmbedding(ctx context.Context, upsert *store.ImageEmbedding) (*store.ImageEmbedding, error) {
	vectorBLOB, err := float32ArrayToBLOB(upsert.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert embedding vector to BLOB")
	}
	metadata, err := json.Marshal(upsert.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding metadata")
	}

	stmt := `
		INSERT INTO image_embedding (id, name, expiration_period, embedding, metadata, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			expiration_period = excluded.expiration_period,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			updated_ts = excluded.updated_ts
		RETURNING created_ts, updated_ts
	`
	err = d.db.QueryRowContext(ctx, stmt,
		upsert.ID,
		upsert.Name,
		upsert.ExpirationPeriod,
		vectorBLOB,
		string(metadata),
		upsert.CreatedTs,
		upsert.UpdatedTs,
	).Scan(&upsert.CreatedTs, &upsert.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert image embedding")
	}

	return upsert, nil
}

func (d *DB) ListImageEmbeddings(ctx context.Context, find *store.FindImageEmbedding) ([]*store.ImageEmbedding, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
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
		var record store.ImageEmbedding
		var vectorBLOB []byte
		var metadata string
		err := rows.Scan(
			&record.ID,
			&record.Name,
			&record.ExpirationPeriod,
			&vectorBLOB,
			&metadata,
			&record.CreatedTs,
			&record.UpdatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan image embedding")
		}
		record.Embedding, err = blobToFloat32Array(vectorBLOB)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode embedding BLOB")
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &record.Metadata); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal embedding metadata")
			}
		}
		list = append(list, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) CountImageEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_embedding`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count image embeddings")
	}
	return count, nil
}

// EnsureVectorIndex is a no-op: SQLite carries no native vector index
// and search relies on the exhaustive scan path.
func (d *DB) EnsureVectorIndex(_ context.Context, dimensions int) error {
	if dimensions != store.EmbeddingDimensions {
		return errors.Errorf("index dimensions %d do not match schema dimensions %d", dimensions, store.EmbeddingDimensions)
	}
	return nil
}

// VectorSearch is unsupported on SQLite.
func (d *DB) VectorSearch(_ context.Context, _ *store.VectorSearchOptions) ([]*store.ImageEmbeddingMatch, error) {
	return nil, store.ErrVectorSearchUnsupported
}
