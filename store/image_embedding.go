package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// EmbeddingDimensions is the fixed vector dimensionality for the
// lifetime of an index (clip-ViT-L-14 produces 768-dim vectors).
const EmbeddingDimensions = 768

// ErrVectorSearchUnsupported is returned by drivers without a native
// vector index. Callers fall back to an exhaustive scan.
var ErrVectorSearchUnsupported = errors.New("native vector search unsupported by driver")

// ImageEmbedding is a stored image vector with the metadata needed to
// spawn a ledger line from a visual match.
type ImageEmbedding struct {
	// ID is a stable content key derived from the item name and the
	// creation timestamp, e.g. "milk_bottle_1748523000123".
	ID   string
	Name string
	// ExpirationPeriod is the shelf-life estimate in days, applied when
	// a match creates a new ledger entry.
	ExpirationPeriod int
	Embedding        []float32
	Metadata         map[string]any
	CreatedTs        int64
	UpdatedTs        int64
}

var embeddingIDUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// NewImageEmbeddingID builds the stable content key for an embedding
// record: the slugified lowercase name plus a millisecond timestamp.
func NewImageEmbeddingID(name string, now time.Time) string {
	slug := strings.ReplaceAll(CanonicalName(name), " ", "_")
	slug = embeddingIDUnsafe.ReplaceAllString(slug, "")
	if slug == "" {
		slug = "item"
	}
	return fmt.Sprintf("%s_%d", slug, now.UnixMilli())
}

// Validate rejects malformed records at write time so dimensionality
// violations never surface during search.
func (e *ImageEmbedding) Validate() error {
	if e.ID == "" {
		return errors.New("embedding id cannot be empty")
	}
	if e.Name == "" {
		return errors.New("embedding name cannot be empty")
	}
	if len(e.Embedding) != EmbeddingDimensions {
		return errors.Errorf("invalid embedding dimension: got %d, want %d", len(e.Embedding), EmbeddingDimensions)
	}
	return nil
}

// FindImageEmbedding is the find condition for embedding records.
type FindImageEmbedding struct {
	ID   *string
	Name *string
}

// ImageEmbeddingMatch is a vector search result with its similarity score.
type ImageEmbeddingMatch struct {
	Record *ImageEmbedding
	// Score is the cosine similarity in [-1, 1], higher is more similar.
	Score float32
}

// VectorSearchOptions are the options for a native vector search.
type VectorSearchOptions struct {
	Vector []float32
	Limit  int
}

// Validate validates the VectorSearchOptions.
func (o *VectorSearchOptions) Validate() error {
	if len(o.Vector) != EmbeddingDimensions {
		return errors.Errorf("invalid query vector dimension: got %d, want %d", len(o.Vector), EmbeddingDimensions)
	}
	if o.Limit < 0 {
		return errors.Errorf("limit cannot be negative: %d", o.Limit)
	}
	if o.Limit == 0 {
		o.Limit = 100 // default candidate pool
	}
	if o.Limit > 1000 {
		return errors.Errorf("limit too large (max 1000): %d", o.Limit)
	}
	return nil
}

// UpsertImageEmbedding writes or replaces an embedding record by id.
// Calling twice with the same id and content leaves one stored record.
func (s *Store) UpsertImageEmbedding(ctx context.Context, upsert *ImageEmbedding) (*ImageEmbedding, error) {
	upsert.Name = CanonicalName(upsert.Name)
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().Unix()
	if upsert.CreatedTs == 0 {
		upsert.CreatedTs = now
	}
	upsert.UpdatedTs = now
	return s.driver.UpsertImageEmbedding(ctx, upsert)
}

// ListImageEmbeddings lists embedding records. With a nil or empty find
// this is the exhaustive scan used by the search fallback path: O(N)
// over the whole collection, expected to be slow for large N.
func (s *Store) ListImageEmbeddings(ctx context.Context, find *FindImageEmbedding) ([]*ImageEmbedding, error) {
	if find == nil {
		find = &FindImageEmbedding{}
	}
	return s.driver.ListImageEmbeddings(ctx, find)
}

func (s *Store) CountImageEmbeddings(ctx context.Context) (int64, error) {
	return s.driver.CountImageEmbeddings(ctx)
}

// EnsureVectorIndex idempotently provisions the native vector index.
// Failure must not propagate: search always has the scan fallback.
func (s *Store) EnsureVectorIndex(ctx context.Context, dimensions int) error {
	return s.driver.EnsureVectorIndex(ctx, dimensions)
}

// VectorSearch performs a native approximate similarity search.
func (s *Store) VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ImageEmbeddingMatch, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.VectorSearch(ctx, opts)
}
