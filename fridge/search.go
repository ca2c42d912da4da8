package fridge

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/internal/metrics"
	"github.com/hrygo/fridgesense/store"
)

// Match is a similarity search result.
type Match struct {
	Record *store.ImageEmbedding
	// Score is the cosine similarity to the query, higher is better.
	Score float32
}

// SearchEngine performs similarity search over stored image embeddings
// with a resilient two-path strategy: the store's managed vector index
// when it works, an exhaustive cosine scan when it doesn't. Both paths
// rank by cosine similarity descending, so callers see identical
// semantics either way.
type SearchEngine struct {
	store    *store.Store
	embedder ai.EmbeddingService
}

// NewSearchEngine creates a SearchEngine.
func NewSearchEngine(st *store.Store, embedder ai.EmbeddingService) *SearchEngine {
	return &SearchEngine{store: st, embedder: embedder}
}

// Search embeds the query photo and ranks stored records against it,
// returning up to limit matches scoring at or above threshold.
func (e *SearchEngine) Search(ctx context.Context, photo []byte, limit int, threshold float32) ([]Match, error) {
	vector, err := e.embedder.EmbedImage(ctx, photo)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query image")
	}
	return e.SearchVector(ctx, vector, limit, threshold)
}

// SearchVector ranks stored records against an already-computed query
// vector. Callers that reuse the vector afterwards (e.g. to store it)
// should embed once and call this directly.
func (e *SearchEngine) SearchVector(ctx context.Context, vector []float32, limit int, threshold float32) ([]Match, error) {
	count, err := e.store.CountImageEmbeddings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count image embeddings")
	}
	if count == 0 {
		// Whether an empty result means "new item" is the caller's call.
		metrics.SimilaritySearches.WithLabelValues("empty").Inc()
		return nil, nil
	}

	pool := limit
	if pool < candidatePool {
		pool = candidatePool
	}

	candidates, err := e.store.VectorSearch(ctx, &store.VectorSearchOptions{
		Vector: vector,
		Limit:  pool,
	})
	if err == nil {
		matches := filterMatches(candidates, limit, threshold)
		if len(matches) > 0 {
			metrics.SimilaritySearches.WithLabelValues("indexed").Inc()
			return matches, nil
		}
		// Nothing above threshold from the index; the exhaustive scan
		// gets the final word since approximate search can miss.
	} else if !errors.Is(err, store.ErrVectorSearchUnsupported) {
		slog.Warn("managed vector search failed, falling back to exhaustive scan", "error", err)
	}

	metrics.SimilaritySearches.WithLabelValues("scan").Inc()
	return e.scanAll(ctx, vector, limit, threshold)
}

// scanAll is the fallback path: load every record and rank by cosine
// similarity computed in-process. O(N) and documented as such.
func (e *SearchEngine) scanAll(ctx context.Context, vector []float32, limit int, threshold float32) ([]Match, error) {
	records, err := e.store.ListImageEmbeddings(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan image embeddings")
	}

	matches := make([]Match, 0, len(records))
	for _, record := range records {
		score := Cosine(vector, record.Embedding)
		if score >= threshold {
			matches = append(matches, Match{Record: record, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func filterMatches(candidates []*store.ImageEmbeddingMatch, limit int, threshold float32) []Match {
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			matches = append(matches, Match{Record: c.Record, Score: c.Score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Cosine computes the cosine similarity of two vectors:
// dot(a, b) / (||a|| * ||b||). A zero-norm operand yields 0 rather
// than a division by zero. Mismatched lengths also yield 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
