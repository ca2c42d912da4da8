package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for database drivers.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Inventory ledger.
	CreateInventoryItem(ctx context.Context, create *InventoryItem) (*InventoryItem, error)
	ListInventoryItems(ctx context.Context, find *FindInventoryItem) ([]*InventoryItem, error)
	UpdateInventoryItem(ctx context.Context, update *UpdateInventoryItem) (*InventoryItem, error)
	DeleteInventoryItem(ctx context.Context, id int32) error

	// Image embedding records.
	UpsertImageEmbedding(ctx context.Context, upsert *ImageEmbedding) (*ImageEmbedding, error)
	ListImageEmbeddings(ctx context.Context, find *FindImageEmbedding) ([]*ImageEmbedding, error)
	CountImageEmbeddings(ctx context.Context) (int64, error)

	// EnsureVectorIndex idempotently provisions a native approximate
	// vector index. Drivers without one return nil; search then relies
	// on the exhaustive fallback path.
	EnsureVectorIndex(ctx context.Context, dimensions int) error

	// VectorSearch performs a native similarity search over stored
	// embeddings, ranked by cosine similarity (higher is better).
	// Drivers without native search return ErrVectorSearchUnsupported.
	VectorSearch(ctx context.Context, opts *VectorSearchOptions) ([]*ImageEmbeddingMatch, error)

	// Saved recipes.
	CreateRecipe(ctx context.Context, create *Recipe) (*Recipe, error)
	ListRecipes(ctx context.Context, find *FindRecipe) ([]*Recipe, error)
	DeleteRecipe(ctx context.Context, id int32) error

	// Per-household preferences used for recipe generation.
	GetUserPreferences(ctx context.Context, userID string) (*UserPreferences, error)
	UpsertUserPreferences(ctx context.Context, upsert *UserPreferences) (*UserPreferences, error)
}
