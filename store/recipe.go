package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Recipe is a saved (favorited) recipe.
type Recipe struct {
	ID           int32
	Name         string
	Ingredients  []string
	Instructions string
	SourceURL    string
	MealType     string
	CreatedTs    int64
}

// FindRecipe is the find condition for saved recipes.
type FindRecipe struct {
	ID       *int32
	MealType *string
}

// UserPreferences holds per-household dietary preferences consumed by
// recipe generation. The system assumes a single household; UserID
// exists so the schema does not need to change if that ever does.
type UserPreferences struct {
	UserID              string
	DietaryRestrictions []string
	PreferredCuisines   []string
	UpdatedTs           int64
}

// DefaultUserID is the single-household preferences key.
const DefaultUserID = "default_user"

func (s *Store) CreateRecipe(ctx context.Context, create *Recipe) (*Recipe, error) {
	if create.Name == "" {
		return nil, errors.New("recipe name cannot be empty")
	}
	if create.Instructions == "" {
		return nil, errors.New("recipe instructions cannot be empty")
	}
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	return s.driver.CreateRecipe(ctx, create)
}

func (s *Store) ListRecipes(ctx context.Context, find *FindRecipe) ([]*Recipe, error) {
	if find == nil {
		find = &FindRecipe{}
	}
	return s.driver.ListRecipes(ctx, find)
}

// GetRecipe gets a saved recipe by id. Returns ErrNotFound when absent.
func (s *Store) GetRecipe(ctx context.Context, id int32) (*Recipe, error) {
	list, err := s.driver.ListRecipes(ctx, &FindRecipe{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

func (s *Store) DeleteRecipe(ctx context.Context, id int32) error {
	return s.driver.DeleteRecipe(ctx, id)
}

func (s *Store) GetUserPreferences(ctx context.Context, userID string) (*UserPreferences, error) {
	if userID == "" {
		userID = DefaultUserID
	}
	return s.driver.GetUserPreferences(ctx, userID)
}

func (s *Store) UpsertUserPreferences(ctx context.Context, upsert *UserPreferences) (*UserPreferences, error) {
	if upsert.UserID == "" {
		upsert.UserID = DefaultUserID
	}
	upsert.UpdatedTs = time.Now().Unix()
	return s.driver.UpsertUserPreferences(ctx, upsert)
}
