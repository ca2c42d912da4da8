package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/store"
)

// RecipeService generates recipe suggestions from current inventory
// and manages saved favorites and household preferences.
type RecipeService struct {
	Store      *store.Store
	LLMService ai.LLMService
}

type generateRecipesRequest struct {
	MealType string `json:"meal_type"`
	// Ingredients overrides the default of using the whole inventory.
	Ingredients []string `json:"ingredients"`
}

func (s *RecipeService) GenerateRecipes(c echo.Context) error {
	ctx := c.Request().Context()
	if s.LLMService == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "recipe generation requires generative AI to be configured")
	}

	req := &generateRecipesRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	ingredients := req.Ingredients
	if len(ingredients) == 0 {
		items, err := s.Store.ListInventoryItems(ctx, nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to list inventory").SetInternal(err)
		}
		for _, item := range items {
			ingredients = append(ingredients, item.Name)
		}
	}
	if len(ingredients) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "inventory is empty, nothing to cook with")
	}

	prefs, err := s.Store.GetUserPreferences(ctx, store.DefaultUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load preferences").SetInternal(err)
	}

	recipeReq := &ai.RecipeRequest{
		Ingredients: ingredients,
		MealType:    req.MealType,
	}
	if prefs != nil {
		recipeReq.DietaryRestrictions = prefs.DietaryRestrictions
		recipeReq.PreferredCuisines = prefs.PreferredCuisines
	}

	recipes, err := s.LLMService.SuggestRecipes(ctx, recipeReq)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, "recipe generation failed").SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"recipes": recipes})
}

type recipeResponse struct {
	ID           int32    `json:"id"`
	Name         string   `json:"name"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	SourceURL    string   `json:"source_url,omitempty"`
	MealType     string   `json:"meal_type,omitempty"`
}

func toRecipeResponse(r *store.Recipe) *recipeResponse {
	return &recipeResponse{
		ID:           r.ID,
		Name:         r.Name,
		Ingredients:  r.Ingredients,
		Instructions: r.Instructions,
		SourceURL:    r.SourceURL,
		MealType:     r.MealType,
	}
}

func (s *RecipeService) ListFavorites(c echo.Context) error {
	ctx := c.Request().Context()
	find := &store.FindRecipe{}
	if mealType := c.QueryParam("meal_type"); mealType != "" {
		find.MealType = &mealType
	}

	recipes, err := s.Store.ListRecipes(ctx, find)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list recipes").SetInternal(err)
	}

	resp := make([]*recipeResponse, 0, len(recipes))
	for _, r := range recipes {
		resp = append(resp, toRecipeResponse(r))
	}
	return c.JSON(http.StatusOK, map[string]any{"recipes": resp})
}

func (s *RecipeService) GetFavorite(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recipe id")
	}

	recipe, err := s.Store.GetRecipe(ctx, int32(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "recipe not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to get recipe").SetInternal(err)
	}
	return c.JSON(http.StatusOK, toRecipeResponse(recipe))
}

type saveFavoriteRequest struct {
	Name         string   `json:"name"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
	SourceURL    string   `json:"source_url"`
	MealType     string   `json:"meal_type"`
}

func (s *RecipeService) SaveFavorite(c echo.Context) error {
	ctx := c.Request().Context()
	req := &saveFavoriteRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	recipe, err := s.Store.CreateRecipe(ctx, &store.Recipe{
		Name:         req.Name,
		Ingredients:  req.Ingredients,
		Instructions: req.Instructions,
		SourceURL:    req.SourceURL,
		MealType:     req.MealType,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, toRecipeResponse(recipe))
}

func (s *RecipeService) DeleteFavorite(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid recipe id")
	}

	if err := s.Store.DeleteRecipe(ctx, int32(id)); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete recipe").SetInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type preferencesPayload struct {
	DietaryRestrictions []string `json:"dietary_restrictions"`
	PreferredCuisines   []string `json:"preferred_cuisines"`
}

func (s *RecipeService) GetPreferences(c echo.Context) error {
	ctx := c.Request().Context()
	prefs, err := s.Store.GetUserPreferences(ctx, store.DefaultUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load preferences").SetInternal(err)
	}
	if prefs == nil {
		return c.JSON(http.StatusOK, &preferencesPayload{
			DietaryRestrictions: []string{},
			PreferredCuisines:   []string{},
		})
	}
	return c.JSON(http.StatusOK, &preferencesPayload{
		DietaryRestrictions: prefs.DietaryRestrictions,
		PreferredCuisines:   prefs.PreferredCuisines,
	})
}

func (s *RecipeService) UpdatePreferences(c echo.Context) error {
	ctx := c.Request().Context()
	req := &preferencesPayload{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body").SetInternal(err)
	}

	prefs, err := s.Store.UpsertUserPreferences(ctx, &store.UserPreferences{
		UserID:              store.DefaultUserID,
		DietaryRestrictions: req.DietaryRestrictions,
		PreferredCuisines:   req.PreferredCuisines,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save preferences").SetInternal(err)
	}
	return c.JSON(http.StatusOK, &preferencesPayload{
		DietaryRestrictions: prefs.DietaryRestrictions,
		PreferredCuisines:   prefs.PreferredCuisines,
	})
}
