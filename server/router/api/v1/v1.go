package v1

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/fridge"
	"github.com/hrygo/fridgesense/internal/profile"
	"github.com/hrygo/fridgesense/store"
)

// APIV1Service hosts the REST API surface.
type APIV1Service struct {
	InventoryService    *InventoryService
	NotificationService *NotificationService
	RecipeService       *RecipeService

	Profile *profile.Profile
	Store   *store.Store
}

// NewAPIV1Service wires the domain services. The embedding service is
// mandatory; the generative service is optional and its absence only
// degrades unseen-item identification and recipe generation.
func NewAPIV1Service(ctx context.Context, profile *profile.Profile, store *store.Store) (*APIV1Service, error) {
	aiConfig := ai.NewConfigFromProfile(profile)
	if err := aiConfig.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid AI configuration")
	}

	embeddingService, err := ai.NewEmbeddingService(&aiConfig.Embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding service")
	}

	var llmService ai.LLMService
	if profile.IsAIEnabled() {
		llmService, err = ai.NewLLMService(ctx, &aiConfig.LLM)
		if err != nil {
			slog.Warn("failed to initialize LLM service",
				"model", aiConfig.LLM.Model,
				"error", err,
				"note", "unseen-item identification and recipe generation are disabled",
			)
			llmService = nil
		} else {
			slog.Info("LLM service initialized", "model", aiConfig.LLM.Model)
		}
	} else {
		slog.Info("generative AI disabled, unseen-item identification will report errors")
	}

	searchEngine := fridge.NewSearchEngine(store, embeddingService)
	reconciler := fridge.NewReconciler(store, searchEngine, embeddingService, llmService)

	service := &APIV1Service{
		Profile: profile,
		Store:   store,
	}
	service.InventoryService = NewInventoryService(store, reconciler)
	service.NotificationService = &NotificationService{Store: store}
	service.RecipeService = &RecipeService{
		Store:      store,
		LLMService: llmService,
	}
	return service, nil
}

// RegisterRoutes attaches the REST routes to the Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	inventory := echoServer.Group("/api/inventory")
	inventory.GET("/items", s.InventoryService.ListItems)
	inventory.GET("/items/:id", s.InventoryService.GetItem)
	inventory.POST("/items", s.InventoryService.CreateItem)
	inventory.PUT("/items/:id", s.InventoryService.UpdateItem)
	inventory.DELETE("/items/:id", s.InventoryService.DeleteItem)

	inventory.POST("/process-image", s.InventoryService.ProcessImage)
	inventory.POST("/upload-image-pair", s.InventoryService.UploadImagePair)
	inventory.POST("/confirm-updates", s.InventoryService.ConfirmUpdates)
	inventory.POST("/reject-update", s.InventoryService.RejectUpdate)

	notifications := echoServer.Group("/api/notifications")
	notifications.GET("/check-expirations", s.NotificationService.CheckExpirations)

	recipes := echoServer.Group("/api/recipes")
	recipes.POST("/generate", s.RecipeService.GenerateRecipes)
	recipes.GET("/favorites", s.RecipeService.ListFavorites)
	recipes.GET("/favorites/:id", s.RecipeService.GetFavorite)
	recipes.POST("/favorites", s.RecipeService.SaveFavorite)
	recipes.DELETE("/favorites/:id", s.RecipeService.DeleteFavorite)

	preferences := echoServer.Group("/api/preferences")
	preferences.GET("", s.RecipeService.GetPreferences)
	preferences.PUT("", s.RecipeService.UpdatePreferences)
}
