package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// LLMService is the generative AI collaborator: item identification
// from photos, shelf-life estimation, and recipe suggestions.
type LLMService interface {
	// IdentifyItems identifies the food items visible in a photo.
	// Malformed model output degrades to a Malformed result with an
	// empty item list; it never becomes an error.
	IdentifyItems(ctx context.Context, image []byte) (*IdentifyResult, error)

	// EstimateShelfLife estimates how many days an item keeps in a
	// refrigerator. Returns DefaultShelfLifeDays when the model output
	// is unusable.
	EstimateShelfLife(ctx context.Context, name string) (int, error)

	// SuggestRecipes proposes recipes for the given ingredients.
	SuggestRecipes(ctx context.Context, req *RecipeRequest) ([]GeneratedRecipe, error)
}

// DefaultShelfLifeDays is the shelf-life estimate applied when the
// model gives no usable answer.
const DefaultShelfLifeDays = 7

// RecipeRequest describes a recipe generation call.
type RecipeRequest struct {
	Ingredients         []string
	MealType            string
	DietaryRestrictions []string
	PreferredCuisines   []string
}

// GeneratedRecipe is one model-proposed recipe.
type GeneratedRecipe struct {
	Name         string   `json:"name"`
	Ingredients  []string `json:"ingredients"`
	Instructions string   `json:"instructions"`
}

type llmService struct {
	client  *genai.Client
	model   string
	limiter *rate.Limiter
}

// NewLLMService creates a Gemini-backed LLMService. Outbound calls are
// rate limited; the per-call deadline comes from the caller's context.
func NewLLMService(ctx context.Context, cfg *LLMConfig) (LLMService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("LLM API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create genai client")
	}

	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &llmService{
		client:  client,
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
	}, nil
}

const identifyPrompt = "Analyze this refrigerator image and identify all food items visible. " +
	"For each item, provide: name, estimated count, and estimated expiration_date " +
	"(assuming items were purchased today). Use YYYY-MM-DD format for dates. " +
	"Return response as a JSON object with an 'items' array, where each item has: " +
	"name, count, expiration_date"

func (s *llmService) IdentifyItems(ctx context.Context, image []byte) (*IdentifyResult, error) {
	// Re-encode to JPEG so the inline MIME type is always right and
	// oversized photos are shrunk before upload.
	normalized, err := NormalizeImage(image)
	if err != nil {
		return nil, errors.Wrap(err, "normalize image")
	}

	text, err := s.generate(ctx, []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/jpeg", Data: normalized}},
		{Text: identifyPrompt},
	}, true)
	if err != nil {
		return nil, err
	}
	return ParseIdentifyPayload(text), nil
}

func (s *llmService) EstimateShelfLife(ctx context.Context, name string) (int, error) {
	prompt := fmt.Sprintf(
		"How many days does %q typically keep in a refrigerator before expiring? "+
			"Answer with a JSON object: {\"days\": <integer>}", name)
	text, err := s.generate(ctx, []*genai.Part{{Text: prompt}}, true)
	if err != nil {
		return DefaultShelfLifeDays, err
	}
	return parseShelfLifePayload(text), nil
}

func (s *llmService) SuggestRecipes(ctx context.Context, req *RecipeRequest) ([]GeneratedRecipe, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Suggest up to 3 recipes using some of these ingredients: %s.", strings.Join(req.Ingredients, ", "))
	if req.MealType != "" {
		fmt.Fprintf(&b, " Meal type: %s.", req.MealType)
	}
	if len(req.DietaryRestrictions) > 0 {
		fmt.Fprintf(&b, " Dietary restrictions: %s.", strings.Join(req.DietaryRestrictions, ", "))
	}
	if len(req.PreferredCuisines) > 0 {
		fmt.Fprintf(&b, " Preferred cuisines: %s.", strings.Join(req.PreferredCuisines, ", "))
	}
	b.WriteString(" Return a JSON object with a 'recipes' array, where each recipe has: name, ingredients (array of strings), instructions.")

	text, err := s.generate(ctx, []*genai.Part{{Text: b.String()}}, true)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Recipes []GeneratedRecipe `json:"recipes"`
	}
	if err := unmarshalLoose([]byte(text), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse recipe response")
	}
	return payload.Recipes, nil
}

// generate runs one GenerateContent call and concatenates the text
// parts of the first candidate.
func (s *llmService) generate(ctx context.Context, parts []*genai.Part, jsonResponse bool) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "rate limiter wait aborted")
	}

	var config *genai.GenerateContentConfig
	if jsonResponse {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.1),
		}
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, []*genai.Content{
		{Parts: parts, Role: "user"},
	}, config)
	if err != nil {
		return "", errors.Wrap(err, "genai generate failed")
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
