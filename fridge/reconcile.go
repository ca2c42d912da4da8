package fridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/internal/metrics"
	"github.com/hrygo/fridgesense/store"
)

// dateLayout is the ISO calendar date format used for expiration dates
// the engine computes itself. AI-supplied dates are stored verbatim.
const dateLayout = "2006-01-02"

// PendingUpdate is a proposed quantity change. When Applied is false it
// has NOT been written: the caller must confirm or reject it.
type PendingUpdate struct {
	ItemID      int32   `json:"item_id"`
	Name        string  `json:"name"`
	OldQuantity int     `json:"old_quantity"`
	NewQuantity int     `json:"new_quantity"`
	Score       float32 `json:"similarity_score,omitempty"`
	Applied     bool    `json:"applied"`
}

// AddedItem reports a ledger line created during reconciliation.
type AddedItem struct {
	ItemID   int32   `json:"item_id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Score    float32 `json:"similarity_score,omitempty"`
	// Source is "visual_match" when a stored embedding spawned the
	// line, "ai_identified" when the AI fallback did.
	Source string `json:"source"`
}

// ItemError is a structured per-item failure. Batches never abort on
// one of these; every mutation attempt reports independently.
type ItemError struct {
	Name   string `json:"name,omitempty"`
	Action string `json:"action"`
	Err    string `json:"error"`
}

// IntakeResult summarizes one intake photo.
type IntakeResult struct {
	Added   []AddedItem     `json:"added"`
	Updated []PendingUpdate `json:"updated"`
	Errors  []ItemError     `json:"errors"`
}

// OuttakeResult summarizes one outtake photo.
type OuttakeResult struct {
	Removed []string        `json:"removed"`
	Updated []PendingUpdate `json:"updated"`
	Errors  []ItemError     `json:"errors"`
}

// ConfirmUpdate is one entry of a confirmation batch.
type ConfirmUpdate struct {
	ItemID      int32 `json:"item_id"`
	NewQuantity int   `json:"new_quantity"`
}

// ConfirmResult summarizes a confirmation batch.
type ConfirmResult struct {
	Updated []PendingUpdate `json:"updated"`
	Errors  []ItemError     `json:"errors"`
}

// RejectResult reports a rejected update: the reverted original line
// and the new, disambiguated line created in its place.
type RejectResult struct {
	RevertedName     string `json:"reverted_name"`
	RevertedQuantity int    `json:"reverted_quantity"`
	NewItemID        int32  `json:"new_item_id"`
	NewItemName      string `json:"new_item_name"`
}

// Reconciler is the state machine mapping a similarity-search outcome
// to a ledger mutation (create, increment, decrement, delete) or a
// staged pending change awaiting confirmation.
type Reconciler struct {
	store    *store.Store
	search   *SearchEngine
	embedder ai.EmbeddingService
	// llm may be nil; intake of unseen items then degrades to an error
	// entry instead of AI identification.
	llm ai.LLMService

	// nameMu guards nameLocks. Each entry serializes the lookup-then-write
	// branch for one lowercase name: every concurrent intake of the same
	// item runs its own critical section, one after the other, so the
	// second one sees the first one's ledger line and increments it.
	nameMu    sync.Mutex
	nameLocks map[string]*sync.Mutex

	now func() time.Time
}

// lockName acquires the creation lock for a name. The caller must
// unlock the returned mutex.
func (r *Reconciler) lockName(name string) *sync.Mutex {
	r.nameMu.Lock()
	mu, ok := r.nameLocks[name]
	if !ok {
		mu = &sync.Mutex{}
		r.nameLocks[name] = mu
	}
	r.nameMu.Unlock()
	mu.Lock()
	return mu
}

// NewReconciler creates a Reconciler. llm may be nil.
func NewReconciler(st *store.Store, search *SearchEngine, embedder ai.EmbeddingService, llm ai.LLMService) *Reconciler {
	return &Reconciler{
		store:     st,
		search:    search,
		embedder:  embedder,
		llm:       llm,
		nameLocks: map[string]*sync.Mutex{},
		now:       time.Now,
	}
}

func newIntakeResult() *IntakeResult {
	return &IntakeResult{Added: []AddedItem{}, Updated: []PendingUpdate{}, Errors: []ItemError{}}
}

func newOuttakeResult() *OuttakeResult {
	return &OuttakeResult{Removed: []string{}, Updated: []PendingUpdate{}, Errors: []ItemError{}}
}

// ProcessIntake reconciles a photo of an item entering the fridge.
//
// No similarity match -> AI identification. Match but no ledger line ->
// auto-create the first unit. Match with an existing ledger line ->
// stage a PendingUpdate; nothing is written until the caller confirms.
func (r *Reconciler) ProcessIntake(ctx context.Context, photo []byte) (*IntakeResult, error) {
	result := newIntakeResult()

	vector, err := r.embedder.EmbedImage(ctx, photo)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed intake photo")
	}

	matches, err := r.search.SearchVector(ctx, vector, 1, IntakeThreshold)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		r.intakeUnrecognized(ctx, photo, vector, result)
		return result, nil
	}

	top := matches[0]
	item, err := r.store.GetInventoryItemByName(ctx, top.Record.Name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up ledger")
	}

	if item == nil {
		// Known look, no ledger line: first unit, nothing ambiguous.
		created, err := r.createFromMatch(ctx, top, photo)
		if err != nil {
			metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, ItemError{
				Name: top.Record.Name, Action: "create_item", Err: err.Error(),
			})
			return result, nil
		}
		metrics.ReconcileOutcomes.WithLabelValues("added").Inc()
		result.Added = append(result.Added, AddedItem{
			ItemID:   created.ID,
			Name:     created.Name,
			Quantity: created.Quantity,
			Score:    top.Score,
			Source:   "visual_match",
		})
		return result, nil
	}

	// Ambiguous: a restock of the same physical object and a
	// different-but-similar item look identical in one photo. Stage the
	// increment and let a human decide.
	metrics.ReconcileOutcomes.WithLabelValues("staged").Inc()
	result.Updated = append(result.Updated, PendingUpdate{
		ItemID:      item.ID,
		Name:        item.Name,
		OldQuantity: item.Quantity,
		NewQuantity: item.Quantity + 1,
		Score:       top.Score,
		Applied:     false,
	})
	return result, nil
}

// createFromMatch creates the quantity-1 ledger line for a visual
// match, with expiration derived from the matched record's shelf life.
func (r *Reconciler) createFromMatch(ctx context.Context, match Match, photo []byte) (*store.InventoryItem, error) {
	name := match.Record.Name
	expiration := r.now().UTC().AddDate(0, 0, match.Record.ExpirationPeriod).Format(dateLayout)

	mu := r.lockName(name)
	defer mu.Unlock()

	// Re-check under the per-name lock.
	existing, err := r.store.GetInventoryItemByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	return r.store.CreateInventoryItem(ctx, &store.InventoryItem{
		Name:           name,
		Quantity:       1,
		ExpirationDate: expiration,
		ImageData:      photo,
	})
}

// intakeUnrecognized handles the no-match branch: AI identification,
// per-identified-item ledger reconciliation, and learning the new
// item's embedding. One item's failure never aborts the rest.
func (r *Reconciler) intakeUnrecognized(ctx context.Context, photo []byte, vector []float32, result *IntakeResult) {
	if r.llm == nil {
		result.Errors = append(result.Errors, ItemError{
			Action: "identify", Err: "AI identification is not configured",
		})
		return
	}

	metrics.AIFallbacks.Inc()
	identified, err := r.llm.IdentifyItems(ctx, photo)
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
		result.Errors = append(result.Errors, ItemError{Action: "identify", Err: err.Error()})
		return
	}
	if identified.Malformed {
		slog.Warn("identification returned malformed payload, treating as no items", "raw_len", len(identified.Raw))
		return
	}

	for _, it := range identified.Items {
		if it.Name == "" || it.ExpirationDate == "" {
			continue
		}
		r.applyIdentifiedItem(ctx, it, photo, vector, result)
	}
}

func (r *Reconciler) applyIdentifiedItem(ctx context.Context, it ai.IdentifiedItem, photo []byte, vector []float32, result *IntakeResult) {
	name := store.CanonicalName(it.Name)

	mu := r.lockName(name)
	defer mu.Unlock()

	// Same name with the same expiration date is the same batch:
	// increment. A different date is a new batch: separate line.
	existing, err := r.store.GetInventoryItemByNameAndExpiration(ctx, name, it.ExpirationDate)
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
		result.Errors = append(result.Errors, ItemError{
			Name: name, Action: "reconcile", Err: err.Error(),
		})
		return
	}

	if existing != nil {
		newQuantity := existing.Quantity + it.Count
		updated, err := r.store.UpdateInventoryItem(ctx, &store.UpdateInventoryItem{
			ID:               existing.ID,
			Quantity:         &newQuantity,
			RefreshDateAdded: true,
		})
		if err != nil {
			metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, ItemError{
				Name: name, Action: "increment", Err: err.Error(),
			})
			return
		}
		metrics.ReconcileOutcomes.WithLabelValues("incremented").Inc()
		result.Updated = append(result.Updated, PendingUpdate{
			ItemID:      updated.ID,
			Name:        updated.Name,
			OldQuantity: updated.Quantity - it.Count,
			NewQuantity: updated.Quantity,
			Applied:     true,
		})
		return
	}

	created, err := r.store.CreateInventoryItem(ctx, &store.InventoryItem{
		Name:           name,
		Quantity:       it.Count,
		ExpirationDate: it.ExpirationDate,
		ImageData:      photo,
	})
	if err != nil {
		metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
		result.Errors = append(result.Errors, ItemError{
			Name: name, Action: "create_item", Err: err.Error(),
		})
		return
	}

	metrics.ReconcileOutcomes.WithLabelValues("added").Inc()
	result.Added = append(result.Added, AddedItem{
		ItemID:   created.ID,
		Name:     created.Name,
		Quantity: created.Quantity,
		Source:   "ai_identified",
	})

	// Learn the look so future photos of this item match visually.
	// A failure here degrades to "never auto-matches again", it does
	// not undo the ledger write.
	if embedErr := r.storeEmbedding(ctx, name, vector, it.ExpirationDate); embedErr != nil {
		result.Errors = append(result.Errors, ItemError{
			Name: name, Action: "store_vector", Err: embedErr.Error(),
		})
	}
}

// storeEmbedding persists the intake photo's vector under a fresh
// content key so the item matches visually from now on.
func (r *Reconciler) storeEmbedding(ctx context.Context, name string, vector []float32, expirationDate string) error {
	now := r.now().UTC()
	period := daysUntil(expirationDate, now)

	_, err := r.store.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID:               store.NewImageEmbeddingID(name, now),
		Name:             name,
		ExpirationPeriod: period,
		Embedding:        vector,
		Metadata: map[string]any{
			"category":   "food",
			"date_added": now.Format(time.RFC3339),
			// Correlates the record with the intake request that produced it.
			"source_photo_id": uuid.NewString(),
		},
	})
	return err
}

// daysUntil computes the whole days from now until an ISO date or
// date-time string, clamped to at least 1. Unparseable dates fall back
// to the default shelf life.
func daysUntil(expirationDate string, now time.Time) int {
	t, err := time.Parse(dateLayout, expirationDate)
	if err != nil {
		t, err = time.Parse(time.RFC3339, expirationDate)
		if err != nil {
			return ai.DefaultShelfLifeDays
		}
	}
	days := int(t.Sub(now).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days
}

// ProcessOuttake reconciles a photo of an item leaving the fridge.
// Removing one unit of a multi-unit line decrements; removing the last
// unit deletes the line. Both are unambiguous and auto-applied.
func (r *Reconciler) ProcessOuttake(ctx context.Context, photo []byte) (*OuttakeResult, error) {
	result := newOuttakeResult()

	matches, err := r.search.Search(ctx, photo, 1, OuttakeThreshold)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		result.Errors = append(result.Errors, ItemError{
			Action: "remove", Err: "no matching item found in image database",
		})
		return result, nil
	}

	name := matches[0].Record.Name
	item, err := r.store.GetInventoryItemByName(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up ledger")
	}
	if item == nil {
		result.Errors = append(result.Errors, ItemError{
			Name: name, Action: "remove", Err: "item not found in inventory",
		})
		return result, nil
	}

	if item.Quantity > 1 {
		newQuantity := item.Quantity - 1
		updated, err := r.store.UpdateInventoryItem(ctx, &store.UpdateInventoryItem{
			ID:               item.ID,
			Quantity:         &newQuantity,
			RefreshDateAdded: true,
		})
		if err != nil {
			metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, ItemError{
				Name: name, Action: "decrement", Err: err.Error(),
			})
			return result, nil
		}
		metrics.ReconcileOutcomes.WithLabelValues("decremented").Inc()
		result.Updated = append(result.Updated, PendingUpdate{
			ItemID:      updated.ID,
			Name:        updated.Name,
			OldQuantity: item.Quantity,
			NewQuantity: updated.Quantity,
			Score:       matches[0].Score,
			Applied:     true,
		})
		return result, nil
	}

	if err := r.store.DeleteInventoryItem(ctx, item.ID); err != nil {
		metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
		result.Errors = append(result.Errors, ItemError{
			Name: name, Action: "remove", Err: err.Error(),
		})
		return result, nil
	}
	metrics.ReconcileOutcomes.WithLabelValues("deleted").Inc()
	result.Removed = append(result.Removed, name)
	return result, nil
}

// ConfirmUpdates applies staged pending updates. Each entry succeeds
// or fails independently; an unknown id is reported per-item and never
// aborts the batch.
func (r *Reconciler) ConfirmUpdates(ctx context.Context, updates []ConfirmUpdate) *ConfirmResult {
	result := &ConfirmResult{Updated: []PendingUpdate{}, Errors: []ItemError{}}

	for _, u := range updates {
		quantity := u.NewQuantity
		updated, err := r.store.UpdateInventoryItem(ctx, &store.UpdateInventoryItem{
			ID:               u.ItemID,
			Quantity:         &quantity,
			RefreshDateAdded: true,
		})
		if err != nil {
			metrics.ReconcileOutcomes.WithLabelValues("error").Inc()
			result.Errors = append(result.Errors, ItemError{
				Name:   fmt.Sprintf("item %d", u.ItemID),
				Action: "confirm_update",
				Err:    err.Error(),
			})
			continue
		}
		metrics.ReconcileOutcomes.WithLabelValues("incremented").Inc()
		result.Updated = append(result.Updated, PendingUpdate{
			ItemID:      updated.ID,
			Name:        updated.Name,
			NewQuantity: updated.Quantity,
			Applied:     true,
		})
	}
	return result
}

// RejectUpdate reverts a staged "+1" the client had tentatively shown
// and creates a new, disambiguated line named with the smallest unused
// integer suffix (name_1, name_2, ...). From then on the two
// visually-similar items stay permanently distinguishable.
func (r *Reconciler) RejectUpdate(ctx context.Context, name string, originalQuantity int, imageData []byte) (*RejectResult, error) {
	name = store.CanonicalName(name)
	if name == "" {
		return nil, errors.New("item name is required")
	}
	if originalQuantity < 0 {
		originalQuantity = 0
	}

	existing, err := r.store.GetInventoryItemByName(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up ledger")
	}
	if existing != nil {
		if _, err := r.store.UpdateInventoryItem(ctx, &store.UpdateInventoryItem{
			ID:       existing.ID,
			Quantity: &originalQuantity,
		}); err != nil {
			return nil, errors.Wrap(err, "failed to revert quantity")
		}
	}

	newName, err := r.nextAvailableName(ctx, name)
	if err != nil {
		return nil, err
	}

	days := ai.DefaultShelfLifeDays
	if r.llm != nil {
		if estimated, err := r.llm.EstimateShelfLife(ctx, name); err == nil {
			days = estimated
		}
	}
	expiration := r.now().UTC().AddDate(0, 0, days).Format(dateLayout)

	created, err := r.store.CreateInventoryItem(ctx, &store.InventoryItem{
		Name:           newName,
		Quantity:       1,
		ExpirationDate: expiration,
		ImageData:      imageData,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create disambiguated item")
	}

	metrics.ReconcileOutcomes.WithLabelValues("rejected").Inc()
	return &RejectResult{
		RevertedName:     name,
		RevertedQuantity: originalQuantity,
		NewItemID:        created.ID,
		NewItemName:      created.Name,
	}, nil
}

// nextAvailableName finds the smallest unused name_N suffix.
func (r *Reconciler) nextAvailableName(ctx context.Context, base string) (string, error) {
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d", base, counter)
		existing, err := r.store.GetInventoryItemByName(ctx, candidate)
		if err != nil {
			return "", errors.Wrap(err, "failed to probe for unused name")
		}
		if existing == nil {
			return candidate, nil
		}
	}
}

// Suggest returns display-only similar items for a photo, ranked at
// the strict suggestion threshold. No ledger mutation.
func (r *Reconciler) Suggest(ctx context.Context, photo []byte, limit int) ([]Match, error) {
	return r.search.Search(ctx, photo, limit, SuggestionThreshold)
}
