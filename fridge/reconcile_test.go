package fridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/store"
)

func newTestReconciler(t *testing.T, embedder *fakeEmbedder, llm ai.LLMService) (*Reconciler, *store.Store) {
	t.Helper()
	return newTestReconcilerWithDriver(t, newFakeDriver(true), embedder, llm)
}

func newTestReconcilerWithDriver(t *testing.T, driver *fakeDriver, embedder *fakeEmbedder, llm ai.LLMService) (*Reconciler, *store.Store) {
	t.Helper()
	st := store.New(driver, nil)
	engine := NewSearchEngine(st, embedder)
	r := NewReconciler(st, engine, embedder, llm)
	r.now = func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}
	return r, st
}

func TestProcessIntake_IdentifyCreatesThenIncrementsByBatch(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-1": basisVector(5),
		"photo-2": basisVector(6),
		"photo-3": basisVector(7),
	}}
	llm := &fakeLLM{identifyResult: &ai.IdentifyResult{
		Items: []ai.IdentifiedItem{{Name: "Egg", Count: 12, ExpirationDate: "2026-09-12"}},
	}}
	r, st := newTestReconciler(t, embedder, llm)

	// First photo: nothing stored, AI identifies a dozen eggs.
	result, err := r.ProcessIntake(ctx, []byte("photo-1"))
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "egg", result.Added[0].Name)
	assert.Equal(t, 12, result.Added[0].Quantity)
	assert.Equal(t, "ai_identified", result.Added[0].Source)
	assert.Empty(t, result.Errors)

	item, err := st.GetInventoryItemByNameAndExpiration(ctx, "egg", "2026-09-12")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 12, item.Quantity)

	// The intake photo's vector was learned.
	count, err := st.CountImageEmbeddings(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Second photo of a visually different carton, same identified
	// batch: the existing line grows to 24 instead of duplicating.
	result, err = r.ProcessIntake(ctx, []byte("photo-2"))
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	require.Len(t, result.Updated, 1)
	assert.True(t, result.Updated[0].Applied)
	assert.Equal(t, 12, result.Updated[0].OldQuantity)
	assert.Equal(t, 24, result.Updated[0].NewQuantity)

	item, err = st.GetInventoryItemByNameAndExpiration(ctx, "egg", "2026-09-12")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 24, item.Quantity)

	// Same name with a different expiration date is a new batch.
	llm.identifyResult = &ai.IdentifyResult{
		Items: []ai.IdentifiedItem{{Name: "Egg", Count: 6, ExpirationDate: "2026-09-20"}},
	}
	result, err = r.ProcessIntake(ctx, []byte("photo-3"))
	require.NoError(t, err)
	require.Len(t, result.Added, 1)

	items, err := st.ListInventoryItems(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

// Two photos of the same unseen item arriving at once must land on one
// ledger line. The driver's lookup is slowed so both intakes overlap in
// the lookup-then-write section; the per-name lock has to serialize
// them so the later one increments instead of creating a duplicate.
func TestProcessIntake_ConcurrentSameItemSingleLine(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-a": basisVector(5),
		"photo-b": basisVector(6),
	}}
	llm := &fakeLLM{identifyResult: &ai.IdentifyResult{
		Items: []ai.IdentifiedItem{{Name: "Egg", Count: 12, ExpirationDate: "2026-09-12"}},
	}}
	driver := newFakeDriver(true)
	driver.listDelay = 50 * time.Millisecond
	r, st := newTestReconcilerWithDriver(t, driver, embedder, llm)

	var wg sync.WaitGroup
	results := make([]*IntakeResult, 2)
	errs := make([]error, 2)
	for i, photo := range []string{"photo-a", "photo-b"} {
		wg.Add(1)
		go func(i int, photo string) {
			defer wg.Done()
			results[i], errs[i] = r.ProcessIntake(ctx, []byte(photo))
		}(i, photo)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	item, err := st.GetInventoryItemByNameAndExpiration(ctx, "egg", "2026-09-12")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 24, item.Quantity, "the later intake must add to the earlier line")

	items, err := st.ListInventoryItems(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, items, 1)

	// Exactly one intake created the line, the other incremented it.
	added, updated := 0, 0
	for _, res := range results {
		added += len(res.Added)
		updated += len(res.Updated)
		assert.Empty(t, res.Errors)
	}
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, updated)
}

// One item's insert failing must not abort the rest of the identified
// batch.
func TestProcessIntake_IdentifyPartialFailureIsolated(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-haul": basisVector(5),
	}}
	llm := &fakeLLM{identifyResult: &ai.IdentifyResult{
		Items: []ai.IdentifiedItem{
			{Name: "Egg", Count: 12, ExpirationDate: "2026-09-12"},
			{Name: "Milk", Count: 1, ExpirationDate: "2026-09-05"},
			{Name: "Butter", Count: 2, ExpirationDate: "2026-10-01"},
		},
	}}
	driver := newFakeDriver(true)
	driver.failCreateName = "milk"
	r, st := newTestReconcilerWithDriver(t, driver, embedder, llm)

	result, err := r.ProcessIntake(ctx, []byte("photo-haul"))
	require.NoError(t, err)

	require.Len(t, result.Added, 2)
	assert.ElementsMatch(t, []string{"egg", "butter"},
		[]string{result.Added[0].Name, result.Added[1].Name})

	require.Len(t, result.Errors, 1)
	assert.Equal(t, "milk", result.Errors[0].Name)
	assert.Equal(t, "create_item", result.Errors[0].Action)

	item, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	assert.Nil(t, item)

	items, err := st.ListInventoryItems(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestProcessIntake_VisualMatchCreatesFirstUnit(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-milk": basisVector(0),
	}}
	llm := &fakeLLM{}
	r, st := newTestReconciler(t, embedder, llm)

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID:               "milk_1",
		Name:             "milk",
		ExpirationPeriod: 7,
		Embedding:        basisVector(0),
	})
	require.NoError(t, err)

	result, err := r.ProcessIntake(ctx, []byte("photo-milk"))
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "visual_match", result.Added[0].Source)
	assert.InDelta(t, 1.0, result.Added[0].Score, 1e-6)
	assert.Equal(t, 0, llm.identifyCalls, "visual match must not invoke AI")

	item, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Quantity)
	// Expiration derives from the matched record's shelf life.
	assert.Equal(t, "2026-09-05", item.ExpirationDate)
}

func TestProcessIntake_VisualMatchWithExistingLineStages(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-milk": basisVector(0),
	}}
	r, st := newTestReconciler(t, embedder, &fakeLLM{})

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID:               "milk_1",
		Name:             "milk",
		ExpirationPeriod: 7,
		Embedding:        basisVector(0),
	})
	require.NoError(t, err)
	_, err = st.CreateInventoryItem(ctx, &store.InventoryItem{
		Name: "milk", Quantity: 2, ExpirationDate: "2026-09-05",
	})
	require.NoError(t, err)

	result, err := r.ProcessIntake(ctx, []byte("photo-milk"))
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	require.Len(t, result.Updated, 1)
	assert.False(t, result.Updated[0].Applied)
	assert.Equal(t, 2, result.Updated[0].OldQuantity)
	assert.Equal(t, 3, result.Updated[0].NewQuantity)

	// Nothing was written: the update is staged, awaiting confirmation.
	item, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
}

func TestProcessIntake_BelowThresholdFallsBackToIdentify(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		// 0.6 similarity against the stored milk vector, below 0.75.
		"photo-lowscore": blendVector(0, 1, 0.6, 0.8),
	}}
	llm := &fakeLLM{identifyResult: &ai.IdentifyResult{
		Items: []ai.IdentifiedItem{{Name: "yogurt", Count: 1, ExpirationDate: "2026-09-10"}},
	}}
	r, st := newTestReconciler(t, embedder, llm)

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID: "milk_1", Name: "milk", ExpirationPeriod: 7, Embedding: basisVector(0),
	})
	require.NoError(t, err)

	result, err := r.ProcessIntake(ctx, []byte("photo-lowscore"))
	require.NoError(t, err)
	require.Len(t, result.Added, 1)
	assert.Equal(t, "yogurt", result.Added[0].Name)
	assert.Equal(t, 1, llm.identifyCalls)
}

func TestProcessIntake_MalformedIdentifyYieldsNoItems(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo": basisVector(3),
	}}
	llm := &fakeLLM{identifyResult: &ai.IdentifyResult{Malformed: true, Raw: "gibberish"}}
	r, st := newTestReconciler(t, embedder, llm)

	result, err := r.ProcessIntake(ctx, []byte("photo"))
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Empty(t, result.Updated)
	assert.Empty(t, result.Errors)

	items, err := st.ListInventoryItems(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestProcessIntake_NoLLMReportsError(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo": basisVector(3),
	}}
	r, _ := newTestReconciler(t, embedder, nil)

	result, err := r.ProcessIntake(ctx, []byte("photo"))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "identify", result.Errors[0].Action)
}

func TestProcessOuttake_DecrementsMultiUnitLine(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-milk": basisVector(0),
	}}
	r, st := newTestReconciler(t, embedder, &fakeLLM{})

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID: "milk_1", Name: "milk", ExpirationPeriod: 7, Embedding: basisVector(0),
	})
	require.NoError(t, err)
	_, err = st.CreateInventoryItem(ctx, &store.InventoryItem{
		Name: "milk", Quantity: 3, ExpirationDate: "2026-09-05",
	})
	require.NoError(t, err)

	result, err := r.ProcessOuttake(ctx, []byte("photo-milk"))
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
	require.Len(t, result.Updated, 1)
	assert.True(t, result.Updated[0].Applied)
	assert.Equal(t, 3, result.Updated[0].OldQuantity)
	assert.Equal(t, 2, result.Updated[0].NewQuantity)

	item, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, 2, item.Quantity)
}

func TestProcessOuttake_DeletesLastUnit(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-milk": basisVector(0),
	}}
	r, st := newTestReconciler(t, embedder, &fakeLLM{})

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID: "milk_1", Name: "milk", ExpirationPeriod: 7, Embedding: basisVector(0),
	})
	require.NoError(t, err)
	_, err = st.CreateInventoryItem(ctx, &store.InventoryItem{
		Name: "milk", Quantity: 1, ExpirationDate: "2026-09-05",
	})
	require.NoError(t, err)

	result, err := r.ProcessOuttake(ctx, []byte("photo-milk"))
	require.NoError(t, err)
	assert.Equal(t, []string{"milk"}, result.Removed)

	item, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestProcessOuttake_NoMatchAndMissingLedgerLine(t *testing.T) {
	ctx := context.Background()
	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"photo-unknown": basisVector(9),
		"photo-milk":    basisVector(0),
	}}
	r, st := newTestReconciler(t, embedder, &fakeLLM{})

	_, err := st.UpsertImageEmbedding(ctx, &store.ImageEmbedding{
		ID: "milk_1", Name: "milk", ExpirationPeriod: 7, Embedding: basisVector(0),
	})
	require.NoError(t, err)

	// No embedding matches the unknown photo.
	result, err := r.ProcessOuttake(ctx, []byte("photo-unknown"))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Err, "no matching item found in image database")

	// The photo matches a known look but no ledger line exists.
	result, err = r.ProcessOuttake(ctx, []byte("photo-milk"))
	require.NoError(t, err)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Err, "item not found in inventory")
}

func TestConfirmUpdates_PerItemIsolation(t *testing.T) {
	ctx := context.Background()
	r, st := newTestReconciler(t, &fakeEmbedder{}, &fakeLLM{})

	item, err := st.CreateInventoryItem(ctx, &store.InventoryItem{
		Name: "milk", Quantity: 2, ExpirationDate: "2026-09-05",
	})
	require.NoError(t, err)

	result := r.ConfirmUpdates(ctx, []ConfirmUpdate{
		{ItemID: item.ID, NewQuantity: 3},
		{ItemID: 9999, NewQuantity: 5}, // unknown id
	})

	require.Len(t, result.Updated, 1)
	assert.Equal(t, 3, result.Updated[0].NewQuantity)
	assert.True(t, result.Updated[0].Applied)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "confirm_update", result.Errors[0].Action)

	updated, err := st.GetInventoryItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
}

func TestRejectUpdate_RevertsAndDisambiguates(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{shelfLifeDays: 10}
	r, st := newTestReconciler(t, &fakeEmbedder{}, llm)

	_, err := st.CreateInventoryItem(ctx, &store.InventoryItem{
		Name: "milk", Quantity: 4, ExpirationDate: "2026-09-05",
	})
	require.NoError(t, err)

	result, err := r.RejectUpdate(ctx, "Milk", 3, []byte("photo"))
	require.NoError(t, err)
	assert.Equal(t, "milk", result.RevertedName)
	assert.Equal(t, 3, result.RevertedQuantity)
	assert.Equal(t, "milk_1", result.NewItemName)

	original, err := st.GetInventoryItemByName(ctx, "milk")
	require.NoError(t, err)
	assert.Equal(t, 3, original.Quantity)

	sibling, err := st.GetInventoryItemByName(ctx, "milk_1")
	require.NoError(t, err)
	require.NotNil(t, sibling)
	assert.Equal(t, 1, sibling.Quantity)
	// Shelf life came from the model estimate: 2026-08-29 + 10 days.
	assert.Equal(t, "2026-09-08", sibling.ExpirationDate)
	assert.Equal(t, []byte("photo"), sibling.ImageData)
}

func TestRejectUpdate_PicksSmallestUnusedSuffix(t *testing.T) {
	ctx := context.Background()
	r, st := newTestReconciler(t, &fakeEmbedder{}, &fakeLLM{})

	for _, name := range []string{"milk", "milk_1", "milk_2"} {
		_, err := st.CreateInventoryItem(ctx, &store.InventoryItem{
			Name: name, Quantity: 1, ExpirationDate: "2026-09-05",
		})
		require.NoError(t, err)
	}

	result, err := r.RejectUpdate(ctx, "milk", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, "milk_3", result.NewItemName)
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 13, daysUntil("2026-09-12", now))
	assert.Equal(t, 1, daysUntil("2026-08-29", now), "today clamps to one day")
	assert.Equal(t, 1, daysUntil("2026-08-01", now), "past dates clamp to one day")
	assert.Equal(t, ai.DefaultShelfLifeDays, daysUntil("soon", now), "unparseable falls back")
}
