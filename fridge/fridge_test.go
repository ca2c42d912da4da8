package fridge

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/ai"
	"github.com/hrygo/fridgesense/store"
)

// fakeDriver is an in-memory store.Driver. With nativeSearch set it
// behaves like the postgres driver (exact cosine ranking); without it,
// like the sqlite driver (ErrVectorSearchUnsupported).
type fakeDriver struct {
	mu           sync.Mutex
	nativeSearch bool

	// listDelay slows ListInventoryItems, widening the window between
	// a lookup and the write it decides, for tests that overlap intakes.
	listDelay time.Duration
	// failCreateName makes CreateInventoryItem fail for one item name.
	failCreateName string

	nextID     int32
	items      map[int32]*store.InventoryItem
	embeddings map[string]*store.ImageEmbedding
	recipes    map[int32]*store.Recipe
	prefs      map[string]*store.UserPreferences
}

func newFakeDriver(nativeSearch bool) *fakeDriver {
	return &fakeDriver{
		nativeSearch: nativeSearch,
		items:        map[int32]*store.InventoryItem{},
		embeddings:   map[string]*store.ImageEmbedding{},
		recipes:      map[int32]*store.Recipe{},
		prefs:        map[string]*store.UserPreferences{},
	}
}

func (d *fakeDriver) GetDB() *sql.DB                  { return nil }
func (d *fakeDriver) Close() error                    { return nil }
func (d *fakeDriver) Migrate(_ context.Context) error { return nil }

func (d *fakeDriver) CreateInventoryItem(_ context.Context, create *store.InventoryItem) (*store.InventoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failCreateName != "" && create.Name == d.failCreateName {
		return nil, errors.Errorf("insert failed for %q", create.Name)
	}
	d.nextID++
	item := *create
	item.ID = d.nextID
	item.DateAdded = time.Now().UTC()
	d.items[item.ID] = &item
	copied := item
	return &copied, nil
}

func (d *fakeDriver) ListInventoryItems(_ context.Context, find *store.FindInventoryItem) ([]*store.InventoryItem, error) {
	if d.listDelay > 0 {
		time.Sleep(d.listDelay)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if find == nil {
		find = &store.FindInventoryItem{}
	}
	list := []*store.InventoryItem{}
	for _, item := range d.items {
		if find.ID != nil && item.ID != *find.ID {
			continue
		}
		if find.Name != nil && item.Name != *find.Name {
			continue
		}
		if find.ExpirationDate != nil && item.ExpirationDate != *find.ExpirationDate {
			continue
		}
		copied := *item
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *fakeDriver) UpdateInventoryItem(_ context.Context, update *store.UpdateInventoryItem) (*store.InventoryItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[update.ID]
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "inventory item %d", update.ID)
	}
	if update.Name != nil {
		item.Name = *update.Name
	}
	if update.Quantity != nil {
		item.Quantity = *update.Quantity
	}
	if update.ExpirationDate != nil {
		item.ExpirationDate = *update.ExpirationDate
	}
	if update.ImageData != nil {
		item.ImageData = update.ImageData
	}
	if update.RefreshDateAdded {
		item.DateAdded = time.Now().UTC()
	}
	copied := *item
	return &copied, nil
}

func (d *fakeDriver) DeleteInventoryItem(_ context.Context, id int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, id)
	return nil
}

func (d *fakeDriver) UpsertImageEmbedding(_ context.Context, upsert *store.ImageEmbedding) (*store.ImageEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *upsert
	d.embeddings[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (d *fakeDriver) ListImageEmbeddings(_ context.Context, find *store.FindImageEmbedding) ([]*store.ImageEmbedding, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.ImageEmbedding{}
	for _, record := range d.embeddings {
		if find.ID != nil && record.ID != *find.ID {
			continue
		}
		if find.Name != nil && record.Name != *find.Name {
			continue
		}
		copied := *record
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *fakeDriver) CountImageEmbeddings(_ context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.embeddings)), nil
}

func (d *fakeDriver) EnsureVectorIndex(_ context.Context, _ int) error { return nil }

func (d *fakeDriver) VectorSearch(_ context.Context, opts *store.VectorSearchOptions) ([]*store.ImageEmbeddingMatch, error) {
	if !d.nativeSearch {
		return nil, store.ErrVectorSearchUnsupported
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	matches := []*store.ImageEmbeddingMatch{}
	for _, record := range d.embeddings {
		copied := *record
		matches = append(matches, &store.ImageEmbeddingMatch{
			Record: &copied,
			Score:  Cosine(opts.Vector, record.Embedding),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > opts.Limit {
		matches = matches[:opts.Limit]
	}
	return matches, nil
}

func (d *fakeDriver) CreateRecipe(_ context.Context, create *store.Recipe) (*store.Recipe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	copied := *create
	copied.ID = d.nextID
	d.recipes[copied.ID] = &copied
	result := copied
	return &result, nil
}

func (d *fakeDriver) ListRecipes(_ context.Context, find *store.FindRecipe) ([]*store.Recipe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := []*store.Recipe{}
	for _, r := range d.recipes {
		if find.ID != nil && r.ID != *find.ID {
			continue
		}
		if find.MealType != nil && r.MealType != *find.MealType {
			continue
		}
		copied := *r
		list = append(list, &copied)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (d *fakeDriver) DeleteRecipe(_ context.Context, id int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.recipes, id)
	return nil
}

func (d *fakeDriver) GetUserPreferences(_ context.Context, userID string) (*store.UserPreferences, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	prefs, ok := d.prefs[userID]
	if !ok {
		return nil, nil
	}
	copied := *prefs
	return &copied, nil
}

func (d *fakeDriver) UpsertUserPreferences(_ context.Context, upsert *store.UserPreferences) (*store.UserPreferences, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := *upsert
	d.prefs[copied.UserID] = &copied
	result := copied
	return &result, nil
}

// fakeEmbedder maps photo bytes to canned vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (e *fakeEmbedder) EmbedImage(_ context.Context, image []byte) ([]float32, error) {
	vector, ok := e.vectors[string(image)]
	if !ok {
		return nil, errors.Errorf("no canned vector for photo %q", string(image))
	}
	return vector, nil
}

func (e *fakeEmbedder) Dimensions() int { return store.EmbeddingDimensions }

// fakeLLM returns canned identification results.
type fakeLLM struct {
	mu             sync.Mutex
	identifyResult *ai.IdentifyResult
	identifyErr    error
	shelfLifeDays  int
	identifyCalls  int
}

func (l *fakeLLM) IdentifyItems(_ context.Context, _ []byte) (*ai.IdentifyResult, error) {
	l.mu.Lock()
	l.identifyCalls++
	l.mu.Unlock()
	if l.identifyErr != nil {
		return nil, l.identifyErr
	}
	return l.identifyResult, nil
}

func (l *fakeLLM) EstimateShelfLife(_ context.Context, _ string) (int, error) {
	if l.shelfLifeDays > 0 {
		return l.shelfLifeDays, nil
	}
	return ai.DefaultShelfLifeDays, nil
}

func (l *fakeLLM) SuggestRecipes(_ context.Context, _ *ai.RecipeRequest) ([]ai.GeneratedRecipe, error) {
	return nil, errors.New("not implemented")
}

// basisVector returns a 768-dim unit vector along the given axis.
// Distinct axes are orthogonal, so their cosine similarity is 0.
func basisVector(axis int) []float32 {
	v := make([]float32, store.EmbeddingDimensions)
	v[axis] = 1
	return v
}

// blendVector mixes two basis axes so the result has a chosen cosine
// similarity (a) against basisVector(axisA).
func blendVector(axisA, axisB int, a, b float32) []float32 {
	v := make([]float32, store.EmbeddingDimensions)
	v[axisA] = a
	v[axisB] = b
	return v
}
