package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a requested record does not exist.
// It is user-visible and non-retryable.
var ErrNotFound = errors.New("not found")

// InventoryItem is one line of the authoritative inventory ledger.
//
// Name is stored lowercased; every lookup keys on the lowercase name.
// At most one item exists per distinct (name, expiration date) pair.
// Different expiration batches of the same product are separate lines.
type InventoryItem struct {
	ID int32
	// Name is the canonical lowercase label.
	Name string
	// Quantity is a non-negative unit count. Stored loosely (the column
	// is text for compatibility with older data) and normalized through
	// NormalizeQuantity on every read.
	Quantity int
	// DateAdded is refreshed on every mutation.
	DateAdded time.Time
	// ExpirationDate is an ISO calendar date or date-time string.
	ExpirationDate string
	// ImageData is the optional photo that produced this line. Kept for
	// audit and debugging only, never compared.
	ImageData []byte
}

// FindInventoryItem is the find condition for inventory items.
type FindInventoryItem struct {
	ID   *int32
	Name *string
	// ExpirationDate narrows Name lookups to an exact expiration batch.
	ExpirationDate *string
}

// UpdateInventoryItem is the update descriptor for an inventory item.
// Nil fields are left untouched.
type UpdateInventoryItem struct {
	ID             int32
	Name           *string
	Quantity       *int
	ExpirationDate *string
	ImageData      []byte
	// RefreshDateAdded stamps date_added with the current time.
	RefreshDateAdded bool
}

// NormalizeQuantity coerces a loosely-typed stored quantity into a
// definite non-negative integer. Older writers stored quantities as
// strings ("12"), newer ones as integers; floats show up from JSON
// decoding. Anything unparseable is an explicit error, negatives clamp
// to zero.
func NormalizeQuantity(raw any) (int, error) {
	var n int
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		n = v
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case float64:
		n = int(v)
	case []byte:
		return NormalizeQuantity(string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			// Tolerate decimal strings like "2.0".
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil {
				return 0, errors.Errorf("unparseable quantity: %q", v)
			}
			parsed = int(f)
		}
		n = parsed
	default:
		return 0, errors.Errorf("unparseable quantity of type %T", raw)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

// CanonicalName lowercases and trims an item name for ledger lookups.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (s *Store) CreateInventoryItem(ctx context.Context, create *InventoryItem) (*InventoryItem, error) {
	create.Name = CanonicalName(create.Name)
	if create.Name == "" {
		return nil, errors.New("item name cannot be empty")
	}
	if create.Quantity < 0 {
		create.Quantity = 0
	}
	return s.driver.CreateInventoryItem(ctx, create)
}

func (s *Store) ListInventoryItems(ctx context.Context, find *FindInventoryItem) ([]*InventoryItem, error) {
	return s.driver.ListInventoryItems(ctx, find)
}

// GetInventoryItem gets an item by id. Returns ErrNotFound when absent.
func (s *Store) GetInventoryItem(ctx context.Context, id int32) (*InventoryItem, error) {
	list, err := s.driver.ListInventoryItems(ctx, &FindInventoryItem{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return list[0], nil
}

// GetInventoryItemByName gets the item with the given lowercase name,
// or nil when no such item exists.
func (s *Store) GetInventoryItemByName(ctx context.Context, name string) (*InventoryItem, error) {
	canonical := CanonicalName(name)
	list, err := s.driver.ListInventoryItems(ctx, &FindInventoryItem{Name: &canonical})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// GetInventoryItemByNameAndExpiration gets the item for an exact
// (lowercase name, expiration date) pair, or nil when absent.
func (s *Store) GetInventoryItemByNameAndExpiration(ctx context.Context, name, expirationDate string) (*InventoryItem, error) {
	canonical := CanonicalName(name)
	list, err := s.driver.ListInventoryItems(ctx, &FindInventoryItem{
		Name:           &canonical,
		ExpirationDate: &expirationDate,
	})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpdateInventoryItem(ctx context.Context, update *UpdateInventoryItem) (*InventoryItem, error) {
	if update.Name != nil {
		canonical := CanonicalName(*update.Name)
		update.Name = &canonical
	}
	if update.Quantity != nil && *update.Quantity < 0 {
		zero := 0
		update.Quantity = &zero
	}
	return s.driver.UpdateInventoryItem(ctx, update)
}

func (s *Store) DeleteInventoryItem(ctx context.Context, id int32) error {
	return s.driver.DeleteInventoryItem(ctx, id)
}
