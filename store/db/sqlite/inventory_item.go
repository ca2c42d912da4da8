package sqlite

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/store"
)

func (d *DB) CreateInventoryItem(ctx context.Context, create *store.InventoryItem) (*store.InventoryItem, error) {
	if create.DateAdded.IsZero() {
		create.DateAdded = time.Now().UTC()
	}
	stmt := `
		INSERT INTO inventory_item (name, quantity, date_added, expiration_date, image_data)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.Name,
		strconv.Itoa(create.Quantity),
		create.DateAdded,
		create.ExpirationDate,
		create.ImageData,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create inventory item")
	}
	return create, nil
}

func (d *DB) ListInventoryItems(ctx context.Context, find *store.FindInventoryItem) ([]*store.InventoryItem, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.Name != nil {
		where, args = append(where, "name = ?"), append(args, *find.Name)
	}
	if find.ExpirationDate != nil {
		where, args = append(where, "expiration_date = ?"), append(args, *find.ExpirationDate)
	}

	query := `
		SELECT id, name, quantity, date_added, expiration_date, image_data
		FROM inventory_item
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date_added DESC, id DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list inventory items")
	}
	defer rows.Close()

	list := []*store.InventoryItem{}
	for rows.Next() {
		var item store.InventoryItem
		var quantityRaw string
		err := rows.Scan(
			&item.ID,
			&item.Name,
			&quantityRaw,
			&item.DateAdded,
			&item.ExpirationDate,
			&item.ImageData,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan inventory item")
		}

		quantity, err := store.NormalizeQuantity(quantityRaw)
		if err != nil {
			slog.Warn("coercing unparseable quantity to 0", "item", item.Name, "raw", quantityRaw)
			quantity = 0
		}
		item.Quantity = quantity

		list = append(list, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateInventoryItem(ctx context.Context, update *store.UpdateInventoryItem) (*store.InventoryItem, error) {
	set, args := []string{}, []any{}

	if update.Name != nil {
		set, args = append(set, "name = ?"), append(args, *update.Name)
	}
	if update.Quantity != nil {
		set, args = append(set, "quantity = ?"), append(args, strconv.Itoa(*update.Quantity))
	}
	if update.ExpirationDate != nil {
		set, args = append(set, "expiration_date = ?"), append(args, *update.ExpirationDate)
	}
	if update.ImageData != nil {
		set, args = append(set, "image_data = ?"), append(args, update.ImageData)
	}
	if update.RefreshDateAdded {
		set, args = append(set, "date_added = ?"), append(args, time.Now().UTC())
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	args = append(args, update.ID)
	stmt := `UPDATE inventory_item SET ` + strings.Join(set, ", ") + ` WHERE id = ?`

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to update inventory item")
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return nil, store.ErrNotFound
	}

	list, err := d.ListInventoryItems(ctx, &store.FindInventoryItem{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, store.ErrNotFound
	}
	return list[0], nil
}

func (d *DB) DeleteInventoryItem(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM inventory_item WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete inventory item")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "inventory item %d", id)
	}
	return nil
}
