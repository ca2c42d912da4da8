package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/fridgesense/store"
)

func (d *DB) CreateRecipe(ctx context.Context, create *store.Recipe) (*store.Recipe, error) {
	ingredients, err := json.Marshal(create.Ingredients)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal ingredients")
	}

	stmt := `
		INSERT INTO recipe (name, ingredients, instructions, source_url, meal_type, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err = d.db.QueryRowContext(ctx, stmt,
		create.Name,
		string(ingredients),
		create.Instructions,
		create.SourceURL,
		create.MealType,
		create.CreatedTs,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create recipe")
	}
	return create, nil
}

func (d *DB) ListRecipes(ctx context.Context, find *store.FindRecipe) ([]*store.Recipe, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.MealType != nil {
		where, args = append(where, "meal_type = ?"), append(args, *find.MealType)
	}

	query := `
		SELECT id, name, ingredients, instructions, source_url, meal_type, created_ts
		FROM recipe
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list recipes")
	}
	defer rows.Close()

	list := []*store.Recipe{}
	for rows.Next() {
		var recipe store.Recipe
		var ingredients string
		err := rows.Scan(
			&recipe.ID,
			&recipe.Name,
			&ingredients,
			&recipe.Instructions,
			&recipe.SourceURL,
			&recipe.MealType,
			&recipe.CreatedTs,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan recipe")
		}
		if ingredients != "" {
			if err := json.Unmarshal([]byte(ingredients), &recipe.Ingredients); err != nil {
				return nil, errors.Wrap(err, "failed to unmarshal ingredients")
			}
		}
		list = append(list, &recipe)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) DeleteRecipe(ctx context.Context, id int32) error {
	result, err := d.db.ExecContext(ctx, `DELETE FROM recipe WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete recipe")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "recipe %d", id)
	}
	return nil
}

func (d *DB) GetUserPreferences(ctx context.Context, userID string) (*store.UserPreferences, error) {
	query := `
		SELECT user_id, dietary_restrictions, preferred_cuisines, updated_ts
		FROM user_preferences
		WHERE user_id = ?
	`

	var prefs store.UserPreferences
	var restrictions, cuisines string
	err := d.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&restrictions,
		&cuisines,
		&prefs.UpdatedTs,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user preferences")
	}
	if err := json.Unmarshal([]byte(restrictions), &prefs.DietaryRestrictions); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal dietary restrictions")
	}
	if err := json.Unmarshal([]byte(cuisines), &prefs.PreferredCuisines); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal preferred cuisines")
	}
	return &prefs, nil
}

func (d *DB) UpsertUserPreferences(ctx context.Context, upsert *store.UserPreferences) (*store.UserPreferences, error) {
	restrictions, err := json.Marshal(upsert.DietaryRestrictions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal dietary restrictions")
	}
	cuisines, err := json.Marshal(upsert.PreferredCuisines)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal preferred cuisines")
	}

	stmt := `
		INSERT INTO user_preferences (user_id, dietary_restrictions, preferred_cuisines, updated_ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			dietary_restrictions = excluded.dietary_restrictions,
			preferred_cuisines = excluded.preferred_cuisines,
			updated_ts = excluded.updated_ts
	`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.UserID, string(restrictions), string(cuisines), upsert.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to upsert user preferences")
	}
	return upsert, nil
}
