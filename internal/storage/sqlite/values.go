package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// resolveValue implements get-or-create against one dedup table. INSERT OR
// IGNORE first so concurrent writers of the same value converge on one
// row, then read the id back.
func (q *queries) resolveValue(ctx context.Context, table, value string) (int64, error) {
	if _, err := q.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (value) VALUES (?)`, value); err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	var id int64
	err := q.q.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE value = ?`, value).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve %s value: %w", table, err)
	}
	return id, nil
}

func (q *queries) getValue(ctx context.Context, table string, id int64) (string, error) {
	var value string
	err := q.q.QueryRowContext(ctx,
		`SELECT value FROM `+table+` WHERE id = ?`, id).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s value: %w", table, err)
	}
	return value, nil
}

// ResolveString returns the id of the string value, creating a row on
// first use.
func (q *queries) ResolveString(ctx context.Context, value string) (int64, error) {
	return q.resolveValue(ctx, "string_values", value)
}

// ResolveText returns the id of the text value, creating a row on first use
func (q *queries) ResolveText(ctx context.Context, value string) (int64, error) {
	return q.resolveValue(ctx, "text_values", value)
}

// ResolveDecimal returns the id of the normalized decimal string, creating
// a row on first use. Callers normalize before resolving so that equal
// amounts share one row.
func (q *queries) ResolveDecimal(ctx context.Context, value string) (int64, error) {
	return q.resolveValue(ctx, "decimal_values", value)
}

// GetStringValue retrieves a string value by id
func (q *queries) GetStringValue(ctx context.Context, id int64) (string, error) {
	return q.getValue(ctx, "string_values", id)
}

// GetTextValue retrieves a text value by id
func (q *queries) GetTextValue(ctx context.Context, id int64) (string, error) {
	return q.getValue(ctx, "text_values", id)
}

// GetDecimalValue retrieves a decimal value by id
func (q *queries) GetDecimalValue(ctx context.Context, id int64) (string, error) {
	return q.getValue(ctx, "decimal_values", id)
}

// LookupListItem finds a list field's option by its client-facing key
func (q *queries) LookupListItem(ctx context.Context, fieldID, key int64) (*types.ListItem, error) {
	var li types.ListItem
	err := q.q.QueryRowContext(ctx, `
		SELECT id, field_id, key, label FROM list_items WHERE field_id = ? AND key = ?
	`, fieldID, key).Scan(&li.ID, &li.FieldID, &li.Key, &li.Label)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lookup list item: %w", err)
	}
	return &li, nil
}

// GetListItem retrieves a list item by row id
func (q *queries) GetListItem(ctx context.Context, id int64) (*types.ListItem, error) {
	var li types.ListItem
	err := q.q.QueryRowContext(ctx, `
		SELECT id, field_id, key, label FROM list_items WHERE id = ?
	`, id).Scan(&li.ID, &li.FieldID, &li.Key, &li.Label)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list item: %w", err)
	}
	return &li, nil
}
