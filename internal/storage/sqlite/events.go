package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// AppendEvent records one lifecycle event. Events are append-only; there
// is no update or delete.
func (q *queries) AppendEvent(ctx context.Context, event *types.Event) error {
	if !event.Type.IsValid() {
		return fmt.Errorf("validation failed: invalid event type %q", event.Type)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor_id, parameter, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.IssueID, string(event.Type), event.ActorID, event.Parameter, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	event.ID, err = res.LastInsertId()
	return err
}

// AppendChange records one before/after entry under an event
func (q *queries) AppendChange(ctx context.Context, change *types.Change) error {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO changes (event_id, field_id, old_value, new_value, old_subject, new_subject)
		VALUES (?, ?, ?, ?, ?, ?)
	`, change.EventID, nullInt(change.FieldID), nullInt(change.Old), nullInt(change.New),
		change.OldSubject, change.NewSubject)
	if err != nil {
		return fmt.Errorf("failed to append change: %w", err)
	}
	change.ID, err = res.LastInsertId()
	return err
}

// GetEvent retrieves an event by id
func (q *queries) GetEvent(ctx context.Context, id int64) (*types.Event, error) {
	var e types.Event
	err := q.q.QueryRowContext(ctx, `
		SELECT id, issue_id, event_type, actor_id, parameter, created_at
		FROM events WHERE id = ?
	`, id).Scan(&e.ID, &e.IssueID, &e.Type, &e.ActorID, &e.Parameter, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &e, nil
}

// ListEvents returns an issue's events in insertion order
func (q *queries) ListEvents(ctx context.Context, issueID int64) ([]*types.Event, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, issue_id, event_type, actor_id, parameter, created_at
		FROM events WHERE issue_id = ? ORDER BY id
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	var events []*types.Event
	for rows.Next() {
		var e types.Event
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Type, &e.ActorID, &e.Parameter, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// ListChanges returns the change records of one event in insertion order
func (q *queries) ListChanges(ctx context.Context, eventID int64) ([]*types.Change, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, event_id, field_id, old_value, new_value, old_subject, new_subject
		FROM changes WHERE event_id = ? ORDER BY id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	defer rows.Close()
	var changes []*types.Change
	for rows.Next() {
		var c types.Change
		var fieldID, oldVal, newVal sql.NullInt64
		if err := rows.Scan(&c.ID, &c.EventID, &fieldID, &oldVal, &newVal,
			&c.OldSubject, &c.NewSubject); err != nil {
			return nil, err
		}
		if fieldID.Valid {
			v := fieldID.Int64
			c.FieldID = &v
		}
		if oldVal.Valid {
			v := oldVal.Int64
			c.Old = &v
		}
		if newVal.Valid {
			v := newVal.Int64
			c.New = &v
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}

// AddComment stores the body of a commented event
func (q *queries) AddComment(ctx context.Context, comment *types.Comment) error {
	if comment.Text == "" {
		return fmt.Errorf("validation failed: comment text is required")
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO comments (event_id, text, private) VALUES (?, ?, ?)
	`, comment.EventID, comment.Text, boolInt(comment.Private))
	if err != nil {
		return fmt.Errorf("failed to add comment: %w", err)
	}
	comment.ID, err = res.LastInsertId()
	return err
}

// GetComment retrieves a comment by id
func (q *queries) GetComment(ctx context.Context, id int64) (*types.Comment, error) {
	var c types.Comment
	var private int
	err := q.q.QueryRowContext(ctx, `
		SELECT id, event_id, text, private FROM comments WHERE id = ?
	`, id).Scan(&c.ID, &c.EventID, &c.Text, &private)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	c.Private = private != 0
	return &c, nil
}

// DeleteComment removes a comment body. The commented event stays in the
// audit trail.
func (q *queries) DeleteComment(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AddFile stores the metadata of a file_attached event
func (q *queries) AddFile(ctx context.Context, file *types.File) error {
	if file.Name == "" {
		return fmt.Errorf("validation failed: file name is required")
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO files (event_id, name, size, mime_type, storage_key, removed)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.EventID, file.Name, file.Size, file.MimeType, file.StorageKey, boolInt(file.Removed))
	if err != nil {
		return fmt.Errorf("failed to add file: %w", err)
	}
	file.ID, err = res.LastInsertId()
	return err
}

// GetFile retrieves a file record by id
func (q *queries) GetFile(ctx context.Context, id int64) (*types.File, error) {
	var f types.File
	var removed int
	err := q.q.QueryRowContext(ctx, `
		SELECT id, event_id, name, size, mime_type, storage_key, removed
		FROM files WHERE id = ?
	`, id).Scan(&f.ID, &f.EventID, &f.Name, &f.Size, &f.MimeType, &f.StorageKey, &removed)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	f.Removed = removed != 0
	return &f, nil
}

// MarkFileRemoved soft-deletes a file record. The metadata and audit trail
// survive; only the content behind the storage key goes away.
func (q *queries) MarkFileRemoved(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE files SET removed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark file removed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
