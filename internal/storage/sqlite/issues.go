package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// CreateIssue inserts a new issue
func (q *queries) CreateIssue(ctx context.Context, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO issues (template_id, author_id, responsible, subject, state_id,
		                    created_at, changed_at, closed_at, suspended, resumes_at, origin_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, issue.TemplateID, issue.AuthorID, nullInt(issue.Responsible), issue.Subject,
		issue.StateID, issue.CreatedAt, issue.ChangedAt, nullTime(issue.ClosedAt),
		boolInt(issue.Suspended), nullTime(issue.ResumesAt), nullInt(issue.OriginID))
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	issue.ID, err = res.LastInsertId()
	return err
}

// GetIssue retrieves an issue by id
func (q *queries) GetIssue(ctx context.Context, id int64) (*types.Issue, error) {
	return scanIssue(q.q.QueryRowContext(ctx, `
		SELECT id, template_id, author_id, responsible, subject, state_id,
		       created_at, changed_at, closed_at, suspended, resumes_at, origin_id
		FROM issues WHERE id = ?
	`, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var i types.Issue
	var responsible, origin sql.NullInt64
	var closedAt, resumesAt sql.NullTime
	var suspended int
	err := row.Scan(&i.ID, &i.TemplateID, &i.AuthorID, &responsible, &i.Subject,
		&i.StateID, &i.CreatedAt, &i.ChangedAt, &closedAt, &suspended, &resumesAt, &origin)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue: %w", err)
	}
	if responsible.Valid {
		v := responsible.Int64
		i.Responsible = &v
	}
	if origin.Valid {
		v := origin.Int64
		i.OriginID = &v
	}
	if closedAt.Valid {
		t := closedAt.Time
		i.ClosedAt = &t
	}
	if resumesAt.Valid {
		t := resumesAt.Time
		i.ResumesAt = &t
	}
	i.Suspended = suspended != 0
	return &i, nil
}

// UpdateIssue writes back mutable issue attributes
func (q *queries) UpdateIssue(ctx context.Context, issue *types.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE issues SET responsible = ?, subject = ?, state_id = ?, changed_at = ?,
		       closed_at = ?, suspended = ?, resumes_at = ?
		WHERE id = ?
	`, nullInt(issue.Responsible), issue.Subject, issue.StateID, issue.ChangedAt,
		nullTime(issue.ClosedAt), boolInt(issue.Suspended), nullTime(issue.ResumesAt), issue.ID)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
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

// ListIssues returns the template's issues ordered by id
func (q *queries) ListIssues(ctx context.Context, templateID int64) ([]*types.Issue, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, template_id, author_id, responsible, subject, state_id,
		       created_at, changed_at, closed_at, suspended, resumes_at, origin_id
		FROM issues WHERE template_id = ? ORDER BY id
	`, templateID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()
	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// GetFieldValues returns every populated field value of the issue, keyed
// by field id. Values are in FieldValue encoding.
func (q *queries) GetFieldValues(ctx context.Context, issueID int64) (map[int64]int64, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT field_id, value FROM field_values WHERE issue_id = ?
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get field values: %w", err)
	}
	defer rows.Close()
	values := make(map[int64]int64)
	for rows.Next() {
		var fieldID, value int64
		if err := rows.Scan(&fieldID, &value); err != nil {
			return nil, err
		}
		values[fieldID] = value
	}
	return values, rows.Err()
}

// SetFieldValue upserts one field value of an issue
func (q *queries) SetFieldValue(ctx context.Context, value *types.FieldValue) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO field_values (issue_id, field_id, value) VALUES (?, ?, ?)
		ON CONFLICT(issue_id, field_id) DO UPDATE SET value = excluded.value
	`, value.IssueID, value.FieldID, value.Value)
	if err != nil {
		return fmt.Errorf("failed to set field value: %w", err)
	}
	return nil
}

// ListDependencyIDs returns the ids of every issue linked to this one,
// regardless of which side of the normalized pair it sits on.
func (q *queries) ListDependencyIDs(ctx context.Context, issueID int64) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT high_id FROM issue_dependencies WHERE low_id = ?
		UNION
		SELECT low_id FROM issue_dependencies WHERE high_id = ?
		ORDER BY 1
	`, issueID, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dependencies: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddDependency records a symmetric link between two issues (idempotent)
func (q *queries) AddDependency(ctx context.Context, issueID, otherID int64) error {
	low, high := orderPair(issueID, otherID)
	_, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO issue_dependencies (low_id, high_id) VALUES (?, ?)
	`, low, high)
	if err != nil {
		return fmt.Errorf("failed to add dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes the link between two issues. Returns whether a
// link existed.
func (q *queries) RemoveDependency(ctx context.Context, issueID, otherID int64) (bool, error) {
	low, high := orderPair(issueID, otherID)
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM issue_dependencies WHERE low_id = ? AND high_id = ?
	`, low, high)
	if err != nil {
		return false, fmt.Errorf("failed to remove dependency: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func orderPair(a, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// AddWatcher subscribes a user to an issue (idempotent)
func (q *queries) AddWatcher(ctx context.Context, issueID, userID int64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO watchers (issue_id, user_id) VALUES (?, ?)
	`, issueID, userID)
	if err != nil {
		return fmt.Errorf("failed to add watcher: %w", err)
	}
	return nil
}

// RemoveWatcher unsubscribes a user from an issue (idempotent)
func (q *queries) RemoveWatcher(ctx context.Context, issueID, userID int64) error {
	_, err := q.q.ExecContext(ctx, `
		DELETE FROM watchers WHERE issue_id = ? AND user_id = ?
	`, issueID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove watcher: %w", err)
	}
	return nil
}

// ListWatchers returns the user ids watching an issue
func (q *queries) ListWatchers(ctx context.Context, issueID int64) ([]int64, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT user_id FROM watchers WHERE issue_id = ? ORDER BY user_id
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchers: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkRead records that a user has seen the issue's current history
func (q *queries) MarkRead(ctx context.Context, issueID, userID int64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO issue_reads (issue_id, user_id, read_at) VALUES (?, ?, ?)
		ON CONFLICT(issue_id, user_id) DO UPDATE SET read_at = excluded.read_at
	`, issueID, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

// MarkUnread clears the read mark (idempotent)
func (q *queries) MarkUnread(ctx context.Context, issueID, userID int64) error {
	_, err := q.q.ExecContext(ctx, `
		DELETE FROM issue_reads WHERE issue_id = ? AND user_id = ?
	`, issueID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark unread: %w", err)
	}
	return nil
}

// IsRead reports whether a read mark exists at or after the issue's last
// change.
func (q *queries) IsRead(ctx context.Context, issueID, userID int64) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM issue_reads r
		JOIN issues i ON i.id = r.issue_id
		WHERE r.issue_id = ? AND r.user_id = ? AND r.read_at >= i.changed_at
	`, issueID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check read mark: %w", err)
	}
	return n > 0, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
