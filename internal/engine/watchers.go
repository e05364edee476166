package engine

import (
	"context"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// Watch subscribes the actor to an issue. Watching is per-user state, not
// a mutation of the issue: it needs only the view gate and records no
// event. Idempotent.
func (e *Engine) Watch(ctx context.Context, actor *types.Actor, issueID int64) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, _, err := loadIssue(ctx, tx, actor, issueID); err != nil {
			return err
		}
		return tx.AddWatcher(ctx, issueID, actor.UserID)
	})
}

// Unwatch removes the actor's subscription. Idempotent.
func (e *Engine) Unwatch(ctx context.Context, actor *types.Actor, issueID int64) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, _, err := loadIssue(ctx, tx, actor, issueID); err != nil {
			return err
		}
		return tx.RemoveWatcher(ctx, issueID, actor.UserID)
	})
}

// Watchers returns the user ids subscribed to an issue
func (e *Engine) Watchers(ctx context.Context, actor *types.Actor, issueID int64) ([]int64, error) {
	if _, _, err := loadIssue(ctx, e.store, actor, issueID); err != nil {
		return nil, err
	}
	return e.store.ListWatchers(ctx, issueID)
}

// MarkRead records that the actor has seen the issue's current history.
// The mark compares against changed_at: any later mutation flips the
// issue back to unread.
func (e *Engine) MarkRead(ctx context.Context, actor *types.Actor, issueID int64) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, _, err := loadIssue(ctx, tx, actor, issueID); err != nil {
			return err
		}
		return tx.MarkRead(ctx, issueID, actor.UserID)
	})
}

// MarkUnread clears the actor's read mark. Idempotent.
func (e *Engine) MarkUnread(ctx context.Context, actor *types.Actor, issueID int64) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, _, err := loadIssue(ctx, tx, actor, issueID); err != nil {
			return err
		}
		return tx.MarkUnread(ctx, issueID, actor.UserID)
	})
}

// IsRead reports whether the actor has read the issue since its last change
func (e *Engine) IsRead(ctx context.Context, actor *types.Actor, issueID int64) (bool, error) {
	if _, _, err := loadIssue(ctx, e.store, actor, issueID); err != nil {
		return false, err
	}
	return e.store.IsRead(ctx, issueID, actor.UserID)
}
