package engine

import (
	"context"
	"errors"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// AddComment appends a comment to an issue. Private comments are stored
// but filtering them per reader is a presentation concern. Comments count
// as content: the frozen window blocks them.
func (e *Engine) AddComment(ctx context.Context, actor *types.Actor, issueID int64, text string, private bool) (*types.Comment, error) {
	var created *types.Comment
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		pre := perm.Preconditions{ContentEdit: true}
		if err := gate(actor, w, issue, e.now(), pre, types.PermComment); err != nil {
			return err
		}
		if text == "" {
			return &ValidationError{Violations: []Violation{
				{Field: "text", Message: "comment text is required"},
			}}
		}

		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventCommented, actor.UserID, 0)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		comment := &types.Comment{EventID: ev.ID, Text: text, Private: private}
		if err := tx.AddComment(ctx, comment); err != nil {
			return err
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		created = comment
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return created, nil
}

// RemoveComment deletes a comment body. Only its author or an
// administrator may remove it; the commented event stays in the history.
func (e *Engine) RemoveComment(ctx context.Context, actor *types.Actor, commentID int64) error {
	return e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		comment, err := tx.GetComment(ctx, commentID)
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Kind: "comment", ID: commentID}
		}
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, comment.EventID)
		if err != nil {
			return err
		}
		issue, w, err := loadIssue(ctx, tx, actor, ev.IssueID)
		if err != nil {
			// Hiding the issue hides its comments too
			return &NotFoundError{Kind: "comment", ID: commentID}
		}
		pre := perm.Preconditions{ContentEdit: true}
		if reason := perm.CheckPreconditions(w, issue, e.now(), pre); reason != "" {
			return &AccessDeniedError{Reason: reason}
		}
		if !actor.Admin && actor.UserID != ev.ActorID {
			return &AccessDeniedError{Reason: perm.DeniedPermission}
		}
		return tx.DeleteComment(ctx, commentID)
	})
}
