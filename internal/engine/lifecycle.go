package engine

import (
	"context"
	"time"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// Reassign changes the issue's responsible user without moving it.
// responsible nil clears the assignment. The candidate is validated
// against the current state's policy; one assigned event is recorded with
// the new assignee as parameter (0 when cleared).
func (e *Engine) Reassign(ctx context.Context, actor *types.Actor, issueID int64, responsible *int64) error {
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		if err := gate(actor, w, issue, e.now(), perm.Preconditions{}, types.PermReassign); err != nil {
			return err
		}

		state := w.States[issue.StateID]
		requested := responsible
		if requested == nil {
			var zero int64
			requested = &zero
		}
		next, msg := chooseResponsible(ctx, tx, state, issue, requested)
		if msg != "" {
			return &ValidationError{Violations: []Violation{{Field: "responsible", Message: msg}}}
		}
		if equalID(issue.Responsible, next) {
			return &ConflictError{Message: "issue is already assigned that way"}
		}

		issue.Responsible = next
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		var param int64
		if next != nil {
			param = *next
		}
		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventAssigned, actor.UserID, param)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		return nil
	})
	if err != nil {
		return err
	}
	e.journalAppend(logged)
	return nil
}

func equalID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Suspend parks an issue until resumesAt (nil parks it indefinitely).
// Suspended issues refuse every mutation except Resume. The suspended
// event's parameter carries the resume time as unix seconds, 0 when
// indefinite.
func (e *Engine) Suspend(ctx context.Context, actor *types.Actor, issueID int64, resumesAt *time.Time) error {
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		if err := gate(actor, w, issue, e.now(), perm.Preconditions{}, types.PermSuspend); err != nil {
			return err
		}
		now := e.now()
		if resumesAt != nil && !resumesAt.After(now) {
			return &ValidationError{Violations: []Violation{
				{Field: "resumes_at", Message: "resume time must be in the future"},
			}}
		}

		issue.Suspended = true
		issue.ResumesAt = nil
		if resumesAt != nil {
			t := resumesAt.UTC()
			issue.ResumesAt = &t
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		var param int64
		if issue.ResumesAt != nil {
			param = issue.ResumesAt.Unix()
		}
		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventSuspended, actor.UserID, param)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		return nil
	})
	if err != nil {
		return err
	}
	e.journalAppend(logged)
	return nil
}

// Resume lifts a suspension before its scheduled end. This is the one
// mutation allowed on a suspended issue.
func (e *Engine) Resume(ctx context.Context, actor *types.Actor, issueID int64) error {
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		pre := perm.Preconditions{AllowSuspended: true}
		if err := gate(actor, w, issue, e.now(), pre, types.PermSuspend); err != nil {
			return err
		}
		if !issue.SuspendedNow(e.now()) {
			return &ConflictError{Message: "issue is not suspended"}
		}

		issue.Suspended = false
		issue.ResumesAt = nil
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventResumed, actor.UserID, 0)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		return nil
	})
	if err != nil {
		return err
	}
	e.journalAppend(logged)
	return nil
}
