package engine

import (
	"context"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// AddDependencies links an issue to each of the given issues. Links are
// symmetric and idempotent; a link that already exists is skipped without
// an event. Targets that do not exist, or that the actor may not view,
// are rejected as unknown: link errors never reveal hidden issues. Links
// never cross project boundaries. All rejections are reported together
// and abort the whole batch.
func (e *Engine) AddDependencies(ctx context.Context, actor *types.Actor, issueID int64, others []int64) error {
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		if err := gate(actor, w, issue, e.now(), perm.Preconditions{}, types.PermLink); err != nil {
			return err
		}

		existing, err := tx.ListDependencyIDs(ctx, issue.ID)
		if err != nil {
			return err
		}
		linked := make(map[int64]bool, len(existing))
		for _, id := range existing {
			linked[id] = true
		}

		var errs violations
		var targets []*types.Issue
		for _, otherID := range others {
			if otherID == issue.ID {
				errs.add("dependency", "issue cannot depend on itself")
				continue
			}
			other, otherW, err := loadIssue(ctx, tx, actor, otherID)
			if err != nil {
				errs.add("dependency", "unknown issue %d", otherID)
				continue
			}
			if otherW.Project.ID != w.Project.ID {
				errs.add("dependency", "issue %d belongs to a different project", otherID)
				continue
			}
			targets = append(targets, other)
		}
		if err := errs.err(); err != nil {
			return err
		}

		for _, other := range targets {
			if linked[other.ID] {
				continue
			}
			linked[other.ID] = true
			if err := tx.AddDependency(ctx, issue.ID, other.ID); err != nil {
				return err
			}
			ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventDependencyAdded, actor.UserID, other.ID)
			if err != nil {
				return err
			}
			logged = append(logged, ev)
			ev, err = e.appendEvent(ctx, tx, other.ID, types.EventDependencyAdded, actor.UserID, issue.ID)
			if err != nil {
				return err
			}
			logged = append(logged, ev)
		}
		return e.touch(ctx, tx, issue)
	})
	if err != nil {
		return err
	}
	e.journalAppend(logged)
	return nil
}

// RemoveDependencies unlinks an issue from each of the given issues.
// Unknown, hidden or cross-project targets are rejected like
// AddDependencies; targets that are not actually linked are reported as
// not found, all of them at once.
func (e *Engine) RemoveDependencies(ctx context.Context, actor *types.Actor, issueID int64, others []int64) error {
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		if err := gate(actor, w, issue, e.now(), perm.Preconditions{}, types.PermLink); err != nil {
			return err
		}

		var errs violations
		var targets []*types.Issue
		for _, otherID := range others {
			other, otherW, err := loadIssue(ctx, tx, actor, otherID)
			if err != nil {
				errs.add("dependency", "unknown issue %d", otherID)
				continue
			}
			if otherW.Project.ID != w.Project.ID {
				errs.add("dependency", "issue %d belongs to a different project", otherID)
				continue
			}
			targets = append(targets, other)
		}
		if err := errs.err(); err != nil {
			return err
		}

		existing, err := tx.ListDependencyIDs(ctx, issue.ID)
		if err != nil {
			return err
		}
		linked := make(map[int64]bool, len(existing))
		for _, id := range existing {
			linked[id] = true
		}
		var notLinked []int64
		for _, other := range targets {
			if !linked[other.ID] {
				notLinked = append(notLinked, other.ID)
			}
		}
		if len(notLinked) > 0 {
			return &NotFoundError{Kind: "dependency", IDs: notLinked}
		}

		for _, other := range targets {
			removed, err := tx.RemoveDependency(ctx, issue.ID, other.ID)
			if err != nil {
				return err
			}
			if !removed {
				return &NotFoundError{Kind: "dependency", IDs: []int64{other.ID}}
			}
			ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventDependencyRemoved, actor.UserID, other.ID)
			if err != nil {
				return err
			}
			logged = append(logged, ev)
			ev, err = e.appendEvent(ctx, tx, other.ID, types.EventDependencyRemoved, actor.UserID, issue.ID)
			if err != nil {
				return err
			}
			logged = append(logged, ev)
		}
		return e.touch(ctx, tx, issue)
	})
	if err != nil {
		return err
	}
	e.journalAppend(logged)
	return nil
}

// Dependencies returns the ids of every issue linked to this one that the
// actor may view. Hidden neighbors are silently omitted.
func (e *Engine) Dependencies(ctx context.Context, actor *types.Actor, issueID int64) ([]int64, error) {
	if _, _, err := loadIssue(ctx, e.store, actor, issueID); err != nil {
		return nil, err
	}
	ids, err := e.store.ListDependencyIDs(ctx, issueID)
	if err != nil {
		return nil, err
	}
	var visible []int64
	for _, id := range ids {
		if _, _, err := loadIssue(ctx, e.store, actor, id); err == nil {
			visible = append(visible, id)
		}
	}
	return visible, nil
}
