package engine

import (
	"context"
	"errors"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/workflow"
)

// ChangeStateRequest carries the input of a ChangeState command. Fields
// supplies values for the target state's fields alongside the move;
// Responsible follows pointer semantics: nil leaves the assignment to the
// target state's policy, a pointer to 0 clears it, any other id assigns.
type ChangeStateRequest struct {
	IssueID     int64
	TargetState int64
	Fields      map[int64]string
	Responsible *int64
}

// ChangeState moves an issue along a granted transition. Entering a final
// state closes the issue; leaving one reopens it without re-validating
// required fields. The target state's responsible policy is applied after
// the move. Field values written with the move get change rows on the
// state event; an explicit reassignment records a second, assigned event.
func (e *Engine) ChangeState(ctx context.Context, actor *types.Actor, req ChangeStateRequest) (*types.Issue, error) {
	var result *types.Issue
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, req.IssueID)
		if err != nil {
			return err
		}
		if reason := perm.CheckPreconditions(w, issue, e.now(), perm.Preconditions{}); reason != "" {
			return &AccessDeniedError{Reason: reason}
		}

		target := w.States[req.TargetState]
		if target == nil {
			return &NotFoundError{Kind: "state", ID: req.TargetState}
		}
		if target.ID == issue.StateID {
			return &ConflictError{Message: "issue is already in that state"}
		}
		edge := w.TransitionBetween(issue.StateID, target.ID)
		if edge == nil {
			return &AccessDeniedError{Reason: perm.DeniedPermission}
		}
		if !perm.CanTransition(actor, issue, edge) {
			return &AccessDeniedError{Reason: perm.DeniedPermission}
		}

		from := w.States[issue.StateID]
		kind := workflow.Classify(from, target)

		existing, err := tx.GetFieldValues(ctx, issue.ID)
		if err != nil {
			return err
		}

		var errs violations
		resolved := validateFields(ctx, tx, actor, w, target.ID, req.Fields, &errs)
		defaults := applyDefaults(ctx, tx, actor, w, target.ID, existing, req.Fields, &errs)
		if kind.EnforcesRequiredFields() {
			merged := make(map[int64]int64, len(existing)+len(defaults))
			for k, v := range existing {
				merged[k] = v
			}
			for k, v := range defaults {
				merged[k] = v
			}
			requireFields(w, target.ID, merged, req.Fields, &errs)
		}

		responsible, rerr := chooseResponsible(ctx, tx, target, issue, req.Responsible)
		if rerr != "" {
			errs.add("responsible", "%s", rerr)
		}
		if err := errs.err(); err != nil {
			return err
		}

		for fieldID, value := range defaults {
			resolved[fieldID] = value
		}
		type fieldChange struct {
			fieldID int64
			old     *int64
			new     int64
		}
		var changed []fieldChange
		for fieldID, value := range resolved {
			old, had := existing[fieldID]
			if had && old == value {
				continue
			}
			fc := fieldChange{fieldID: fieldID, new: value}
			if had {
				o := old
				fc.old = &o
			}
			changed = append(changed, fc)
			fv := &types.FieldValue{IssueID: issue.ID, FieldID: fieldID, Value: value}
			if err := tx.SetFieldValue(ctx, fv); err != nil {
				return err
			}
		}

		previous := issue.Responsible
		issue.StateID = target.ID
		issue.Responsible = responsible
		now := e.now().UTC()
		switch kind {
		case workflow.KindClose:
			issue.ClosedAt = &now
		case workflow.KindReopen:
			issue.ClosedAt = nil
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		ev, err := e.appendEvent(ctx, tx, issue.ID, kind.EventType(), actor.UserID, target.ID)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		for _, fc := range changed {
			fid := fc.fieldID
			nv := fc.new
			ch := &types.Change{EventID: ev.ID, FieldID: &fid, Old: fc.old, New: &nv}
			if err := tx.AppendChange(ctx, ch); err != nil {
				return err
			}
		}
		// An explicit reassignment riding on the move gets its own event.
		// A clear forced by the none policy is part of the close itself.
		if req.Responsible != nil && !equalID(previous, responsible) {
			var param int64
			if responsible != nil {
				param = *responsible
			}
			aev, err := e.appendEvent(ctx, tx, issue.ID, types.EventAssigned, actor.UserID, param)
			if err != nil {
				return err
			}
			logged = append(logged, aev)
		}
		result = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return result, nil
}

// chooseResponsible applies a state's responsible policy. The previous
// assignment carries forward where the policy allows one; requested
// overrides it after candidate validation (0 clears). The returned message
// is empty when the outcome satisfies the policy.
func chooseResponsible(ctx context.Context, q storage.Queries, state *types.State, issue *types.Issue, requested *int64) (*int64, string) {
	if state.Responsible == types.ResponsibleNone {
		if requested != nil && *requested != 0 {
			return nil, "state " + state.Name + " does not take a responsible user"
		}
		return nil, ""
	}

	var current *int64
	if issue != nil {
		current = issue.Responsible
	}

	if requested != nil {
		if *requested == 0 {
			current = nil
		} else {
			candidate, err := q.GetUser(ctx, *requested)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, "unknown user"
			}
			if err != nil {
				return nil, "failed to look up user"
			}
			groups, err := q.GetUserGroups(ctx, candidate.ID)
			if err != nil {
				return nil, "failed to look up user"
			}
			if !perm.IsResponsibleCandidate(candidate.ID, groups, state, issue) {
				return nil, string(perm.DeniedResponsible)
			}
			id := candidate.ID
			current = &id
		}
	}

	if state.Responsible == types.ResponsibleRequired && current == nil {
		return nil, "a responsible user is required in state " + state.Name
	}
	return current, ""
}
