package engine

import (
	"context"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// EditRequest carries the input of an Edit command. Subject nil leaves the
// subject alone; Fields maps field ids of the issue's current state to raw
// replacement values.
type EditRequest struct {
	IssueID int64
	Subject *string
	Fields  map[int64]string
}

// Edit changes the subject and field values of an issue without moving it.
// Input is validated as a batch. One edited event is recorded with a
// change row per field that actually changed, plus one for the subject.
// An edit that alters nothing still records the edited event, with zero
// change rows.
func (e *Engine) Edit(ctx context.Context, actor *types.Actor, req EditRequest) (*types.Issue, error) {
	var result *types.Issue
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, req.IssueID)
		if err != nil {
			return err
		}
		pre := perm.Preconditions{ContentEdit: true}
		if err := gate(actor, w, issue, e.now(), pre, types.PermEdit); err != nil {
			return err
		}

		existing, err := tx.GetFieldValues(ctx, issue.ID)
		if err != nil {
			return err
		}

		var errs violations
		if req.Subject != nil {
			if *req.Subject == "" {
				errs.add("subject", "subject is required")
			} else if len(*req.Subject) > 500 {
				errs.add("subject", "subject must be 500 characters or less")
			}
		}
		resolved := validateFields(ctx, tx, actor, w, issue.StateID, req.Fields, &errs)
		// A required field of the current state cannot be cleared once set,
		// and clearing is the only absence edit can express.
		if err := errs.err(); err != nil {
			return err
		}

		type fieldChange struct {
			fieldID int64
			old     *int64
			new     int64
		}
		var changes []fieldChange
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
			changes = append(changes, fc)
		}
		subjectChanged := req.Subject != nil && *req.Subject != issue.Subject

		oldSubject := issue.Subject
		if subjectChanged {
			issue.Subject = *req.Subject
		}
		for _, fc := range changes {
			fv := &types.FieldValue{IssueID: issue.ID, FieldID: fc.fieldID, Value: fc.new}
			if err := tx.SetFieldValue(ctx, fv); err != nil {
				return err
			}
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}

		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventEdited, actor.UserID, 0)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		if subjectChanged {
			ch := &types.Change{EventID: ev.ID, OldSubject: oldSubject, NewSubject: issue.Subject}
			if err := tx.AppendChange(ctx, ch); err != nil {
				return err
			}
		}
		for _, fc := range changes {
			fid := fc.fieldID
			nv := fc.new
			ch := &types.Change{EventID: ev.ID, FieldID: &fid, Old: fc.old, New: &nv}
			if err := tx.AppendChange(ctx, ch); err != nil {
				return err
			}
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
