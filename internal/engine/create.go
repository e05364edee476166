package engine

import (
	"context"
	"errors"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// CreateRequest carries the input of a Create command. Fields maps field
// ids of the template's initial state to raw values.
type CreateRequest struct {
	TemplateID  int64
	Subject     string
	Fields      map[int64]string
	Responsible *int64
}

// Create opens a new issue in the template's initial state. The author is
// the acting user; the issue starts watched and read by them. Field input
// is validated as a batch: every violation is reported together.
func (e *Engine) Create(ctx context.Context, actor *types.Actor, req CreateRequest) (*types.Issue, error) {
	var created *types.Issue
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		w, err := tx.GetWorkflow(ctx, req.TemplateID)
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Kind: "template", ID: req.TemplateID}
		}
		if err != nil {
			return err
		}
		if err := gate(actor, w, nil, e.now(), perm.Preconditions{}, types.PermCreate); err != nil {
			return err
		}

		initial := w.States[w.Template.InitialState]
		if initial == nil {
			return errors.New("template has no initial state")
		}

		var errs violations
		if req.Subject == "" {
			errs.add("subject", "subject is required")
		} else if len(req.Subject) > 500 {
			errs.add("subject", "subject must be 500 characters or less")
		}

		resolved := validateFields(ctx, tx, actor, w, initial.ID, req.Fields, &errs)
		defaults := applyDefaults(ctx, tx, actor, w, initial.ID, nil, req.Fields, &errs)
		requireFields(w, initial.ID, defaults, req.Fields, &errs)

		responsible, rerr := chooseResponsible(ctx, tx, initial, nil, req.Responsible)
		if rerr != "" {
			errs.add("responsible", "%s", rerr)
		}

		if err := errs.err(); err != nil {
			return err
		}

		now := e.now().UTC()
		issue := &types.Issue{
			TemplateID:  req.TemplateID,
			AuthorID:    actor.UserID,
			Responsible: responsible,
			Subject:     req.Subject,
			StateID:     initial.ID,
			CreatedAt:   now,
			ChangedAt:   now,
		}
		if err := tx.CreateIssue(ctx, issue); err != nil {
			return err
		}

		for fieldID, value := range defaults {
			resolved[fieldID] = value
		}
		for fieldID, value := range resolved {
			fv := &types.FieldValue{IssueID: issue.ID, FieldID: fieldID, Value: value}
			if err := tx.SetFieldValue(ctx, fv); err != nil {
				return err
			}
		}

		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventCreated, actor.UserID, initial.ID)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		if err := tx.AddWatcher(ctx, issue.ID, actor.UserID); err != nil {
			return err
		}
		if err := tx.MarkRead(ctx, issue.ID, actor.UserID); err != nil {
			return err
		}
		created = issue
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return created, nil
}

// Clone opens a new issue in the initial state of the source's template,
// copying the subject and every populated field value by reference. The
// clone records its origin but shares no further fate with it: state,
// responsible and history start fresh.
func (e *Engine) Clone(ctx context.Context, actor *types.Actor, issueID int64) (*types.Issue, error) {
	var created *types.Issue
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		source, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		if err := gate(actor, w, source, e.now(), perm.Preconditions{}, types.PermClone); err != nil {
			return err
		}

		initial := w.States[w.Template.InitialState]
		if initial == nil {
			return errors.New("template has no initial state")
		}

		values, err := tx.GetFieldValues(ctx, source.ID)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		clone := &types.Issue{
			TemplateID: source.TemplateID,
			AuthorID:   actor.UserID,
			Subject:    source.Subject,
			StateID:    initial.ID,
			CreatedAt:  now,
			ChangedAt:  now,
			OriginID:   &source.ID,
		}
		if err := tx.CreateIssue(ctx, clone); err != nil {
			return err
		}
		for fieldID, value := range values {
			fv := &types.FieldValue{IssueID: clone.ID, FieldID: fieldID, Value: value}
			if err := tx.SetFieldValue(ctx, fv); err != nil {
				return err
			}
		}
		ev, err := e.appendEvent(ctx, tx, clone.ID, types.EventCreated, actor.UserID, initial.ID)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		if err := tx.AddWatcher(ctx, clone.ID, actor.UserID); err != nil {
			return err
		}
		if err := tx.MarkRead(ctx, clone.ID, actor.UserID); err != nil {
			return err
		}
		created = clone
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return created, nil
}
