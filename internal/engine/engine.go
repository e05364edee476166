// Package engine implements the command layer of rivet. Every mutation
// loads the issue and its workflow, applies the cross-cutting
// preconditions and the permission grant, validates input as a batch,
// mutates, and records exactly one lifecycle event, all inside a single
// storage transaction.
package engine

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rivet-tracker/rivet/internal/journal"
	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/schema"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// Engine executes workflow commands against a store
type Engine struct {
	store   storage.Storage
	now     func() time.Time
	journal *journal.Writer
}

// New creates an engine on top of the given store
func New(store storage.Storage) *Engine {
	return &Engine{store: store, now: time.Now}
}

// SetJournal attaches a journal writer. Lifecycle events are mirrored to
// it after their transaction commits; the journal never sees rolled-back
// events.
func (e *Engine) SetJournal(w *journal.Writer) {
	e.journal = w
}

// journalAppend mirrors committed events to the journal, best effort
func (e *Engine) journalAppend(events []*types.Event) {
	if e.journal == nil {
		return
	}
	_ = e.journal.AppendAll(events)
}

// SetClock overrides the engine's time source. Tests use this to pin
// frozen-window and suspension-expiry behavior.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Store exposes the underlying storage for read-side consumers
func (e *Engine) Store() storage.Storage {
	return e.store
}

// loadIssue fetches an issue and its workflow and applies the view gate:
// an issue the actor may not view is reported as not found, never as
// forbidden, so existence stays hidden.
func loadIssue(ctx context.Context, q storage.Queries, actor *types.Actor, issueID int64) (*types.Issue, *types.Workflow, error) {
	issue, err := q.GetIssue(ctx, issueID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, &NotFoundError{Kind: "issue", ID: issueID}
	}
	if err != nil {
		return nil, nil, err
	}
	w, err := q.GetWorkflow(ctx, issue.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	if !perm.CanPerform(actor, w, issue, types.PermView) {
		return nil, nil, &NotFoundError{Kind: "issue", ID: issueID}
	}
	return issue, w, nil
}

// gate applies preconditions and the permission grant for one mutation
func gate(actor *types.Actor, w *types.Workflow, issue *types.Issue, now time.Time, pre perm.Preconditions, p types.Permission) error {
	if reason := perm.CheckPreconditions(w, issue, now, pre); reason != "" {
		return &AccessDeniedError{Reason: reason}
	}
	if !perm.CanPerform(actor, w, issue, p) {
		return &AccessDeniedError{Reason: perm.DeniedPermission}
	}
	return nil
}

// resolveValue turns a validated schema.Value into its FieldValue encoding:
// the inline scalar for plain types, or the id of a value-table or
// list-item row for deduplicated ones. Unknown list options and dangling
// issue references surface as violations, not storage errors.
func resolveValue(ctx context.Context, q storage.Queries, actor *types.Actor, field *types.Field, v schema.Value, errs *violations) (int64, bool) {
	switch field.Type {
	case types.FieldString:
		id, err := q.ResolveString(ctx, v.Text)
		if err != nil {
			errs.add(field.Name, "failed to store value")
			return 0, false
		}
		return id, true
	case types.FieldText:
		id, err := q.ResolveText(ctx, v.Text)
		if err != nil {
			errs.add(field.Name, "failed to store value")
			return 0, false
		}
		return id, true
	case types.FieldDecimal:
		id, err := q.ResolveDecimal(ctx, v.Text)
		if err != nil {
			errs.add(field.Name, "failed to store value")
			return 0, false
		}
		return id, true
	case types.FieldList:
		item, err := q.LookupListItem(ctx, field.ID, v.Number)
		if errors.Is(err, storage.ErrNotFound) {
			errs.add(field.Name, "unknown option %d", v.Number)
			return 0, false
		}
		if err != nil {
			errs.add(field.Name, "failed to resolve option")
			return 0, false
		}
		return item.ID, true
	case types.FieldIssueID:
		// Referenced issues the actor cannot view read as unknown
		if _, _, err := loadIssue(ctx, q, actor, v.Number); err != nil {
			errs.add(field.Name, "unknown issue %d", v.Number)
			return 0, false
		}
		return v.Number, true
	}
	return v.Number, true
}

// validateFields runs batch validation and resolution of raw field input
// against the fields of one state. Unknown field ids, type violations and
// dangling references all land in errs; the returned map holds only the
// values that passed.
func validateFields(ctx context.Context, q storage.Queries, actor *types.Actor, w *types.Workflow, stateID int64, raw map[int64]string, errs *violations) map[int64]int64 {
	resolved := make(map[int64]int64, len(raw))
	fields := make(map[int64]*types.Field)
	for _, f := range w.StateFields(stateID) {
		fields[f.ID] = f
	}
	for fieldID, rawValue := range raw {
		field := fields[fieldID]
		if field == nil {
			errs.add("field", "field %d does not belong to this state", fieldID)
			continue
		}
		if rawValue == "" {
			continue
		}
		v, err := schema.Validate(field, rawValue, actor.Location())
		if err != nil {
			errs.add(field.Name, "%s", err.Error())
			continue
		}
		if enc, ok := resolveValue(ctx, q, actor, field, v, errs); ok {
			resolved[fieldID] = enc
		}
	}
	return resolved
}

// applyDefaults validates and resolves the default values of a state's
// fields that were neither supplied nor already populated.
func applyDefaults(ctx context.Context, q storage.Queries, actor *types.Actor, w *types.Workflow, stateID int64, existing map[int64]int64, supplied map[int64]string, errs *violations) map[int64]int64 {
	resolved := make(map[int64]int64)
	for _, f := range w.StateFields(stateID) {
		if f.Default == "" {
			continue
		}
		if _, ok := existing[f.ID]; ok {
			continue
		}
		if raw, ok := supplied[f.ID]; ok && raw != "" {
			continue
		}
		v, err := schema.Validate(f, f.Default, actor.Location())
		if err != nil {
			errs.add(f.Name, "invalid default value: %s", err.Error())
			continue
		}
		if enc, ok := resolveValue(ctx, q, actor, f, v, errs); ok {
			resolved[f.ID] = enc
		}
	}
	return resolved
}

// requireFields adds a violation for every required field of the target
// state that remains unpopulated.
func requireFields(w *types.Workflow, stateID int64, existing map[int64]int64, supplied map[int64]string, errs *violations) {
	for _, f := range schema.RequiredMissing(w, stateID, existing, supplied) {
		errs.add(f.Name, "required in state %q", w.States[stateID].Name)
	}
}

// appendEvent records one lifecycle event at the engine's current time
func (e *Engine) appendEvent(ctx context.Context, q storage.Queries, issueID int64, t types.EventType, actorID, parameter int64) (*types.Event, error) {
	ev := &types.Event{
		IssueID:   issueID,
		Type:      t,
		ActorID:   actorID,
		Parameter: parameter,
		CreatedAt: e.now().UTC(),
	}
	if err := q.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// touch bumps the issue's changed_at and persists it
func (e *Engine) touch(ctx context.Context, q storage.Queries, issue *types.Issue) error {
	issue.ChangedAt = e.now().UTC()
	return q.UpdateIssue(ctx, issue)
}

// Get returns an issue the actor may view, with its populated field values
// in FieldValue encoding.
func (e *Engine) Get(ctx context.Context, actor *types.Actor, issueID int64) (*types.Issue, map[int64]int64, error) {
	issue, _, err := loadIssue(ctx, e.store, actor, issueID)
	if err != nil {
		return nil, nil, err
	}
	values, err := e.store.GetFieldValues(ctx, issueID)
	if err != nil {
		return nil, nil, err
	}
	return issue, values, nil
}

// List returns the template's issues the actor may view, in id order.
// Hidden issues are silently dropped rather than reported.
func (e *Engine) List(ctx context.Context, actor *types.Actor, templateID int64) ([]*types.Issue, error) {
	w, err := e.store.GetWorkflow(ctx, templateID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Kind: "template", ID: templateID}
	}
	if err != nil {
		return nil, err
	}
	issues, err := e.store.ListIssues(ctx, templateID)
	if err != nil {
		return nil, err
	}
	visible := issues[:0]
	for _, issue := range issues {
		if perm.CanPerform(actor, w, issue, types.PermView) {
			visible = append(visible, issue)
		}
	}
	return visible, nil
}

// History returns the issue's events in order, subject to the view gate
func (e *Engine) History(ctx context.Context, actor *types.Actor, issueID int64) ([]*types.Event, error) {
	if _, _, err := loadIssue(ctx, e.store, actor, issueID); err != nil {
		return nil, err
	}
	return e.store.ListEvents(ctx, issueID)
}

// DisplayValue renders a stored field value back to its user-facing text
func DisplayValue(ctx context.Context, q storage.Queries, field *types.Field, value int64, loc *time.Location) (string, error) {
	switch field.Type {
	case types.FieldString:
		return q.GetStringValue(ctx, value)
	case types.FieldText:
		return q.GetTextValue(ctx, value)
	case types.FieldDecimal:
		return q.GetDecimalValue(ctx, value)
	case types.FieldList:
		item, err := q.GetListItem(ctx, value)
		if err != nil {
			return "", err
		}
		return item.Label, nil
	case types.FieldCheckbox:
		if value != 0 {
			return "true", nil
		}
		return "false", nil
	case types.FieldDate:
		return schema.FormatDate(value, loc), nil
	case types.FieldDuration:
		return schema.FormatDuration(value), nil
	}
	return strconv.FormatInt(value, 10), nil
}
