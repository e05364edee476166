package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rivet-tracker/rivet/internal/journal"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/storage/sqlite"
	"github.com/rivet-tracker/rivet/internal/testutil/fixtures"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/workflow"
)

// env wires a real database, the tracker fixture and an engine together
// for command tests.
type env struct {
	store *sqlite.Store
	eng   *Engine
	tr    *fixtures.Tracker

	alice   *types.Actor
	bob     *types.Actor
	carol   *types.Actor
	root    *types.Actor
	mallory *types.Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	s, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	tr, err := fixtures.Install(ctx, s)
	if err != nil {
		t.Fatalf("installing fixture: %v", err)
	}

	e := &env{store: s, eng: New(s), tr: tr}
	actor := func(u *types.User) *types.Actor {
		a, err := tr.Actor(ctx, s, u)
		if err != nil {
			t.Fatalf("building actor %s: %v", u.Name, err)
		}
		return a
	}
	e.alice = actor(tr.Alice)
	e.bob = actor(tr.Bob)
	e.carol = actor(tr.Carol)
	e.root = actor(tr.Root)
	e.mallory = actor(tr.Mallory)
	return e
}

// create opens a valid issue as the given actor
func (e *env) create(t *testing.T, actor *types.Actor) *types.Issue {
	t.Helper()
	issue, err := e.eng.Create(context.Background(), actor, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "Crash on startup",
		Fields: map[int64]string{
			e.tr.Description.ID: "Segfault when launched with no config",
			e.tr.Severity.ID:    "2",
		},
	})
	if err != nil {
		t.Fatalf("creating issue: %v", err)
	}
	return issue
}

// moveToAssigned advances a fresh issue to Assigned with Bob responsible
func (e *env) moveToAssigned(t *testing.T, issue *types.Issue) *types.Issue {
	t.Helper()
	moved, err := e.eng.ChangeState(context.Background(), e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Bob.ID,
	})
	if err != nil {
		t.Fatalf("moving to Assigned: %v", err)
	}
	return moved
}

// lastEvent returns the most recent event of an issue
func (e *env) lastEvent(t *testing.T, issueID int64) *types.Event {
	t.Helper()
	events, err := e.store.ListEvents(context.Background(), issueID)
	if err != nil {
		t.Fatalf("listing events: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("no events recorded")
	}
	return events[len(events)-1]
}

func hasViolation(err error, field string) bool {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return false
	}
	for _, v := range verr.Violations {
		if v.Field == field {
			return true
		}
	}
	return false
}

func isDenied(err error, reason string) bool {
	var derr *AccessDeniedError
	if !errors.As(err, &derr) {
		return false
	}
	return string(derr.Reason) == reason
}

func isNotFound(err error, kind string) bool {
	var nerr *NotFoundError
	if !errors.As(err, &nerr) {
		return false
	}
	return nerr.Kind == kind
}

// secretDefinition is a template whose issues only developers may view
const secretDefinition = `
template:
  name: Secret
  prefix: SEC
states:
  - name: Open
    type: initial
    responsible: optional
    fields:
      - name: Note
        type: string
  - name: Done
    type: final
transitions:
  - {from: Open, to: Done, roles: [author]}
permissions:
  view:
    groups: [developers]
  create:
    roles: [anyone]
  clone:
    roles: [anyone]
  link:
    roles: [anyone]
`

func (e *env) installSecret(t *testing.T) *types.Template {
	t.Helper()
	ctx := context.Background()
	def, err := workflow.Load([]byte(secretDefinition))
	if err != nil {
		t.Fatalf("parsing secret definition: %v", err)
	}
	var tmpl *types.Template
	err = e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		tmpl, err = workflow.Install(ctx, tx, e.tr.Project.ID, def)
		return err
	})
	if err != nil {
		t.Fatalf("installing secret template: %v", err)
	}
	return tmpl
}

func TestGet(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	got, values, err := e.eng.Get(ctx, e.mallory, issue.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Subject != "Crash on startup" {
		t.Errorf("subject = %q", got.Subject)
	}
	// Description, Severity and the Component default
	if len(values) != 3 {
		t.Errorf("got %d values; want 3", len(values))
	}

	if _, _, err := e.eng.Get(ctx, e.alice, 999); !isNotFound(err, "issue") {
		t.Errorf("Get(999) = %v; want issue not found", err)
	}
}

func TestViewDenialReadsAsNotFound(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.installSecret(t)

	secret, err := e.eng.Create(ctx, e.bob, CreateRequest{TemplateID: tmpl.ID, Subject: "Hidden work"})
	if err != nil {
		t.Fatalf("creating secret issue: %v", err)
	}

	if _, _, err := e.eng.Get(ctx, e.mallory, secret.ID); !isNotFound(err, "issue") {
		t.Errorf("outsider Get = %v; want not found, never a permission error", err)
	}
	if _, err := e.eng.History(ctx, e.mallory, secret.ID); !isNotFound(err, "issue") {
		t.Errorf("outsider History = %v; want not found", err)
	}
	// A developer sees it fine
	if _, _, err := e.eng.Get(ctx, e.bob, secret.ID); err != nil {
		t.Errorf("developer Get = %v; want success", err)
	}
}

func TestList(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.installSecret(t)

	for i := 0; i < 2; i++ {
		if _, err := e.eng.Create(ctx, e.bob, CreateRequest{TemplateID: tmpl.ID, Subject: "Hidden work"}); err != nil {
			t.Fatal(err)
		}
	}

	visible, err := e.eng.List(ctx, e.bob, tmpl.ID)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(visible) != 2 {
		t.Errorf("developer sees %d issues; want 2", len(visible))
	}

	hidden, err := e.eng.List(ctx, e.mallory, tmpl.ID)
	if err != nil {
		t.Fatalf("List as outsider: %v", err)
	}
	if len(hidden) != 0 {
		t.Errorf("outsider sees %d issues; want 0", len(hidden))
	}

	if _, err := e.eng.List(ctx, e.bob, 999); !isNotFound(err, "template") {
		t.Errorf("List(999) = %v; want template not found", err)
	}
}

func TestHistory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	e.moveToAssigned(t, issue)
	if _, err := e.eng.AddComment(ctx, e.bob, issue.ID, "on it", false); err != nil {
		t.Fatal(err)
	}
	if err := e.eng.Reassign(ctx, e.bob, issue.ID, &e.tr.Alice.ID); err != nil {
		t.Fatal(err)
	}

	events, err := e.eng.History(ctx, e.alice, issue.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	var got []types.EventType
	for _, ev := range events {
		got = append(got, ev.Type)
	}
	want := []types.EventType{
		types.EventCreated,
		types.EventStateChanged,
		types.EventAssigned,
		types.EventCommented,
		types.EventAssigned,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestDisplayValue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue, err := e.eng.Create(ctx, e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "All fields",
		Fields: map[int64]string{
			e.tr.Description.ID: "long text",
			e.tr.Severity.ID:    "3",
			e.tr.Component.ID:   "parser",
			e.tr.DueDate.ID:     "2026-09-15",
			e.tr.Cost.ID:        "12.5",
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, values, err := e.eng.Get(ctx, e.alice, issue.ID)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		field *types.Field
		want  string
	}{
		{field: e.tr.Description, want: "long text"},
		{field: e.tr.Severity, want: "High"},
		{field: e.tr.Component, want: "parser"},
		{field: e.tr.DueDate, want: "2026-09-15"},
		{field: e.tr.Cost, want: "12.50"},
	}
	for _, tt := range tests {
		got, err := DisplayValue(ctx, e.store, tt.field, values[tt.field.ID], time.UTC)
		if err != nil {
			t.Errorf("DisplayValue(%s): %v", tt.field.Name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("DisplayValue(%s) = %q; want %q", tt.field.Name, got, tt.want)
		}
	}
}

func TestJournalMirrorsCommittedEvents(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	e.eng.SetJournal(journal.NewWriter(path))

	issue := e.create(t, e.alice)

	entries, err := journal.Read(path)
	if err != nil {
		t.Fatalf("reading journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d journal entries; want 1", len(entries))
	}
	if entries[0].IssueID != issue.ID || entries[0].Type != types.EventCreated {
		t.Errorf("entry = %+v; want created for issue %d", entries[0], issue.ID)
	}

	// A failed command must leave no trace in the journal
	_, err = e.eng.Create(ctx, e.alice, CreateRequest{TemplateID: e.tr.Template.ID, Subject: ""})
	if err == nil {
		t.Fatal("invalid create expected error, got nil")
	}
	entries, err = journal.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("failed command appended to the journal: %d entries", len(entries))
	}
}
