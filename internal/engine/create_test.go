package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestCreate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	issue := e.create(t, e.alice)
	if issue.StateID != e.tr.New.ID {
		t.Errorf("state = %d; want initial state %d", issue.StateID, e.tr.New.ID)
	}
	if issue.AuthorID != e.tr.Alice.ID {
		t.Errorf("author = %d; want %d", issue.AuthorID, e.tr.Alice.ID)
	}
	if issue.Responsible != nil {
		t.Errorf("responsible = %v; want nil", issue.Responsible)
	}

	// The author starts watching and has seen the issue
	watchers, err := e.store.ListWatchers(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(watchers) != 1 || watchers[0] != e.tr.Alice.ID {
		t.Errorf("watchers = %v; want [%d]", watchers, e.tr.Alice.ID)
	}
	read, err := e.store.IsRead(ctx, issue.ID, e.tr.Alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !read {
		t.Error("author has not seen the fresh issue")
	}

	// Exactly one created event with the initial state as parameter
	events, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events; want 1", len(events))
	}
	if events[0].Type != types.EventCreated || events[0].Parameter != e.tr.New.ID {
		t.Errorf("event = %+v; want created with parameter %d", events[0], e.tr.New.ID)
	}

	// The Component default landed
	_, values, err := e.eng.Get(ctx, e.alice, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	component, err := DisplayValue(ctx, e.store, e.tr.Component, values[e.tr.Component.ID], nil)
	if err != nil {
		t.Fatal(err)
	}
	if component != "core" {
		t.Errorf("Component = %q; want default \"core\"", component)
	}
}

func TestCreateBatchesViolations(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.eng.Create(ctx, e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "",
		Fields: map[int64]string{
			e.tr.Severity.ID: "9", // unknown option
			e.tr.Cost.ID:     "-5",
		},
	})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("got %v; want ValidationError", err)
	}
	// Missing subject, bad severity, bad cost and the missing required
	// description all report together
	for _, field := range []string{"subject", "Severity", "Cost", "Description"} {
		if !hasViolation(err, field) {
			t.Errorf("missing violation for %s in %v", field, verr.Violations)
		}
	}
}

func TestCreateRequiredFields(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.eng.Create(ctx, e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "No fields at all",
	})
	if !hasViolation(err, "Description") || !hasViolation(err, "Severity") {
		t.Errorf("got %v; want required violations for Description and Severity", err)
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		for _, v := range verr.Violations {
			if v.Field == "Description" && !strings.Contains(v.Message, "required in state") {
				t.Errorf("message = %q; want a contextual required message", v.Message)
			}
		}
	}
}

func TestCreateUnknownTemplate(t *testing.T) {
	e := newEnv(t)
	_, err := e.eng.Create(context.Background(), e.alice, CreateRequest{TemplateID: 999, Subject: "x"})
	if !isNotFound(err, "template") {
		t.Errorf("got %v; want template not found", err)
	}
}

func TestCreateUnknownField(t *testing.T) {
	e := newEnv(t)
	// Hours belongs to Resolved, not to the initial state
	_, err := e.eng.Create(context.Background(), e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "x",
		Fields: map[int64]string{
			e.tr.Description.ID: "d",
			e.tr.Severity.ID:    "1",
			e.tr.Hours.ID:       "8",
		},
	})
	if !hasViolation(err, "field") {
		t.Errorf("got %v; want a violation for the foreign field", err)
	}
}

func TestCreateResponsible(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// Bob is in the initial state's responsible group
	issue, err := e.eng.Create(ctx, e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "Assigned from birth",
		Fields: map[int64]string{
			e.tr.Description.ID: "d",
			e.tr.Severity.ID:    "1",
		},
		Responsible: &e.tr.Bob.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if issue.Responsible == nil || *issue.Responsible != e.tr.Bob.ID {
		t.Errorf("responsible = %v; want %d", issue.Responsible, e.tr.Bob.ID)
	}

	// Mallory is in no group and not the author of anything yet
	_, err = e.eng.Create(ctx, e.alice, CreateRequest{
		TemplateID: e.tr.Template.ID,
		Subject:    "Bad assignee",
		Fields: map[int64]string{
			e.tr.Description.ID: "d",
			e.tr.Severity.ID:    "1",
		},
		Responsible: &e.tr.Mallory.ID,
	})
	if !hasViolation(err, "responsible") {
		t.Errorf("got %v; want a responsible violation", err)
	}
}

func TestCreateBlockedByPreconditions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.tr.Template.Locked = true
	if err := e.store.UpdateTemplate(ctx, e.tr.Template); err != nil {
		t.Fatal(err)
	}
	_, err := e.eng.Create(ctx, e.alice, CreateRequest{TemplateID: e.tr.Template.ID, Subject: "x"})
	if !isDenied(err, "template is locked") {
		t.Errorf("locked template: got %v", err)
	}

	// Admins do not bypass preconditions
	_, err = e.eng.Create(ctx, e.root, CreateRequest{TemplateID: e.tr.Template.ID, Subject: "x"})
	if !isDenied(err, "template is locked") {
		t.Errorf("locked template as admin: got %v", err)
	}

	e.tr.Template.Locked = false
	if err := e.store.UpdateTemplate(ctx, e.tr.Template); err != nil {
		t.Fatal(err)
	}
	e.tr.Project.Suspended = true
	if err := e.store.UpdateProject(ctx, e.tr.Project); err != nil {
		t.Fatal(err)
	}
	_, err = e.eng.Create(ctx, e.alice, CreateRequest{TemplateID: e.tr.Template.ID, Subject: "x"})
	if !isDenied(err, "project is suspended") {
		t.Errorf("suspended project: got %v", err)
	}
}

func TestClone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	source := e.create(t, e.alice)
	moved := e.moveToAssigned(t, source)
	if moved.Responsible == nil {
		t.Fatal("source should be assigned")
	}

	clone, err := e.eng.Clone(ctx, e.carol, source.ID)
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if clone.ID == source.ID {
		t.Fatal("clone is the source")
	}
	if clone.OriginID == nil || *clone.OriginID != source.ID {
		t.Errorf("origin = %v; want %d", clone.OriginID, source.ID)
	}
	if clone.StateID != e.tr.New.ID {
		t.Errorf("clone state = %d; want the initial state", clone.StateID)
	}
	if clone.Responsible != nil {
		t.Error("clone inherited the responsible user")
	}
	if clone.AuthorID != e.tr.Carol.ID {
		t.Errorf("clone author = %d; want the cloning actor", clone.AuthorID)
	}
	if clone.Subject != source.Subject {
		t.Errorf("clone subject = %q; want %q", clone.Subject, source.Subject)
	}

	// Values are copied by reference: both issues point at the same rows
	sourceValues, err := e.store.GetFieldValues(ctx, source.ID)
	if err != nil {
		t.Fatal(err)
	}
	cloneValues, err := e.store.GetFieldValues(ctx, clone.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cloneValues) != len(sourceValues) {
		t.Fatalf("clone has %d values; source has %d", len(cloneValues), len(sourceValues))
	}
	for fieldID, v := range sourceValues {
		if cloneValues[fieldID] != v {
			t.Errorf("field %d: clone value %d; want %d", fieldID, cloneValues[fieldID], v)
		}
	}
}

func TestCloneHiddenSource(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.installSecret(t)

	secret, err := e.eng.Create(ctx, e.bob, CreateRequest{TemplateID: tmpl.ID, Subject: "Hidden"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.eng.Clone(ctx, e.mallory, secret.ID); !isNotFound(err, "issue") {
		t.Errorf("cloning a hidden issue = %v; want not found", err)
	}
}
