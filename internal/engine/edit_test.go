package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestEdit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	subject := "Crash on startup with empty config"
	edited, err := e.eng.Edit(ctx, e.alice, EditRequest{
		IssueID: issue.ID,
		Subject: &subject,
		Fields: map[int64]string{
			e.tr.Severity.ID: "3",
		},
	})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.Subject != subject {
		t.Errorf("subject = %q; want %q", edited.Subject, subject)
	}

	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventEdited {
		t.Fatalf("event = %s; want edited", ev.Type)
	}
	changes, err := e.store.ListChanges(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d change rows; want 2 (subject and severity)", len(changes))
	}

	var sawSubject, sawField bool
	for _, ch := range changes {
		if ch.FieldID == nil {
			sawSubject = true
			if ch.OldSubject != "Crash on startup" || ch.NewSubject != subject {
				t.Errorf("subject change = %q -> %q", ch.OldSubject, ch.NewSubject)
			}
		} else if *ch.FieldID == e.tr.Severity.ID {
			sawField = true
			if ch.Old == nil || ch.New == nil {
				t.Errorf("severity change has nil endpoints: %+v", ch)
			} else if *ch.Old == *ch.New {
				t.Error("severity change records no difference")
			}
		}
	}
	if !sawSubject || !sawField {
		t.Errorf("changes = %+v; want one subject and one severity row", changes)
	}
}

func TestEditNoop(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	before, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}

	// Same subject, same severity: the edited event is still recorded,
	// with zero change rows
	subject := issue.Subject
	_, err = e.eng.Edit(ctx, e.alice, EditRequest{
		IssueID: issue.ID,
		Subject: &subject,
		Fields:  map[int64]string{e.tr.Severity.ID: "2"},
	})
	if err != nil {
		t.Fatalf("no-op edit: %v", err)
	}
	after, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("got %d events after a no-op edit; want %d", len(after), len(before)+1)
	}
	ev := after[len(after)-1]
	if ev.Type != types.EventEdited {
		t.Errorf("event = %s; want edited", ev.Type)
	}
	changes, err := e.store.ListChanges(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 0 {
		t.Errorf("no-op edit recorded %d change rows; want 0", len(changes))
	}
}

func TestEditPermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	subject := "changed"

	// Mallory can view but is neither author, responsible nor developer
	_, err := e.eng.Edit(ctx, e.mallory, EditRequest{IssueID: issue.ID, Subject: &subject})
	if !isDenied(err, "insufficient permissions") {
		t.Errorf("outsider edit: got %v", err)
	}

	// Bob edits through the developers group grant
	if _, err := e.eng.Edit(ctx, e.bob, EditRequest{IssueID: issue.ID, Subject: &subject}); err != nil {
		t.Errorf("developer edit: %v", err)
	}
}

func TestEditFrozenWindow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	subject := "too late"

	// The fixture template freezes content 30 days after creation
	e.eng.SetClock(func() time.Time { return issue.CreatedAt.AddDate(0, 0, 31) })

	_, err := e.eng.Edit(ctx, e.alice, EditRequest{IssueID: issue.ID, Subject: &subject})
	if !isDenied(err, "issue is frozen") {
		t.Errorf("edit past the frozen window: got %v", err)
	}

	// Non-content operations still work on the old issue
	if err := e.eng.Reassign(ctx, e.bob, issue.ID, &e.tr.Bob.ID); err != nil {
		t.Errorf("reassign past the frozen window: %v", err)
	}
}

func TestEditValidation(t *testing.T) {
	e := newEnv(t)
	issue := e.create(t, e.alice)

	long := strings.Repeat("x", 501)
	_, err := e.eng.Edit(context.Background(), e.alice, EditRequest{
		IssueID: issue.ID,
		Subject: &long,
		Fields:  map[int64]string{e.tr.Cost.ID: "not-a-number"},
	})
	if !hasViolation(err, "subject") || !hasViolation(err, "Cost") {
		t.Errorf("got %v; want batched subject and Cost violations", err)
	}
}
