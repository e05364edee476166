package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestReassign(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	if err := e.eng.Reassign(ctx, e.bob, issue.ID, &e.tr.Bob.ID); err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	got, _, err := e.eng.Get(ctx, e.bob, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Responsible == nil || *got.Responsible != e.tr.Bob.ID {
		t.Errorf("responsible = %v; want %d", got.Responsible, e.tr.Bob.ID)
	}
	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventAssigned || ev.Parameter != e.tr.Bob.ID {
		t.Errorf("event = %+v; want assigned with parameter %d", ev, e.tr.Bob.ID)
	}

	// Assigning the same user again changes nothing
	err = e.eng.Reassign(ctx, e.bob, issue.ID, &e.tr.Bob.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Errorf("repeat reassign: got %v; want ConflictError", err)
	}

	// Clearing works in an optional state and records parameter 0
	if err := e.eng.Reassign(ctx, e.bob, issue.ID, nil); err != nil {
		t.Fatalf("clearing: %v", err)
	}
	ev = e.lastEvent(t, issue.ID)
	if ev.Type != types.EventAssigned || ev.Parameter != 0 {
		t.Errorf("event = %+v; want assigned with parameter 0", ev)
	}

	// Mallory holds no reassign grant
	if err := e.eng.Reassign(ctx, e.mallory, issue.ID, &e.tr.Bob.ID); !isDenied(err, "insufficient permissions") {
		t.Errorf("outsider reassign: got %v", err)
	}
}

func TestReassignRequiredState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	e.moveToAssigned(t, issue)

	// Assigned requires a responsible user; clearing must fail
	err := e.eng.Reassign(ctx, e.bob, issue.ID, nil)
	if !hasViolation(err, "responsible") {
		t.Errorf("clearing in a required state: got %v", err)
	}

	// Invalid candidate
	err = e.eng.Reassign(ctx, e.bob, issue.ID, &e.tr.Mallory.ID)
	if !hasViolation(err, "responsible") {
		t.Errorf("invalid candidate: got %v", err)
	}
}

func TestSuspendResume(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	if err := e.eng.Suspend(ctx, e.bob, issue.ID, nil); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventSuspended || ev.Parameter != 0 {
		t.Errorf("event = %+v; want suspended with parameter 0", ev)
	}

	// Every mutation except resume is refused
	subject := "nope"
	if _, err := e.eng.Edit(ctx, e.alice, EditRequest{IssueID: issue.ID, Subject: &subject}); !isDenied(err, "issue is suspended") {
		t.Errorf("edit while suspended: got %v", err)
	}
	if err := e.eng.Suspend(ctx, e.bob, issue.ID, nil); !isDenied(err, "issue is suspended") {
		t.Errorf("double suspend: got %v", err)
	}

	if err := e.eng.Resume(ctx, e.bob, issue.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if ev := e.lastEvent(t, issue.ID); ev.Type != types.EventResumed {
		t.Errorf("event = %s; want resumed", ev.Type)
	}
	if _, err := e.eng.Edit(ctx, e.alice, EditRequest{IssueID: issue.ID, Subject: &subject}); err != nil {
		t.Errorf("edit after resume: %v", err)
	}

	// Resuming an active issue is a conflict
	err := e.eng.Resume(ctx, e.bob, issue.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Errorf("resume active: got %v; want ConflictError", err)
	}
}

func TestSuspendUntil(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	e.eng.SetClock(func() time.Time { return base })

	past := base.Add(-time.Hour)
	if err := e.eng.Suspend(ctx, e.bob, issue.ID, &past); !hasViolation(err, "resumes_at") {
		t.Errorf("suspend until the past: got %v", err)
	}

	resume := base.Add(48 * time.Hour)
	if err := e.eng.Suspend(ctx, e.bob, issue.ID, &resume); err != nil {
		t.Fatalf("Suspend until: %v", err)
	}
	if ev := e.lastEvent(t, issue.ID); ev.Parameter != resume.Unix() {
		t.Errorf("event parameter = %d; want %d", ev.Parameter, resume.Unix())
	}

	subject := "blocked"
	if _, err := e.eng.Edit(ctx, e.alice, EditRequest{IssueID: issue.ID, Subject: &subject}); !isDenied(err, "issue is suspended") {
		t.Errorf("edit while timed suspension active: got %v", err)
	}

	// The suspension expires lazily once the clock passes resumes_at
	e.eng.SetClock(func() time.Time { return resume.Add(time.Minute) })
	if _, err := e.eng.Edit(ctx, e.alice, EditRequest{IssueID: issue.ID, Subject: &subject}); err != nil {
		t.Errorf("edit after expiry: %v", err)
	}
}

func TestSuspendPermission(t *testing.T) {
	e := newEnv(t)
	issue := e.create(t, e.alice)

	// Alice authored the issue but suspend is granted to developers only
	if err := e.eng.Suspend(context.Background(), e.alice, issue.ID, nil); !isDenied(err, "insufficient permissions") {
		t.Errorf("ungranted suspend: got %v", err)
	}
}
