package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestChangeState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	moved, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Bob.ID,
		Fields: map[int64]string{
			e.tr.Estimate.ID: "2:30",
		},
	})
	if err != nil {
		t.Fatalf("ChangeState: %v", err)
	}
	if moved.StateID != e.tr.Assigned.ID {
		t.Errorf("state = %d; want %d", moved.StateID, e.tr.Assigned.ID)
	}
	if moved.Responsible == nil || *moved.Responsible != e.tr.Bob.ID {
		t.Errorf("responsible = %v; want %d", moved.Responsible, e.tr.Bob.ID)
	}

	// The move itself and the reassignment riding on it are two events
	events, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 {
		t.Fatalf("got %d events; want the move and the assignment", len(events))
	}
	stateEv, assignEv := events[len(events)-2], events[len(events)-1]
	if stateEv.Type != types.EventStateChanged || stateEv.Parameter != e.tr.Assigned.ID {
		t.Errorf("event = %+v; want state_changed with parameter %d", stateEv, e.tr.Assigned.ID)
	}
	if assignEv.Type != types.EventAssigned || assignEv.Parameter != e.tr.Bob.ID {
		t.Errorf("event = %+v; want assigned with parameter %d", assignEv, e.tr.Bob.ID)
	}

	values, err := e.store.GetFieldValues(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if values[e.tr.Estimate.ID] != 150 {
		t.Errorf("Estimate = %d; want 150 minutes", values[e.tr.Estimate.ID])
	}
}

func TestChangeStateRequiresResponsible(t *testing.T) {
	e := newEnv(t)
	issue := e.create(t, e.alice)

	_, err := e.eng.ChangeState(context.Background(), e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Assigned.ID,
	})
	if !hasViolation(err, "responsible") {
		t.Errorf("got %v; want a responsible violation", err)
	}
}

func TestChangeStateRejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	// No edge from New to Resolved
	_, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{IssueID: issue.ID, TargetState: e.tr.Resolved.ID})
	if !isDenied(err, "insufficient permissions") {
		t.Errorf("missing edge: got %v", err)
	}

	// Alice is not in the developers group that owns the New->Assigned edge
	_, err = e.eng.ChangeState(ctx, e.alice, ChangeStateRequest{
		IssueID: issue.ID, TargetState: e.tr.Assigned.ID, Responsible: &e.tr.Bob.ID,
	})
	if !isDenied(err, "insufficient permissions") {
		t.Errorf("ungranted actor: got %v", err)
	}

	// Already there
	_, err = e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{IssueID: issue.ID, TargetState: e.tr.New.ID})
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Errorf("same state: got %v; want ConflictError", err)
	}

	// Target does not exist in this template
	_, err = e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{IssueID: issue.ID, TargetState: 999})
	if !isNotFound(err, "state") {
		t.Errorf("unknown state: got %v", err)
	}
}

func TestChangeStateAdminBypassesGrant(t *testing.T) {
	e := newEnv(t)
	issue := e.create(t, e.alice)

	_, err := e.eng.ChangeState(context.Background(), e.root, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Bob.ID,
	})
	if err != nil {
		t.Errorf("admin move: %v", err)
	}
}

func TestCloseAndReopen(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	e.moveToAssigned(t, issue)

	// Bob is responsible and may resolve; Hours is required in Resolved
	_, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Resolved.ID,
	})
	if !hasViolation(err, "Hours") {
		t.Fatalf("resolve without hours: got %v; want a Hours violation", err)
	}

	resolved, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Resolved.ID,
		Fields:      map[int64]string{e.tr.Hours.ID: "6"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Resolved keeps the previous assignment
	if resolved.Responsible == nil || *resolved.Responsible != e.tr.Bob.ID {
		t.Errorf("responsible after keep = %v; want %d", resolved.Responsible, e.tr.Bob.ID)
	}

	// Carol (testers) closes; the final state takes no responsible user
	closed, err := e.eng.ChangeState(ctx, e.carol, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Closed.ID,
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.ClosedAt == nil {
		t.Error("closed_at not set")
	}
	if closed.Responsible != nil {
		t.Error("final state retained a responsible user")
	}
	if ev := e.lastEvent(t, issue.ID); ev.Type != types.EventClosed {
		t.Errorf("event = %s; want closed", ev.Type)
	}

	// Reopening clears closed_at and records a reopened event, plus an
	// assigned event for the responsible supplied with the move.
	reopened, err := e.eng.ChangeState(ctx, e.carol, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Bob.ID,
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ClosedAt != nil {
		t.Error("closed_at survived the reopen")
	}
	events, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	reopenEv, assignEv := events[len(events)-2], events[len(events)-1]
	if reopenEv.Type != types.EventReopened {
		t.Errorf("event = %s; want reopened", reopenEv.Type)
	}
	if assignEv.Type != types.EventAssigned || assignEv.Parameter != e.tr.Bob.ID {
		t.Errorf("event = %+v; want assigned with parameter %d", assignEv, e.tr.Bob.ID)
	}
}

func TestChangeStateRecordsChanges(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	e.moveToAssigned(t, issue)

	// Hours is populated for the first time with the move; the state event
	// must carry a null -> value change row for it
	_, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Resolved.ID,
		Fields:      map[int64]string{e.tr.Hours.ID: "6"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventStateChanged {
		t.Fatalf("event = %s; want state_changed", ev.Type)
	}
	changes, err := e.store.ListChanges(ctx, ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(changes) != 1 {
		t.Fatalf("got %d change rows; want 1 for Hours", len(changes))
	}
	ch := changes[0]
	if ch.FieldID == nil || *ch.FieldID != e.tr.Hours.ID {
		t.Errorf("change field = %v; want %d", ch.FieldID, e.tr.Hours.ID)
	}
	if ch.Old != nil {
		t.Errorf("old value = %v; want nil for a first write", ch.Old)
	}
	if ch.New == nil || *ch.New != 6 {
		t.Errorf("new value = %v; want 6", ch.New)
	}
}

func TestChangeStateResponsiblePolicies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	// The final state's policy is none: requesting an assignee is an error
	e.moveToAssigned(t, issue)
	if _, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID: issue.ID, TargetState: e.tr.Resolved.ID,
		Fields: map[int64]string{e.tr.Hours.ID: "1"},
	}); err != nil {
		t.Fatal(err)
	}
	_, err := e.eng.ChangeState(ctx, e.carol, ChangeStateRequest{
		IssueID:     issue.ID,
		TargetState: e.tr.Closed.ID,
		Responsible: &e.tr.Bob.ID,
	})
	if !hasViolation(err, "responsible") {
		t.Errorf("assignee into a none state: got %v", err)
	}

	// Requesting an invalid candidate on a move
	issue2 := e.create(t, e.alice)
	_, err = e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue2.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Mallory.ID,
	})
	if !hasViolation(err, "responsible") {
		t.Errorf("invalid candidate: got %v", err)
	}

	// The author is always a valid candidate
	moved, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID:     issue2.ID,
		TargetState: e.tr.Assigned.ID,
		Responsible: &e.tr.Alice.ID,
	})
	if err != nil {
		t.Fatalf("assigning the author: %v", err)
	}
	if moved.Responsible == nil || *moved.Responsible != e.tr.Alice.ID {
		t.Errorf("responsible = %v; want the author", moved.Responsible)
	}
}

func TestChangeStateSuspendedIssue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	if err := e.eng.Suspend(ctx, e.bob, issue.ID, nil); err != nil {
		t.Fatal(err)
	}
	_, err := e.eng.ChangeState(ctx, e.bob, ChangeStateRequest{
		IssueID: issue.ID, TargetState: e.tr.Assigned.ID, Responsible: &e.tr.Bob.ID,
	})
	if !isDenied(err, "issue is suspended") {
		t.Errorf("move on suspended issue: got %v", err)
	}
}
