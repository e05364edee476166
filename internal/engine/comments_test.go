package engine

import (
	"context"
	"testing"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestAddComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	// Commenting is open to anyone in the fixture
	comment, err := e.eng.AddComment(ctx, e.mallory, issue.ID, "me too", false)
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if comment.ID == 0 || comment.EventID == 0 {
		t.Errorf("comment = %+v; want assigned ids", comment)
	}
	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventCommented || ev.ID != comment.EventID {
		t.Errorf("event = %+v; want commented linked to the comment", ev)
	}

	private, err := e.eng.AddComment(ctx, e.bob, issue.ID, "internal note", true)
	if err != nil {
		t.Fatal(err)
	}
	got, err := e.store.GetComment(ctx, private.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Private {
		t.Error("private flag not stored")
	}

	if _, err := e.eng.AddComment(ctx, e.alice, issue.ID, "", false); !hasViolation(err, "text") {
		t.Errorf("empty comment: got %v", err)
	}
}

func TestCommentMarksIssueChanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	// The author read the issue at creation; a comment flips it to unread
	if _, err := e.eng.AddComment(ctx, e.bob, issue.ID, "found the cause", false); err != nil {
		t.Fatal(err)
	}
	read, err := e.eng.IsRead(ctx, e.alice, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	if read {
		t.Error("issue still reads as read after a comment")
	}
}

func TestRemoveComment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	comment, err := e.eng.AddComment(ctx, e.mallory, issue.ID, "spam", false)
	if err != nil {
		t.Fatal(err)
	}

	// Only the comment's author or an admin may remove it
	if err := e.eng.RemoveComment(ctx, e.bob, comment.ID); !isDenied(err, "insufficient permissions") {
		t.Errorf("non-author removal: got %v", err)
	}
	if err := e.eng.RemoveComment(ctx, e.mallory, comment.ID); err != nil {
		t.Fatalf("author removal: %v", err)
	}
	if err := e.eng.RemoveComment(ctx, e.mallory, comment.ID); !isNotFound(err, "comment") {
		t.Errorf("repeat removal: got %v", err)
	}

	// The commented event survives the removal
	events, err := e.store.ListEvents(ctx, issue.ID)
	if err != nil {
		t.Fatal(err)
	}
	var commented int
	for _, ev := range events {
		if ev.Type == types.EventCommented {
			commented++
		}
	}
	if commented != 1 {
		t.Errorf("commented events = %d; want the event to outlive the comment", commented)
	}

	// Admin removal
	c2, err := e.eng.AddComment(ctx, e.mallory, issue.ID, "more spam", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.eng.RemoveComment(ctx, e.root, c2.ID); err != nil {
		t.Errorf("admin removal: %v", err)
	}
}
