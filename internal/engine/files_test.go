package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestAttachFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	// Alice is the author; attach-file is granted to author and responsible
	attached, err := e.eng.AttachFile(ctx, e.alice, issue.ID, &types.File{
		Name:       "stacktrace.txt",
		Size:       2048,
		MimeType:   "text/plain",
		StorageKey: "ab12cd34",
	})
	if err != nil {
		t.Fatalf("AttachFile: %v", err)
	}
	if attached.ID == 0 {
		t.Error("file id not assigned")
	}

	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventFileAttached || ev.ID != attached.EventID {
		t.Errorf("event = %+v; want file_attached linked to the file", ev)
	}

	got, err := e.store.GetFile(ctx, attached.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "stacktrace.txt" || got.Size != 2048 || got.Removed {
		t.Errorf("stored file = %+v", got)
	}
}

func TestAttachFileValidation(t *testing.T) {
	e := newEnv(t)
	issue := e.create(t, e.alice)

	_, err := e.eng.AttachFile(context.Background(), e.alice, issue.ID, &types.File{Size: -1})
	if !hasViolation(err, "name") || !hasViolation(err, "storage_key") || !hasViolation(err, "size") {
		t.Errorf("got %v; want name, storage_key and size violations batched", err)
	}
}

func TestAttachFilePermissions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)
	file := &types.File{Name: "log.txt", StorageKey: "deadbeef"}

	// Bob is a developer but neither author nor responsible
	if _, err := e.eng.AttachFile(ctx, e.bob, issue.ID, file); !isDenied(err, "insufficient permissions") {
		t.Errorf("non-author attach: got %v", err)
	}

	// Once responsible, Bob may attach
	e.moveToAssigned(t, issue)
	if _, err := e.eng.AttachFile(ctx, e.bob, issue.ID, file); err != nil {
		t.Errorf("responsible attach: %v", err)
	}
}

func TestDeleteFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	issue := e.create(t, e.alice)

	attached, err := e.eng.AttachFile(ctx, e.alice, issue.ID, &types.File{
		Name:       "core.dump",
		Size:       1 << 20,
		StorageKey: "feedface",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Delete-file is granted to developers; the author alone may not
	if _, err := e.eng.DeleteFile(ctx, e.alice, attached.ID); !isDenied(err, "insufficient permissions") {
		t.Errorf("author delete: got %v", err)
	}

	removed, err := e.eng.DeleteFile(ctx, e.bob, attached.ID)
	if err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if !removed.Removed {
		t.Error("removed flag not set on the returned file")
	}
	if removed.StorageKey != "feedface" {
		t.Errorf("storage key = %q; want the original for blob cleanup", removed.StorageKey)
	}

	ev := e.lastEvent(t, issue.ID)
	if ev.Type != types.EventFileDeleted || ev.Parameter != attached.ID {
		t.Errorf("event = %+v; want file_deleted naming file %d", ev, attached.ID)
	}

	// The metadata survives as a tombstone
	got, err := e.store.GetFile(ctx, attached.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Removed {
		t.Error("file row not flagged removed")
	}

	// Deleting twice is a conflict
	_, err = e.eng.DeleteFile(ctx, e.bob, attached.ID)
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Errorf("double delete: got %v; want ConflictError", err)
	}

	if _, err := e.eng.DeleteFile(ctx, e.bob, 999); !isNotFound(err, "file") {
		t.Errorf("unknown file: got %v", err)
	}
}

func TestDeleteFileHiddenIssue(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.installSecret(t)

	secret, err := e.eng.Create(ctx, e.bob, CreateRequest{TemplateID: tmpl.ID, Subject: "Hidden work"})
	if err != nil {
		t.Fatal(err)
	}
	attached, err := e.eng.AttachFile(ctx, e.root, secret.ID, &types.File{Name: "notes.md", StorageKey: "cafe"})
	if err != nil {
		t.Fatal(err)
	}

	// Mallory cannot view the issue, so its files read as missing
	if _, err := e.eng.DeleteFile(ctx, e.mallory, attached.ID); !isNotFound(err, "file") {
		t.Errorf("hidden file delete: got %v", err)
	}
}
