package engine

import (
	"context"
	"errors"

	"github.com/rivet-tracker/rivet/internal/perm"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
)

// AttachFile records a file attachment. The content itself lives behind
// storageKey in whatever blob store the caller uses; the engine tracks
// metadata and the audit trail only.
func (e *Engine) AttachFile(ctx context.Context, actor *types.Actor, issueID int64, file *types.File) (*types.File, error) {
	var created *types.File
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		issue, w, err := loadIssue(ctx, tx, actor, issueID)
		if err != nil {
			return err
		}
		pre := perm.Preconditions{ContentEdit: true}
		if err := gate(actor, w, issue, e.now(), pre, types.PermAttachFile); err != nil {
			return err
		}
		var errs violations
		if file.Name == "" {
			errs.add("name", "file name is required")
		}
		if file.StorageKey == "" {
			errs.add("storage_key", "storage key is required")
		}
		if file.Size < 0 {
			errs.add("size", "size cannot be negative")
		}
		if err := errs.err(); err != nil {
			return err
		}

		ev, err := e.appendEvent(ctx, tx, issue.ID, types.EventFileAttached, actor.UserID, 0)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		attached := &types.File{
			EventID:    ev.ID,
			Name:       file.Name,
			Size:       file.Size,
			MimeType:   file.MimeType,
			StorageKey: file.StorageKey,
		}
		if err := tx.AddFile(ctx, attached); err != nil {
			return err
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		created = attached
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return created, nil
}

// DeleteFile soft-removes a file attachment: the metadata and the original
// file_attached event survive, the record is flagged removed, and a
// file_deleted event names the file. Callers delete the blob behind the
// storage key after the transaction commits.
func (e *Engine) DeleteFile(ctx context.Context, actor *types.Actor, fileID int64) (*types.File, error) {
	var removed *types.File
	var logged []*types.Event
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		file, err := tx.GetFile(ctx, fileID)
		if errors.Is(err, storage.ErrNotFound) {
			return &NotFoundError{Kind: "file", ID: fileID}
		}
		if err != nil {
			return err
		}
		ev, err := tx.GetEvent(ctx, file.EventID)
		if err != nil {
			return err
		}
		issue, w, err := loadIssue(ctx, tx, actor, ev.IssueID)
		if err != nil {
			// Hiding the issue hides its files too
			return &NotFoundError{Kind: "file", ID: fileID}
		}
		pre := perm.Preconditions{ContentEdit: true}
		if err := gate(actor, w, issue, e.now(), pre, types.PermDeleteFile); err != nil {
			return err
		}
		if file.Removed {
			return &ConflictError{Message: "file is already removed"}
		}

		if err := tx.MarkFileRemoved(ctx, file.ID); err != nil {
			return err
		}
		if err := e.touch(ctx, tx, issue); err != nil {
			return err
		}
		ev, err = e.appendEvent(ctx, tx, issue.ID, types.EventFileDeleted, actor.UserID, file.ID)
		if err != nil {
			return err
		}
		logged = append(logged, ev)
		file.Removed = true
		removed = file
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.journalAppend(logged)
	return removed, nil
}
