package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/types"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add [issue] [text]",
	Short: "Comment on an issue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		private, _ := cmd.Flags().GetBool("private")

		comment, err := eng.AddComment(ctx, actor, resolveIssueArg(args[0]), args[1], private)
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(comment)
			return
		}
		debug.PrintNormal("Added comment %d\n", comment.ID)
	},
}

var commentRmCmd = &cobra.Command{
	Use:   "rm [comment-id]",
	Short: "Remove a comment you authored",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf("invalid comment id %q", args[0])
		}
		if err := eng.RemoveComment(ctx, actor, id); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Removed comment %d\n", id)
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach [issue] [file]",
	Short: "Attach a file to an issue",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])

		key, size, err := storeBlob(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		mimeType, _ := cmd.Flags().GetString("mime")
		file := &types.File{
			Name:       filepath.Base(args[1]),
			Size:       size,
			MimeType:   mimeType,
			StorageKey: key,
		}
		attached, err := eng.AttachFile(ctx, actor, issueID, file)
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(attached)
			return
		}
		debug.PrintNormal("Attached %s as file %d\n", attached.Name, attached.ID)
	},
}

var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage attached files",
}

var fileRmCmd = &cobra.Command{
	Use:   "rm [file-id]",
	Short: "Remove an attached file, keeping its audit record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf("invalid file id %q", args[0])
		}
		removed, err := eng.DeleteFile(ctx, actor, id)
		if err != nil {
			reportError(err)
		}
		deleteBlob(removed.StorageKey)
		debug.PrintNormal("Removed file %s\n", removed.Name)
	},
}

// storeBlob copies a file into the data directory's blob store, keyed by
// content hash so identical uploads share one copy.
func storeBlob(path string) (key string, size int64, err error) {
	src, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer src.Close()

	h := sha256.New()
	size, err = io.Copy(h, src)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	key = hex.EncodeToString(h.Sum(nil))

	dir := blobDir()
	if dir == "" {
		return key, size, nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", 0, fmt.Errorf("failed to create blob directory: %w", err)
	}
	dst := filepath.Join(dir, key)
	if _, err := os.Stat(dst); err == nil {
		return key, size, nil
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", 0, err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create blob: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		os.Remove(dst)
		return "", 0, fmt.Errorf("failed to write blob: %w", err)
	}
	return key, size, nil
}

func deleteBlob(key string) {
	dir := blobDir()
	if dir == "" || key == "" {
		return
	}
	_ = os.Remove(filepath.Join(dir, key))
}

func blobDir() string {
	if rivetDir == "" {
		return ""
	}
	return filepath.Join(rivetDir, "files")
}

func init() {
	commentAddCmd.Flags().Bool("private", false, "Hide the comment from non-members")
	attachCmd.Flags().String("mime", "application/octet-stream", "MIME type of the file")
	commentCmd.AddCommand(commentAddCmd, commentRmCmd)
	fileCmd.AddCommand(fileRmCmd)
	rootCmd.AddCommand(commentCmd, attachCmd, fileCmd)
}
