package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/engine"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/utils"
)

var moveCmd = &cobra.Command{
	Use:   "move [issue] [state]",
	Short: "Move an issue to another state",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])

		issue, _, err := eng.Get(ctx, actor, issueID)
		if err != nil {
			reportError(err)
		}
		w, err := store.GetWorkflow(ctx, issue.TemplateID)
		if err != nil {
			fatalf("%v", err)
		}
		target := stateByName(w, args[1])
		if target == nil {
			fatalf("unknown state %q in template %s", args[1], w.Template.Name)
		}

		fieldPairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFieldArgs(w, target.ID, fieldPairs)
		if err != nil {
			fatalf("%v", err)
		}
		req := engine.ChangeStateRequest{
			IssueID:     issueID,
			TargetState: target.ID,
			Fields:      fields,
		}
		if assignee, _ := cmd.Flags().GetString("assign"); assignee != "" {
			id := resolveUserArg(ctx, assignee)
			req.Responsible = &id
		}

		updated, err := eng.ChangeState(ctx, actor, req)
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(updated)
			return
		}
		debug.PrintNormal("Moved %s to %s\n", utils.FormatRef(w.Template.Prefix, issueID), target.Name)
	},
}

func stateByName(w *types.Workflow, name string) *types.State {
	for _, s := range w.States {
		if s.Name == name {
			return s
		}
	}
	return nil
}

var assignCmd = &cobra.Command{
	Use:   "assign [issue] [user]",
	Short: "Reassign an issue; pass '-' to clear the responsible user",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])

		var responsible *int64
		if args[1] != "-" {
			id := resolveUserArg(ctx, args[1])
			responsible = &id
		}
		if err := eng.Reassign(ctx, actor, issueID, responsible); err != nil {
			reportError(err)
		}
		if args[1] == "-" {
			debug.PrintNormal("Cleared responsible on issue %d\n", issueID)
		} else {
			debug.PrintNormal("Assigned issue %d to %s\n", issueID, args[1])
		}
	},
}

var suspendCmd = &cobra.Command{
	Use:   "suspend [issue]",
	Short: "Suspend an issue, optionally until a given time",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])

		var resumesAt *time.Time
		if until, _ := cmd.Flags().GetString("until"); until != "" {
			t, err := parseTimeArg(until, actor.Location())
			if err != nil {
				fatalf("%v", err)
			}
			resumesAt = &t
		}
		if err := eng.Suspend(ctx, actor, issueID, resumesAt); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Suspended issue %d\n", issueID)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [issue]",
	Short: "Resume a suspended issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])
		if err := eng.Resume(ctx, actor, issueID); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Resumed issue %d\n", issueID)
	},
}

// parseTimeArg accepts RFC 3339 timestamps and bare dates in the
// actor's timezone.
func parseTimeArg(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", s, loc)
}

func init() {
	moveCmd.Flags().StringArray("field", nil, "Field value as Name=value (repeatable)")
	moveCmd.Flags().String("assign", "", "Responsible user name in the target state")
	suspendCmd.Flags().String("until", "", "Resume time (RFC 3339 or YYYY-MM-DD)")
	rootCmd.AddCommand(moveCmd, assignCmd, suspendCmd, resumeCmd)
}
