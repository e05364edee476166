package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/utils"
)

var dependCmd = &cobra.Command{
	Use:   "depend",
	Short: "Manage dependencies between issues",
}

var dependAddCmd = &cobra.Command{
	Use:   "add [issue] [issue...]",
	Short: "Link an issue to one or more others",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])
		others, err := utils.ParseRefs(args[1:])
		if err != nil {
			fatalf("%v", err)
		}
		if err := eng.AddDependencies(ctx, actor, issueID, others); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Linked issue %d to %s\n", issueID, strings.Join(args[1:], ", "))
	},
}

var dependRmCmd = &cobra.Command{
	Use:   "rm [issue] [issue...]",
	Short: "Remove links between issues",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])
		others, err := utils.ParseRefs(args[1:])
		if err != nil {
			fatalf("%v", err)
		}
		if err := eng.RemoveDependencies(ctx, actor, issueID, others); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Unlinked issue %d from %s\n", issueID, strings.Join(args[1:], ", "))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [issue]",
	Short: "Start watching an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])
		if err := eng.Watch(ctx, actor, issueID); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Watching issue %d\n", issueID)
	},
}

var unwatchCmd = &cobra.Command{
	Use:   "unwatch [issue]",
	Short: "Stop watching an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])
		if err := eng.Unwatch(ctx, actor, issueID); err != nil {
			reportError(err)
		}
		debug.PrintNormal("No longer watching issue %d\n", issueID)
	},
}

var watchersCmd = &cobra.Command{
	Use:   "watchers [issue]",
	Short: "List the users watching an issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		ids, err := eng.Watchers(ctx, actor, resolveIssueArg(args[0]))
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(ids)
			return
		}
		for _, id := range ids {
			fmt.Println(userName(ctx, id))
		}
	},
}

var readCmd = &cobra.Command{
	Use:   "read [issue]",
	Short: "Mark an issue as read",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		if err := eng.MarkRead(ctx, actor, resolveIssueArg(args[0])); err != nil {
			reportError(err)
		}
	},
}

var unreadCmd = &cobra.Command{
	Use:   "unread [issue]",
	Short: "Mark an issue as unread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		if err := eng.MarkUnread(ctx, actor, resolveIssueArg(args[0])); err != nil {
			reportError(err)
		}
	},
}

func init() {
	dependCmd.AddCommand(dependAddCmd, dependRmCmd)
	rootCmd.AddCommand(dependCmd, watchCmd, unwatchCmd, watchersCmd, readCmd, unreadCmd)
}
