package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/configfile"
	"github.com/rivet-tracker/rivet/internal/journal"
	"github.com/rivet-tracker/rivet/internal/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events [issue]",
	Short: "Show an issue's event history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		issueID := resolveIssueArg(args[0])

		events, err := eng.History(ctx, actor, issueID)
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(events)
			return
		}
		for _, e := range events {
			fmt.Println(formatEvent(ctx, e))
		}
	},
}

func formatEvent(ctx context.Context, e *types.Event) string {
	when := e.CreatedAt.Local().Format(time.RFC822)
	who := userName(ctx, e.ActorID)
	switch e.Type {
	case types.EventCreated:
		return fmt.Sprintf("%s  %s created the issue", when, who)
	case types.EventStateChanged, types.EventClosed, types.EventReopened:
		return fmt.Sprintf("%s  %s moved the issue (%s)", when, who, e.Type)
	case types.EventAssigned:
		if e.Parameter == 0 {
			return fmt.Sprintf("%s  %s cleared the responsible user", when, who)
		}
		return fmt.Sprintf("%s  %s assigned the issue to %s", when, who, userName(ctx, e.Parameter))
	case types.EventSuspended:
		if e.Parameter > 0 {
			return fmt.Sprintf("%s  %s suspended the issue until %s", when, who,
				time.Unix(e.Parameter, 0).Local().Format(time.RFC822))
		}
		return fmt.Sprintf("%s  %s suspended the issue", when, who)
	default:
		return fmt.Sprintf("%s  %s: %s", when, who, e.Type)
	}
}

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Tail the event journal, printing entries as they are committed",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if rivetDir == "" {
			fatalf("no %s directory found; run 'rivet init' first", configfile.DirName)
		}
		cfg, err := configfile.Load(rivetDir)
		if err != nil {
			fatalf("%v", err)
		}
		if cfg == nil {
			cfg = configfile.DefaultConfig()
		}
		path := cfg.JournalPath(rivetDir)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		err = journal.Follow(ctx, path, func(entry journal.Entry) {
			if jsonOutput {
				outputJSON(entry)
				return
			}
			fmt.Printf("%s  issue %d  %s  by user %d\n",
				entry.CreatedAt.Local().Format(time.RFC822), entry.IssueID, entry.Type, entry.ActorID)
		})
		if err != nil && ctx.Err() == nil {
			fatalf("%v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd, followCmd)
}
