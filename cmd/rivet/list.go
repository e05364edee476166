package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/utils"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List a template's issues",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)

		projectName, _ := cmd.Flags().GetString("project")
		templateName, _ := cmd.Flags().GetString("template")
		stateName, _ := cmd.Flags().GetString("state")
		unreadOnly, _ := cmd.Flags().GetBool("unread")

		tmpl, err := findTemplateTx(ctx, store, projectName, templateName)
		if err != nil {
			fatalf("%v", err)
		}
		w, err := store.GetWorkflow(ctx, tmpl.ID)
		if err != nil {
			fatalf("%v", err)
		}
		issues, err := eng.List(ctx, actor, tmpl.ID)
		if err != nil {
			reportError(err)
		}

		var stateID int64
		if stateName != "" {
			s := stateByName(w, stateName)
			if s == nil {
				fatalf("unknown state %q in template %s", stateName, tmpl.Name)
			}
			stateID = s.ID
		}

		filtered := issues[:0]
		for _, issue := range issues {
			if stateID != 0 && issue.StateID != stateID {
				continue
			}
			if unreadOnly {
				read, err := eng.IsRead(ctx, actor, issue.ID)
				if err != nil || read {
					continue
				}
			}
			filtered = append(filtered, issue)
		}

		if jsonOutput {
			outputJSON(filtered)
			return
		}

		now := time.Now()
		bold := color.New(color.Bold).SprintFunc()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, issue := range filtered {
			state := w.States[issue.StateID]
			flags := ""
			if issue.SuspendedNow(now) {
				flags = " [suspended]"
			}
			responsible := "-"
			if issue.Responsible != nil {
				responsible = userName(ctx, *issue.Responsible)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s%s\n",
				bold(utils.FormatRef(tmpl.Prefix, issue.ID)), state.Name, responsible, issue.Subject, flags)
		}
		tw.Flush()
	},
}

func init() {
	listCmd.Flags().String("project", "", "Project name")
	listCmd.Flags().String("template", "", "Template name or prefix")
	listCmd.Flags().String("state", "", "Only issues in this state")
	listCmd.Flags().Bool("unread", false, "Only issues with unseen changes")
	_ = listCmd.MarkFlagRequired("project")
	_ = listCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(listCmd)
}
