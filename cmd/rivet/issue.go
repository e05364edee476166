package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/engine"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/utils"
)

// parseFieldArgs maps repeated --field "Name=value" flags onto the field
// ids of one state.
func parseFieldArgs(w *types.Workflow, stateID int64, pairs []string) (map[int64]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	byName := make(map[string]*types.Field)
	for _, f := range w.StateFields(stateID) {
		byName[f.Name] = f
	}
	values := make(map[int64]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid field %q (expected Name=value)", pair)
		}
		field := byName[name]
		if field == nil {
			return nil, fmt.Errorf("unknown field %q in state %q", name, w.States[stateID].Name)
		}
		values[field.ID] = value
	}
	return values, nil
}

// resolveIssueArg turns a user-supplied reference into an issue id
func resolveIssueArg(arg string) int64 {
	_, id, err := utils.ParseRef(arg)
	if err != nil {
		fatalf("%v", err)
	}
	return id
}

// resolveUserArg looks up a user by name and returns its id
func resolveUserArg(ctx context.Context, name string) int64 {
	user, err := store.GetUserByName(ctx, name)
	if err != nil {
		fatalf("unknown user %q", name)
	}
	return user.ID
}

var createCmd = &cobra.Command{
	Use:   "create [subject]",
	Short: "Create a new issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)

		projectName, _ := cmd.Flags().GetString("project")
		templateName, _ := cmd.Flags().GetString("template")
		fieldPairs, _ := cmd.Flags().GetStringArray("field")
		assignee, _ := cmd.Flags().GetString("assign")

		tmpl, err := findTemplateTx(ctx, store, projectName, templateName)
		if err != nil {
			fatalf("%v", err)
		}
		w, err := store.GetWorkflow(ctx, tmpl.ID)
		if err != nil {
			fatalf("%v", err)
		}
		fields, err := parseFieldArgs(w, tmpl.InitialState, fieldPairs)
		if err != nil {
			fatalf("%v", err)
		}

		req := engine.CreateRequest{
			TemplateID: tmpl.ID,
			Subject:    args[0],
			Fields:     fields,
		}
		if assignee != "" {
			id := resolveUserArg(ctx, assignee)
			req.Responsible = &id
		}

		issue, err := eng.Create(ctx, actor, req)
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(issue)
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s created %s: %s\n", green("✓"), utils.FormatRef(tmpl.Prefix, issue.ID), issue.Subject)
	},
}

var cloneCmd = &cobra.Command{
	Use:   "clone [issue]",
	Short: "Clone an issue into a fresh one in the initial state",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)
		clone, err := eng.Clone(ctx, actor, resolveIssueArg(args[0]))
		if err != nil {
			reportError(err)
		}
		if jsonOutput {
			outputJSON(clone)
			return
		}
		fmt.Printf("Cloned into issue %d: %s\n", clone.ID, clone.Subject)
	},
}

var showCmd = &cobra.Command{
	Use:   "show [issue]",
	Short: "Show an issue with its field values",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		actor := currentActor(ctx)

		issue, values, err := eng.Get(ctx, actor, resolveIssueArg(args[0]))
		if err != nil {
			reportError(err)
		}
		w, err := store.GetWorkflow(ctx, issue.TemplateID)
		if err != nil {
			fatalf("%v", err)
		}
		// Showing an issue marks it read
		_ = eng.MarkRead(ctx, actor, issue.ID)

		if jsonOutput {
			outputJSON(map[string]any{"issue": issue, "values": values})
			return
		}

		bold := color.New(color.Bold).SprintFunc()
		state := w.States[issue.StateID]
		fmt.Printf("%s %s\n", bold(utils.FormatRef(w.Template.Prefix, issue.ID)), issue.Subject)
		fmt.Printf("  State:       %s\n", state.Name)
		fmt.Printf("  Author:      %s\n", userName(ctx, issue.AuthorID))
		if issue.Responsible != nil {
			fmt.Printf("  Responsible: %s\n", userName(ctx, *issue.Responsible))
		}
		fmt.Printf("  Created:     %s\n", issue.CreatedAt.Local().Format(time.RFC822))
		if issue.ClosedAt != nil {
			fmt.Printf("  Closed:      %s\n", issue.ClosedAt.Local().Format(time.RFC822))
		}
		if issue.SuspendedNow(time.Now()) {
			if issue.ResumesAt != nil {
				fmt.Printf("  Suspended until %s\n", issue.ResumesAt.Local().Format(time.RFC822))
			} else {
				fmt.Printf("  Suspended\n")
			}
		}
		if issue.OriginID != nil {
			fmt.Printf("  Cloned from: %s\n", utils.FormatRef(w.Template.Prefix, *issue.OriginID))
		}

		// Field values grouped by owning state, in position order
		for _, s := range orderedStates(w, issue.StateID) {
			printed := false
			for _, f := range w.StateFields(s.ID) {
				value, ok := values[f.ID]
				if !ok {
					continue
				}
				text, err := engine.DisplayValue(ctx, store, f, value, actor.Location())
				if err != nil {
					text = "?"
				}
				if !printed {
					fmt.Printf("  [%s]\n", s.Name)
					printed = true
				}
				fmt.Printf("    %-12s %s\n", f.Name+":", text)
			}
		}

		deps, err := eng.Dependencies(ctx, actor, issue.ID)
		if err == nil && len(deps) > 0 {
			refs := make([]string, len(deps))
			for i, id := range deps {
				refs[i] = utils.FormatRef(w.Template.Prefix, id)
			}
			fmt.Printf("  Depends on:  %s\n", strings.Join(refs, ", "))
		}
	},
}

// orderedStates lists the workflow's states with the current one first
func orderedStates(w *types.Workflow, currentID int64) []*types.State {
	states := make([]*types.State, 0, len(w.States))
	if s := w.States[currentID]; s != nil {
		states = append(states, s)
	}
	for _, s := range w.States {
		if s.ID != currentID {
			states = append(states, s)
		}
	}
	return states
}

func userName(ctx context.Context, id int64) string {
	user, err := store.GetUser(ctx, id)
	if err != nil {
		return fmt.Sprintf("user %d", id)
	}
	return user.Name
}

var editCmd = &cobra.Command{
	Use:   "edit [issue]",
	Short: "Edit an issue's subject or field values",
	Args:  cobra.ExactArgs(1),
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

		fieldPairs, _ := cmd.Flags().GetStringArray("field")
		fields, err := parseFieldArgs(w, issue.StateID, fieldPairs)
		if err != nil {
			fatalf("%v", err)
		}
		req := engine.EditRequest{IssueID: issueID, Fields: fields}
		if cmd.Flags().Changed("subject") {
			subject, _ := cmd.Flags().GetString("subject")
			req.Subject = &subject
		}
		if req.Subject == nil && len(fields) == 0 {
			fatalf("nothing to edit: pass --subject or --field")
		}

		if _, err := eng.Edit(ctx, actor, req); err != nil {
			reportError(err)
		}
		debug.PrintNormal("Updated issue %s\n", utils.FormatRef(w.Template.Prefix, issueID))
	},
}

func init() {
	createCmd.Flags().String("project", "", "Project name")
	createCmd.Flags().String("template", "", "Template name or prefix")
	createCmd.Flags().StringArray("field", nil, "Field value as Name=value (repeatable)")
	createCmd.Flags().String("assign", "", "Responsible user name")
	_ = createCmd.MarkFlagRequired("project")
	_ = createCmd.MarkFlagRequired("template")

	editCmd.Flags().String("subject", "", "New subject")
	editCmd.Flags().StringArray("field", nil, "Field value as Name=value (repeatable)")

	rootCmd.AddCommand(createCmd, cloneCmd, showCmd, editCmd)
}
