package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/rivet-tracker/rivet/internal/debug"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/workflow"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		description, _ := cmd.Flags().GetString("description")
		project := &types.Project{
			Name:        args[0],
			Description: description,
			CreatedAt:   time.Now().UTC(),
		}
		err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.CreateProject(ctx, project)
		})
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(project)
			return
		}
		fmt.Printf("Created project %s (id %d)\n", project.Name, project.ID)
	},
}

var projectSuspendCmd = &cobra.Command{
	Use:   "suspend [name]",
	Short: "Suspend a project, blocking all operations in it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setProjectSuspended(args[0], true)
	},
}

var projectResumeCmd = &cobra.Command{
	Use:   "resume [name]",
	Short: "Resume a suspended project",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setProjectSuspended(args[0], false)
	},
}

func setProjectSuspended(name string, suspended bool) {
	ctx := context.Background()
	actor := currentActor(ctx)
	if !actor.Admin {
		fatalf("only administrators may suspend or resume projects")
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		project, err := tx.GetProjectByName(ctx, name)
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("unknown project %q", name)
		}
		if err != nil {
			return err
		}
		project.Suspended = suspended
		return tx.UpdateProject(ctx, project)
	})
	if err != nil {
		fatalf("%v", err)
	}
	state := "resumed"
	if suspended {
		state = "suspended"
	}
	debug.PrintNormal("Project %s %s\n", name, state)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Create a user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		admin, _ := cmd.Flags().GetBool("admin")
		timezone, _ := cmd.Flags().GetString("timezone")
		if timezone != "" {
			if _, err := time.LoadLocation(timezone); err != nil {
				fatalf("unknown timezone %q", timezone)
			}
		}
		user := &types.User{Name: args[0], Admin: admin, Timezone: timezone}
		err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			return tx.CreateUser(ctx, user)
		})
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(user)
			return
		}
		fmt.Printf("Created user %s (id %d)\n", user.Name, user.ID)
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupAddCmd = &cobra.Command{
	Use:   "add [project] [name]",
	Short: "Create a group in a project",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		var group *types.Group
		err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			project, err := tx.GetProjectByName(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("unknown project %q", args[0])
			}
			if err != nil {
				return err
			}
			group = &types.Group{ProjectID: project.ID, Name: args[1]}
			return tx.CreateGroup(ctx, group)
		})
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(group)
			return
		}
		fmt.Printf("Created group %s in %s (id %d)\n", group.Name, args[0], group.ID)
	},
}

var groupJoinCmd = &cobra.Command{
	Use:   "join [project] [group] [user]",
	Short: "Add a user to a group",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			project, err := tx.GetProjectByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("unknown project %q", args[0])
			}
			group, err := tx.GetGroupByName(ctx, project.ID, args[1])
			if err != nil {
				return fmt.Errorf("unknown group %q", args[1])
			}
			user, err := tx.GetUserByName(ctx, args[2])
			if err != nil {
				return fmt.Errorf("unknown user %q", args[2])
			}
			return tx.AddUserToGroup(ctx, user.ID, group.ID)
		})
		if err != nil {
			fatalf("%v", err)
		}
		debug.PrintNormal("Added %s to %s/%s\n", args[2], args[0], args[1])
	},
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage workflow templates",
}

var workflowInstallCmd = &cobra.Command{
	Use:   "install [project] [file]",
	Short: "Install a workflow definition as a new template",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		def, err := workflow.LoadFile(args[1])
		if err != nil {
			fatalf("%v", err)
		}
		var tmpl *types.Template
		err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
			project, err := tx.GetProjectByName(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("unknown project %q", args[0])
			}
			if err != nil {
				return err
			}
			tmpl, err = workflow.Install(ctx, tx, project.ID, def)
			return err
		})
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(tmpl)
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s installed template %s (prefix %s) in %s\n", green("✓"), tmpl.Name, tmpl.Prefix, args[0])
	},
}

var workflowLockCmd = &cobra.Command{
	Use:   "lock [project] [template]",
	Short: "Lock a template, blocking new issues and mutations",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setTemplateLocked(args[0], args[1], true)
	},
}

var workflowUnlockCmd = &cobra.Command{
	Use:   "unlock [project] [template]",
	Short: "Unlock a template",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setTemplateLocked(args[0], args[1], false)
	},
}

func setTemplateLocked(projectName, templateName string, locked bool) {
	ctx := context.Background()
	actor := currentActor(ctx)
	if !actor.Admin {
		fatalf("only administrators may lock or unlock templates")
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		tmpl, err := findTemplateTx(ctx, tx, projectName, templateName)
		if err != nil {
			return err
		}
		tmpl.Locked = locked
		return tx.UpdateTemplate(ctx, tmpl)
	})
	if err != nil {
		fatalf("%v", err)
	}
	state := "unlocked"
	if locked {
		state = "locked"
	}
	debug.PrintNormal("Template %s %s\n", templateName, state)
}

// findTemplateTx locates a template by name or prefix within a project
func findTemplateTx(ctx context.Context, q storage.Queries, projectName, templateName string) (*types.Template, error) {
	project, err := q.GetProjectByName(ctx, projectName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("unknown project %q", projectName)
	}
	if err != nil {
		return nil, err
	}
	templates, err := q.ListTemplates(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range templates {
		if t.Name == templateName || t.Prefix == templateName {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown template %q in project %q", templateName, projectName)
}

func init() {
	projectCmd.AddCommand(projectAddCmd, projectSuspendCmd, projectResumeCmd)
	projectAddCmd.Flags().String("description", "", "Project description")
	userCmd.AddCommand(userAddCmd)
	userAddCmd.Flags().Bool("admin", false, "Grant administrator rights")
	userAddCmd.Flags().String("timezone", "", "IANA timezone for date fields (default UTC)")
	groupCmd.AddCommand(groupAddCmd, groupJoinCmd)
	workflowCmd.AddCommand(workflowInstallCmd, workflowLockCmd, workflowUnlockCmd)
	rootCmd.AddCommand(projectCmd, userCmd, groupCmd, workflowCmd)
}
