// Package fixtures builds a fully populated workflow for tests: a project
// with groups and users, and a bug-tracking template whose states exercise
// every field type, responsible policy and grant kind.
package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/workflow"
)

// Tracker is the installed fixture. Users: Alice authors issues, Bob is in
// the developers group, Carol is in testers, Root is an administrator and
// Mallory belongs to no group at all.
type Tracker struct {
	Project    *types.Project
	Template   *types.Template
	Workflow   *types.Workflow
	Developers *types.Group
	Testers    *types.Group

	Alice   *types.User
	Bob     *types.User
	Carol   *types.User
	Root    *types.User
	Mallory *types.User

	// States by name
	New      *types.State
	Assigned *types.State
	Resolved *types.State
	Closed   *types.State

	// Fields of interest, by name within their state
	Description *types.Field // text, required in New
	Severity    *types.Field // list, required in New
	Component   *types.Field // string with default
	DueDate     *types.Field // date
	Estimate    *types.Field // duration
	Cost        *types.Field // decimal
	Reviewed    *types.Field // checkbox
	Hours       *types.Field // integer 0..1000, required in Resolved
	Related     *types.Field // issue-id
}

// Definition is the YAML workflow installed by Install. Exported so loader
// tests can parse it independently.
const Definition = `
template:
  name: Bug
  prefix: BUG
  frozen_time: 30
states:
  - name: New
    type: initial
    responsible: optional
    responsible_groups: [developers]
    fields:
      - name: Description
        type: text
        required: true
      - name: Severity
        type: list
        required: true
        options:
          - {key: 1, label: Low}
          - {key: 2, label: Medium}
          - {key: 3, label: High}
      - name: Component
        type: string
        default: core
      - name: Due date
        type: date
      - name: Cost
        type: decimal
        min: 0
        max: 10000
      - name: Related
        type: issue-id
  - name: Assigned
    type: intermediate
    responsible: required
    responsible_groups: [developers]
    fields:
      - name: Estimate
        type: duration
      - name: Reviewed
        type: checkbox
  - name: Resolved
    type: intermediate
    responsible: keep
    fields:
      - name: Hours
        type: integer
        required: true
        min: 0
        max: 1000
  - name: Closed
    type: final
    responsible: none
transitions:
  - {from: New, to: Assigned, groups: [developers]}
  - {from: Assigned, to: Resolved, roles: [responsible]}
  - {from: Resolved, to: Closed, groups: [testers]}
  - {from: Resolved, to: Assigned, groups: [testers]}
  - {from: Closed, to: Assigned, groups: [testers]}
permissions:
  view:
    roles: [anyone]
  create:
    roles: [anyone]
  edit:
    roles: [author, responsible]
    groups: [developers]
  comment:
    roles: [anyone]
  attach-file:
    roles: [author, responsible]
  delete-file:
    groups: [developers]
  suspend:
    groups: [developers]
  reassign:
    groups: [developers]
  link:
    roles: [author]
    groups: [developers]
  clone:
    roles: [anyone]
`

// Install builds the tracker fixture inside the given store
func Install(ctx context.Context, store storage.Storage) (*Tracker, error) {
	t := &Tracker{}

	def, err := workflow.Load([]byte(Definition))
	if err != nil {
		return nil, fmt.Errorf("fixture definition: %w", err)
	}

	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		t.Project = &types.Project{Name: "Apollo", CreatedAt: time.Now().UTC()}
		if err := tx.CreateProject(ctx, t.Project); err != nil {
			return err
		}

		t.Developers = &types.Group{ProjectID: t.Project.ID, Name: "developers"}
		t.Testers = &types.Group{ProjectID: t.Project.ID, Name: "testers"}
		for _, g := range []*types.Group{t.Developers, t.Testers} {
			if err := tx.CreateGroup(ctx, g); err != nil {
				return err
			}
		}

		t.Alice = &types.User{Name: "alice"}
		t.Bob = &types.User{Name: "bob"}
		t.Carol = &types.User{Name: "carol"}
		t.Root = &types.User{Name: "root", Admin: true}
		t.Mallory = &types.User{Name: "mallory"}
		for _, u := range []*types.User{t.Alice, t.Bob, t.Carol, t.Root, t.Mallory} {
			if err := tx.CreateUser(ctx, u); err != nil {
				return err
			}
		}
		if err := tx.AddUserToGroup(ctx, t.Bob.ID, t.Developers.ID); err != nil {
			return err
		}
		if err := tx.AddUserToGroup(ctx, t.Carol.ID, t.Testers.ID); err != nil {
			return err
		}

		tmpl, err := workflow.Install(ctx, tx, t.Project.ID, def)
		if err != nil {
			return err
		}
		t.Template = tmpl

		w, err := tx.GetWorkflow(ctx, tmpl.ID)
		if err != nil {
			return err
		}
		t.Workflow = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, s := range t.Workflow.States {
		switch s.Name {
		case "New":
			t.New = s
		case "Assigned":
			t.Assigned = s
		case "Resolved":
			t.Resolved = s
		case "Closed":
			t.Closed = s
		}
	}
	fieldsByName := make(map[string]*types.Field)
	for _, fields := range t.Workflow.Fields {
		for _, f := range fields {
			fieldsByName[f.Name] = f
		}
	}
	t.Description = fieldsByName["Description"]
	t.Severity = fieldsByName["Severity"]
	t.Component = fieldsByName["Component"]
	t.DueDate = fieldsByName["Due date"]
	t.Cost = fieldsByName["Cost"]
	t.Related = fieldsByName["Related"]
	t.Estimate = fieldsByName["Estimate"]
	t.Reviewed = fieldsByName["Reviewed"]
	t.Hours = fieldsByName["Hours"]

	if t.New == nil || t.Assigned == nil || t.Resolved == nil || t.Closed == nil {
		return nil, fmt.Errorf("fixture workflow missing states")
	}
	return t, nil
}

// Actor builds the acting identity of a fixture user
func (t *Tracker) Actor(ctx context.Context, store storage.Storage, user *types.User) (*types.Actor, error) {
	groups, err := store.GetUserGroups(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &types.Actor{UserID: user.ID, Admin: user.Admin, Groups: groups}, nil
}
