// Package storage provides the repository boundary for the rivet engine.
//
// The concrete implementation lives in the sqlite sub-package. The engine
// depends only on the interfaces here so that storage technology stays
// irrelevant to workflow semantics.
package storage

import (
	"context"
	"errors"

	"github.com/rivet-tracker/rivet/internal/types"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on uniqueness violations (duplicate project name,
// duplicate template name or prefix within a project).
var ErrConflict = errors.New("conflict")

// ErrNotInitialized is returned when the database has no workflow installed.
var ErrNotInitialized = errors.New("database not initialized")

// Storage is the interface satisfied by *sqlite.Store. Consumers depend on
// this interface rather than the concrete type so that alternative
// implementations can be substituted.
type Storage interface {
	Queries

	// RunInTransaction executes fn atomically. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged; on nil
	// the transaction commits. Every engine command runs inside exactly one
	// such transaction.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	Close() error
}

// Transaction is the subset of storage available inside RunInTransaction.
// All operations share one database transaction; changes become visible to
// other connections only at commit.
type Transaction interface {
	Queries
}

// Queries enumerates the primitive operations the engine and CLI build on.
// Methods that look up a single entity return ErrNotFound when it does not
// exist; creation methods that hit a uniqueness rule return ErrConflict.
type Queries interface {
	// Projects, users, groups
	CreateProject(ctx context.Context, project *types.Project) error
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetProjectByName(ctx context.Context, name string) (*types.Project, error)
	UpdateProject(ctx context.Context, project *types.Project) error
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, id int64) (*types.User, error)
	GetUserByName(ctx context.Context, name string) (*types.User, error)
	CreateGroup(ctx context.Context, group *types.Group) error
	GetGroupByName(ctx context.Context, projectID int64, name string) (*types.Group, error)
	AddUserToGroup(ctx context.Context, userID, groupID int64) error
	GetUserGroups(ctx context.Context, userID int64) ([]int64, error)

	// Workflow definition
	CreateTemplate(ctx context.Context, template *types.Template) error
	UpdateTemplate(ctx context.Context, template *types.Template) error
	GetTemplate(ctx context.Context, id int64) (*types.Template, error)
	CreateState(ctx context.Context, state *types.State) error
	CreateField(ctx context.Context, field *types.Field) error
	CreateListItem(ctx context.Context, item *types.ListItem) error
	CreateTransition(ctx context.Context, transition *types.Transition) error
	SetGrant(ctx context.Context, grant *types.Grant) error
	GetWorkflow(ctx context.Context, templateID int64) (*types.Workflow, error)
	ListTemplates(ctx context.Context, projectID int64) ([]*types.Template, error)

	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id int64) (*types.Issue, error)
	UpdateIssue(ctx context.Context, issue *types.Issue) error
	ListIssues(ctx context.Context, templateID int64) ([]*types.Issue, error)

	// Field values
	GetFieldValues(ctx context.Context, issueID int64) (map[int64]int64, error)
	SetFieldValue(ctx context.Context, value *types.FieldValue) error

	// Typed value store: get-or-create rows, never updated or deleted
	ResolveString(ctx context.Context, value string) (int64, error)
	ResolveText(ctx context.Context, value string) (int64, error)
	ResolveDecimal(ctx context.Context, value string) (int64, error)
	GetStringValue(ctx context.Context, id int64) (string, error)
	GetTextValue(ctx context.Context, id int64) (string, error)
	GetDecimalValue(ctx context.Context, id int64) (string, error)
	LookupListItem(ctx context.Context, fieldID, key int64) (*types.ListItem, error)
	GetListItem(ctx context.Context, id int64) (*types.ListItem, error)

	// Event/change log (append-only)
	AppendEvent(ctx context.Context, event *types.Event) error
	AppendChange(ctx context.Context, change *types.Change) error
	ListEvents(ctx context.Context, issueID int64) ([]*types.Event, error)
	ListChanges(ctx context.Context, eventID int64) ([]*types.Change, error)

	// Comments and files
	AddComment(ctx context.Context, comment *types.Comment) error
	GetComment(ctx context.Context, id int64) (*types.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
	GetEvent(ctx context.Context, id int64) (*types.Event, error)
	AddFile(ctx context.Context, file *types.File) error
	GetFile(ctx context.Context, id int64) (*types.File, error)
	MarkFileRemoved(ctx context.Context, id int64) error

	// Dependencies (symmetric pairs)
	ListDependencyIDs(ctx context.Context, issueID int64) ([]int64, error)
	AddDependency(ctx context.Context, issueID, otherID int64) error
	RemoveDependency(ctx context.Context, issueID, otherID int64) (bool, error)

	// Watchers and read marks
	AddWatcher(ctx context.Context, issueID, userID int64) error
	RemoveWatcher(ctx context.Context, issueID, userID int64) error
	ListWatchers(ctx context.Context, issueID int64) ([]int64, error)
	MarkRead(ctx context.Context, issueID, userID int64) error
	MarkUnread(ctx context.Context, issueID, userID int64) error
	IsRead(ctx context.Context, issueID, userID int64) (bool, error)

	// Config (schema version stamp, instance settings)
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)
}
