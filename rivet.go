// Package rivet provides a minimal public API for embedding the rivet
// workflow engine in other Go programs.
//
// The engine, storage and type packages live under internal/; this
// package re-exports the pieces an embedding program needs: opening a
// database, constructing an engine, and the core entity types.
package rivet

import (
	"github.com/rivet-tracker/rivet/internal/engine"
	"github.com/rivet-tracker/rivet/internal/journal"
	"github.com/rivet-tracker/rivet/internal/storage"
	"github.com/rivet-tracker/rivet/internal/storage/sqlite"
	"github.com/rivet-tracker/rivet/internal/types"
	"github.com/rivet-tracker/rivet/internal/workflow"
)

// Storage is the repository interface backed by SQLite
type Storage = storage.Storage

// Engine executes workflow commands
type Engine = engine.Engine

// Open opens (creating if necessary) a rivet database and returns an
// engine on top of it. Close the engine's store when done.
func Open(dbPath string) (*Engine, error) {
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}
	return engine.New(store), nil
}

// OpenWithJournal opens a database like Open and mirrors committed
// lifecycle events to the JSONL journal at journalPath.
func OpenWithJournal(dbPath, journalPath string) (*Engine, error) {
	eng, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	eng.SetJournal(journal.NewWriter(journalPath))
	return eng, nil
}

// LoadWorkflow parses and validates a declarative workflow definition
func LoadWorkflow(data []byte) (*workflow.Definition, error) {
	return workflow.Load(data)
}

// Core types
type (
	Project           = types.Project
	User              = types.User
	Group             = types.Group
	Template          = types.Template
	State             = types.State
	StateType         = types.StateType
	ResponsiblePolicy = types.ResponsiblePolicy
	Field             = types.Field
	FieldType         = types.FieldType
	ListItem          = types.ListItem
	Transition        = types.Transition
	Role              = types.Role
	Permission        = types.Permission
	Grant             = types.Grant
	Workflow          = types.Workflow
	Issue             = types.Issue
	FieldValue        = types.FieldValue
	Event             = types.Event
	EventType         = types.EventType
	Change            = types.Change
	Comment           = types.Comment
	File              = types.File
	Actor             = types.Actor
)

// Command request types
type (
	CreateRequest      = engine.CreateRequest
	EditRequest        = engine.EditRequest
	ChangeStateRequest = engine.ChangeStateRequest
)

// Error types
type (
	NotFoundError     = engine.NotFoundError
	AccessDeniedError = engine.AccessDeniedError
	ValidationError   = engine.ValidationError
	Violation         = engine.Violation
	ConflictError     = engine.ConflictError
)

// State type constants
const (
	StateInitial      = types.StateInitial
	StateIntermediate = types.StateIntermediate
	StateFinal        = types.StateFinal
)

// Responsible policy constants
const (
	ResponsibleNone     = types.ResponsibleNone
	ResponsibleRequired = types.ResponsibleRequired
	ResponsibleOptional = types.ResponsibleOptional
	ResponsibleKeep     = types.ResponsibleKeep
)

// Field type constants
const (
	FieldString   = types.FieldString
	FieldText     = types.FieldText
	FieldCheckbox = types.FieldCheckbox
	FieldInteger  = types.FieldInteger
	FieldDecimal  = types.FieldDecimal
	FieldDate     = types.FieldDate
	FieldDuration = types.FieldDuration
	FieldList     = types.FieldList
	FieldIssueID  = types.FieldIssueID
)

// Event type constants
const (
	EventCreated           = types.EventCreated
	EventStateChanged      = types.EventStateChanged
	EventEdited            = types.EventEdited
	EventAssigned          = types.EventAssigned
	EventClosed            = types.EventClosed
	EventReopened          = types.EventReopened
	EventSuspended         = types.EventSuspended
	EventResumed           = types.EventResumed
	EventCommented         = types.EventCommented
	EventFileAttached      = types.EventFileAttached
	EventFileDeleted       = types.EventFileDeleted
	EventDependencyAdded   = types.EventDependencyAdded
	EventDependencyRemoved = types.EventDependencyRemoved
)
