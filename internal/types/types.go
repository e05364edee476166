// Package types defines core data structures for the rivet workflow engine.
package types

import (
	"fmt"
	"time"
)

// Project owns templates and groups. Name is unique across the instance.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Suspended   bool      `json:"suspended,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks if the project has valid field values
func (p *Project) Validate() error {
	if len(p.Name) == 0 {
		return fmt.Errorf("project name is required")
	}
	if len(p.Name) > 100 {
		return fmt.Errorf("project name must be 100 characters or less (got %d)", len(p.Name))
	}
	return nil
}

// User is an account known to the engine. Timezone is the IANA zone name
// used to normalize date field values written by this user.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Admin    bool   `json:"admin,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// Group is a named set of users within a project.
type Group struct {
	ID        int64  `json:"id"`
	ProjectID int64  `json:"project_id"`
	Name      string `json:"name"`
}

// Template is the reusable issue-type definition within a project:
// states, fields, transitions and permission grants. Name and prefix
// are each unique within the owning project.
type Template struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	Name         string `json:"name"`
	Prefix       string `json:"prefix"`
	Locked       bool   `json:"locked,omitempty"`
	CriticalAge  int    `json:"critical_age,omitempty"` // days; 0 = unset
	FrozenTime   int    `json:"frozen_time,omitempty"`  // days after creation when content edits are blocked; 0 = never
	InitialState int64  `json:"initial_state"`
}

// Validate checks if the template has valid field values
func (t *Template) Validate() error {
	if len(t.Name) == 0 {
		return fmt.Errorf("template name is required")
	}
	if len(t.Prefix) == 0 {
		return fmt.Errorf("template prefix is required")
	}
	if len(t.Prefix) > 16 {
		return fmt.Errorf("template prefix must be 16 characters or less (got %d)", len(t.Prefix))
	}
	if t.CriticalAge < 0 {
		return fmt.Errorf("critical_age cannot be negative")
	}
	if t.FrozenTime < 0 {
		return fmt.Errorf("frozen_time cannot be negative")
	}
	return nil
}

// StateType classifies a state within a template's workflow graph
type StateType string

// State type constants
const (
	StateInitial      StateType = "initial"
	StateIntermediate StateType = "intermediate"
	StateFinal        StateType = "final"
)

// IsValid checks if the state type value is valid
func (s StateType) IsValid() bool {
	switch s {
	case StateInitial, StateIntermediate, StateFinal:
		return true
	}
	return false
}

// ResponsiblePolicy controls how the responsible user is handled when an
// issue enters a state.
type ResponsiblePolicy string

// Responsible policy constants
const (
	// ResponsibleNone forbids a responsible user in this state; entering it
	// clears any previous assignment.
	ResponsibleNone ResponsiblePolicy = "none"
	// ResponsibleRequired demands that the issue has a responsible user
	// after entering this state.
	ResponsibleRequired ResponsiblePolicy = "required"
	// ResponsibleOptional allows but does not require an assignment.
	ResponsibleOptional ResponsiblePolicy = "optional"
	// ResponsibleKeep carries the previous assignment forward unchanged
	// unless the command supplies a new one.
	ResponsibleKeep ResponsiblePolicy = "keep"
)

// IsValid checks if the responsible policy value is valid
func (r ResponsiblePolicy) IsValid() bool {
	switch r {
	case ResponsibleNone, ResponsibleRequired, ResponsibleOptional, ResponsibleKeep:
		return true
	}
	return false
}

// State is one node of a template's workflow graph. Issues are always in
// exactly one state. Fields and outgoing transitions are owned by the state.
type State struct {
	ID                int64             `json:"id"`
	TemplateID        int64             `json:"template_id"`
	Name              string            `json:"name"`
	Type              StateType         `json:"type"`
	Responsible       ResponsiblePolicy `json:"responsible"`
	ResponsibleGroups []int64           `json:"responsible_groups,omitempty"`
}

// Validate checks if the state has valid field values
func (s *State) Validate() error {
	if len(s.Name) == 0 {
		return fmt.Errorf("state name is required")
	}
	if !s.Type.IsValid() {
		return fmt.Errorf("invalid state type: %s", s.Type)
	}
	if !s.Responsible.IsValid() {
		return fmt.Errorf("invalid responsible policy: %s", s.Responsible)
	}
	return nil
}

// FieldType identifies the value type of a field
type FieldType string

// Field type constants
const (
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
	FieldCheckbox FieldType = "checkbox"
	FieldInteger  FieldType = "integer"
	FieldDecimal  FieldType = "decimal"
	FieldDate     FieldType = "date"
	FieldDuration FieldType = "duration"
	FieldList     FieldType = "list"
	FieldIssueID  FieldType = "issue-id"
)

// IsValid checks if the field type value is valid
func (t FieldType) IsValid() bool {
	switch t {
	case FieldString, FieldText, FieldCheckbox, FieldInteger, FieldDecimal,
		FieldDate, FieldDuration, FieldList, FieldIssueID:
		return true
	}
	return false
}

// Deduplicated returns true if values of this type are stored in a shared
// value table and referenced by id rather than stored inline.
func (t FieldType) Deduplicated() bool {
	switch t {
	case FieldString, FieldText, FieldDecimal, FieldList:
		return true
	}
	return false
}

// Field is one input shown in a particular state. A field's identity is
// scoped to its state: the same logical attribute reappearing in another
// state is a different Field record.
type Field struct {
	ID        int64     `json:"id"`
	StateID   int64     `json:"state_id"`
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required,omitempty"`
	Position  int       `json:"position"`
	MaxLength int       `json:"max_length,omitempty"` // string/text; 0 = type default
	MinValue  *int64    `json:"min_value,omitempty"`  // integer/decimal (decimal: whole units)
	MaxValue  *int64    `json:"max_value,omitempty"`
	Default   string    `json:"default,omitempty"`
}

// Validate checks if the field has valid definition values
func (f *Field) Validate() error {
	if len(f.Name) == 0 {
		return fmt.Errorf("field name is required")
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid field type: %s", f.Type)
	}
	if f.MaxLength < 0 {
		return fmt.Errorf("max_length cannot be negative")
	}
	if f.MinValue != nil && f.MaxValue != nil && *f.MinValue > *f.MaxValue {
		return fmt.Errorf("min_value %d exceeds max_value %d", *f.MinValue, *f.MaxValue)
	}
	return nil
}

// ListItem is one administered option of a list field. Key is the numeric
// value submitted by clients; items are unique by (field, key).
type ListItem struct {
	ID      int64  `json:"id"`
	FieldID int64  `json:"field_id"`
	Key     int64  `json:"key"`
	Label   string `json:"label"`
}

// Transition is a permitted directed edge between two states of the same
// template, granted independently of the generic edit permission.
type Transition struct {
	ID        int64   `json:"id"`
	FromState int64   `json:"from_state"`
	ToState   int64   `json:"to_state"`
	Roles     []Role  `json:"roles,omitempty"`
	Groups    []int64 `json:"groups,omitempty"`
}

// Role is a built-in grant target evaluated against the issue at hand
type Role string

// Role constants
const (
	RoleAnyone      Role = "anyone"
	RoleAuthor      Role = "author"
	RoleResponsible Role = "responsible"
)

// IsValid checks if the role value is valid
func (r Role) IsValid() bool {
	switch r {
	case RoleAnyone, RoleAuthor, RoleResponsible:
		return true
	}
	return false
}

// Permission names a template-scoped capability
type Permission string

// Permission constants
const (
	PermView       Permission = "view"
	PermCreate     Permission = "create"
	PermEdit       Permission = "edit"
	PermComment    Permission = "comment"
	PermAttachFile Permission = "attach-file"
	PermDeleteFile Permission = "delete-file"
	PermSuspend    Permission = "suspend"
	PermReassign   Permission = "reassign"
	PermLink       Permission = "link"
	PermClone      Permission = "clone"
)

// IsValid checks if the permission value is valid
func (p Permission) IsValid() bool {
	switch p {
	case PermView, PermCreate, PermEdit, PermComment, PermAttachFile,
		PermDeleteFile, PermSuspend, PermReassign, PermLink, PermClone:
		return true
	}
	return false
}

// Grant binds a permission to a role or a group on a template
type Grant struct {
	TemplateID int64      `json:"template_id"`
	Permission Permission `json:"permission"`
	Roles      []Role     `json:"roles,omitempty"`
	Groups     []int64    `json:"groups,omitempty"`
}

// Workflow is the fully loaded definition of one template: its states,
// fields, list items, transitions and grants, indexed for evaluation.
// It is read-only once loaded.
type Workflow struct {
	Template    *Template
	Project     *Project
	States      map[int64]*State
	Fields      map[int64][]*Field    // state id -> fields ordered by position
	ListItems   map[int64][]*ListItem // field id -> administered options
	Transitions []*Transition
	Grants      map[Permission]*Grant
}

// StateFields returns the ordered fields of a state (nil if none)
func (w *Workflow) StateFields(stateID int64) []*Field {
	return w.Fields[stateID]
}

// FieldByID looks up a field across all states of the workflow
func (w *Workflow) FieldByID(fieldID int64) *Field {
	for _, fields := range w.Fields {
		for _, f := range fields {
			if f.ID == fieldID {
				return f
			}
		}
	}
	return nil
}

// TransitionBetween returns the edge from one state to another, or nil
func (w *Workflow) TransitionBetween(from, to int64) *Transition {
	for _, t := range w.Transitions {
		if t.FromState == from && t.ToState == to {
			return t
		}
	}
	return nil
}

// Issue is a tracked work item. Its template is fixed at creation and
// never changes; the current state always belongs to that template.
type Issue struct {
	ID          int64      `json:"id"`
	TemplateID  int64      `json:"template_id"`
	AuthorID    int64      `json:"author_id"`
	Responsible *int64     `json:"responsible,omitempty"`
	Subject     string     `json:"subject"`
	StateID     int64      `json:"state_id"`
	CreatedAt   time.Time  `json:"created_at"`
	ChangedAt   time.Time  `json:"changed_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Suspended   bool       `json:"suspended,omitempty"`
	ResumesAt   *time.Time `json:"resumes_at,omitempty"`
	OriginID    *int64     `json:"origin_id,omitempty"` // source issue when cloned
}

// Validate checks if the issue has valid field values
func (i *Issue) Validate() error {
	if len(i.Subject) == 0 {
		return fmt.Errorf("subject is required")
	}
	if len(i.Subject) > 500 {
		return fmt.Errorf("subject must be 500 characters or less (got %d)", len(i.Subject))
	}
	return nil
}

// SuspendedNow reports whether the issue is suspended at the given instant.
// Suspension with a resume time expires lazily: once resumes_at passes the
// issue reads as active without any scheduled task flipping the flag.
func (i *Issue) SuspendedNow(now time.Time) bool {
	if !i.Suspended {
		return false
	}
	if i.ResumesAt != nil && !i.ResumesAt.After(now) {
		return false
	}
	return true
}

// FieldValue is the populated value of one field on one issue. For inline
// types (checkbox, integer, date, duration, issue-id) Value carries the
// scalar directly; for deduplicated types it is the id of a value-table row
// (or list item). A row exists only once the field has been populated.
type FieldValue struct {
	IssueID int64 `json:"issue_id"`
	FieldID int64 `json:"field_id"`
	Value   int64 `json:"value"`
}

// EventType represents the type of audit event
type EventType string

// Event type constants
const (
	EventCreated           EventType = "created"
	EventStateChanged      EventType = "state_changed"
	EventEdited            EventType = "edited"
	EventAssigned          EventType = "assigned"
	EventClosed            EventType = "closed"
	EventReopened          EventType = "reopened"
	EventSuspended         EventType = "suspended"
	EventResumed           EventType = "resumed"
	EventCommented         EventType = "commented"
	EventFileAttached      EventType = "file_attached"
	EventFileDeleted       EventType = "file_deleted"
	EventDependencyAdded   EventType = "dependency_added"
	EventDependencyRemoved EventType = "dependency_removed"
)

// IsValid checks if the event type value is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventCreated, EventStateChanged, EventEdited, EventAssigned,
		EventClosed, EventReopened, EventSuspended, EventResumed,
		EventCommented, EventFileAttached, EventFileDeleted,
		EventDependencyAdded, EventDependencyRemoved:
		return true
	}
	return false
}

// Event is one immutable audit entry in an issue's lifecycle history.
// Parameter semantics depend on the type: target state id for state_changed /
// closed / reopened / created, assignee id for assigned, file id for
// file_attached / file_deleted, the other issue's id for dependency events,
// resume time (unix seconds, 0 if indefinite) for suspended.
type Event struct {
	ID        int64     `json:"id"`
	IssueID   int64     `json:"issue_id"`
	Type      EventType `json:"type"`
	ActorID   int64     `json:"actor_id"`
	Parameter int64     `json:"parameter,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Change is a field- or subject-level before/after record attached to an
// edited or state_changed event. For field changes Old/New carry value
// references in FieldValue encoding (nil = no value); for the subject,
// FieldID is nil and OldSubject/NewSubject carry the text.
type Change struct {
	ID         int64  `json:"id"`
	EventID    int64  `json:"event_id"`
	FieldID    *int64 `json:"field_id,omitempty"`
	Old        *int64 `json:"old,omitempty"`
	New        *int64 `json:"new,omitempty"`
	OldSubject string `json:"old_subject,omitempty"`
	NewSubject string `json:"new_subject,omitempty"`
}

// Comment is the body of a commented event
type Comment struct {
	ID      int64  `json:"id"`
	EventID int64  `json:"event_id"`
	Text    string `json:"text"`
	Private bool   `json:"private,omitempty"`
}

// File is the metadata of a file_attached event. Removal is soft: the
// content behind StorageKey is deleted but the record and audit trail
// survive with Removed set.
type File struct {
	ID         int64  `json:"id"`
	EventID    int64  `json:"event_id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type"`
	StorageKey string `json:"storage_key"`
	Removed    bool   `json:"removed,omitempty"`
}

// Actor is the identity performing a command, supplied by the caller on
// every engine call. Groups holds the ids of every group the user belongs
// to; group grants are already project-scoped so no further filtering is
// needed at evaluation time.
type Actor struct {
	UserID   int64
	Admin    bool
	Groups   []int64
	Timezone *time.Location
}

// InGroup reports membership in the given group
func (a *Actor) InGroup(groupID int64) bool {
	for _, g := range a.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// Location returns the actor's timezone, defaulting to UTC
func (a *Actor) Location() *time.Location {
	if a.Timezone == nil {
		return time.UTC
	}
	return a.Timezone
}
