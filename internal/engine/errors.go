package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rivet-tracker/rivet/internal/perm"
)

// NotFoundError reports that an entity does not exist or that the actor is
// not allowed to know whether it exists. Both cases are deliberately
// indistinguishable. IDs is set instead of ID when one command rejects
// several entities of the same kind at once.
type NotFoundError struct {
	Kind string
	ID   int64
	IDs  []int64
}

func (e *NotFoundError) Error() string {
	if len(e.IDs) > 0 {
		parts := make([]string, len(e.IDs))
		for i, id := range e.IDs {
			parts[i] = strconv.FormatInt(id, 10)
		}
		return fmt.Sprintf("%s not found: %s", e.Kind, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// AccessDeniedError reports a refused operation on an entity the actor can
// see. Reason carries the precondition or grant failure.
type AccessDeniedError struct {
	Reason perm.DeniedReason
}

func (e *AccessDeniedError) Error() string {
	return "access denied: " + string(e.Reason)
}

// Violation is one rejected input of a command
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError batches every violation found in one command so that a
// caller fixing its input learns about all problems at once.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		v := e.Violations[0]
		return fmt.Sprintf("validation failed: %s: %s", v.Field, v.Message)
	}
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return fmt.Sprintf("validation failed (%d problems): %s", len(e.Violations), strings.Join(parts, "; "))
}

// ConflictError reports a command that contradicts current state, such as
// suspending an already suspended issue.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Message
}

// violations accumulates problems during command validation
type violations struct {
	list []Violation
}

func (v *violations) add(field, format string, args ...any) {
	v.list = append(v.list, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *violations) err() error {
	if len(v.list) == 0 {
		return nil
	}
	return &ValidationError{Violations: v.list}
}
