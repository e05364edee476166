// Package workflow holds the state machine rules of a template and the
// loader that installs declarative workflow definitions.
package workflow

import (
	"github.com/rivet-tracker/rivet/internal/types"
)

// Kind classifies what a transition does to the issue lifecycle
type Kind int

// Transition kinds
const (
	// KindNormal moves between non-final states: target required fields are
	// enforced and a state_changed event is recorded.
	KindNormal Kind = iota
	// KindClose enters a final state: closed_at is set and a closed event is
	// recorded.
	KindClose
	// KindReopen leaves a final state: closed_at is cleared, required fields
	// are not re-validated, and a reopened event is recorded.
	KindReopen
)

// Classify determines the lifecycle effect of moving from one state to
// another. Leaving a final state is always a reopen, regardless of the
// target's type.
func Classify(from, to *types.State) Kind {
	if from.Type == types.StateFinal {
		return KindReopen
	}
	if to.Type == types.StateFinal {
		return KindClose
	}
	return KindNormal
}

// EnforcesRequiredFields reports whether required fields of the target
// state must be satisfied for this kind of transition. Reopening skips the
// check: requiredness binds to the forward entry into a state only.
func (k Kind) EnforcesRequiredFields() bool {
	return k != KindReopen
}

// EventType returns the lifecycle event recorded for this kind
func (k Kind) EventType() types.EventType {
	switch k {
	case KindClose:
		return types.EventClosed
	case KindReopen:
		return types.EventReopened
	}
	return types.EventStateChanged
}
