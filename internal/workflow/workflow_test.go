package workflow

import (
	"testing"

	"github.com/rivet-tracker/rivet/internal/types"
)

func TestClassify(t *testing.T) {
	initial := &types.State{Type: types.StateInitial}
	intermediate := &types.State{Type: types.StateIntermediate}
	final := &types.State{Type: types.StateFinal}

	tests := []struct {
		name string
		from *types.State
		to   *types.State
		want Kind
	}{
		{name: "between intermediate states", from: initial, to: intermediate, want: KindNormal},
		{name: "into final state", from: intermediate, to: final, want: KindClose},
		{name: "out of final state", from: final, to: intermediate, want: KindReopen},
		{name: "final to final is a reopen", from: final, to: final, want: KindReopen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.from, tt.to); got != tt.want {
				t.Errorf("Classify = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestKindEnforcesRequiredFields(t *testing.T) {
	if !KindNormal.EnforcesRequiredFields() {
		t.Error("normal transitions must enforce required fields")
	}
	if !KindClose.EnforcesRequiredFields() {
		t.Error("closing must enforce required fields")
	}
	if KindReopen.EnforcesRequiredFields() {
		t.Error("reopening must not enforce required fields")
	}
}

func TestKindEventType(t *testing.T) {
	tests := []struct {
		kind Kind
		want types.EventType
	}{
		{kind: KindNormal, want: types.EventStateChanged},
		{kind: KindClose, want: types.EventClosed},
		{kind: KindReopen, want: types.EventReopened},
	}
	for _, tt := range tests {
		if got := tt.kind.EventType(); got != tt.want {
			t.Errorf("EventType(%v) = %q; want %q", tt.kind, got, tt.want)
		}
	}
}
