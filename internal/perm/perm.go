// Package perm evaluates whether an actor may read or mutate an issue.
//
// Decisions are computed from in-memory workflow definitions; the package
// never touches storage. Grant checks combine built-in roles (anyone,
// author, responsible) with project-scoped group grants. Administrators
// bypass grant checks but not the cross-cutting preconditions: a suspended
// project blocks everyone.
package perm

import (
	"time"

	"github.com/rivet-tracker/rivet/internal/types"
)

// DeniedReason distinguishes why an operation was refused. The empty value
// means allowed.
type DeniedReason string

// Denial reasons. Precondition reasons are reported verbatim; grant
// failures all collapse to DeniedPermission so that callers cannot learn
// which specific rule blocked an operation they could not see.
const (
	DeniedProjectSuspended DeniedReason = "project is suspended"
	DeniedTemplateLocked   DeniedReason = "template is locked"
	DeniedIssueSuspended   DeniedReason = "issue is suspended"
	DeniedFrozen           DeniedReason = "issue is frozen"
	DeniedPermission       DeniedReason = "insufficient permissions"
	DeniedResponsible      DeniedReason = "invalid responsible candidate"
)

// Preconditions configures the cross-cutting checks for one operation
type Preconditions struct {
	// AllowSuspended skips the issue-suspension check (resume only)
	AllowSuspended bool
	// ContentEdit additionally enforces the template's frozen window
	ContentEdit bool
}

// CheckPreconditions applies the four cross-cutting gates that precede any
// specific permission check. It returns the first violated reason, or ""
// when the operation may proceed to the grant check. The issue may be nil
// for operations that create one.
func CheckPreconditions(w *types.Workflow, issue *types.Issue, now time.Time, pre Preconditions) DeniedReason {
	if w.Project.Suspended {
		return DeniedProjectSuspended
	}
	if w.Template.Locked {
		return DeniedTemplateLocked
	}
	if issue == nil {
		return ""
	}
	if !pre.AllowSuspended && issue.SuspendedNow(now) {
		return DeniedIssueSuspended
	}
	if pre.ContentEdit && w.Template.FrozenTime > 0 {
		deadline := issue.CreatedAt.AddDate(0, 0, w.Template.FrozenTime)
		if now.After(deadline) {
			return DeniedFrozen
		}
	}
	return ""
}

// CanPerform reports whether the actor holds the given template permission
// for the issue. The issue may be nil for create-style checks, in which
// case the author and responsible roles cannot match.
func CanPerform(actor *types.Actor, w *types.Workflow, issue *types.Issue, permission types.Permission) bool {
	if actor.Admin {
		return true
	}
	grant := w.Grants[permission]
	if grant == nil {
		return false
	}
	return grantMatches(actor, issue, grant.Roles, grant.Groups)
}

// CanTransition reports whether the actor may move the issue along the
// given edge. Transition grants are independent of the edit permission.
func CanTransition(actor *types.Actor, issue *types.Issue, transition *types.Transition) bool {
	if actor.Admin {
		return true
	}
	return grantMatches(actor, issue, transition.Roles, transition.Groups)
}

// IsResponsibleCandidate reports whether the candidate user may be assigned
// as responsible when the issue enters the given state. A candidate
// qualifies by being the issue's author or current responsible, or by
// membership in one of the state's responsible groups. A state whose policy
// is "none" accepts no candidate at all.
func IsResponsibleCandidate(candidateID int64, candidateGroups []int64, state *types.State, issue *types.Issue) bool {
	if state.Responsible == types.ResponsibleNone {
		return false
	}
	if issue != nil {
		if candidateID == issue.AuthorID {
			return true
		}
		if issue.Responsible != nil && candidateID == *issue.Responsible {
			return true
		}
	}
	for _, g := range state.ResponsibleGroups {
		for _, cg := range candidateGroups {
			if g == cg {
				return true
			}
		}
	}
	return false
}

// grantMatches evaluates the union of role and group grants for the actor
func grantMatches(actor *types.Actor, issue *types.Issue, roles []types.Role, groups []int64) bool {
	for _, r := range roles {
		switch r {
		case types.RoleAnyone:
			return true
		case types.RoleAuthor:
			if issue != nil && actor.UserID == issue.AuthorID {
				return true
			}
		case types.RoleResponsible:
			if issue != nil && issue.Responsible != nil && actor.UserID == *issue.Responsible {
				return true
			}
		}
	}
	for _, g := range groups {
		if actor.InGroup(g) {
			return true
		}
	}
	return false
}
