package rbac

import (
	"sync/atomic"

	"github.com/stationhq/gatehouse/pkg/identity"
)

// Evaluator answers authorization questions from a session's granted role
// ids and the policy table. Evaluation is synchronous, side-effect-free
// and deterministic for a given policy snapshot, so callers can
// re-evaluate per render without added latency.
type Evaluator struct {
	policy atomic.Pointer[Policy]
}

// NewEvaluator creates an evaluator over the given policy. A nil policy
// uses the compiled-in default.
func NewEvaluator(policy *Policy) *Evaluator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	e := &Evaluator{}
	e.policy.Store(policy)
	return e
}

// SetPolicy atomically swaps the policy table. In-flight evaluations keep
// the snapshot they started with.
func (e *Evaluator) SetPolicy(policy *Policy) {
	if policy == nil {
		return
	}
	e.policy.Store(policy)
}

// Policy returns the current policy snapshot
func (e *Evaluator) Policy() *Policy {
	return e.policy.Load()
}

// IsAuthorized reports whether the session's role set grants the
// (resource, action) pair. Every member implicitly holds RoleMember in
// addition to explicit assignments. A nil session is never authorized.
func (e *Evaluator) IsAuthorized(session *identity.Session, resource Resource, action Action) bool {
	if session == nil {
		return false
	}
	policy := e.policy.Load()
	if grantsMatch(policy.Roles[RoleMember], resource, action) {
		return true
	}
	for _, role := range session.RoleIDs {
		if grantsMatch(policy.Roles[role], resource, action) {
			return true
		}
	}
	return false
}

// IsAuthorizedForMember evaluates a member-targeted action with the
// self-action exceptions applied:
//
//   - a member may always view themself, even without member:search;
//   - a member may edit their own name through self:update.info.name even
//     when member:update.info.name is denied;
//   - a member may never delete themself, regardless of granted roles.
func (e *Evaluator) IsAuthorizedForMember(session *identity.Session, action Action, targetMemberID string) bool {
	if session == nil {
		return false
	}
	self := session.MemberID == targetMemberID

	switch action {
	case ActionDelete:
		if self {
			return false
		}
	case ActionSearch, ActionGet:
		if self {
			return true
		}
	case ActionUpdateInfoName:
		if self && e.IsAuthorized(session, ResourceSelf, ActionUpdateInfoName) {
			return true
		}
	}

	return e.IsAuthorized(session, ResourceMember, action)
}

func grantsMatch(grants []Grant, resource Resource, action Action) bool {
	for _, g := range grants {
		if g.matches(resource, action) {
			return true
		}
	}
	return false
}
