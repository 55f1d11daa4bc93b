package task

import (
	"fmt"
	"strings"

	"worklane.io/internal/auth"
)

// transition is one edge of the lifecycle table. An empty Gate marks an
// ungated standard move, authorized by the assignee/creator rule.
type transition struct {
	To    Status
	Gate  string
	Label string
}

var transitionTable = map[Status][]transition{
	StatusTodo: {
		{To: StatusDoing, Label: "start work"},
	},
	StatusDoing: {
		{To: StatusReadyForReview, Label: "ready for review"},
	},
	StatusReadyForReview: {
		{To: StatusSentToClient, Gate: auth.PermTaskSendToClient, Label: "send to client"},
		{To: StatusRevision, Gate: auth.PermTaskReview, Label: "request revision"},
	},
	StatusSentToClient: {
		{To: StatusDone, Gate: auth.PermTaskClientDecision, Label: "approve"},
		{To: StatusRevision, Gate: auth.PermTaskClientDecision, Label: "request changes"},
	},
	StatusRevision: {
		{To: StatusDoing, Label: "resume work"},
	},
	StatusDone: nil, // terminal
}

// LegalTargets enumerates the states reachable from a given status.
func LegalTargets(from Status) []Status {
	edges := transitionTable[from]
	targets := make([]Status, 0, len(edges))
	for _, tr := range edges {
		targets = append(targets, tr.To)
	}
	return targets
}

func findTransition(from, to Status) (transition, bool) {
	for _, tr := range transitionTable[from] {
		if tr.To == to {
			return tr, true
		}
	}
	return transition{}, false
}

// InvalidTransitionError reports an illegal state-machine edge and the
// legal alternatives.
type InvalidTransitionError struct {
	From  Status
	To    Status
	Legal []Status
}

func (e *InvalidTransitionError) Error() string {
	legal := "none (terminal)"
	if len(e.Legal) > 0 {
		names := make([]string, len(e.Legal))
		for i, s := range e.Legal {
			names[i] = string(s)
		}
		legal = strings.Join(names, ", ")
	}
	return fmt.Sprintf("cannot move work item from %s to %s; legal targets: %s", e.From, e.To, legal)
}

// authorizeTransition applies the gating rules:
//
//   - ungated standard moves pass for the owner, any view-all holder, or
//     a move-own holder who created the item or is assigned to it;
//   - gated moves require the named permission, with owner bypass;
//   - the client decision gate additionally passes for the client
//     principal the item was raised for (its fixed, code-defined
//     capability, since clients hold no permission set).
func authorizeTransition(identity *auth.Identity, t *Task, tr transition) error {
	if identity == nil || identity.Principal == nil {
		return auth.ErrUnauthenticated
	}
	if identity.IsOwner() {
		return nil
	}
	if tr.Gate == "" {
		if identity.Has(auth.PermTaskViewAll) {
			return nil
		}
		p := identity.Principal
		if identity.Has(auth.PermTaskMoveOwn) && (t.CreatorID == p.ID || t.IsAssignee(p.ID)) {
			return nil
		}
		return auth.ErrForbidden
	}
	if tr.Gate == auth.PermTaskClientDecision &&
		identity.Principal.Kind == auth.KindClient &&
		t.ClientID == identity.Principal.ID {
		return nil
	}
	if identity.Has(tr.Gate) {
		return nil
	}
	return auth.ErrForbidden
}

// CanView applies the visibility rule: everything for the owner and
// view-all holders, a client's own items for clients, otherwise only
// items the identity created or is assigned to.
func CanView(identity *auth.Identity, t *Task) bool {
	if identity == nil || identity.Principal == nil {
		return false
	}
	if identity.IsOwner() || identity.Has(auth.PermTaskViewAll) {
		return true
	}
	p := identity.Principal
	if p.Kind == auth.KindClient {
		return t.ClientID == p.ID
	}
	return t.CreatorID == p.ID || t.IsAssignee(p.ID)
}
