package requirement

import (
	"context"
	"errors"

	"worklane.io/internal/audit"
	"worklane.io/internal/task"
)

// Sync re-derives the status of every requirement linked to the work
// item. Idempotent: a repeated call with the same inputs performs no
// writes beyond the first. Closed requirements are frozen and skipped.
func (s *Service) Sync(ctx context.Context, taskID string, _ task.Status) error {
	linked, err := s.store.ListLinkedTo(ctx, taskID)
	if err != nil {
		return err
	}
	var firstErr error
	for _, r := range linked {
		if r.Status == StatusClosed {
			continue
		}
		if err := s.derive(ctx, r); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// derive recomputes one requirement's status from the statuses of all
// its linked work items and writes only when the status changes.
func (s *Service) derive(ctx context.Context, r *Requirement) error {
	statuses, err := s.store.LinkedStatuses(ctx, r.ID)
	if err != nil {
		return err
	}
	next, ok := deriveStatus(statuses)
	if !ok || next == r.Status {
		return nil
	}
	if err := s.store.SetStatus(ctx, r.ID, r.Status, next); err != nil {
		// A concurrent sync already moved the requirement; the
		// derivation is a re-runnable computation, not a source of
		// truth, so losing the race is fine.
		if errors.Is(err, ErrStale) {
			return nil
		}
		return err
	}
	_ = audit.LogEvent(ctx, "requirement.derive", map[string]any{
		"requirement_id": r.ID,
		"from":           string(r.Status),
		"to":             string(next),
	})
	r.Status = next
	return nil
}

// deriveStatus applies the derivation rule:
//
//   - every linked item DONE        -> COMPLETED
//   - any linked item in flight     -> IN_PROGRESS (anything that is
//     neither the initial state nor terminal success; this also reverts
//     a previously COMPLETED requirement whose item was re-opened)
//   - otherwise                     -> leave unchanged
//
// A requirement with zero linked items never auto-completes.
func deriveStatus(statuses []task.Status) (Status, bool) {
	if len(statuses) == 0 {
		return "", false
	}
	allDone := true
	anyInFlight := false
	for _, st := range statuses {
		if st != task.StatusDone {
			allDone = false
		}
		if st != task.StatusTodo && st != task.StatusDone {
			anyInFlight = true
		}
	}
	switch {
	case allDone:
		return StatusCompleted, true
	case anyInFlight:
		return StatusInProgress, true
	default:
		return "", false
	}
}
