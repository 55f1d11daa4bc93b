package requirement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.io/internal/auth"
	"worklane.io/internal/audit"
	"worklane.io/internal/ids"
	"worklane.io/internal/task"
)

// Store describes persistence operations for requirements.
type Store interface {
	Create(ctx context.Context, r *Requirement) error
	Find(ctx context.Context, workspaceID, id string) (*Requirement, error)
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Requirement, error)
	ListByClient(ctx context.Context, workspaceID, clientID string) ([]*Requirement, error)
	// ListLinkedTo returns every requirement referencing the work item.
	ListLinkedTo(ctx context.Context, taskID string) ([]*Requirement, error)
	// LinkedStatuses loads the current statuses of all linked work items.
	LinkedStatuses(ctx context.Context, requirementID string) ([]task.Status, error)
	LinkTask(ctx context.Context, requirementID, taskID string) error
	// SetStatus performs a conditional write, returning ErrStale when the
	// persisted status no longer equals from.
	SetStatus(ctx context.Context, id string, from, to Status) error
}

// Service manages requirements and derives their status from linked
// work items.
type Service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the requirement service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("requirement: store is required")
	}
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create registers a requirement, optionally pre-linked to work items.
func (s *Service) Create(ctx context.Context, identity *auth.Identity, clientID, title, description string, taskIDs []string) (*Requirement, error) {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermRequirementManage); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	clientID = strings.TrimSpace(clientID)
	if title == "" || clientID == "" {
		return nil, fmt.Errorf("%w: title and client_id are required", auth.ErrInvalidInput)
	}
	r := &Requirement{
		ID:          ids.New(),
		WorkspaceID: identity.Principal.WorkspaceID,
		ClientID:    clientID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Status:      StatusOpen,
		TaskIDs:     taskIDs,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "requirement.create", map[string]any{"requirement_id": r.ID, "client_id": r.ClientID})
	return r, nil
}

// List returns the requirements visible to the identity: clients see
// their own, everyone else in the workspace sees all.
func (s *Service) List(ctx context.Context, identity *auth.Identity) ([]*Requirement, error) {
	if identity == nil || identity.Principal == nil {
		return nil, auth.ErrUnauthenticated
	}
	p := identity.Principal
	if p.Kind == auth.KindClient {
		return s.store.ListByClient(ctx, p.WorkspaceID, p.ID)
	}
	return s.store.ListByWorkspace(ctx, p.WorkspaceID)
}

// Get returns one visible requirement.
func (s *Service) Get(ctx context.Context, identity *auth.Identity, id string) (*Requirement, error) {
	return s.find(ctx, identity, id)
}

// LinkTask attaches a work item to the requirement and re-derives.
func (s *Service) LinkTask(ctx context.Context, identity *auth.Identity, id, taskID string) (*Requirement, error) {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermRequirementManage); err != nil {
		return nil, err
	}
	r, err := s.find(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.LinkTask(ctx, r.ID, taskID); err != nil {
		return nil, err
	}
	if err := s.derive(ctx, r); err != nil {
		return nil, err
	}
	return s.store.Find(ctx, r.WorkspaceID, r.ID)
}

// Close manually sets the terminal CLOSED state, freezing derivation.
func (s *Service) Close(ctx context.Context, identity *auth.Identity, id string) error {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermRequirementManage); err != nil {
		return err
	}
	r, err := s.find(ctx, identity, id)
	if err != nil {
		return err
	}
	if r.Status == StatusClosed {
		return fmt.Errorf("%w: requirement is already closed", auth.ErrConflict)
	}
	if err := s.store.SetStatus(ctx, r.ID, r.Status, StatusClosed); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "requirement.close", map[string]any{"requirement_id": r.ID})
	return nil
}

// Reopen lifts a manual close back to OPEN and immediately re-derives
// from the linked work items.
func (s *Service) Reopen(ctx context.Context, identity *auth.Identity, id string) (*Requirement, error) {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermRequirementManage); err != nil {
		return nil, err
	}
	r, err := s.find(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusClosed {
		return nil, fmt.Errorf("%w: requirement is not closed", auth.ErrConflict)
	}
	if err := s.store.SetStatus(ctx, r.ID, StatusClosed, StatusOpen); err != nil {
		return nil, err
	}
	r.Status = StatusOpen
	if err := s.derive(ctx, r); err != nil {
		return nil, err
	}
	return s.store.Find(ctx, r.WorkspaceID, r.ID)
}

func (s *Service) find(ctx context.Context, identity *auth.Identity, id string) (*Requirement, error) {
	if identity == nil || identity.Principal == nil {
		return nil, auth.ErrUnauthenticated
	}
	p := identity.Principal
	r, err := s.store.Find(ctx, p.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	if p.Kind == auth.KindClient && r.ClientID != p.ID {
		return nil, ErrNotFound
	}
	return r, nil
}
