package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worklane.io/internal/auth"
	"worklane.io/internal/audit"
	"worklane.io/internal/ids"
	"worklane.io/internal/obs"
)

// Store describes persistence operations for work items. History rows
// are appended individually, never rewritten as a list.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Find(ctx context.Context, workspaceID, id string) (*Task, error)
	List(ctx context.Context, workspaceID string) ([]*Task, error)
	// ListAccessible returns items the principal created or is assigned to.
	ListAccessible(ctx context.Context, workspaceID, principalID string) ([]*Task, error)
	ListByClient(ctx context.Context, workspaceID, clientID string) ([]*Task, error)
	UpdateDetails(ctx context.Context, id string, upd Update) error
	// ApplyTransition writes the new status and the history entry as one
	// atomic unit: the status write is conditional and must only succeed
	// while the persisted status still equals from (ErrStale otherwise),
	// and a status change is never recorded without its ledger row.
	ApplyTransition(ctx context.Context, id string, from, to Status, entry *HistoryEntry) error
	Delete(ctx context.Context, id string) error

	History(ctx context.Context, taskID string) ([]HistoryEntry, error)

	AddAttachment(ctx context.Context, att *Attachment) error
	Attachment(ctx context.Context, taskID, attachmentID string) (*Attachment, error)
	Attachments(ctx context.Context, taskID string) ([]Attachment, error)
	RemoveAttachment(ctx context.Context, taskID, attachmentID string) error
}

// Update carries optional field changes for a work item.
type Update struct {
	Title       *string
	Description *string
	Assignees   []string
}

// Syncer re-derives dependent aggregates after a transition. Failures
// are logged and never propagated to the transition's caller.
type Syncer interface {
	Sync(ctx context.Context, taskID string, status Status) error
}

// FileStore is the narrow attachment-store contract consumed here: the
// task service records metadata and mints links, nothing more.
type FileStore interface {
	Upload(ctx context.Context, data []byte, workspaceID, itemID, filename, mimeType string) (string, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(key string, ttl time.Duration) (string, error)
}

// Service governs the work-item lifecycle.
type Service struct {
	store  Store
	syncer Syncer
	files  FileStore
	now    func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithSyncer attaches the requirement sync engine.
func WithSyncer(s Syncer) ServiceOption {
	return func(svc *Service) { svc.syncer = s }
}

// WithFileStore attaches the external attachment store.
func WithFileStore(fs FileStore) ServiceOption {
	return func(svc *Service) { svc.files = fs }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(svc *Service) {
		if fn != nil {
			svc.now = fn
		}
	}
}

// NewService constructs the work-item service.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("task: store is required")
	}
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create registers a new work item in the initial state.
func (s *Service) Create(ctx context.Context, identity *auth.Identity, clientID, title, description string, assignees []string) (*Task, error) {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermTaskManage); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", auth.ErrInvalidInput)
	}
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("%w: client_id is required", auth.ErrInvalidInput)
	}
	t := &Task{
		ID:          ids.New(),
		WorkspaceID: identity.Principal.WorkspaceID,
		ClientID:    clientID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Assignees:   dedupe(assignees),
		Status:      StatusTodo,
		CreatorID:   identity.Principal.ID,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "task.create", map[string]any{"task_id": t.ID, "client_id": t.ClientID})
	return t, nil
}

// List returns the work items visible to the identity.
func (s *Service) List(ctx context.Context, identity *auth.Identity) ([]*Task, error) {
	if identity == nil || identity.Principal == nil {
		return nil, auth.ErrUnauthenticated
	}
	p := identity.Principal
	switch {
	case identity.IsOwner() || identity.Has(auth.PermTaskViewAll):
		return s.store.List(ctx, p.WorkspaceID)
	case p.Kind == auth.KindClient:
		return s.store.ListByClient(ctx, p.WorkspaceID, p.ID)
	default:
		return s.store.ListAccessible(ctx, p.WorkspaceID, p.ID)
	}
}

// Get returns one visible work item. Items outside the identity's
// visibility are reported as absent.
func (s *Service) Get(ctx context.Context, identity *auth.Identity, id string) (*Task, error) {
	t, err := s.find(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// History returns the item's append-only transition ledger.
func (s *Service) History(ctx context.Context, identity *auth.Identity, id string) ([]HistoryEntry, error) {
	if _, err := s.find(ctx, identity, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// UpdateDetails edits title/description/assignees. Completed items are
// frozen.
func (s *Service) UpdateDetails(ctx context.Context, identity *auth.Identity, id string, upd Update) (*Task, error) {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermTaskManage); err != nil {
		return nil, err
	}
	t, err := s.find(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, ErrTerminal
	}
	if upd.Title != nil {
		trimmed := strings.TrimSpace(*upd.Title)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: title is required", auth.ErrInvalidInput)
		}
		upd.Title = &trimmed
	}
	if upd.Assignees != nil {
		upd.Assignees = dedupe(upd.Assignees)
	}
	if err := s.store.UpdateDetails(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.store.Find(ctx, t.WorkspaceID, id)
}

// Delete removes a work item and best-effort cleans its attachments:
// attachment-store failures are logged, the record deletion proceeds.
func (s *Service) Delete(ctx context.Context, identity *auth.Identity, id string) error {
	if err := auth.Authorize(identity, auth.ModeAny, auth.PermTaskManage); err != nil {
		return err
	}
	t, err := s.find(ctx, identity, id)
	if err != nil {
		return err
	}
	if s.files != nil {
		atts, err := s.store.Attachments(ctx, t.ID)
		if err != nil {
			obs.Warnf("task %s: listing attachments for cleanup: %v", t.ID, err)
		}
		for _, att := range atts {
			if err := s.files.Delete(ctx, att.Key); err != nil {
				obs.Warnf("task %s: deleting attachment %s: %v", t.ID, att.ID, err)
			}
		}
	}
	if err := s.store.Delete(ctx, t.ID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "task.delete", map[string]any{"task_id": t.ID})
	return nil
}

// Transition validates and applies one lifecycle move, appends the
// history record and re-derives dependent requirements. The status
// write is conditional on the status the validation saw; losing a race
// re-validates once against the fresh record before giving up.
func (s *Service) Transition(ctx context.Context, identity *auth.Identity, id string, to Status, note string) (*Task, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", auth.ErrInvalidInput, to)
	}
	t, err := s.find(ctx, identity, id)
	if err != nil {
		return nil, err
	}

	applied, err := s.applyTransition(ctx, identity, t, to, note)
	if errors.Is(err, ErrStale) {
		// Another transition landed first; re-read and validate against
		// the latest persisted status.
		if t, err = s.store.Find(ctx, t.WorkspaceID, id); err != nil {
			return nil, err
		}
		applied, err = s.applyTransition(ctx, identity, t, to, note)
	}
	if err != nil {
		return nil, err
	}

	if s.syncer != nil {
		// The item's own transition never fails because a downstream
		// aggregate update failed.
		if err := s.syncer.Sync(ctx, applied.ID, applied.Status); err != nil {
			obs.Errorf("requirement sync after task %s -> %s: %v", applied.ID, applied.Status, err)
		}
	}
	return applied, nil
}

func (s *Service) applyTransition(ctx context.Context, identity *auth.Identity, t *Task, to Status, note string) (*Task, error) {
	tr, ok := findTransition(t.Status, to)
	if !ok {
		return nil, &InvalidTransitionError{From: t.Status, To: to, Legal: LegalTargets(t.Status)}
	}
	if err := authorizeTransition(identity, t, tr); err != nil {
		return nil, err
	}
	entry := &HistoryEntry{
		ID:        ids.New(),
		TaskID:    t.ID,
		From:      t.Status,
		To:        to,
		ActorID:   identity.Principal.ID,
		ActorName: identity.Principal.Name,
		Note:      strings.TrimSpace(note),
		At:        s.now().UTC(),
	}
	if err := s.store.ApplyTransition(ctx, t.ID, t.Status, to, entry); err != nil {
		return nil, err
	}
	obs.ObserveTransition(string(t.Status), string(to))
	_ = audit.LogEvent(ctx, "task.transition", map[string]any{
		"task_id": t.ID,
		"from":    string(t.Status),
		"to":      string(to),
		"label":   tr.Label,
	})

	moved := *t
	moved.Status = to
	moved.UpdatedAt = entry.At
	return &moved, nil
}

// AddAttachment uploads bytes to the external store and records metadata.
func (s *Service) AddAttachment(ctx context.Context, identity *auth.Identity, taskID string, data []byte, filename, mimeType string, tag AttachmentTag) (*Attachment, error) {
	if s.files == nil {
		return nil, errors.New("task: no attachment store configured")
	}
	if tag != TagReference && tag != TagDeliverable {
		return nil, fmt.Errorf("%w: attachment tag must be reference or deliverable", auth.ErrInvalidInput)
	}
	t, err := s.find(ctx, identity, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, ErrTerminal
	}
	key, err := s.files.Upload(ctx, data, t.WorkspaceID, t.ID, filename, mimeType)
	if err != nil {
		return nil, err
	}
	att := &Attachment{
		ID:         ids.New(),
		TaskID:     t.ID,
		Key:        key,
		Filename:   filename,
		MimeType:   mimeType,
		Tag:        tag,
		UploadedBy: identity.Principal.ID,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.AddAttachment(ctx, att); err != nil {
		return nil, err
	}
	return att, nil
}

// AttachmentURL mints a time-limited download link for an attachment.
func (s *Service) AttachmentURL(ctx context.Context, identity *auth.Identity, taskID, attachmentID string, ttl time.Duration) (string, error) {
	if s.files == nil {
		return "", errors.New("task: no attachment store configured")
	}
	if _, err := s.find(ctx, identity, taskID); err != nil {
		return "", err
	}
	att, err := s.store.Attachment(ctx, taskID, attachmentID)
	if err != nil {
		return "", err
	}
	return s.files.PresignedURL(att.Key, ttl)
}

// RemoveAttachment deletes metadata and best-effort removes the bytes.
func (s *Service) RemoveAttachment(ctx context.Context, identity *auth.Identity, taskID, attachmentID string) error {
	t, err := s.find(ctx, identity, taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		return ErrTerminal
	}
	att, err := s.store.Attachment(ctx, taskID, attachmentID)
	if err != nil {
		return err
	}
	if err := s.store.RemoveAttachment(ctx, taskID, attachmentID); err != nil {
		return err
	}
	if s.files != nil {
		if err := s.files.Delete(ctx, att.Key); err != nil {
			obs.Warnf("task %s: deleting attachment blob %s: %v", taskID, att.ID, err)
		}
	}
	return nil
}

// find loads a workspace-scoped item and applies visibility; invisible
// and cross-workspace items are reported identically as absent.
func (s *Service) find(ctx context.Context, identity *auth.Identity, id string) (*Task, error) {
	if identity == nil || identity.Principal == nil {
		return nil, auth.ErrUnauthenticated
	}
	t, err := s.store.Find(ctx, identity.Principal.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	if !CanView(identity, t) {
		return nil, ErrNotFound
	}
	return t, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
