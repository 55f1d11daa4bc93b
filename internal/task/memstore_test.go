package task

import (
	"context"
	"sync"
)

// memStore is an in-memory Store for service tests. ApplyTransition
// keeps the conditional-write contract so staleness paths are exercised.
type memStore struct {
	mu          sync.Mutex
	tasks       map[string]*Task
	history     map[string][]HistoryEntry
	attachments map[string][]Attachment

	// onApply, when set, runs once before the conditional check so tests
	// can interleave a concurrent transition or inject a write failure.
	onApply func() error
}

func newMemStore() *memStore {
	return &memStore{
		tasks:       make(map[string]*Task),
		history:     make(map[string][]HistoryEntry),
		attachments: make(map[string][]Attachment),
	}
}

func (m *memStore) Create(_ context.Context, t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) Find(_ context.Context, workspaceID, id string) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.WorkspaceID != workspaceID {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) List(_ context.Context, workspaceID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Task
	for _, t := range m.tasks {
		if t.WorkspaceID == workspaceID {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) ListAccessible(_ context.Context, workspaceID, principalID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Task
	for _, t := range m.tasks {
		if t.WorkspaceID == workspaceID && (t.CreatorID == principalID || t.IsAssignee(principalID)) {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) ListByClient(_ context.Context, workspaceID, clientID string) ([]*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*Task
	for _, t := range m.tasks {
		if t.WorkspaceID == workspaceID && t.ClientID == clientID {
			cp := *t
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memStore) UpdateDetails(_ context.Context, id string, upd Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Title != nil {
		t.Title = *upd.Title
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Assignees != nil {
		t.Assignees = append([]string(nil), upd.Assignees...)
	}
	return nil
}

func (m *memStore) ApplyTransition(_ context.Context, id string, from, to Status, entry *HistoryEntry) error {
	if m.onApply != nil {
		hook := m.onApply
		m.onApply = nil
		if err := hook(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if t.Status != from {
		return ErrStale
	}
	t.Status = to
	m.history[id] = append(m.history[id], *entry)
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) History(_ context.Context, taskID string) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]HistoryEntry(nil), m.history[taskID]...), nil
}

func (m *memStore) AddAttachment(_ context.Context, att *Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attachments[att.TaskID] = append(m.attachments[att.TaskID], *att)
	return nil
}

func (m *memStore) Attachment(_ context.Context, taskID, attachmentID string) (*Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, att := range m.attachments[taskID] {
		if att.ID == attachmentID {
			cp := att
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) Attachments(_ context.Context, taskID string) ([]Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Attachment(nil), m.attachments[taskID]...), nil
}

func (m *memStore) RemoveAttachment(_ context.Context, taskID, attachmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	atts := m.attachments[taskID]
	for i, att := range atts {
		if att.ID == attachmentID {
			m.attachments[taskID] = append(atts[:i], atts[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
