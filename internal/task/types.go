package task

import (
	"errors"
	"time"
)

// Status is a work item's lifecycle state.
type Status string

const (
	StatusTodo           Status = "TODO"
	StatusDoing          Status = "DOING"
	StatusReadyForReview Status = "READY_FOR_REVIEW"
	StatusSentToClient   Status = "SENT_TO_CLIENT"
	StatusRevision       Status = "REVISION"
	StatusDone           Status = "DONE"
)

// Valid reports whether s names a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusReadyForReview, StatusSentToClient, StatusRevision, StatusDone:
		return true
	}
	return false
}

// Terminal reports whether s permits no further transitions.
func (s Status) Terminal() bool { return s == StatusDone }

var (
	ErrNotFound = errors.New("task: not found")
	// ErrStale is returned by conditional status updates when the
	// persisted status no longer matches the expected one.
	ErrStale = errors.New("task: status changed concurrently")
	// ErrTerminal guards edits of completed work items.
	ErrTerminal = errors.New("task: work item is done and can no longer be modified")
)

// Task is a trackable unit of work owned by a workspace, raised for a
// client, moving through the lifecycle state machine.
type Task struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ClientID    string    `json:"client_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Assignees   []string  `json:"assignees"`
	Status      Status    `json:"status"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsAssignee reports whether principalID is among the task's assignees.
func (t *Task) IsAssignee(principalID string) bool {
	for _, id := range t.Assignees {
		if id == principalID {
			return true
		}
	}
	return false
}

// HistoryEntry is one record of the append-only transition ledger.
type HistoryEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
}

// AttachmentTag classifies an attachment's purpose.
type AttachmentTag string

const (
	TagReference   AttachmentTag = "reference"
	TagDeliverable AttachmentTag = "deliverable"
)

// Attachment is stored metadata for a binary held by the external
// attachment store; the bytes themselves are addressed by Key.
type Attachment struct {
	ID         string        `json:"id"`
	TaskID     string        `json:"task_id"`
	Key        string        `json:"-"`
	Filename   string        `json:"filename"`
	MimeType   string        `json:"mime_type"`
	Tag        AttachmentTag `json:"tag"`
	UploadedBy string        `json:"uploaded_by"`
	CreatedAt  time.Time     `json:"created_at"`
}
