package requirement

import (
	"errors"
	"time"
)

// Status is a requirement's derived or manually-set state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	// StatusClosed is terminal and manually set; it freezes the
	// requirement against any further derivation.
	StatusClosed Status = "CLOSED"
)

var (
	ErrNotFound = errors.New("requirement: not found")
	// ErrStale is returned by conditional status updates when the
	// persisted status no longer matches the expected one.
	ErrStale = errors.New("requirement: status changed concurrently")
)

// Requirement is a client-raised aggregate whose status is derived from
// its linked work items. COMPLETED and IN_PROGRESS are never set by
// direct user action.
type Requirement struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	ClientID    string    `json:"client_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      Status    `json:"status"`
	TaskIDs     []string  `json:"task_ids"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
