package work

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WorkTimeout is the maximum duration a work item can run before being cancelled.
const WorkTimeout = 5 * time.Minute

// DefaultWorkers is the number of items the processor executes concurrently.
const DefaultWorkers = 2

// DefaultQueueSize bounds the number of pending items.
const DefaultQueueSize = 64

// WorkType defines a type of work that can be enqueued.
// Work types are registered once and can generate many work items.
type WorkType struct {
	// ID is the unique identifier for this work type (e.g., "market:refresh").
	ID string

	// Timeout overrides the processor timeout when non-zero.
	Timeout time.Duration

	// MaxRetries is how many times a failed item is re-queued (0 = never).
	MaxRetries int

	// Execute performs the work. The payload is whatever was passed to Enqueue.
	Execute func(ctx context.Context, payload any) error
}

// WorkItem represents a specific unit of work to be executed.
type WorkItem struct {
	ID        string
	TypeID    string
	Payload   any
	Retries   int
	CreatedAt time.Time
}

// NewWorkItem creates a new work item for a work type.
func NewWorkItem(workType *WorkType, payload any) *WorkItem {
	return &WorkItem{
		ID:        uuid.NewString(),
		TypeID:    workType.ID,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Status is the terminal state of a work item.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimedOut  Status = "timed_out"
	StatusCancelled Status = "cancelled"
)

// Result describes how a work item finished.
type Result struct {
	ItemID      string        `json:"item_id"`
	TypeID      string        `json:"type_id"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Retries     int           `json:"retries"`
	Duration    time.Duration `json:"duration_ms"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Succeeded reports whether the item finished without error.
func (r Result) Succeeded() bool {
	return r.Status == StatusSucceeded
}
