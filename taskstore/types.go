// Package taskstore hosts the in-process registry of tasks: one record per
// in-flight or completed workflow execution, with status, progress,
// results, errors, and TTL-based expiry. It is the only shared mutable
// state workflows touch; websets and other upstream resources are never
// shared between tasks.
package taskstore

import (
	"time"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// Status is the lifecycle state of a task. Transitions are one-way:
// Pending -> Working -> {Completed | Failed | Cancelled}, and Pending may
// go directly to Cancelled if cancellation races the scheduler starting
// the workflow.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the states a task cannot leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Progress is a hint, not a synchronization point: workflows may update it
// at any frequency and callers may observe stale values.
type Progress struct {
	Step      string `json:"step"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Message   string `json:"message,omitempty"`
}

// Task is one in-flight or completed execution of a named workflow.
type Task struct {
	ID            string
	Type          string
	Status        Status
	Progress      Progress
	Args          map[string]any
	Result        any
	PartialResult any
	Error         *taskerror.Record
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// Summary is the list-form projection of a task, omitting result/partial
// payloads that tasks.list does not need to surface.
type Summary struct {
	ID        string
	Type      string
	Status    Status
	Progress  Progress
	CreatedAt time.Time
	UpdatedAt time.Time
}

// summarize copies the list-relevant fields out of t.
func summarize(t Task) Summary {
	return Summary{
		ID:        t.ID,
		Type:      t.Type,
		Status:    t.Status,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}
