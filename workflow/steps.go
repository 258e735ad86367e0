package workflow

import (
	"context"
	"time"

	"github.com/cartograph-dev/cartograph/taskstore"
)

// Step records one named workflow step's wall-clock duration, for the
// "steps" observability field every workflow emits in its result.
type Step struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
}

// StepTracker accumulates Step records across a workflow's lifetime and
// mirrors the current step into taskstore progress as it goes.
type StepTracker struct {
	store  *taskstore.Store
	taskID string
	steps  []Step
	total  int
	done   int
}

// NewStepTracker constructs a tracker against the given task, with total
// naming the number of steps the workflow expects to run (used for the
// progress record's Total field; it is advisory, not enforced).
func NewStepTracker(store *taskstore.Store, taskID string, total int) *StepTracker {
	return &StepTracker{store: store, taskID: taskID, total: total}
}

// Run executes fn, records its duration under name, advances the completed
// count, and mirrors the step name into task progress before fn starts.
func (t *StepTracker) Run(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	_ = t.store.UpdateProgress(t.taskID, taskstore.Progress{Step: name, Completed: t.done, Total: t.total})
	start := time.Now()
	err := fn(ctx)
	t.steps = append(t.steps, Step{Name: name, DurationMs: time.Since(start).Milliseconds()})
	t.done++
	return err
}

// Steps returns the recorded steps in order.
func (t *StepTracker) Steps() []Step {
	out := make([]Step, len(t.steps))
	copy(out, t.steps)
	return out
}

// Progress publishes an ad-hoc progress message without recording a step,
// used for fine-grained updates within a single long-running step (e.g.
// poll-to-idle's found/analyzed mirroring).
func (t *StepTracker) Progress(step string, message string) {
	_ = t.store.UpdateProgress(t.taskID, taskstore.Progress{Step: step, Completed: t.done, Total: t.total, Message: message})
}

// Cancelled reports whether the task's context has been cancelled, the
// single checkpoint primitive every workflow must consult after create,
// after each poll, between parallel branches, and before each research
// call.
func Cancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
