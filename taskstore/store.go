package taskstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cartograph-dev/cartograph/taskerror"
)

// DefaultTTL is how long a task record survives after entering a terminal
// state before the sweeper removes it.
const DefaultTTL = time.Hour

// DefaultSweepInterval is how often the background sweeper runs cleanup.
const DefaultSweepInterval = 5 * time.Minute

// DefaultMaxConcurrent is the soft cap on non-terminal tasks the store
// admits at once.
const DefaultMaxConcurrent = 20

// ErrNotFound is returned when an operation names a task id the store does
// not hold.
var ErrNotFound = taskerror.New(taskerror.KindInternal, "taskstore", "task not found")

// ErrAtCapacity is returned by Create when the store already holds
// MaxConcurrent non-terminal tasks.
var ErrAtCapacity = taskerror.New(taskerror.KindInternal, "taskstore", "at concurrent task capacity")

// Options configures a Store.
type Options struct {
	// TTL is how long a terminal task survives before Cleanup removes it.
	// Zero means DefaultTTL.
	TTL time.Duration
	// MaxConcurrent bounds non-terminal tasks. Zero means DefaultMaxConcurrent;
	// negative means unbounded.
	MaxConcurrent int
	// SweepInterval configures the background sweeper cadence. Zero means
	// DefaultSweepInterval; negative disables the background sweeper (callers
	// must invoke Cleanup themselves, e.g. in tests).
	SweepInterval time.Duration
}

// entry is the store's internal record: the public Task plus the
// cancellation handle workflow.Cancelled checkpoints observe.
type entry struct {
	task   Task
	cancel context.CancelFunc
}

// Store is the in-process registry of tasks. All
// operations are safe under concurrent use; a single task's lifecycle is
// linearizable because every mutation holds the store's mutex for its
// duration. The store holds no reference to any workflow or upstream
// resource; it is pure bookkeeping, returning defensive copies on access.
type Store struct {
	mu            sync.Mutex
	tasks         map[string]*entry
	ttl           time.Duration
	maxConcurrent int

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// New constructs a Store per opts and starts its background TTL sweeper
// unless SweepInterval is negative.
func New(opts Options) *Store {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	s := &Store{
		tasks:         make(map[string]*entry),
		ttl:           ttl,
		maxConcurrent: maxConcurrent,
	}

	interval := opts.SweepInterval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	if interval > 0 {
		s.sweepStop = make(chan struct{})
		s.sweepDone = make(chan struct{})
		go s.sweepLoop(interval)
	}
	return s
}

func (s *Store) sweepLoop(interval time.Duration) {
	defer close(s.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.sweepStop:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}

// Close stops the background sweeper, if one is running, and blocks until
// it has exited. Close is idempotent.
func (s *Store) Close() {
	if s.sweepStop == nil {
		return
	}
	select {
	case <-s.sweepStop:
	default:
		close(s.sweepStop)
	}
	<-s.sweepDone
}

// Create registers a new task of the given workflow type with the given
// opaque arguments. The returned task is Pending. Create fails with
// ErrAtCapacity if the store already holds MaxConcurrent non-terminal
// tasks (the cap is non-positive-disabled when MaxConcurrent < 0).
func (s *Store) Create(workflowType string, args map[string]any) (Task, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxConcurrent >= 0 && s.countNonTerminalLocked() >= s.maxConcurrent {
		return Task{}, nil, ErrAtCapacity
	}

	now := time.Now()
	id := "task_" + uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	t := Task{
		ID:        id,
		Type:      workflowType,
		Status:    StatusPending,
		Args:      cloneArgs(args),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[id] = &entry{task: t, cancel: cancel}
	return t, ctx, nil
}

func (s *Store) countNonTerminalLocked() int {
	n := 0
	for _, e := range s.tasks {
		if !e.task.Status.Terminal() {
			n++
		}
	}
	return n
}

// Get returns a defensive copy of the task with the given id.
func (s *Store) Get(id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return e.task, nil
}

// List returns summary-form copies of every task, optionally filtered by
// status. A nil or empty statusFilter returns every task.
func (s *Store) List(statusFilter ...Status) []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	filter := make(map[Status]bool, len(statusFilter))
	for _, st := range statusFilter {
		filter[st] = true
	}

	out := make([]Summary, 0, len(s.tasks))
	for _, e := range s.tasks {
		if len(filter) > 0 && !filter[e.task.Status] {
			continue
		}
		out = append(out, summarize(e.task))
	}
	return out
}

// UpdateStatus transitions the task to status, ignoring illegal
// transitions (anything once the task is terminal, or a move back to
// pending) without returning an error.
func (s *Store) UpdateStatus(id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return nil
	}
	if status == StatusPending && e.task.Status != StatusPending {
		return nil
	}
	e.task.Status = status
	e.task.UpdatedAt = time.Now()
	if status.Terminal() {
		e.task.ExpiresAt = e.task.UpdatedAt.Add(s.ttl)
	}
	return nil
}

// UpdateProgress overwrites the task's progress record. It is a hint, not a
// synchronization point, and may be called at any frequency including after
// the task has gone terminal (in which case it is silently ignored).
func (s *Store) UpdateProgress(id string, progress Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return nil
	}
	e.task.Progress = progress
	e.task.UpdatedAt = time.Now()
	return nil
}

// SetPartialResult stashes a checkpoint result, visible via Get
// before the task reaches a terminal state.
func (s *Store) SetPartialResult(id string, partial any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return nil
	}
	e.task.PartialResult = partial
	e.task.UpdatedAt = time.Now()
	return nil
}

// SetResult marks the task Completed with the given final result. Once
// terminal, the result is immutable: calling SetResult/SetError again is a
// no-op.
func (s *Store) SetResult(id string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return nil
	}
	e.task.Status = StatusCompleted
	e.task.Result = result
	e.task.UpdatedAt = time.Now()
	e.task.ExpiresAt = e.task.UpdatedAt.Add(s.ttl)
	return nil
}

// SetError marks the task Failed with the given error record.
func (s *Store) SetError(id string, errRecord *taskerror.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return nil
	}
	e.task.Status = StatusFailed
	e.task.Error = errRecord
	e.task.UpdatedAt = time.Now()
	e.task.ExpiresAt = e.task.UpdatedAt.Add(s.ttl)
	return nil
}

// Cancel flips the task to Cancelled and cancels its context, waking any
// poll-to-idle loop or semaphore acquire blocked on it. It is advisory: the
// workflow goroutine observes cancellation at its next checkpoint, not
// synchronously. Returns false if the task does not exist or is already
// terminal.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok || e.task.Status.Terminal() {
		return false
	}
	e.task.Status = StatusCancelled
	e.task.UpdatedAt = time.Now()
	e.task.ExpiresAt = e.task.UpdatedAt.Add(s.ttl)
	e.cancel()
	return true
}

// Delete removes the task record unconditionally, even if it is still
// live, cancelling its context first so any running workflow observes
// cancellation.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return false
	}
	e.cancel()
	delete(s.tasks, id)
	return true
}

// Cleanup removes every terminal task whose ExpiresAt has passed and
// returns the number removed.
func (s *Store) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, e := range s.tasks {
		if e.task.Status.Terminal() && !e.task.ExpiresAt.IsZero() && now.After(e.task.ExpiresAt) {
			delete(s.tasks, id)
			n++
		}
	}
	return n
}

func cloneArgs(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
