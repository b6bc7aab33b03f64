// Package save serializes durable board writes: a FIFO queue of save
// operations drained one at a time, with partial-failure isolation and
// best-effort cancellation.
package save

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/event"
)

// Status is the lifecycle state of a save operation. An operation moves
// queued → processing → completed|failed and never re-enters queued.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Notification kinds and domain event types emitted by the manager.
const (
	EventSaveStarted    = "save-started"
	EventSaveProcessing = "save-processing"
	EventSaveCompleted  = "save-completed"
	EventSaveFailed     = "save-failed"
	EventSaveCancelled  = "save-cancelled"
)

// Options carries free-form per-save settings.
type Options struct {
	// Reason describes why the save was requested (audit only)
	Reason string

	// Force skips the pre-save conflict check in the coordinator
	Force bool

	// Metadata holds arbitrary caller data carried through lifecycle events
	Metadata map[string]interface{}
}

// Operation is one queued request to persist a board snapshot. The manager
// owns it until it reaches a terminal status; it is never resurrected.
type Operation struct {
	ID        string
	Board     *board.Board
	Options   Options
	CreatedAt time.Time

	mu          sync.Mutex
	status      Status
	err         error
	completedAt time.Time
}

func newOperation(b *board.Board, opts Options) *Operation {
	return &Operation{
		ID:        uuid.NewString(),
		Board:     b.Clone(),
		Options:   opts,
		CreatedAt: time.Now(),
		status:    StatusQueued,
	}
}

// Status returns the operation's current lifecycle state.
func (o *Operation) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Err returns the failure cause for a failed operation, else nil.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// CompletedAt returns when the operation reached a terminal status.
func (o *Operation) CompletedAt() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completedAt
}

func (o *Operation) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
	if s == StatusCompleted || s == StatusFailed {
		o.completedAt = time.Now()
	}
}

// failIfNotTerminal marks the operation failed unless it already reached a
// terminal status. Reports whether the transition happened.
func (o *Operation) failIfNotTerminal(cause error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status == StatusCompleted || o.status == StatusFailed {
		return false
	}
	o.status = StatusFailed
	o.err = cause
	o.completedAt = time.Now()
	return true
}

// DocumentWriter is the excluded collaborator that renders and persists a
// board. The manager treats it as an opaque operation that can fail.
type DocumentWriter interface {
	WriteBoard(ctx context.Context, b *board.Board, opts Options) error
}

// ChangeGuard pauses external change detection around the manager's own
// writes so they are not reported back as external modifications.
type ChangeGuard interface {
	Pause()
	Resume()
}

// Notification is delivered to manager subscribers on every operation
// lifecycle transition.
type Notification struct {
	Kind        string
	Operation   *Operation
	QueueLength int
	Time        time.Time
}

// Subscriber receives save lifecycle notifications.
type Subscriber func(Notification)

// QueueStatus is a point-in-time report of the manager's queue.
type QueueStatus struct {
	Draining    bool
	QueueLength int
	InFlight    *Operation
}

// Ticket is the handle returned by SaveBoard. Done is closed when the
// drain invocation observed by the call has finished; that drain may also
// cover operations enqueued by other callers.
type Ticket struct {
	Operation *Operation
	Done      <-chan struct{}
}

// Wait blocks until the observed drain finishes or the context ends.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.Done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SaveStartedEvent is published when an operation is enqueued.
type SaveStartedEvent struct {
	event.Base
	OperationID string
}

// SaveCompletedEvent is published when an operation's write succeeds.
type SaveCompletedEvent struct {
	event.Base
	OperationID string
	Duration    time.Duration
}

// SaveFailedEvent is published when an operation's write fails.
type SaveFailedEvent struct {
	event.Base
	OperationID string
	Err         error
}

// SaveCancelledEvent is published for every operation failed by CancelSave.
type SaveCancelledEvent struct {
	event.Base
	OperationID string
}
