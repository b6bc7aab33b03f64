package save

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-board-kit/board"
	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/event"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

type subscription struct {
	id     string
	fn     Subscriber
	active atomic.Bool
}

// Manager owns the save queue. Writes are strictly sequential: a single
// drain loop processes the queue head-to-tail, so completions are observed
// in enqueue order and no two writes ever overlap. One failing operation
// never aborts the rest of the queue.
type Manager struct {
	mu        sync.Mutex
	queue     []*Operation
	draining  bool
	inFlight  *Operation
	drainDone chan struct{}

	writer DocumentWriter
	guard  ChangeGuard
	bus    *event.Bus

	subMu sync.RWMutex
	subs  []*subscription

	logger *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithChangeGuard pauses the given guard around every write.
func WithChangeGuard(g ChangeGuard) Option {
	return func(m *Manager) { m.guard = g }
}

// WithLogger sets the manager logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a save manager that delegates writes to writer and
// publishes lifecycle events on bus.
func NewManager(writer DocumentWriter, bus *event.Bus, opts ...Option) *Manager {
	m := &Manager{
		writer: writer,
		bus:    bus,
		logger: logging.Default().WithComponent("save"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SaveBoard deep-clones the snapshot into a new queued operation, appends it
// to the queue tail, and starts the drain loop unless one is already
// running. The returned ticket's Done channel is closed when the drain
// invocation this call observed has exited — not necessarily when this
// specific operation completes.
func (m *Manager) SaveBoard(ctx context.Context, b *board.Board, opts Options) (*Ticket, error) {
	if b == nil {
		return nil, bkerrors.NewValidationError(bkerrors.OpSave,
			fmt.Errorf("cannot save a nil board"))
	}
	if err := ctx.Err(); err != nil {
		return nil, bkerrors.New(bkerrors.OpSave, err)
	}

	op := newOperation(b, opts)

	m.mu.Lock()
	m.queue = append(m.queue, op)
	queueLen := len(m.queue)
	start := !m.draining
	if start {
		// Flag and channel flip inside the same critical section as the
		// enqueue; the drain loop's empty-queue check uses the same lock.
		m.draining = true
		m.drainDone = make(chan struct{})
	}
	done := m.drainDone
	m.mu.Unlock()

	m.logger.Debug("save operation enqueued",
		slog.String("operation_id", op.ID),
		slog.Int("queue_length", queueLen),
		slog.Bool("drain_started", start))

	m.notify(Notification{Kind: EventSaveStarted, Operation: op, QueueLength: queueLen, Time: time.Now()})
	if m.bus != nil {
		m.bus.Publish(ctx, &SaveStartedEvent{Base: event.NewBase(EventSaveStarted), OperationID: op.ID})
	}

	if start {
		go m.drain(done)
	}
	return &Ticket{Operation: op, Done: done}, nil
}

// drain processes the queue head-to-tail until it is empty, then exits.
// Exactly one drain loop runs at a time.
func (m *Manager) drain(done chan struct{}) {
	defer close(done)

	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.draining = false
			m.mu.Unlock()
			m.logger.Debug("save queue drained")
			return
		}
		op := m.queue[0]
		m.queue = m.queue[1:]
		queueLen := len(m.queue)
		m.inFlight = op
		m.mu.Unlock()

		m.process(op, queueLen)

		m.mu.Lock()
		m.inFlight = nil
		m.mu.Unlock()
	}
}

// process performs one write. The change guard is paused around the write so
// the manager's own file modification is not reported as external.
func (m *Manager) process(op *Operation, queueLen int) {
	// CancelSave may have failed the operation while it sat at the queue
	// head; do not write in that case.
	if op.Status() == StatusFailed {
		return
	}

	op.setStatus(StatusProcessing)
	m.notify(Notification{Kind: EventSaveProcessing, Operation: op, QueueLength: queueLen, Time: time.Now()})
	m.logger.Debug("processing save operation",
		slog.String("operation_id", op.ID),
		slog.Int("remaining_queue", queueLen))

	if m.guard != nil {
		m.guard.Pause()
	}
	start := time.Now()
	err := m.write(op)
	duration := time.Since(start)
	if m.guard != nil {
		m.guard.Resume()
	}

	if err != nil {
		if op.failIfNotTerminal(bkerrors.NewWithComponent(bkerrors.OpSave, "writer", err)) {
			m.notify(Notification{Kind: EventSaveFailed, Operation: op, QueueLength: queueLen, Time: time.Now()})
			if m.bus != nil {
				m.bus.Publish(context.Background(), &SaveFailedEvent{
					Base:        event.NewBase(EventSaveFailed),
					OperationID: op.ID,
					Err:         op.Err(),
				})
			}
			m.logger.LogError(context.Background(), op.Err(), "save operation failed",
				slog.String("operation_id", op.ID),
				slog.Duration("duration", duration))
		}
		return
	}

	// A cancellation that raced the write wins: the operation stays failed.
	if op.Status() == StatusFailed {
		return
	}
	op.setStatus(StatusCompleted)
	m.notify(Notification{Kind: EventSaveCompleted, Operation: op, QueueLength: queueLen, Time: time.Now()})
	if m.bus != nil {
		m.bus.Publish(context.Background(), &SaveCompletedEvent{
			Base:        event.NewBase(EventSaveCompleted),
			OperationID: op.ID,
			Duration:    duration,
		})
	}
	m.logger.Info("save operation completed",
		slog.String("operation_id", op.ID),
		slog.Duration("duration", duration))
}

// write isolates writer panics so one bad write cannot kill the drain loop.
func (m *Manager) write(op *Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("document writer panic: %v", r)
		}
	}()
	return m.writer.WriteBoard(context.Background(), op.Board, op.Options)
}

// CancelSave marks the in-flight operation and every queued operation as
// failed and empties the queue. Cancellation is best-effort: a write already
// delegated to the document writer cannot be interrupted, only its result
// discarded.
func (m *Manager) CancelSave() int {
	m.mu.Lock()
	cancelled := m.queue
	m.queue = nil
	inFlight := m.inFlight
	m.mu.Unlock()

	cause := bkerrors.New(bkerrors.OpCancel, fmt.Errorf("save cancelled"))

	count := 0
	if inFlight != nil && inFlight.failIfNotTerminal(cause) {
		count++
		m.notifyCancelled(inFlight)
	}
	for _, op := range cancelled {
		if op.failIfNotTerminal(cause) {
			count++
			m.notifyCancelled(op)
		}
	}

	if count > 0 {
		m.logger.Info("save operations cancelled", slog.Int("count", count))
	}
	return count
}

func (m *Manager) notifyCancelled(op *Operation) {
	m.notify(Notification{Kind: EventSaveCancelled, Operation: op, Time: time.Now()})
	if m.bus != nil {
		m.bus.Publish(context.Background(), &SaveCancelledEvent{
			Base:        event.NewBase(EventSaveCancelled),
			OperationID: op.ID,
		})
	}
}

// Status reports whether draining is active, the queue length, and the
// in-flight operation if any.
func (m *Manager) Status() QueueStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return QueueStatus{
		Draining:    m.draining,
		QueueLength: len(m.queue),
		InFlight:    m.inFlight,
	}
}

// Subscribe registers a lifecycle subscriber and returns an idempotent
// unsubscribe closure. Registrations are tombstoned, never spliced, so
// unsubscribing during dispatch is safe.
func (m *Manager) Subscribe(fn Subscriber) func() {
	sub := &subscription{id: uuid.NewString(), fn: fn}
	sub.active.Store(true)

	m.subMu.Lock()
	live := m.subs[:0]
	for _, existing := range m.subs {
		if existing.active.Load() {
			live = append(live, existing)
		}
	}
	m.subs = append(live, sub)
	m.subMu.Unlock()

	return func() { sub.active.Store(false) }
}

// notify delivers synchronously in queue order so lifecycle notifications
// are observed in the same order operations were processed. Subscriber
// panics are recovered; one bad subscriber never blocks the others.
func (m *Manager) notify(n Notification) {
	m.subMu.RLock()
	targets := append([]*subscription(nil), m.subs...)
	m.subMu.RUnlock()

	for _, sub := range targets {
		func(s *subscription) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("save subscriber panic recovered",
						slog.Any("panic", r),
						slog.String("subscription_id", s.id),
						slog.String("kind", n.Kind))
				}
			}()
			if s.active.Load() {
				s.fn(n)
			}
		}(sub)
	}
}
