// Package cache owns the single authoritative in-memory board snapshot, its
// monotonic version counter, and change notification to local subscribers.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/event"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// Event types published when the cached snapshot changes.
const (
	EventBoardUpdated     = "board-updated"
	EventBoardInvalidated = "board-invalidated"
)

// BoardUpdatedEvent is published after every successful SetBoard.
type BoardUpdatedEvent struct {
	event.Base
	Board   *board.Board
	Version uint64
}

// BoardInvalidatedEvent is published after every InvalidateBoard.
type BoardInvalidatedEvent struct {
	event.Base
	Version uint64
}

// Change is delivered to cache subscribers on every snapshot transition.
// Board is a deep copy (nil for invalidation); subscribers own it outright.
type Change struct {
	Kind    string
	Board   *board.Board
	Version uint64
	Time    time.Time
}

// Subscriber receives cache change notifications. Notification is
// asynchronous: SetBoard never blocks on subscriber execution, and one
// panicking subscriber never affects the others or the caller.
type Subscriber func(Change)

// PresentationSync is the excluded rendering collaborator notified after
// every cache update. Failures here are logged and must never affect cache
// state or surface to the SetBoard caller.
type PresentationSync interface {
	SyncBoard(b *board.Board, version uint64) error
}

type subscription struct {
	id     string
	fn     Subscriber
	active atomic.Bool
}

// Manager is the sole owner of the current board snapshot. At most one
// current snapshot exists at a time; every snapshot handed out or taken in
// is deep-copied so external mutation cannot bypass SetBoard.
type Manager struct {
	mu        sync.RWMutex
	current   *board.Board
	version   uint64
	lastSync  time.Time
	subs      []*subscription
	presenter PresentationSync
	bus       *event.Bus
	logger    *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithPresentationSync sets the best-effort presentation hook.
func WithPresentationSync(p PresentationSync) Option {
	return func(m *Manager) { m.presenter = p }
}

// WithEventBus mirrors cache changes onto the domain event bus.
func WithEventBus(bus *event.Bus) Option {
	return func(m *Manager) { m.bus = bus }
}

// WithLogger sets the cache logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates an empty cache: no board, version zero.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		logger: logging.Default().WithComponent("cache"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetBoard returns a deep copy of the current snapshot, or nil when no board
// is cached. It never fails.
func (m *Manager) GetBoard() *board.Board {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone()
}

// Snapshot returns a deep copy of the current board together with the
// version it was captured at, read under one lock so the pair is consistent.
func (m *Manager) Snapshot() (*board.Board, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Clone(), m.version
}

// Version returns the current cache version. The version is monotonically
// non-decreasing for the lifetime of the manager and increments exactly once
// per SetBoard or InvalidateBoard call.
func (m *Manager) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// LastSync returns the wall-clock time of the most recent SetBoard.
func (m *Manager) LastSync() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}

// SetBoard deep-clones the input and installs it as the current snapshot,
// bumping the version. Validation is the caller's responsibility; SetBoard
// always succeeds. Subscribers are notified asynchronously with their own
// copies of the new snapshot.
func (m *Manager) SetBoard(b *board.Board) {
	m.mu.Lock()
	m.current = b.Clone()
	m.version++
	m.lastSync = time.Now()
	version := m.version
	m.mu.Unlock()

	m.logger.Debug("board snapshot installed",
		slog.Uint64("version", version),
		slog.Int("task_count", b.TaskCount()))

	m.notify(Change{Kind: EventBoardUpdated, Board: b.Clone(), Version: version, Time: time.Now()})
	m.syncPresentation(b.Clone(), version)

	if m.bus != nil {
		m.bus.PublishAsync(&BoardUpdatedEvent{
			Base:    event.NewBase(EventBoardUpdated),
			Board:   b.Clone(),
			Version: version,
		})
	}
}

// InvalidateBoard clears the current snapshot, bumping the version.
func (m *Manager) InvalidateBoard() {
	m.mu.Lock()
	m.current = nil
	m.version++
	version := m.version
	m.mu.Unlock()

	m.logger.Debug("board snapshot invalidated", slog.Uint64("version", version))

	m.notify(Change{Kind: EventBoardInvalidated, Version: version, Time: time.Now()})
	m.syncPresentation(nil, version)

	if m.bus != nil {
		m.bus.PublishAsync(&BoardInvalidatedEvent{
			Base:    event.NewBase(EventBoardInvalidated),
			Version: version,
		})
	}
}

// Subscribe registers a change subscriber and returns an idempotent
// unsubscribe closure. Unsubscription tombstones the registration rather
// than splicing the list, so it is safe during dispatch.
func (m *Manager) Subscribe(fn Subscriber) func() {
	sub := &subscription{id: uuid.NewString(), fn: fn}
	sub.active.Store(true)

	m.mu.Lock()
	live := m.subs[:0]
	for _, existing := range m.subs {
		if existing.active.Load() {
			live = append(live, existing)
		}
	}
	m.subs = append(live, sub)
	count := len(m.subs)
	m.mu.Unlock()

	m.logger.Debug("cache subscriber added",
		slog.String("subscription_id", sub.id),
		slog.Int("subscriber_count", count))

	return func() { sub.active.Store(false) }
}

// notify fans the change out to subscribers off the caller's stack.
func (m *Manager) notify(change Change) {
	m.mu.RLock()
	targets := append([]*subscription(nil), m.subs...)
	m.mu.RUnlock()

	for _, sub := range targets {
		go func(s *subscription) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("cache subscriber panic recovered",
						slog.Any("panic", r),
						slog.String("subscription_id", s.id),
						slog.String("change_kind", change.Kind))
				}
			}()
			if s.active.Load() {
				s.fn(change)
			}
		}(sub)
	}
}

// syncPresentation invokes the presentation hook best-effort. A failing or
// panicking presenter only produces a log line.
func (m *Manager) syncPresentation(b *board.Board, version uint64) {
	if m.presenter == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("presentation sync panic recovered", slog.Any("panic", r))
			}
		}()
		if err := m.presenter.SyncBoard(b, version); err != nil {
			m.logger.LogError(context.Background(), err, "presentation sync failed",
				slog.Uint64("version", version))
		}
	}()
}
