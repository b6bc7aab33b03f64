package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// DefaultHistoryCapacity bounds the bus execution history.
const DefaultHistoryCapacity = 50

// Bus routes commands to registered handlers. Multiple handlers may be
// registered for one command type; all of them run in registration order.
// Handler failures fail the whole Execute call but leave the bus usable.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string][]Handler
	middlewares []Middleware
	history     []HistoryEntry
	historyCap  int
	logger      *logging.Logger
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithHistoryCapacity overrides the execution history capacity.
func WithHistoryCapacity(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.historyCap = n
		}
	}
}

// WithLogger sets the bus logger.
func WithLogger(logger *logging.Logger) BusOption {
	return func(b *Bus) { b.logger = logger }
}

// NewBus creates a command bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		handlers:   make(map[string][]Handler),
		historyCap: DefaultHistoryCapacity,
		logger:     logging.Default().WithComponent("command-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register appends a handler for the given command type.
func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[commandType] = append(b.handlers[commandType], handler)
	b.logger.Debug("handler registered",
		slog.String("command_type", commandType),
		slog.Int("handler_count", len(b.handlers[commandType])))
}

// AddMiddleware appends a middleware to the pipeline.
func (b *Bus) AddMiddleware(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middlewares = append(b.middlewares, m)
}

// RemoveMiddleware removes the middleware with the given name. Returns true
// if one was removed.
func (b *Bus) RemoveMiddleware(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, m := range b.middlewares {
		if m.Name() == name {
			b.middlewares = append(b.middlewares[:i], b.middlewares[i+1:]...)
			return true
		}
	}
	return false
}

// Execute runs the command through the middleware pipeline and every handler
// registered for its type. A command type with no registered handlers fails
// with an explicit routing error; it is never a silent no-op. Handler errors
// are returned to the caller after the OnError middlewares run — the bus
// never swallows them.
func (b *Bus) Execute(ctx context.Context, cmd Command) (*Result, error) {
	start := time.Now()

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[cmd.CommandType()]...)
	middlewares := append([]Middleware(nil), b.middlewares...)
	b.mu.RUnlock()

	b.logger.Debug("executing command",
		slog.String("command_id", cmd.CommandID()),
		slog.String("command_type", cmd.CommandType()),
		slog.Int("handler_count", len(handlers)))

	fail := func(cause error) (*Result, error) {
		result := Result{
			CommandID:   cmd.CommandID(),
			CommandType: cmd.CommandType(),
			Success:     false,
			Err:         cause,
			Duration:    time.Since(start),
			ExecutedAt:  start,
		}
		for _, m := range middlewares {
			m.OnError(ctx, cmd, cause)
		}
		b.appendHistory(HistoryEntry{Command: cmd, Result: result})
		b.logger.LogError(ctx, cause, "command execution failed",
			slog.String("command_id", cmd.CommandID()),
			slog.String("command_type", cmd.CommandType()),
			slog.Duration("duration", result.Duration))
		return nil, cause
	}

	for _, m := range middlewares {
		if err := m.Before(ctx, cmd); err != nil {
			return fail(bkerrors.NewHandlerError(bkerrors.OpExecute,
				fmt.Errorf("middleware %q rejected command: %w", m.Name(), err)))
		}
	}

	if len(handlers) == 0 {
		return fail(bkerrors.NewRoutingError(bkerrors.OpExecute,
			fmt.Errorf("no handler registered for command type %q", cmd.CommandType())))
	}

	results := make([]interface{}, 0, len(handlers))
	for _, handler := range handlers {
		data, err := handler(ctx, cmd)
		if err != nil {
			return fail(bkerrors.NewHandlerError(bkerrors.OpExecute, err))
		}
		results = append(results, data)
	}

	result := Result{
		CommandID:   cmd.CommandID(),
		CommandType: cmd.CommandType(),
		Success:     true,
		Duration:    time.Since(start),
		ExecutedAt:  start,
	}
	if len(results) == 1 {
		result.Data = results[0]
	} else {
		result.Data = results
	}

	for _, m := range middlewares {
		m.After(ctx, cmd, &result)
	}
	b.appendHistory(HistoryEntry{Command: cmd, Result: result})

	b.logger.Debug("command executed",
		slog.String("command_id", cmd.CommandID()),
		slog.String("command_type", cmd.CommandType()),
		slog.Duration("duration", result.Duration))
	return &result, nil
}

func (b *Bus) appendHistory(entry HistoryEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, entry)
	if len(b.history) > b.historyCap {
		b.history = b.history[len(b.history)-b.historyCap:]
	}
}

// History returns the most recent execution entries, oldest first. A limit of
// zero or less returns the full retained history.
func (b *Bus) History(limit int) []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]HistoryEntry, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}
