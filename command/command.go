// Package command routes typed board-mutation commands to registered
// handlers through a middleware pipeline.
package command

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Command is an immutable, uniquely identified request to perform one board
// mutation. Commands are created once and never mutated after creation.
type Command interface {
	// CommandID returns the unique id of this command instance
	CommandID() string

	// CommandType returns the routing discriminant (e.g., "move-task")
	CommandType() string
}

// Base provides the identity fields of a command. Embed it in concrete
// command types.
type Base struct {
	ID   string
	Type string
}

func (b Base) CommandID() string   { return b.ID }
func (b Base) CommandType() string { return b.Type }

// NewBase creates a Base with a fresh uuid.
func NewBase(commandType string) Base {
	return Base{ID: uuid.NewString(), Type: commandType}
}

// Result is the outcome of executing a command. Data holds the single
// handler's return value, or an ordered []interface{} when multiple handlers
// ran.
type Result struct {
	CommandID   string
	CommandType string
	Success     bool
	Data        interface{}
	Err         error
	Duration    time.Duration
	ExecutedAt  time.Time
}

// Handler executes one command and returns its result data.
type Handler func(ctx context.Context, cmd Command) (interface{}, error)

// Middleware wraps every command execution uniformly. Before hooks run in
// registration order ahead of the handlers; a Before error aborts the
// execution. After hooks run in registration order on success. OnError hooks
// run only when a Before hook or a handler fails.
type Middleware interface {
	Name() string
	Before(ctx context.Context, cmd Command) error
	After(ctx context.Context, cmd Command, result *Result)
	OnError(ctx context.Context, cmd Command, err error)
}

// HistoryEntry is one audited command execution.
type HistoryEntry struct {
	Command Command
	Result  Result
}
