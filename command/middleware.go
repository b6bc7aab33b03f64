package command

import (
	"context"
	"log/slog"

	"github.com/c0deZ3R0/go-board-kit/logging"
)

// FuncMiddleware adapts plain functions into a Middleware. Nil hooks are
// safe no-ops.
type FuncMiddleware struct {
	MiddlewareName string
	BeforeFunc     func(ctx context.Context, cmd Command) error
	AfterFunc      func(ctx context.Context, cmd Command, result *Result)
	OnErrorFunc    func(ctx context.Context, cmd Command, err error)
}

func (m *FuncMiddleware) Name() string { return m.MiddlewareName }

func (m *FuncMiddleware) Before(ctx context.Context, cmd Command) error {
	if m.BeforeFunc == nil {
		return nil
	}
	return m.BeforeFunc(ctx, cmd)
}

func (m *FuncMiddleware) After(ctx context.Context, cmd Command, result *Result) {
	if m.AfterFunc != nil {
		m.AfterFunc(ctx, cmd, result)
	}
}

func (m *FuncMiddleware) OnError(ctx context.Context, cmd Command, err error) {
	if m.OnErrorFunc != nil {
		m.OnErrorFunc(ctx, cmd, err)
	}
}

// LoggingMiddleware logs every command execution with its outcome.
type LoggingMiddleware struct {
	logger *logging.Logger
}

// NewLoggingMiddleware creates a LoggingMiddleware. A nil logger uses the
// default.
func NewLoggingMiddleware(logger *logging.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = logging.Default().WithComponent("command-bus")
	}
	return &LoggingMiddleware{logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "logging" }

func (m *LoggingMiddleware) Before(ctx context.Context, cmd Command) error {
	m.logger.DebugContext(ctx, "command received",
		slog.String("command_id", cmd.CommandID()),
		slog.String("command_type", cmd.CommandType()))
	return nil
}

func (m *LoggingMiddleware) After(ctx context.Context, cmd Command, result *Result) {
	m.logger.InfoContext(ctx, "command completed",
		slog.String("command_id", cmd.CommandID()),
		slog.String("command_type", cmd.CommandType()),
		slog.Duration("duration", result.Duration))
}

func (m *LoggingMiddleware) OnError(ctx context.Context, cmd Command, err error) {
	m.logger.LogError(ctx, err, "command failed",
		slog.String("command_id", cmd.CommandID()),
		slog.String("command_type", cmd.CommandType()))
}
