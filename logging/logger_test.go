package logging

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/c0deZ3R0/go-board-kit/errors"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := NewLogger(Config{Level: tt.level, Format: "text"})
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
			if !logger.Enabled(context.Background(), tt.want) {
				t.Errorf("logger with level %q should enable %v", tt.level, tt.want)
			}
		})
	}
}

func TestDefault_LazyInit(t *testing.T) {
	defaultLogger = nil
	logger := Default()
	if logger == nil {
		t.Fatal("Default() should lazily initialize the logger")
	}
}

func TestWithComponent(t *testing.T) {
	logger := NewLogger(Config{Level: "debug", Format: "text"})
	child := logger.WithComponent("save")
	if child == nil || child.Logger == nil {
		t.Fatal("WithComponent should return a usable child logger")
	}
	// Must not panic.
	child.Debug("test message", "key", "value")
}

func TestLogOperation_PropagatesError(t *testing.T) {
	logger := NewLogger(Config{Level: "error", Format: "text"})
	wantErr := errors.New(errors.OpSave, fmt.Errorf("boom"))

	err := logger.LogOperation(context.Background(), "save", "save", func() error {
		return wantErr
	})
	if err != wantErr {
		t.Errorf("LogOperation should return the inner error, got %v", err)
	}

	if err := logger.LogOperation(context.Background(), "save", "save", func() error { return nil }); err != nil {
		t.Errorf("LogOperation should return nil on success, got %v", err)
	}
}
