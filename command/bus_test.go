package command

import (
	"context"
	"errors"
	"fmt"
	"testing"

	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
)

type moveTaskCommand struct {
	Base
	TaskID   string
	ColumnID string
}

func newMoveTaskCommand(taskID, columnID string) *moveTaskCommand {
	return &moveTaskCommand{Base: NewBase("move-task"), TaskID: taskID, ColumnID: columnID}
}

func TestExecute_NoHandlerRejected(t *testing.T) {
	bus := NewBus()

	invoked := false
	bus.Register("other-type", func(ctx context.Context, cmd Command) (interface{}, error) {
		invoked = true
		return nil, nil
	})

	result, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done"))
	if err == nil {
		t.Fatal("expected a routing error for an unhandled command type")
	}
	if result != nil {
		t.Error("failed execution should not return a result")
	}
	if invoked {
		t.Error("no handler should have been invoked")
	}

	var coordErr *bkerrors.CoordError
	if !errors.As(err, &coordErr) || coordErr.Code != bkerrors.ErrCodeRoutingFailure {
		t.Errorf("expected ROUTING_FAILURE, got %v", err)
	}
}

func TestExecute_SingleHandlerData(t *testing.T) {
	bus := NewBus()
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return "moved", nil
	})

	result, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Error("result should report success")
	}
	if result.Data != "moved" {
		t.Errorf("single handler result should be the bare value, got %v", result.Data)
	}
}

func TestExecute_MultiHandlerAggregation(t *testing.T) {
	bus := NewBus()
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return "first", nil
	})
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return "second", nil
	})

	result, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done"))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	data, ok := result.Data.([]interface{})
	if !ok {
		t.Fatalf("multi-handler result should be a slice, got %T", result.Data)
	}
	if len(data) != 2 || data[0] != "first" || data[1] != "second" {
		t.Errorf("results out of registration order: %v", data)
	}
}

func TestExecute_HandlerErrorPropagates(t *testing.T) {
	bus := NewBus()
	cause := fmt.Errorf("column is locked")
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, cause
	})

	_, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done"))
	if err == nil {
		t.Fatal("handler error must propagate to the caller")
	}
	if !errors.Is(err, cause) {
		t.Errorf("original error should be reachable via errors.Is, got %v", err)
	}

	// Bus stays usable after a failure.
	bus.Register("add-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return "ok", nil
	})
	if _, err := bus.Execute(context.Background(), &struct{ Base }{NewBase("add-task")}); err != nil {
		t.Errorf("bus should remain usable after a handler failure: %v", err)
	}
}

func TestExecute_MiddlewareOrder(t *testing.T) {
	bus := NewBus()
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, nil
	})

	var trace []string
	for _, name := range []string{"m1", "m2"} {
		name := name
		bus.AddMiddleware(&FuncMiddleware{
			MiddlewareName: name,
			BeforeFunc: func(ctx context.Context, cmd Command) error {
				trace = append(trace, "before-"+name)
				return nil
			},
			AfterFunc: func(ctx context.Context, cmd Command, result *Result) {
				trace = append(trace, "after-"+name)
			},
		})
	}

	if _, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done")); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	want := []string{"before-m1", "before-m2", "after-m1", "after-m2"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, trace[i], want[i])
		}
	}
}

func TestExecute_OnErrorMiddleware(t *testing.T) {
	bus := NewBus()

	var onErrorCalls int
	var afterCalls int
	bus.AddMiddleware(&FuncMiddleware{
		MiddlewareName: "observer",
		AfterFunc:      func(ctx context.Context, cmd Command, result *Result) { afterCalls++ },
		OnErrorFunc:    func(ctx context.Context, cmd Command, err error) { onErrorCalls++ },
	})

	// Routing failure: OnError runs, After does not.
	if _, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done")); err == nil {
		t.Fatal("expected routing error")
	}
	if onErrorCalls != 1 || afterCalls != 0 {
		t.Errorf("after routing failure: onError=%d after=%d, want 1/0", onErrorCalls, afterCalls)
	}

	// Handler failure: OnError runs again.
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, fmt.Errorf("boom")
	})
	if _, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done")); err == nil {
		t.Fatal("expected handler error")
	}
	if onErrorCalls != 2 || afterCalls != 0 {
		t.Errorf("after handler failure: onError=%d after=%d, want 2/0", onErrorCalls, afterCalls)
	}
}

func TestExecute_BeforeMiddlewareRejects(t *testing.T) {
	bus := NewBus()

	invoked := false
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		invoked = true
		return nil, nil
	})
	bus.AddMiddleware(&FuncMiddleware{
		MiddlewareName: "gate",
		BeforeFunc: func(ctx context.Context, cmd Command) error {
			return fmt.Errorf("rejected")
		},
	})

	if _, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done")); err == nil {
		t.Fatal("expected before-hook rejection to fail the execution")
	}
	if invoked {
		t.Error("handler must not run when a before hook rejects")
	}
}

func TestRemoveMiddleware(t *testing.T) {
	bus := NewBus()
	bus.AddMiddleware(&FuncMiddleware{MiddlewareName: "gate"})

	if !bus.RemoveMiddleware("gate") {
		t.Error("expected removal of existing middleware")
	}
	if bus.RemoveMiddleware("gate") {
		t.Error("second removal should report false")
	}
}

func TestHistory_BoundedEviction(t *testing.T) {
	bus := NewBus(WithHistoryCapacity(3))
	bus.Register("move-task", func(ctx context.Context, cmd Command) (interface{}, error) {
		return nil, nil
	})

	var ids []string
	for i := 0; i < 5; i++ {
		cmd := newMoveTaskCommand("t1", "done")
		ids = append(ids, cmd.CommandID())
		if _, err := bus.Execute(context.Background(), cmd); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}

	history := bus.History(0)
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	// Oldest two evicted.
	for i, entry := range history {
		if entry.Command.CommandID() != ids[i+2] {
			t.Errorf("history[%d] = %q, want %q", i, entry.Command.CommandID(), ids[i+2])
		}
	}
}

func TestHistory_IncludesFailures(t *testing.T) {
	bus := NewBus()

	if _, err := bus.Execute(context.Background(), newMoveTaskCommand("t1", "done")); err == nil {
		t.Fatal("expected routing error")
	}

	history := bus.History(1)
	if len(history) != 1 {
		t.Fatalf("failed executions must be audited, history=%d", len(history))
	}
	if history[0].Result.Success {
		t.Error("audited failure should have Success=false")
	}
	if history[0].Result.Err == nil {
		t.Error("audited failure should carry the causing error")
	}
}
