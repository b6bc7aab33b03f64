package save

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/event"
)

func testBoard(title string) *board.Board {
	return &board.Board{Title: title, Columns: []board.Column{{ID: "todo", Title: "To Do"}}}
}

// scriptedWriter records write order and fails or blocks on request.
type scriptedWriter struct {
	mu      sync.Mutex
	written []string
	failOn  map[string]error // board title → error
	gate    chan struct{}    // when set, every write blocks until released
	inWrite chan string      // when set, receives the title as a write begins
}

func (w *scriptedWriter) WriteBoard(ctx context.Context, b *board.Board, opts Options) error {
	if w.inWrite != nil {
		w.inWrite <- b.Title
	}
	if w.gate != nil {
		<-w.gate
	}
	w.mu.Lock()
	w.written = append(w.written, b.Title)
	w.mu.Unlock()
	if w.failOn != nil {
		if err, ok := w.failOn[b.Title]; ok {
			return err
		}
	}
	return nil
}

func (w *scriptedWriter) titles() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

func waitTicket(t *testing.T, ticket *Ticket) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ticket.Wait(ctx); err != nil {
		t.Fatalf("drain never finished: %v", err)
	}
}

func TestSaveBoard_SingleOperation(t *testing.T) {
	writer := &scriptedWriter{}
	m := NewManager(writer, event.NewBus())

	ticket, err := m.SaveBoard(context.Background(), testBoard("a"), Options{Reason: "test"})
	if err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}
	waitTicket(t, ticket)

	if got := ticket.Operation.Status(); got != StatusCompleted {
		t.Errorf("operation status = %q, want completed", got)
	}
	if titles := writer.titles(); len(titles) != 1 || titles[0] != "a" {
		t.Errorf("written boards = %v, want [a]", titles)
	}
	if ticket.Operation.CompletedAt().IsZero() {
		t.Error("terminal operation should record its completion time")
	}
}

func TestSaveBoard_NilBoardRejected(t *testing.T) {
	m := NewManager(&scriptedWriter{}, event.NewBus())
	if _, err := m.SaveBoard(context.Background(), nil, Options{}); err == nil {
		t.Fatal("nil board should be rejected")
	}
}

func TestSaveBoard_SnapshotCloned(t *testing.T) {
	writer := &scriptedWriter{gate: make(chan struct{})}
	m := NewManager(writer, event.NewBus())

	b := testBoard("original")
	ticket, err := m.SaveBoard(context.Background(), b, Options{})
	if err != nil {
		t.Fatalf("SaveBoard failed: %v", err)
	}

	// Mutating the caller's board after enqueue must not affect the write.
	b.Title = "mutated"
	close(writer.gate)
	waitTicket(t, ticket)

	if titles := writer.titles(); titles[0] != "original" {
		t.Errorf("queued snapshot shared state with the caller: wrote %q", titles[0])
	}
}

func TestFIFOCompletionOrder(t *testing.T) {
	writer := &scriptedWriter{gate: make(chan struct{})}
	bus := event.NewBus()
	m := NewManager(writer, bus)

	var mu sync.Mutex
	var completions []string
	m.Subscribe(func(n Notification) {
		if n.Kind == EventSaveCompleted || n.Kind == EventSaveFailed {
			mu.Lock()
			completions = append(completions, n.Operation.Board.Title)
			mu.Unlock()
		}
	})

	// Enqueue A, B, C before any write can finish.
	var last *Ticket
	for _, title := range []string{"a", "b", "c"} {
		ticket, err := m.SaveBoard(context.Background(), testBoard(title), Options{})
		if err != nil {
			t.Fatalf("SaveBoard(%s) failed: %v", title, err)
		}
		last = ticket
	}
	close(writer.gate)
	waitTicket(t, last)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c"}
	if len(completions) != 3 {
		t.Fatalf("completions = %v, want %v", completions, want)
	}
	for i := range want {
		if completions[i] != want[i] {
			t.Errorf("completion[%d] = %q, want %q (strict FIFO)", i, completions[i], want[i])
		}
	}
}

func TestPartialFailureContainment(t *testing.T) {
	writer := &scriptedWriter{
		gate:   make(chan struct{}),
		failOn: map[string]error{"b": fmt.Errorf("disk full")},
	}
	m := NewManager(writer, event.NewBus())

	var tickets []*Ticket
	for _, title := range []string{"a", "b", "c"} {
		ticket, err := m.SaveBoard(context.Background(), testBoard(title), Options{})
		if err != nil {
			t.Fatalf("SaveBoard(%s) failed: %v", title, err)
		}
		tickets = append(tickets, ticket)
	}
	close(writer.gate)
	waitTicket(t, tickets[2])

	wantStatus := []Status{StatusCompleted, StatusFailed, StatusCompleted}
	for i, ticket := range tickets {
		if got := ticket.Operation.Status(); got != wantStatus[i] {
			t.Errorf("operation %d status = %q, want %q", i, got, wantStatus[i])
		}
	}
	if tickets[1].Operation.Err() == nil {
		t.Error("failed operation should carry its cause")
	}
	if titles := writer.titles(); len(titles) != 3 {
		t.Errorf("failure of b aborted the queue: wrote %v", titles)
	}
}

func TestNoOverlappingProcessing(t *testing.T) {
	writer := &scriptedWriter{}
	m := NewManager(writer, event.NewBus())

	type window struct {
		kind  string
		title string
	}
	var mu sync.Mutex
	var transitions []window
	m.Subscribe(func(n Notification) {
		if n.Kind == EventSaveProcessing || n.Kind == EventSaveCompleted {
			mu.Lock()
			transitions = append(transitions, window{n.Kind, n.Operation.Board.Title})
			mu.Unlock()
		}
	})

	t1, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	t2, err := m.SaveBoard(context.Background(), testBoard("b"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, t1)
	waitTicket(t, t2)

	mu.Lock()
	defer mu.Unlock()
	// Every processing window must close before the next one opens.
	open := ""
	for _, tr := range transitions {
		switch tr.kind {
		case EventSaveProcessing:
			if open != "" {
				t.Fatalf("operation %q started processing while %q was in flight", tr.title, open)
			}
			open = tr.title
		case EventSaveCompleted:
			if open != tr.title {
				t.Fatalf("completion of %q did not match open window %q", tr.title, open)
			}
			open = ""
		}
	}
}

func TestSecondCallOnlyEnqueues(t *testing.T) {
	writer := &scriptedWriter{gate: make(chan struct{}), inWrite: make(chan string, 2)}
	m := NewManager(writer, event.NewBus())

	t1, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	<-writer.inWrite // first write is in flight

	t2, err := m.SaveBoard(context.Background(), testBoard("b"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	status := m.Status()
	if !status.Draining {
		t.Error("manager should report draining while a write is in flight")
	}
	if status.QueueLength != 1 {
		t.Errorf("queue length = %d, want 1 (second call only enqueues)", status.QueueLength)
	}
	if status.InFlight == nil || status.InFlight.ID != t1.Operation.ID {
		t.Error("in-flight operation should be the first one")
	}

	close(writer.gate)
	<-writer.inWrite
	waitTicket(t, t1)
	waitTicket(t, t2)

	status = m.Status()
	if status.Draining || status.QueueLength != 0 || status.InFlight != nil {
		t.Errorf("idle manager reports %+v", status)
	}
}

func TestCancelSave(t *testing.T) {
	writer := &scriptedWriter{gate: make(chan struct{}), inWrite: make(chan string, 2)}
	bus := event.NewBus()
	m := NewManager(writer, bus)

	var mu sync.Mutex
	cancelNotices := 0
	m.Subscribe(func(n Notification) {
		if n.Kind == EventSaveCancelled {
			mu.Lock()
			cancelNotices++
			mu.Unlock()
		}
	})

	t1, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	<-writer.inWrite // first operation is processing

	t2, err := m.SaveBoard(context.Background(), testBoard("b"), Options{})
	if err != nil {
		t.Fatal(err)
	}

	if got := m.CancelSave(); got != 2 {
		t.Errorf("CancelSave cancelled %d operations, want 2", got)
	}

	close(writer.gate) // let the blocked write finish
	waitTicket(t, t1)
	waitTicket(t, t2)

	if got := t1.Operation.Status(); got != StatusFailed {
		t.Errorf("in-flight operation status = %q, want failed", got)
	}
	if got := t2.Operation.Status(); got != StatusFailed {
		t.Errorf("queued operation status = %q, want failed", got)
	}
	if status := m.Status(); status.QueueLength != 0 {
		t.Errorf("queue length after cancel = %d, want 0", status.QueueLength)
	}
	mu.Lock()
	defer mu.Unlock()
	if cancelNotices != 2 {
		t.Errorf("cancellation notifications = %d, want 2", cancelNotices)
	}
}

func TestCancelSave_Idle(t *testing.T) {
	m := NewManager(&scriptedWriter{}, event.NewBus())
	if got := m.CancelSave(); got != 0 {
		t.Errorf("cancelling an idle manager cancelled %d operations", got)
	}
}

func TestWriterPanicContained(t *testing.T) {
	panicky := &panicWriter{}
	m := NewManager(panicky, event.NewBus())

	t1, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, t1)

	if got := t1.Operation.Status(); got != StatusFailed {
		t.Errorf("operation status after writer panic = %q, want failed", got)
	}

	// The manager survives and processes later saves.
	panicky.calm = true
	t2, err := m.SaveBoard(context.Background(), testBoard("b"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, t2)
	if got := t2.Operation.Status(); got != StatusCompleted {
		t.Errorf("operation after recovery = %q, want completed", got)
	}
}

type panicWriter struct{ calm bool }

func (w *panicWriter) WriteBoard(ctx context.Context, b *board.Board, opts Options) error {
	if !w.calm {
		panic("writer blew up")
	}
	return nil
}

type recordingGuard struct {
	mu    sync.Mutex
	trace []string
}

func (g *recordingGuard) Pause() {
	g.mu.Lock()
	g.trace = append(g.trace, "pause")
	g.mu.Unlock()
}

func (g *recordingGuard) Resume() {
	g.mu.Lock()
	g.trace = append(g.trace, "resume")
	g.mu.Unlock()
}

func TestChangeGuardPausedAroundWrite(t *testing.T) {
	guard := &recordingGuard{}
	m := NewManager(&scriptedWriter{}, event.NewBus(), WithChangeGuard(guard))

	ticket, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, ticket)

	guard.mu.Lock()
	defer guard.mu.Unlock()
	if len(guard.trace) != 2 || guard.trace[0] != "pause" || guard.trace[1] != "resume" {
		t.Errorf("guard trace = %v, want [pause resume]", guard.trace)
	}
}

func TestLifecycleEventsOnBus(t *testing.T) {
	bus := event.NewBus()
	var mu sync.Mutex
	var types []string
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.Type())
		mu.Unlock()
	})

	m := NewManager(&scriptedWriter{}, bus)
	ticket, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, ticket)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(types)
		mu.Unlock()
		if n >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	hasStarted, hasCompleted := false, false
	for _, tp := range types {
		switch tp {
		case EventSaveStarted:
			hasStarted = true
		case EventSaveCompleted:
			hasCompleted = true
		}
	}
	if !hasStarted || !hasCompleted {
		t.Errorf("bus events = %v, want save-started and save-completed", types)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	m := NewManager(&scriptedWriter{}, event.NewBus())

	var mu sync.Mutex
	count := 0
	unsubscribe := m.Subscribe(func(n Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	unsubscribe()
	unsubscribe()

	ticket, err := m.SaveBoard(context.Background(), testBoard("a"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	waitTicket(t, ticket)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("unsubscribed handler received %d notifications", count)
	}
}
