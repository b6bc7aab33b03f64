// Package boardkit wires the coordination components into one board editing
// session: event bus, command bus, board cache, conflict manager, save queue,
// document store, optional backup store and external-change watcher.
package boardkit

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/cache"
	"github.com/c0deZ3R0/go-board-kit/command"
	"github.com/c0deZ3R0/go-board-kit/conflict"
	"github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/event"
	"github.com/c0deZ3R0/go-board-kit/logging"
	"github.com/c0deZ3R0/go-board-kit/save"
	"github.com/c0deZ3R0/go-board-kit/storage/filestore"
	"github.com/c0deZ3R0/go-board-kit/storage/sqlite"
	"github.com/c0deZ3R0/go-board-kit/watch"
)

// Sentinel outcomes of a conflict-checked save.
var (
	// ErrSaveSuperseded: a conflict resolution replaced the local board, so
	// the requested save no longer applies.
	ErrSaveSuperseded = stderrors.New("save superseded by conflict resolution")

	// ErrSaveCancelled: the user cancelled the save when prompted.
	ErrSaveCancelled = stderrors.New("save cancelled by conflict resolution")
)

// Coordinator owns one board editing session. All components share its event
// bus; commands flow through its command bus; the cache holds the only
// authoritative in-memory board.
type Coordinator struct {
	cfg    *Config
	logger *logging.Logger

	events    *event.Bus
	commands  *command.Bus
	cache     *cache.Manager
	conflicts *conflict.Manager
	saves     *save.Manager
	store     *filestore.Store
	backups   *sqlite.BackupStore
	watcher   *watch.Watcher
	metrics   MetricsCollector

	effects *coordEffects

	mu      sync.Mutex
	dirty   bool
	editing bool

	unsubSave func()
	closeOnce sync.Once
}

// Builder assembles a Coordinator step by step.
type Builder struct {
	cfg          *Config
	logger       *logging.Logger
	metrics      MetricsCollector
	prompt       conflict.Prompt
	detector     conflict.ChangeDetector
	writer       save.DocumentWriter
	presentation cache.PresentationSync
	middlewares  []command.Middleware
}

// NewBuilder starts a builder for the given document path with defaults.
func NewBuilder(documentPath string) *Builder {
	return &Builder{cfg: DefaultConfig(documentPath)}
}

// FromConfig starts a builder from a loaded Config.
func FromConfig(cfg *Config) *Builder {
	return &Builder{cfg: cfg}
}

// WithLogger sets the structured logger shared by all components.
func (b *Builder) WithLogger(logger *logging.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetrics sets the metrics collector.
func (b *Builder) WithMetrics(m MetricsCollector) *Builder {
	b.metrics = m
	return b
}

// WithPrompt sets the user-facing conflict resolution prompt.
func (b *Builder) WithPrompt(p conflict.Prompt) *Builder {
	b.prompt = p
	return b
}

// WithChangeDetector overrides the external-change detector. Without it the
// watcher detects changes, or nothing does when watching is disabled.
func (b *Builder) WithChangeDetector(d conflict.ChangeDetector) *Builder {
	b.detector = d
	return b
}

// WithDocumentWriter overrides the writer the save queue persists through.
// Defaults to the file store for the configured document path.
func (b *Builder) WithDocumentWriter(w save.DocumentWriter) *Builder {
	b.writer = w
	return b
}

// WithPresentationSync sets the presentation layer notified on cache updates.
func (b *Builder) WithPresentationSync(p cache.PresentationSync) *Builder {
	b.presentation = p
	return b
}

// WithMiddleware appends a command middleware.
func (b *Builder) WithMiddleware(m command.Middleware) *Builder {
	b.middlewares = append(b.middlewares, m)
	return b
}

// Build validates the configuration and wires the Coordinator.
func (b *Builder) Build() (*Coordinator, error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	b.cfg.applyDefaults()
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Default()
	}
	metrics := b.metrics
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}

	store, err := filestore.New(b.cfg.DocumentPath)
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:     b.cfg,
		logger:  logger.WithComponent("coordinator"),
		store:   store,
		metrics: metrics,
	}

	c.events = event.NewBus(
		event.WithHistoryCapacity(b.cfg.EventHistory),
		event.WithLogger(logger),
	)
	c.cache = cache.NewManager(
		cache.WithEventBus(c.events),
		cache.WithPresentationSync(b.presentation),
		cache.WithLogger(logger),
	)

	var detector conflict.ChangeDetector = noopDetector{}
	var guard save.ChangeGuard = noopGuard{}
	if b.cfg.WatchDocument {
		watcher, err := watch.New(b.cfg.DocumentPath, watch.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		c.watcher = watcher
		detector = watcher
		guard = watcher
	}
	if b.detector != nil {
		detector = b.detector
	}

	if b.cfg.BackupDSN != "" {
		backups, err := sqlite.New(sqlite.DefaultConfig(b.cfg.BackupDSN))
		if err != nil {
			c.closeEarly()
			return nil, err
		}
		c.backups = backups
	}

	var writer save.DocumentWriter = store
	if b.writer != nil {
		writer = b.writer
	}
	c.saves = save.NewManager(writer, c.events,
		save.WithChangeGuard(guard),
		save.WithLogger(logger),
	)

	c.effects = &coordEffects{c: c}
	c.conflicts = conflict.NewManager(c.events,
		conflict.WithRules(conflict.DefaultRules(detector)...),
		conflict.WithPrompt(b.prompt),
		conflict.WithEffects(c.effects),
		conflict.WithDefaultResolution(conflict.Resolution(b.cfg.DefaultResolution)),
		conflict.WithLogger(logger),
	)

	c.commands = command.NewBus(
		command.WithHistoryCapacity(b.cfg.CommandHistory),
		command.WithLogger(logger),
	)
	c.commands.AddMiddleware(&metricsMiddleware{metrics: metrics})
	for _, m := range b.middlewares {
		c.commands.AddMiddleware(m)
	}
	c.registerHandlers()

	c.unsubSave = c.saves.Subscribe(c.onSaveNotification)

	c.logger.Info("coordinator ready",
		slog.String("document", b.cfg.DocumentPath),
		slog.Bool("watching", c.watcher != nil),
		slog.Bool("backups", c.backups != nil),
	)
	return c, nil
}

func (c *Coordinator) closeEarly() {
	if c.watcher != nil {
		c.watcher.Close()
	}
	c.events.Close()
}

// Events returns the shared event bus.
func (c *Coordinator) Events() *event.Bus { return c.events }

// Commands returns the command bus.
func (c *Coordinator) Commands() *command.Bus { return c.commands }

// Cache returns the board cache manager.
func (c *Coordinator) Cache() *cache.Manager { return c.cache }

// Saves returns the save manager.
func (c *Coordinator) Saves() *save.Manager { return c.saves }

// Conflicts returns the conflict manager.
func (c *Coordinator) Conflicts() *conflict.Manager { return c.conflicts }

// Execute routes a command through the command bus.
func (c *Coordinator) Execute(ctx context.Context, cmd command.Command) (*command.Result, error) {
	return c.commands.Execute(ctx, cmd)
}

// LoadBoard reads the document from disk into the cache. The loaded snapshot
// is clean: loading never marks the session dirty.
func (c *Coordinator) LoadBoard(ctx context.Context) (*board.Board, error) {
	b, err := c.store.ReadBoard(ctx)
	if err != nil {
		return nil, errors.NewWithComponent(errors.OpLoad, "coordinator", err)
	}
	c.cache.SetBoard(b)
	c.setDirty(false)
	if c.watcher != nil {
		c.watcher.Acknowledge()
	}
	return b, nil
}

// SetEditing flags whether the user is mid-edit. While editing, the
// concurrent-modification rule defers instead of interrupting.
func (c *Coordinator) SetEditing(editing bool) {
	c.mu.Lock()
	c.editing = editing
	c.mu.Unlock()
}

// IsDirty reports whether local edits are not yet persisted.
func (c *Coordinator) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *Coordinator) setDirty(dirty bool) {
	c.mu.Lock()
	c.dirty = dirty
	c.mu.Unlock()
}

// metaCacheVersion carries the cache version a save snapshot was taken at,
// so a completion can tell whether edits landed after it was enqueued.
const metaCacheVersion = "cache_version"

// stampVersion records the captured cache version in the save metadata
// without mutating the caller's map.
func stampVersion(opts save.Options, version uint64) save.Options {
	metadata := make(map[string]interface{}, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata[metaCacheVersion] = version
	opts.Metadata = metadata
	return opts
}

// SaveBoard persists the cached board. Unless opts.Force is set, it first
// runs conflict detection; a detected conflict is resolved before (or
// instead of) the save. Returns ErrSaveSuperseded when a resolution replaced
// the local board, ErrSaveCancelled when the user cancelled.
func (c *Coordinator) SaveBoard(ctx context.Context, opts save.Options) (*save.Ticket, error) {
	b, version := c.cache.Snapshot()
	if b == nil {
		return nil, errors.NewValidationError(errors.OpSave, fmt.Errorf("no board loaded"))
	}

	if !opts.Force {
		ticket, handled, err := c.checkConflicts(ctx)
		if err != nil {
			return nil, err
		}
		if handled {
			return ticket, nil
		}
	}

	return c.saves.SaveBoard(ctx, b, stampVersion(opts, version))
}

// checkConflicts runs detection and resolves anything found. It reports
// whether the conflict flow already settled the save: handled is true when
// the caller should not enqueue its own operation.
func (c *Coordinator) checkConflicts(ctx context.Context) (ticket *save.Ticket, handled bool, err error) {
	cc := c.captureContext()
	found := c.conflicts.DetectConflicts(ctx, cc)
	c.metrics.RecordConflictsDetected(len(found))
	if len(found) == 0 {
		return nil, false, nil
	}

	superseded := false
	for _, cf := range found {
		res, rerr := c.conflicts.ResolveConflict(ctx, cf)
		if rerr != nil {
			return nil, false, rerr
		}
		c.metrics.RecordConflictResolved(string(res))

		switch res {
		case conflict.ResolutionCancel:
			return nil, false, ErrSaveCancelled
		case conflict.ResolutionDiscardLocal, conflict.ResolutionBackupAndReload:
			superseded = true
		case conflict.ResolutionSave:
			ticket = c.effects.takeTicket()
		case conflict.ResolutionIgnore:
			// fall through to the normal enqueue
		}
	}

	if superseded {
		return nil, false, ErrSaveSuperseded
	}
	if ticket != nil {
		return ticket, true, nil
	}
	return nil, false, nil
}

func (c *Coordinator) captureContext() conflict.Context {
	c.mu.Lock()
	dirty, editing := c.dirty, c.editing
	c.mu.Unlock()
	b, version := c.cache.Snapshot()
	return conflict.Context{
		Path:              c.store.Path(),
		Board:             b,
		HasUnsavedChanges: dirty,
		IsEditing:         editing,
		CacheVersion:      version,
	}
}

// onSaveNotification keeps coordinator state and the journal in step with
// save lifecycle transitions.
func (c *Coordinator) onSaveNotification(n save.Notification) {
	op := n.Operation
	switch n.Kind {
	case save.EventSaveCompleted:
		// Clear the dirty flag only when no edit landed after this save's
		// snapshot was taken: a stale completion must not mark newer,
		// still-unpersisted edits clean.
		if v, ok := op.Options.Metadata[metaCacheVersion].(uint64); !ok || v == c.cache.Version() {
			c.setDirty(false)
		}
		if c.watcher != nil {
			c.watcher.Acknowledge()
		}
		c.metrics.RecordSaveDuration(op.CompletedAt().Sub(op.CreatedAt), true)
		c.journal(op, "completed", "")
	case save.EventSaveFailed:
		c.metrics.RecordSaveDuration(op.CompletedAt().Sub(op.CreatedAt), false)
		msg := ""
		if err := op.Err(); err != nil {
			msg = err.Error()
		}
		c.journal(op, "failed", msg)
	case save.EventSaveCancelled:
		c.journal(op, "cancelled", "")
	}
}

func (c *Coordinator) journal(op *save.Operation, status, errMsg string) {
	if c.backups == nil {
		return
	}
	if err := c.backups.RecordSave(context.Background(), op.ID, c.store.Path(), status, errMsg); err != nil {
		c.logger.LogError(context.Background(), err, "failed to journal save outcome",
			slog.String("operation_id", op.ID),
		)
	}
}

// Close releases the coordinator's resources. Queued saves are not waited
// for; call Saves().Status() or hold the last Ticket before closing if the
// queue must drain first.
func (c *Coordinator) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		if c.unsubSave != nil {
			c.unsubSave()
		}
		if c.watcher != nil {
			if err := c.watcher.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if c.backups != nil {
			if err := c.backups.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		c.events.Close()
		c.logger.Info("coordinator closed")
	})
	return stderrors.Join(errs...)
}

// registerHandlers installs the default board mutation handlers.
func (c *Coordinator) registerHandlers() {
	c.commands.Register(CommandSetBoard, c.handleSetBoard)
	c.commands.Register(CommandMoveTask, c.handleMoveTask)
	c.commands.Register(CommandAddTask, c.handleAddTask)
	c.commands.Register(CommandDeleteTask, c.handleDeleteTask)
	c.commands.Register(CommandSaveBoard, c.handleSaveBoard)
}

func (c *Coordinator) handleSetBoard(ctx context.Context, cmd command.Command) (interface{}, error) {
	sc, ok := cmd.(*SetBoardCommand)
	if !ok {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("expected *SetBoardCommand, got %T", cmd))
	}
	if sc.Board == nil {
		return nil, errors.NewValidationError(errors.OpSetBoard, fmt.Errorf("board cannot be nil"))
	}
	c.cache.SetBoard(sc.Board)
	c.setDirty(true)
	return c.cache.Version(), nil
}

func (c *Coordinator) handleMoveTask(ctx context.Context, cmd command.Command) (interface{}, error) {
	mc, ok := cmd.(*MoveTaskCommand)
	if !ok {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("expected *MoveTaskCommand, got %T", cmd))
	}
	b := c.cache.GetBoard()
	if b == nil {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("no board loaded"))
	}
	if !b.MoveTask(mc.TaskID, mc.TargetColumnID, mc.Index) {
		return nil, errors.NewValidationError(errors.OpExecute,
			fmt.Errorf("cannot move task %q to column %q", mc.TaskID, mc.TargetColumnID))
	}
	c.cache.SetBoard(b)
	c.setDirty(true)
	return c.cache.Version(), nil
}

func (c *Coordinator) handleAddTask(ctx context.Context, cmd command.Command) (interface{}, error) {
	ac, ok := cmd.(*AddTaskCommand)
	if !ok {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("expected *AddTaskCommand, got %T", cmd))
	}
	b := c.cache.GetBoard()
	if b == nil {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("no board loaded"))
	}
	col := b.FindColumn(ac.ColumnID)
	if col == nil {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("column %q not found", ac.ColumnID))
	}
	task := ac.Task
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	col.Tasks = append(col.Tasks, task)
	c.cache.SetBoard(b)
	c.setDirty(true)
	return task.ID, nil
}

func (c *Coordinator) handleDeleteTask(ctx context.Context, cmd command.Command) (interface{}, error) {
	dc, ok := cmd.(*DeleteTaskCommand)
	if !ok {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("expected *DeleteTaskCommand, got %T", cmd))
	}
	b := c.cache.GetBoard()
	if b == nil {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("no board loaded"))
	}
	removed := false
	for i := range b.Columns {
		col := &b.Columns[i]
		for j := range col.Tasks {
			if col.Tasks[j].ID == dc.TaskID {
				col.Tasks = append(col.Tasks[:j], col.Tasks[j+1:]...)
				removed = true
				break
			}
		}
		if removed {
			break
		}
	}
	if !removed {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("task %q not found", dc.TaskID))
	}
	c.cache.SetBoard(b)
	c.setDirty(true)
	return c.cache.Version(), nil
}

func (c *Coordinator) handleSaveBoard(ctx context.Context, cmd command.Command) (interface{}, error) {
	sc, ok := cmd.(*SaveBoardCommand)
	if !ok {
		return nil, errors.NewValidationError(errors.OpExecute, fmt.Errorf("expected *SaveBoardCommand, got %T", cmd))
	}
	return c.SaveBoard(ctx, sc.Options)
}

// coordEffects implements conflict.Effects against the coordinator's own
// components. SaveCurrent records the ticket of the save it enqueued so the
// coordinator can hand it back to the caller whose save the conflict settled.
type coordEffects struct {
	c *Coordinator

	mu         sync.Mutex
	lastTicket *save.Ticket
}

func (e *coordEffects) SaveCurrent(ctx context.Context) error {
	b, version := e.c.cache.Snapshot()
	if b == nil {
		return errors.NewValidationError(errors.OpSave, fmt.Errorf("no board loaded"))
	}
	ticket, err := e.c.saves.SaveBoard(ctx, b,
		stampVersion(save.Options{Force: true, Reason: "conflict-resolution"}, version))
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.lastTicket = ticket
	e.mu.Unlock()
	return nil
}

func (e *coordEffects) ReloadFromDisk(ctx context.Context) error {
	b, err := e.c.store.ReadBoard(ctx)
	if err != nil {
		return errors.NewStorageError(errors.OpLoad, err)
	}
	e.c.cache.SetBoard(b)
	e.c.setDirty(false)
	if e.c.watcher != nil {
		e.c.watcher.Acknowledge()
	}
	return nil
}

func (e *coordEffects) Backup(ctx context.Context, b *board.Board, path string) error {
	if e.c.backups == nil {
		return errors.NewStorageError(errors.OpBackup, fmt.Errorf("no backup store configured"))
	}
	_, err := e.c.backups.StoreBackup(ctx, b, path, "conflict-resolution")
	return err
}

func (e *coordEffects) takeTicket() *save.Ticket {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.lastTicket
	e.lastTicket = nil
	return t
}

// noopDetector reports no external changes. Used when watching is disabled.
type noopDetector struct{}

func (noopDetector) HasExternalChange(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// noopGuard is the ChangeGuard when watching is disabled.
type noopGuard struct{}

func (noopGuard) Pause()  {}
func (noopGuard) Resume() {}

// metricsMiddleware records per-command execution metrics.
type metricsMiddleware struct {
	metrics MetricsCollector
}

func (m *metricsMiddleware) Name() string { return "metrics" }

func (m *metricsMiddleware) Before(ctx context.Context, cmd command.Command) error { return nil }

func (m *metricsMiddleware) After(ctx context.Context, cmd command.Command, result *command.Result) {
	m.metrics.RecordCommandDuration(cmd.CommandType(), result.Duration, result.Success)
}

func (m *metricsMiddleware) OnError(ctx context.Context, cmd command.Command, err error) {
	m.metrics.RecordCommandDuration(cmd.CommandType(), 0, false)
}
