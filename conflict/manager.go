package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/event"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// Event types published by the manager.
const (
	EventConflictsDetected = "conflicts-detected"
	EventConflictResolved  = "conflict-resolved"
)

// ConflictsDetectedEvent is published when a detection pass finds conflicts.
type ConflictsDetectedEvent struct {
	event.Base
	Conflicts []Conflict
}

// ConflictResolvedEvent is published after a resolution has been applied.
type ConflictResolvedEvent struct {
	event.Base
	Conflict   Conflict
	Resolution Resolution
}

// Manager evaluates the rule chain against conflict contexts and drives
// resolution of the conflicts it finds. Detected conflicts live in an
// active-conflicts registry keyed by id until resolved or cleared.
type Manager struct {
	mu                sync.RWMutex
	rules             []Rule
	active            map[string]Conflict
	bus               *event.Bus
	prompt            Prompt
	effects           Effects
	defaultResolution Resolution
	logger            *logging.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRules replaces the default rule chain. Order is preserved.
func WithRules(rules ...Rule) Option {
	return func(m *Manager) { m.rules = rules }
}

// WithPrompt sets the user-facing resolution prompt collaborator.
func WithPrompt(p Prompt) Option {
	return func(m *Manager) { m.prompt = p }
}

// WithEffects sets the collaborator that applies resolution outcomes.
func WithEffects(e Effects) Option {
	return func(m *Manager) { m.effects = e }
}

// WithDefaultResolution overrides the resolution used when no prompt is
// available or the prompt fails. Defaults to ResolutionSave.
func WithDefaultResolution(r Resolution) Option {
	return func(m *Manager) { m.defaultResolution = r }
}

// WithLogger sets the manager logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a conflict manager publishing outcomes on the given bus.
func NewManager(bus *event.Bus, opts ...Option) *Manager {
	m := &Manager{
		active:            make(map[string]Conflict),
		bus:               bus,
		defaultResolution: ResolutionSave,
		logger:            logging.Default().WithComponent("conflict"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// DetectConflicts runs every rule in order against the context and returns
// all conflicts found. A rule that fails or panics is logged and skipped;
// its failure neither stops nor contaminates the other rules. The returned
// conflicts are registered as active, and a conflicts-detected event is
// published when the result is non-empty.
func (m *Manager) DetectConflicts(ctx context.Context, cc Context) []Conflict {
	var found []Conflict

	for _, rule := range m.rules {
		conflicts := m.runRule(ctx, rule, cc)
		found = append(found, conflicts...)
	}

	if len(found) == 0 {
		m.logger.Debug("no conflicts detected", slog.String("path", cc.Path))
		return nil
	}

	m.mu.Lock()
	for _, c := range found {
		m.active[c.ID] = c
	}
	m.mu.Unlock()

	m.logger.Info("conflicts detected",
		slog.Int("conflict_count", len(found)),
		slog.String("path", cc.Path))

	if m.bus != nil {
		m.bus.Publish(ctx, &ConflictsDetectedEvent{
			Base:      event.NewBase(EventConflictsDetected),
			Conflicts: found,
		})
	}
	return found
}

// runRule isolates one rule evaluation: errors and panics are contained.
func (m *Manager) runRule(ctx context.Context, rule Rule, cc Context) (conflicts []Conflict) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("conflict rule panic recovered",
				slog.Any("panic", r),
				slog.String("rule", rule.Name()))
			conflicts = nil
		}
	}()

	conflicts, err := rule.Detect(ctx, cc)
	if err != nil {
		m.logger.LogError(ctx, err, "conflict rule failed, skipping",
			slog.String("rule", rule.Name()))
		return nil
	}
	return conflicts
}

// ResolveConflict obtains a resolution for an active conflict, applies its
// fixed effect, removes the conflict from the registry, and publishes a
// conflict-resolved event. Exactly one resolution is applied per conflict:
// resolving a conflict that is not in the registry (including resolving the
// same conflict twice) is a caller error.
func (m *Manager) ResolveConflict(ctx context.Context, c Conflict) (Resolution, error) {
	m.mu.Lock()
	if _, ok := m.active[c.ID]; !ok {
		m.mu.Unlock()
		return "", bkerrors.NewConflictError(bkerrors.OpResolve,
			fmt.Errorf("conflict %s is not active (already resolved or never detected)", c.ID))
	}
	delete(m.active, c.ID)
	m.mu.Unlock()

	resolution := m.chooseResolution(ctx, c)

	m.logger.Info("resolving conflict",
		slog.String("conflict_id", c.ID),
		slog.String("conflict_type", c.Type),
		slog.String("resolution", string(resolution)))

	if err := m.applyResolution(ctx, c, resolution); err != nil {
		return resolution, err
	}

	if m.bus != nil {
		m.bus.Publish(ctx, &ConflictResolvedEvent{
			Base:       event.NewBase(EventConflictResolved),
			Conflict:   c,
			Resolution: resolution,
		})
	}
	return resolution, nil
}

// chooseResolution asks the prompt collaborator, falling back to the default
// resolution when the prompt is absent or fails.
func (m *Manager) chooseResolution(ctx context.Context, c Conflict) Resolution {
	if m.prompt == nil {
		return m.defaultResolution
	}
	resolution, err := m.prompt.ChooseResolution(ctx, c)
	if err != nil || resolution == "" {
		if err != nil {
			m.logger.LogError(ctx, err, "resolution prompt failed, using default",
				slog.String("conflict_id", c.ID),
				slog.String("default", string(m.defaultResolution)))
		}
		return m.defaultResolution
	}
	return resolution
}

func (m *Manager) applyResolution(ctx context.Context, c Conflict, r Resolution) error {
	switch r {
	case ResolutionIgnore, ResolutionCancel:
		return nil
	}

	if m.effects == nil {
		return bkerrors.NewConflictError(bkerrors.OpResolve,
			fmt.Errorf("resolution %q requires effects but none are configured", r))
	}

	switch r {
	case ResolutionSave:
		return m.effects.SaveCurrent(ctx)
	case ResolutionDiscardLocal:
		return m.effects.ReloadFromDisk(ctx)
	case ResolutionBackupAndReload:
		if err := m.effects.Backup(ctx, c.Context.Board, c.Context.Path); err != nil {
			return bkerrors.NewWithComponent(bkerrors.OpBackup, "conflict", err)
		}
		return m.effects.ReloadFromDisk(ctx)
	default:
		return bkerrors.NewConflictError(bkerrors.OpResolve,
			fmt.Errorf("unknown resolution %q", r))
	}
}

// ActiveConflicts returns the currently registered conflicts.
func (m *Manager) ActiveConflicts() []Conflict {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Conflict, 0, len(m.active))
	for _, c := range m.active {
		out = append(out, c)
	}
	return out
}

// ClearActiveConflicts empties the registry without applying resolutions.
func (m *Manager) ClearActiveConflicts() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[string]Conflict)
}
