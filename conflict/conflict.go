// Package conflict detects and resolves disagreements between local board
// edits and externally observed changes to the underlying document.
package conflict

import (
	"context"
	"time"

	"github.com/c0deZ3R0/go-board-kit/board"
)

// Resolution is one of the fixed actions that can settle a conflict.
type Resolution string

const (
	// ResolutionSave overwrites the external change with the local board.
	ResolutionSave Resolution = "save"
	// ResolutionDiscardLocal reloads from disk, dropping local edits.
	ResolutionDiscardLocal Resolution = "discard_local"
	// ResolutionBackupAndReload backs the local board up, then reloads.
	ResolutionBackupAndReload Resolution = "backup_and_reload"
	// ResolutionIgnore leaves both sides as they are.
	ResolutionIgnore Resolution = "ignore"
	// ResolutionCancel aborts the operation that surfaced the conflict.
	ResolutionCancel Resolution = "cancel"
)

// Severity grades how urgent a conflict is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict types produced by the built-in rules.
const (
	TypeConcurrentModification = "concurrent-modification"
	TypeFileDeleted            = "file-deleted"
	TypePermissionDenied       = "permission-denied"
	TypeTransportError         = "transport-error"
)

// Context carries everything a rule may inspect when deciding whether a
// conflict exists. It is a frozen fact: rules must not mutate it.
type Context struct {
	// Path of the document backing the board
	Path string

	// Board is the local snapshot with unsaved edits, if any
	Board *board.Board

	// HasUnsavedChanges reports whether local edits have not been persisted
	HasUnsavedChanges bool

	// IsEditing reports whether the user is mid-edit right now
	IsEditing bool

	// CacheVersion is the cache version the context was captured at
	CacheVersion uint64

	// Metadata holds free-form rule inputs
	Metadata map[string]interface{}
}

// Conflict is a detected disagreement between local and external state.
type Conflict struct {
	ID                   string
	Type                 string
	Severity             Severity
	Description          string
	Context              Context
	DetectedAt           time.Time
	SuggestedResolutions []Resolution
}

// Rule inspects a context and may produce conflicts. Rules are evaluated in
// a fixed order; a failing rule is skipped without contaminating the others.
type Rule interface {
	Name() string
	Detect(ctx context.Context, cc Context) ([]Conflict, error)
}

// ChangeDetector is the excluded collaborator that answers whether the
// document changed outside the editor's own writes.
type ChangeDetector interface {
	HasExternalChange(ctx context.Context, path string) (bool, error)
}

// Prompt is the excluded user-facing collaborator that surfaces resolution
// choices to a human. When absent or failing, the manager falls back to its
// default resolution.
type Prompt interface {
	ChooseResolution(ctx context.Context, c Conflict) (Resolution, error)
}

// Effects applies the fixed outcome of a chosen resolution. The coordinator
// wires these to the save manager, the document loader, and the backup
// store. Ignore and cancel are no-ops and never reach Effects.
type Effects interface {
	// SaveCurrent persists the current local board, overwriting the file
	SaveCurrent(ctx context.Context) error

	// ReloadFromDisk replaces the local board with the on-disk state
	ReloadFromDisk(ctx context.Context) error

	// Backup stores a durable copy of the local board before a reload
	Backup(ctx context.Context, b *board.Board, path string) error
}
