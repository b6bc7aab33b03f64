package conflict

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
)

// ConcurrentModificationRule fires when the board has unsaved local edits,
// the user is not mid-edit, and the change detector confirms the file was
// modified outside the editor.
type ConcurrentModificationRule struct {
	detector ChangeDetector
}

// NewConcurrentModificationRule creates the rule around a change detector.
func NewConcurrentModificationRule(detector ChangeDetector) *ConcurrentModificationRule {
	return &ConcurrentModificationRule{detector: detector}
}

func (r *ConcurrentModificationRule) Name() string { return TypeConcurrentModification }

func (r *ConcurrentModificationRule) Detect(ctx context.Context, cc Context) ([]Conflict, error) {
	if !cc.HasUnsavedChanges || cc.IsEditing {
		return nil, nil
	}
	if r.detector == nil {
		return nil, bkerrors.NewConflictError(bkerrors.OpDetect,
			fmt.Errorf("no change detector configured"))
	}

	changed, err := r.detector.HasExternalChange(ctx, cc.Path)
	if err != nil {
		return nil, bkerrors.NewWithComponent(bkerrors.OpDetect, "detector", err)
	}
	if !changed {
		return nil, nil
	}

	return []Conflict{{
		ID:          uuid.NewString(),
		Type:        TypeConcurrentModification,
		Severity:    SeverityHigh,
		Description: fmt.Sprintf("%s was modified outside the editor while local edits are unsaved", cc.Path),
		Context:     cc,
		DetectedAt:  time.Now(),
		SuggestedResolutions: []Resolution{
			ResolutionSave,
			ResolutionDiscardLocal,
			ResolutionBackupAndReload,
		},
	}}, nil
}

// FileDeletedRule is a slot for detecting deletion of the backing document.
// Detection is not implemented yet; the rule reports no conflicts.
type FileDeletedRule struct{}

func (r *FileDeletedRule) Name() string { return TypeFileDeleted }

func (r *FileDeletedRule) Detect(ctx context.Context, cc Context) ([]Conflict, error) {
	return nil, nil
}

// PermissionDeniedRule is a slot for surfacing write-permission failures.
// Detection is not implemented yet; the rule reports no conflicts.
type PermissionDeniedRule struct{}

func (r *PermissionDeniedRule) Name() string { return TypePermissionDenied }

func (r *PermissionDeniedRule) Detect(ctx context.Context, cc Context) ([]Conflict, error) {
	return nil, nil
}

// TransportErrorRule is a slot for surfacing storage transport failures.
// Detection is not implemented yet; the rule reports no conflicts.
type TransportErrorRule struct{}

func (r *TransportErrorRule) Name() string { return TypeTransportError }

func (r *TransportErrorRule) Detect(ctx context.Context, cc Context) ([]Conflict, error) {
	return nil, nil
}

// DefaultRules returns the fixed, ordered rule chain used by the manager
// when none is supplied.
func DefaultRules(detector ChangeDetector) []Rule {
	return []Rule{
		NewConcurrentModificationRule(detector),
		&FileDeletedRule{},
		&PermissionDeniedRule{},
		&TransportErrorRule{},
	}
}
