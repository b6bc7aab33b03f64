// Package filestore persists a rendered board document to a file on disk.
// The textual representation is pluggable: the markdown renderer and parser
// of the surrounding editor are injected, with a JSON form as the default.
package filestore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/c0deZ3R0/go-board-kit/board"
	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/logging"
	"github.com/c0deZ3R0/go-board-kit/save"
)

// Renderer turns a board into its on-disk textual form.
type Renderer func(b *board.Board) ([]byte, error)

// Parser turns the on-disk textual form back into a board.
type Parser func(data []byte) (*board.Board, error)

// JSONRenderer is the default Renderer: indented JSON.
func JSONRenderer(b *board.Board) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// JSONParser is the default Parser.
func JSONParser(data []byte) (*board.Board, error) {
	var b board.Board
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// Store writes rendered boards to a single document path. Writes are atomic:
// the content lands in a temp file in the same directory and is renamed over
// the target, so readers never observe a half-written document.
type Store struct {
	path   string
	render Renderer
	parse  Parser
	mode   os.FileMode
	logger *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRenderer overrides the default JSON renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Store) { s.render = r }
}

// WithParser overrides the default JSON parser.
func WithParser(p Parser) Option {
	return func(s *Store) { s.parse = p }
}

// WithFileMode sets the mode for created documents. Defaults to 0644.
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) { s.mode = mode }
}

// New creates a file-backed document store for one path.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, bkerrors.NewValidationError(bkerrors.OpStore, fmt.Errorf("document path is required"))
	}
	s := &Store{
		path:   path,
		render: JSONRenderer,
		parse:  JSONParser,
		mode:   0o644,
		logger: logging.Default().WithComponent("filestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the document path this store writes to.
func (s *Store) Path() string { return s.path }

// WriteBoard renders the board and atomically replaces the document.
func (s *Store) WriteBoard(ctx context.Context, b *board.Board, opts save.Options) error {
	if err := ctx.Err(); err != nil {
		return bkerrors.New(bkerrors.OpStore, err)
	}

	data, err := s.render(b)
	if err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, fmt.Errorf("render board: %w", err))
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".board-*.tmp")
	if err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}
	if err := tmp.Close(); err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}

	s.logger.Debug("document written",
		slog.String("path", s.path),
		slog.Int("bytes", len(data)),
		slog.String("reason", opts.Reason))
	return nil
}

// ReadBoard parses the current document contents.
func (s *Store) ReadBoard(ctx context.Context) (*board.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, bkerrors.New(bkerrors.OpLoad, err)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	b, err := s.parse(data)
	if err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, fmt.Errorf("parse board: %w", err))
	}
	return b, nil
}

// ContentHash returns the sha1 of the current document, or empty when the
// document does not exist yet.
func (s *Store) ContentHash(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", bkerrors.New(bkerrors.OpLoad, err)
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
