// Package sqlite provides a SQLite-backed backup store and save journal for
// the board coordination kit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	stdSync "sync"
	"time"

	// Go SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/c0deZ3R0/go-board-kit/board"
	bkerrors "github.com/c0deZ3R0/go-board-kit/errors"
	"github.com/c0deZ3R0/go-board-kit/logging"
)

// Custom errors for better error handling
var (
	ErrStoreClosed    = errors.New("store is closed")
	ErrBackupNotFound = errors.New("backup not found")
)

// Backup is one stored board backup row.
type Backup struct {
	ID        int64
	Path      string
	Reason    string
	Board     *board.Board
	CreatedAt time.Time
}

// JournalEntry is one audited save outcome.
type JournalEntry struct {
	ID          int64
	OperationID string
	Path        string
	Status      string
	Error       string
	CreatedAt   time.Time
}

// Config holds configuration options for the BackupStore.
type Config struct {
	// DataSourceName is the connection string for the SQLite database.
	// Example: "file:backups.db?_journal_mode=WAL"
	DataSourceName string

	// EnableWAL enables Write-Ahead Logging mode for better concurrency.
	// When true, automatically appends "?_journal_mode=WAL" to DataSourceName.
	EnableWAL bool

	// KeepBackups bounds how many backups are retained per path.
	// Older rows past the bound are pruned after each insert. Zero keeps all.
	KeepBackups int

	// Connection pool settings.
	// Defaults: MaxOpen=25, MaxIdle=5, Lifetime=1h, IdleTime=5m
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// setDefaults applies default values to the config
func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnMaxIdleTime == 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	if c.EnableWAL {
		if !strings.Contains(c.DataSourceName, "_journal_mode=") {
			sep := "?"
			if strings.Contains(c.DataSourceName, "?") {
				sep = "&"
			}
			c.DataSourceName += sep + "_journal_mode=WAL"
		}
	}
}

// DefaultConfig returns a Config with production-ready defaults.
func DefaultConfig(dataSourceName string) *Config {
	config := &Config{
		DataSourceName: dataSourceName,
		EnableWAL:      true,
		KeepBackups:    10,
	}
	config.setDefaults()
	return config
}

// BackupStore persists board backups (for the backup-and-reload conflict
// resolution) and a journal of save outcomes.
type BackupStore struct {
	db          *sql.DB
	mu          stdSync.RWMutex
	closed      bool
	keepBackups int
	logger      *logging.Logger
}

// New creates a BackupStore from a Config.
func New(config *Config) (*BackupStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	config.setDefaults()

	if config.DataSourceName == "" {
		return nil, fmt.Errorf("DataSourceName is required")
	}

	logger := logging.WithComponent("backup-store")
	logger.Info("opening SQLite database",
		slog.String("data_source", config.DataSourceName),
		slog.Bool("wal_enabled", config.EnableWAL),
	)

	db, err := sql.Open("sqlite3", config.DataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	store := &BackupStore{
		db:          db,
		keepBackups: config.KeepBackups,
		logger:      logger,
	}

	if err := store.setupSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to setup database schema: %w", err)
	}

	return store, nil
}

func (s *BackupStore) setupSchema() error {
	query := `
    CREATE TABLE IF NOT EXISTS backups (
        id          INTEGER PRIMARY KEY AUTOINCREMENT,
        path        TEXT NOT NULL,
        reason      TEXT,
        board       TEXT NOT NULL,
        created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_backups_path ON backups (path);
    CREATE TABLE IF NOT EXISTS save_journal (
        id            INTEGER PRIMARY KEY AUTOINCREMENT,
        operation_id  TEXT NOT NULL,
        path          TEXT,
        status        TEXT NOT NULL,
        error         TEXT,
        created_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_journal_operation ON save_journal (operation_id);
    `
	_, err := s.db.Exec(query)
	return err
}

// StoreBackup persists a board backup and prunes rows past the retention
// bound for the same path.
func (s *BackupStore) StoreBackup(ctx context.Context, b *board.Board, path, reason string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, bkerrors.NewStorageError(bkerrors.OpBackup, ErrStoreClosed)
	}
	if b == nil {
		return 0, bkerrors.NewValidationError(bkerrors.OpBackup, fmt.Errorf("cannot back up a nil board"))
	}

	data, err := json.Marshal(b)
	if err != nil {
		return 0, bkerrors.NewStorageError(bkerrors.OpBackup, fmt.Errorf("marshal board: %w", err))
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO backups (path, reason, board) VALUES (?, ?, ?)`,
		path, reason, string(data))
	if err != nil {
		return 0, bkerrors.NewStorageError(bkerrors.OpBackup, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, bkerrors.NewStorageError(bkerrors.OpBackup, err)
	}

	if s.keepBackups > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM backups WHERE path = ? AND id NOT IN (
                SELECT id FROM backups WHERE path = ? ORDER BY id DESC LIMIT ?)`,
			path, path, s.keepBackups)
		if err != nil {
			s.logger.LogError(ctx, err, "backup pruning failed", slog.String("path", path))
		}
	}

	s.logger.Info("board backup stored",
		slog.Int64("backup_id", id),
		slog.String("path", path),
		slog.String("reason", reason))
	return id, nil
}

// LatestBackup returns the most recent backup for a path.
func (s *BackupStore) LatestBackup(ctx context.Context, path string) (*Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, ErrStoreClosed)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, path, reason, board, created_at FROM backups
         WHERE path = ? ORDER BY id DESC LIMIT 1`, path)
	return scanBackup(row)
}

// ListBackups returns backups for a path, newest first.
func (s *BackupStore) ListBackups(ctx context.Context, path string, limit int) ([]*Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, ErrStoreClosed)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, path, reason, board, created_at FROM backups
         WHERE path = ? ORDER BY id DESC LIMIT ?`, path, limit)
	if err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	defer rows.Close()

	var backups []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	return backups, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBackup(row rowScanner) (*Backup, error) {
	var (
		b         Backup
		boardJSON string
	)
	err := row.Scan(&b.ID, &b.Path, &b.Reason, &boardJSON, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, ErrBackupNotFound)
	}
	if err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}

	var snapshot board.Board
	if err := json.Unmarshal([]byte(boardJSON), &snapshot); err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, fmt.Errorf("unmarshal board: %w", err))
	}
	b.Board = &snapshot
	return &b, nil
}

// RecordSave appends a save outcome to the journal.
func (s *BackupStore) RecordSave(ctx context.Context, operationID, path, status, errMsg string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return bkerrors.NewStorageError(bkerrors.OpStore, ErrStoreClosed)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO save_journal (operation_id, path, status, error) VALUES (?, ?, ?, ?)`,
		operationID, path, status, errMsg)
	if err != nil {
		return bkerrors.NewStorageError(bkerrors.OpStore, err)
	}
	return nil
}

// SaveJournal returns the most recent journal entries, newest first.
func (s *BackupStore) SaveJournal(ctx context.Context, limit int) ([]*JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, ErrStoreClosed)
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, operation_id, path, status, error, created_at FROM save_journal
         ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.OperationID, &e.Path, &e.Status, &e.Error, &e.CreatedAt); err != nil {
			return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, bkerrors.NewStorageError(bkerrors.OpLoad, err)
	}
	return entries, nil
}

// Close closes the database. Further calls fail with ErrStoreClosed.
func (s *BackupStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return bkerrors.NewStorageError(bkerrors.OpClose, err)
	}
	return nil
}
