package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/c0deZ3R0/go-board-kit/board"
)

func newTestStore(t *testing.T) *BackupStore {
	t.Helper()
	config := DefaultConfig("file::memory:?cache=shared")
	config.EnableWAL = false
	store, err := New(config)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleBoard(title string) *board.Board {
	return &board.Board{
		Title: title,
		Columns: []board.Column{
			{ID: "todo", Title: "To Do", Tasks: []board.Task{{ID: "t1", Title: "a task"}}},
		},
	}
}

func TestStoreBackup_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.StoreBackup(ctx, sampleBoard("Sprint 12"), "/tmp/board.md", "backup_and_reload")
	if err != nil {
		t.Fatalf("StoreBackup failed: %v", err)
	}
	if id == 0 {
		t.Error("expected a non-zero backup id")
	}

	backup, err := store.LatestBackup(ctx, "/tmp/board.md")
	if err != nil {
		t.Fatalf("LatestBackup failed: %v", err)
	}
	if backup.Board.Title != "Sprint 12" {
		t.Errorf("restored board title = %q, want Sprint 12", backup.Board.Title)
	}
	if len(backup.Board.Columns) != 1 || len(backup.Board.Columns[0].Tasks) != 1 {
		t.Error("restored board lost structure")
	}
	if backup.Reason != "backup_and_reload" {
		t.Errorf("reason = %q", backup.Reason)
	}
}

func TestLatestBackup_ReturnsNewest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"v1", "v2", "v3"} {
		if _, err := store.StoreBackup(ctx, sampleBoard(title), "/tmp/board.md", ""); err != nil {
			t.Fatalf("StoreBackup(%s) failed: %v", title, err)
		}
	}

	backup, err := store.LatestBackup(ctx, "/tmp/board.md")
	if err != nil {
		t.Fatalf("LatestBackup failed: %v", err)
	}
	if backup.Board.Title != "v3" {
		t.Errorf("latest backup = %q, want v3", backup.Board.Title)
	}
}

func TestLatestBackup_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.LatestBackup(context.Background(), "/nowhere.md")
	if !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestBackupRetention(t *testing.T) {
	config := DefaultConfig("file:retention?mode=memory&cache=shared")
	config.EnableWAL = false
	config.KeepBackups = 2
	store, err := New(config)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	for _, title := range []string{"v1", "v2", "v3", "v4"} {
		if _, err := store.StoreBackup(ctx, sampleBoard(title), "/tmp/board.md", ""); err != nil {
			t.Fatalf("StoreBackup(%s) failed: %v", title, err)
		}
	}

	backups, err := store.ListBackups(ctx, "/tmp/board.md", 10)
	if err != nil {
		t.Fatalf("ListBackups failed: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("retained %d backups, want 2", len(backups))
	}
	if backups[0].Board.Title != "v4" || backups[1].Board.Title != "v3" {
		t.Errorf("retained wrong backups: %q, %q", backups[0].Board.Title, backups[1].Board.Title)
	}
}

func TestSaveJournal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.RecordSave(ctx, "op-1", "/tmp/board.md", "completed", ""); err != nil {
		t.Fatalf("RecordSave failed: %v", err)
	}
	if err := store.RecordSave(ctx, "op-2", "/tmp/board.md", "failed", "disk full"); err != nil {
		t.Fatalf("RecordSave failed: %v", err)
	}

	entries, err := store.SaveJournal(ctx, 10)
	if err != nil {
		t.Fatalf("SaveJournal failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("journal has %d entries, want 2", len(entries))
	}
	if entries[0].OperationID != "op-2" || entries[0].Status != "failed" || entries[0].Error != "disk full" {
		t.Errorf("newest entry = %+v", entries[0])
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t)
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}

	ctx := context.Background()
	if _, err := store.StoreBackup(ctx, sampleBoard("x"), "/tmp/board.md", ""); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("StoreBackup on closed store: %v", err)
	}
	if _, err := store.LatestBackup(ctx, "/tmp/board.md"); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LatestBackup on closed store: %v", err)
	}
	if err := store.RecordSave(ctx, "op", "", "completed", ""); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("RecordSave on closed store: %v", err)
	}
}

func TestConfig_WALRewrite(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"plain path", "file:boards.db", "file:boards.db?_journal_mode=WAL"},
		{"existing query string", "file:boards.db?cache=shared", "file:boards.db?cache=shared&_journal_mode=WAL"},
		{"journal mode already set", "file:boards.db?_journal_mode=DELETE", "file:boards.db?_journal_mode=DELETE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{DataSourceName: tt.dsn, EnableWAL: true}
			config.setDefaults()
			if config.DataSourceName != tt.want {
				t.Errorf("got %q, want %q", config.DataSourceName, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("nil config should be rejected")
	}
	if _, err := New(&Config{}); err == nil {
		t.Error("empty DataSourceName should be rejected")
	}
}
