package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-board-kit/storage/sqlite"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the save journal and stored backups",
	Long:  `Read the SQLite backup store and print recent save outcomes and backups.`,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.BackupDSN == "" {
		return fmt.Errorf("no backup store configured: set backup_dsn in the config file")
	}

	store, err := sqlite.New(sqlite.DefaultConfig(cfg.BackupDSN))
	if err != nil {
		return fmt.Errorf("failed to open backup store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	header := color.New(color.FgCyan, color.Bold)
	failed := color.New(color.FgRed)

	header.Println("Save journal")
	journal, err := store.SaveJournal(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(journal) == 0 {
		fmt.Println("  (empty)")
	}
	for _, entry := range journal {
		line := fmt.Sprintf("  %s  %-9s  %s", entry.CreatedAt.Format("2006-01-02 15:04:05"), entry.Status, entry.OperationID)
		if entry.Status == "failed" {
			failed.Printf("%s  %s\n", line, entry.Error)
			continue
		}
		fmt.Println(line)
	}

	fmt.Println()
	header.Println("Backups")
	backups, err := store.ListBackups(ctx, cfg.DocumentPath, historyLimit)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("  (none)")
	}
	for _, b := range backups {
		fmt.Printf("  %d  %s  %s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.Reason)
	}
	return nil
}
