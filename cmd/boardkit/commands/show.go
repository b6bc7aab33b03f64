package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the board",
	Long:  `Load the board document and print its columns and tasks.`,
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.WatchDocument = false

	coord, err := boardkitFromConfig(cfg)
	if err != nil {
		return err
	}
	defer coord.Close()

	b, err := coord.LoadBoard(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}

	title := color.New(color.FgCyan, color.Bold)
	columnHeader := color.New(color.FgYellow, color.Bold)
	taskID := color.New(color.Faint)

	title.Printf("%s\n", b.Title)
	fmt.Printf("%d tasks across %d columns\n\n", b.TaskCount(), len(b.Columns))

	for _, col := range b.Columns {
		columnHeader.Printf("## %s (%d)\n", col.Title, len(col.Tasks))
		for _, task := range col.Tasks {
			fmt.Printf("  - %s ", task.Title)
			taskID.Printf("[%s]\n", task.ID)
		}
		fmt.Println()
	}
	return nil
}
