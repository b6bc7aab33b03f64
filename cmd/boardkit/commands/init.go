package commands

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/boardkit"
	"github.com/c0deZ3R0/go-board-kit/save"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter board document",
	Long:  `Write a new board document with To Do, In Progress and Done columns.`,
	RunE:  runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
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

	ctx := context.Background()
	starter := &board.Board{
		Title: "Board",
		Columns: []board.Column{
			{ID: "todo", Title: "To Do", Tasks: []board.Task{}},
			{ID: "in-progress", Title: "In Progress", Tasks: []board.Task{}},
			{ID: "done", Title: "Done", Tasks: []board.Task{}},
		},
	}

	if _, err := coord.Execute(ctx, boardkit.NewSetBoardCommand(starter)); err != nil {
		return fmt.Errorf("failed to stage board: %w", err)
	}

	ticket, err := coord.SaveBoard(ctx, save.Options{Reason: "init", Force: true})
	if err != nil {
		return fmt.Errorf("failed to save board: %w", err)
	}
	if err := ticket.Wait(ctx); err != nil {
		return err
	}
	if saveErr := ticket.Operation.Err(); saveErr != nil {
		return fmt.Errorf("save failed: %w", saveErr)
	}

	color.Green("Created %s", cfg.DocumentPath)
	return nil
}
