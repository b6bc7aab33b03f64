package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-board-kit/cache"
	"github.com/c0deZ3R0/go-board-kit/conflict"
	"github.com/c0deZ3R0/go-board-kit/event"
	"github.com/c0deZ3R0/go-board-kit/save"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Monitor board activity",
	Long: `Load the board, watch its document for external edits, and stream
cache updates, save lifecycle transitions and conflict outcomes until
interrupted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.WatchDocument = true

	coord, err := boardkitFromConfig(cfg)
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx := context.Background()
	if _, err := coord.LoadBoard(ctx); err != nil {
		return fmt.Errorf("failed to load board: %w", err)
	}

	timestamp := color.New(color.Faint)
	sub := coord.Events().SubscribeAll(func(e event.Event) {
		timestamp.Printf("%s ", e.OccurredAt().Format(time.TimeOnly))
		printEvent(e)
	})
	defer sub.Unsubscribe()

	color.Cyan("Watching %s (ctrl-c to stop)", cfg.DocumentPath)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs

	fmt.Println()
	return nil
}

func printEvent(e event.Event) {
	switch ev := e.(type) {
	case *cache.BoardUpdatedEvent:
		color.Green("board updated (version %d)", ev.Version)
	case *cache.BoardInvalidatedEvent:
		color.Yellow("board invalidated (version %d)", ev.Version)
	case *save.SaveCompletedEvent:
		color.Green("save %s completed in %s", ev.OperationID, ev.Duration)
	case *save.SaveFailedEvent:
		color.Red("save %s failed: %v", ev.OperationID, ev.Err)
	case *save.SaveCancelledEvent:
		color.Yellow("save %s cancelled", ev.OperationID)
	case *conflict.ConflictsDetectedEvent:
		color.Red("%d conflict(s) detected", len(ev.Conflicts))
	case *conflict.ConflictResolvedEvent:
		color.Yellow("conflict %s resolved: %s", ev.Conflict.ID, ev.Resolution)
	default:
		fmt.Println(e.Type())
	}
}
