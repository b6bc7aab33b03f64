package boardkit

import (
	"github.com/c0deZ3R0/go-board-kit/board"
	"github.com/c0deZ3R0/go-board-kit/command"
	"github.com/c0deZ3R0/go-board-kit/save"
)

// Command types routed by the coordinator's default handlers.
const (
	CommandSetBoard   = "set-board"
	CommandMoveTask   = "move-task"
	CommandAddTask    = "add-task"
	CommandDeleteTask = "delete-task"
	CommandSaveBoard  = "save-board"
)

// SetBoardCommand replaces the cached board wholesale.
type SetBoardCommand struct {
	command.Base
	Board *board.Board
}

func NewSetBoardCommand(b *board.Board) *SetBoardCommand {
	return &SetBoardCommand{Base: command.NewBase(CommandSetBoard), Board: b}
}

// MoveTaskCommand moves a task to a position in a target column.
type MoveTaskCommand struct {
	command.Base
	TaskID         string
	TargetColumnID string
	Index          int
}

func NewMoveTaskCommand(taskID, targetColumnID string, index int) *MoveTaskCommand {
	return &MoveTaskCommand{
		Base:           command.NewBase(CommandMoveTask),
		TaskID:         taskID,
		TargetColumnID: targetColumnID,
		Index:          index,
	}
}

// AddTaskCommand appends a task to a column.
type AddTaskCommand struct {
	command.Base
	ColumnID string
	Task     board.Task
}

func NewAddTaskCommand(columnID string, task board.Task) *AddTaskCommand {
	return &AddTaskCommand{Base: command.NewBase(CommandAddTask), ColumnID: columnID, Task: task}
}

// DeleteTaskCommand removes a task wherever it lives.
type DeleteTaskCommand struct {
	command.Base
	TaskID string
}

func NewDeleteTaskCommand(taskID string) *DeleteTaskCommand {
	return &DeleteTaskCommand{Base: command.NewBase(CommandDeleteTask), TaskID: taskID}
}

// SaveBoardCommand requests persistence of the cached board through the
// conflict-checked save path.
type SaveBoardCommand struct {
	command.Base
	Options save.Options
}

func NewSaveBoardCommand(opts save.Options) *SaveBoardCommand {
	return &SaveBoardCommand{Base: command.NewBase(CommandSaveBoard), Options: opts}
}
