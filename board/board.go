// Package board defines the in-memory kanban board snapshot shared by the
// coordination components. A snapshot is a plain value tree; ownership and
// copying discipline are enforced by the cache, not here.
package board

import "time"

// Task is a single card on the board.
type Task struct {
	ID          string            `json:"id" yaml:"id"`
	Title       string            `json:"title" yaml:"title"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Column is an ordered list of tasks under one heading.
type Column struct {
	ID    string `json:"id" yaml:"id"`
	Title string `json:"title" yaml:"title"`
	Tasks []Task `json:"tasks" yaml:"tasks"`
}

// DocumentMeta describes the document a board was loaded from.
type DocumentMeta struct {
	Path     string            `json:"path,omitempty" yaml:"path,omitempty"`
	LoadedAt time.Time         `json:"loaded_at,omitempty" yaml:"loaded_at,omitempty"`
	Custom   map[string]string `json:"custom,omitempty" yaml:"custom,omitempty"`
}

// Board is one kanban board: a title plus ordered columns of ordered tasks.
type Board struct {
	Title    string       `json:"title" yaml:"title"`
	Columns  []Column     `json:"columns" yaml:"columns"`
	Document DocumentMeta `json:"document,omitempty" yaml:"document,omitempty"`
}

// Clone returns a deep, independent copy of the board. Mutating the copy can
// never affect the original.
func (b *Board) Clone() *Board {
	if b == nil {
		return nil
	}
	clone := &Board{
		Title:    b.Title,
		Document: b.Document.clone(),
	}
	if b.Columns != nil {
		clone.Columns = make([]Column, len(b.Columns))
		for i, col := range b.Columns {
			clone.Columns[i] = col.clone()
		}
	}
	return clone
}

func (c Column) clone() Column {
	out := Column{ID: c.ID, Title: c.Title}
	if c.Tasks != nil {
		out.Tasks = make([]Task, len(c.Tasks))
		for i, task := range c.Tasks {
			out.Tasks[i] = task.clone()
		}
	}
	return out
}

func (t Task) clone() Task {
	out := Task{ID: t.ID, Title: t.Title, Description: t.Description}
	if t.Tags != nil {
		out.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (m DocumentMeta) clone() DocumentMeta {
	out := DocumentMeta{Path: m.Path, LoadedAt: m.LoadedAt}
	if m.Custom != nil {
		out.Custom = make(map[string]string, len(m.Custom))
		for k, v := range m.Custom {
			out.Custom[k] = v
		}
	}
	return out
}

// FindColumn returns the column with the given id, or nil if absent.
func (b *Board) FindColumn(columnID string) *Column {
	for i := range b.Columns {
		if b.Columns[i].ID == columnID {
			return &b.Columns[i]
		}
	}
	return nil
}

// FindTask returns the task with the given id along with its column, or nils.
func (b *Board) FindTask(taskID string) (*Column, *Task) {
	for i := range b.Columns {
		for j := range b.Columns[i].Tasks {
			if b.Columns[i].Tasks[j].ID == taskID {
				return &b.Columns[i], &b.Columns[i].Tasks[j]
			}
		}
	}
	return nil, nil
}

// MoveTask removes the task from whatever column holds it and inserts it into
// the target column at the given index. Index values past the end append.
// Returns false if the task or the target column does not exist.
func (b *Board) MoveTask(taskID, targetColumnID string, index int) bool {
	target := b.FindColumn(targetColumnID)
	if target == nil {
		return false
	}

	var moved *Task
	for i := range b.Columns {
		col := &b.Columns[i]
		for j := range col.Tasks {
			if col.Tasks[j].ID == taskID {
				task := col.Tasks[j]
				col.Tasks = append(col.Tasks[:j], col.Tasks[j+1:]...)
				moved = &task
				break
			}
		}
		if moved != nil {
			break
		}
	}
	if moved == nil {
		return false
	}

	if index < 0 || index > len(target.Tasks) {
		index = len(target.Tasks)
	}
	target.Tasks = append(target.Tasks, Task{})
	copy(target.Tasks[index+1:], target.Tasks[index:])
	target.Tasks[index] = *moved
	return true
}

// TaskCount returns the total number of tasks across all columns.
func (b *Board) TaskCount() int {
	n := 0
	for i := range b.Columns {
		n += len(b.Columns[i].Tasks)
	}
	return n
}
