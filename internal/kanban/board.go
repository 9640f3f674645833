package kanban

import (
	"sort"

	"github.com/devpilot-hq/devpilot/internal/store"
)

// BoardColumn is one column of a rendered board.
type BoardColumn struct {
	ID    Column       `json:"id"`
	Title string       `json:"title"`
	Tasks []store.Task `json:"tasks"`
}

// Board is a project's tasks grouped by column.
type Board struct {
	Columns  []BoardColumn `json:"columns"`
	Progress float64       `json:"progress"`
	Done     int           `json:"done"`
	Total    int           `json:"total"`
}

// GroupBoard groups tasks into the three columns, each ordered by
// order_index and then by creation time. Tasks with an unknown status are
// left out.
func GroupBoard(tasks []store.Task) Board {
	grouped := make(map[Column][]store.Task, len(columnOrder))
	for _, task := range tasks {
		column, ok := ColumnFor(Status(task.Status))
		if !ok {
			continue
		}
		grouped[column] = append(grouped[column], task)
	}

	board := Board{Columns: make([]BoardColumn, 0, len(columnOrder))}
	for _, column := range columnOrder {
		columnTasks := grouped[column]
		if columnTasks == nil {
			columnTasks = []store.Task{}
		}
		sort.SliceStable(columnTasks, func(i, j int) bool {
			if columnTasks[i].OrderIndex != columnTasks[j].OrderIndex {
				return columnTasks[i].OrderIndex < columnTasks[j].OrderIndex
			}
			return columnTasks[i].CreatedAt.Before(columnTasks[j].CreatedAt)
		})
		board.Columns = append(board.Columns, BoardColumn{ID: column, Title: column.Title(), Tasks: columnTasks})
	}

	board.Done, board.Total = Counts(tasks)
	board.Progress = Progress(tasks)
	return board
}

// Counts returns how many tasks are done and how many there are.
func Counts(tasks []store.Task) (done, total int) {
	for _, task := range tasks {
		if Status(task.Status) == StatusDone {
			done++
		}
	}
	return done, len(tasks)
}

// Progress is the done fraction of tasks, 0 for an empty list.
func Progress(tasks []store.Task) float64 {
	done, total := Counts(tasks)
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}
