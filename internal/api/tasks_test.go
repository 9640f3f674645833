package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpilot-hq/devpilot/internal/kanban"
	"github.com/devpilot-hq/devpilot/internal/store"
)

func TestTaskCreateDefaultsToTodo(t *testing.T) {
	env := newTestEnv(t)
	project := env.projects.add(store.Project{UserID: ownerA, Name: "App"})

	rec := env.do(t, ownerA, http.MethodPost, "/api/projects/"+project.ID+"/tasks", `{"title":" Wireframes ","estimate_hours":"6.5"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var task store.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&task))
	assert.Equal(t, "Wireframes", task.Title)
	assert.Equal(t, string(kanban.StatusTodo), task.Status)
	require.NotNil(t, task.EstimateHours)
	assert.Equal(t, "6.5", task.EstimateHours.String())

	assert.Equal(t, []string{"task_created"}, env.notifier.kinds())
	assert.Equal(t, ownerA, env.notifier.calls[0].ownerID)
	assert.Equal(t, project.ID, env.notifier.calls[0].projectID)
}

func TestTaskCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	project := env.projects.add(store.Project{UserID: ownerA, Name: "App"})
	path := "/api/projects/" + project.ID + "/tasks"

	tests := []struct {
		name string
		body string
	}{
		{name: "missing title", body: `{}`},
		{name: "unknown status", body: `{"title":"x","status":"blocked"}`},
		{name: "negative estimate", body: `{"title":"x","estimate_hours":"-1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, ownerA, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, env.notifier.kinds())
}

func TestBoardGroupsTasksIntoColumns(t *testing.T) {
	env := newTestEnv(t)
	project := env.projects.add(store.Project{UserID: ownerA, Name: "App"})
	for i, status := range []kanban.Status{
		kanban.StatusBacklog, kanban.StatusTodo, kanban.StatusInProgress, kanban.StatusReview, kanban.StatusDone,
	} {
		env.tasks.add(store.Task{UserID: ownerA, ProjectID: project.ID, Title: string(status), Status: string(status), OrderIndex: i})
	}

	rec := env.do(t, ownerA, http.MethodGet, "/api/projects/"+project.ID+"/board", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var board kanban.Board
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&board))
	require.Len(t, board.Columns, 3)
	assert.Equal(t, kanban.ColumnTodo, board.Columns[0].ID)
	assert.Len(t, board.Columns[0].Tasks, 2)
	assert.Len(t, board.Columns[1].Tasks, 2)
	assert.Len(t, board.Columns[2].Tasks, 1)
	assert.Equal(t, 1, board.Done)
	assert.Equal(t, 5, board.Total)
	assert.InDelta(t, 0.2, board.Progress, 1e-9)
}

func TestBoardForeignProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	project := env.projects.add(store.Project{UserID: ownerA, Name: "App"})

	rec := env.do(t, ownerB, http.MethodGet, "/api/projects/"+project.ID+"/board", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, ownerB, http.MethodGet, "/api/projects/"+project.ID+"/tasks", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMoveTaskPersistsCanonicalStatus(t *testing.T) {
	env := newTestEnv(t)
	project := env.projects.add(store.Project{UserID: ownerA, Name: "App"})
	task := env.tasks.add(store.Task{UserID: ownerA, ProjectID: project.ID, Title: "Review copy", Status: string(kanban.StatusReview)})

	tests := []struct {
		column string
		want   kanban.Status
	}{
		{column: "done", want: kanban.StatusDone},
		{column: "todo", want: kanban.StatusTodo},
		{column: "in_progress", want: kanban.StatusInProgress},
		{column: "review", want: kanban.StatusInProgress},
		{column: "backlog", want: kanban.StatusTodo},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			rec := env.do(t, ownerA, http.MethodPost, "/api/tasks/"+task.ID+"/move", `{"column":"`+tt.column+`"}`)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Task   store.Task    `json:"task"`
				Column kanban.Column `json:"column"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, string(tt.want), resp.Task.Status)

			stored, err := env.tasks.GetByID(ownerCtx(ownerA), task.ID)
			require.NoError(t, err)
			assert.Equal(t, string(tt.want), stored.Status)
		})
	}
	assert.Len(t, env.notifier.kinds(), len(tests))
}

func TestMoveTaskRejectsUnknownColumn(t *testing.T) {
	env := newTestEnv(t)
	task := env.tasks.add(store.Task{UserID: ownerA, ProjectID: "p", Title: "x", Status: "todo"})

	rec := env.do(t, ownerA, http.MethodPost, "/api/tasks/"+task.ID+"/move", `{"column":"archive"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := env.tasks.GetByID(ownerCtx(ownerA), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "todo", stored.Status)
}

func TestPatchTaskMergesFieldsAndMoves(t *testing.T) {
	env := newTestEnv(t)
	desc := "original"
	task := env.tasks.add(store.Task{UserID: ownerA, ProjectID: "p", Title: "Copy", Description: &desc, Status: "todo"})

	rec := env.do(t, ownerA, http.MethodPatch, "/api/tasks/"+task.ID, `{"title":"Copy v2"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var patched store.Task
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&patched))
	assert.Equal(t, "Copy v2", patched.Title)
	require.NotNil(t, patched.Description)
	assert.Equal(t, "original", *patched.Description)
	assert.Empty(t, env.notifier.kinds())

	rec = env.do(t, ownerA, http.MethodPatch, "/api/tasks/"+task.ID, `{"status":"review"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&patched))
	assert.Equal(t, "review", patched.Status)
	assert.Equal(t, []string{"task_moved"}, env.notifier.kinds())

	rec = env.do(t, ownerA, http.MethodPatch, "/api/tasks/"+task.ID, `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.tasks.add(store.Task{UserID: ownerA, ProjectID: "p", Title: "x", Status: "todo"})

	rec := env.do(t, ownerB, http.MethodDelete, "/api/tasks/"+task.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, ownerA, http.MethodDelete, "/api/tasks/"+task.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
