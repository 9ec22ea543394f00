package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pricegrid/taskcore/internal/controller"
	"github.com/pricegrid/taskcore/internal/execution"
	"github.com/pricegrid/taskcore/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAPI(t *testing.T) (*API, *controller.Controller) {
	ctrl := controller.New(2)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ctrl.Shutdown(ctx)
	})

	a := NewAPI(ctrl, nil)
	a.RegisterWorkType("noop", func(map[string]any) controller.WorkFunc {
		return func(*execution.Context) (any, error) { return nil, nil }
	})
	a.RegisterWorkType("blocker", func(map[string]any) controller.WorkFunc {
		checker := ctrl.Checker()
		return func(ec *execution.Context) (any, error) {
			for {
				if !checker.Check(ec.TaskID()) {
					return nil, task.ErrAborted
				}
				time.Sleep(time.Millisecond)
			}
		}
	})

	return a, ctrl
}

func postJSON(t *testing.T, a *API, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)
	return w
}

func createTask(t *testing.T, a *API, taskType string) task.Info {
	t.Helper()

	w := postJSON(t, a, "/api/tasks", CreateTaskRequest{Type: taskType})
	require.Equal(t, http.StatusCreated, w.Code)

	var info task.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	return info
}

func TestCreateTask(t *testing.T) {
	a, _ := setupAPI(t)

	info := createTask(t, a, "noop")

	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "noop", info.Name)
	assert.Equal(t, task.StatusPending, info.Status)
}

func TestCreateTaskWithCustomName(t *testing.T) {
	a, _ := setupAPI(t)

	w := postJSON(t, a, "/api/tasks", CreateTaskRequest{Type: "noop", Name: "nightly run"})

	require.Equal(t, http.StatusCreated, w.Code)
	var info task.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "nightly run", info.Name)
}

func TestCreateTaskMissingType(t *testing.T) {
	a, _ := setupAPI(t)

	w := postJSON(t, a, "/api/tasks", CreateTaskRequest{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateTaskUnknownType(t *testing.T) {
	a, _ := setupAPI(t)

	w := postJSON(t, a, "/api/tasks", CreateTaskRequest{Type: "mystery"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Unknown task type")
}

func TestCreateTaskInvalidJSON(t *testing.T) {
	a, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTasks(t *testing.T) {
	a, _ := setupAPI(t)
	createTask(t, a, "noop")
	createTask(t, a, "noop")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var infos []task.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &infos))
	assert.Len(t, infos, 2)
}

func TestGetTask(t *testing.T) {
	a, _ := setupAPI(t)
	created := createTask(t, a, "noop")

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/"+created.ID, nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var info task.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, created.ID, info.ID)
}

func TestGetTaskNotFound(t *testing.T) {
	a, _ := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks/nope", nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartPauseResumeStop(t *testing.T) {
	a, _ := setupAPI(t)
	created := createTask(t, a, "blocker")

	w := postJSON(t, a, "/api/tasks/"+created.ID+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info task.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, task.StatusRunning, info.Status)

	w = postJSON(t, a, "/api/tasks/"+created.ID+"/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, task.StatusPaused, info.Status)

	w = postJSON(t, a, "/api/tasks/"+created.ID+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, task.StatusRunning, info.Status)

	w = postJSON(t, a, "/api/tasks/"+created.ID+"/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, task.StatusStopped, info.Status)
}

func TestIllegalTransitionReturnsConflict(t *testing.T) {
	a, _ := setupAPI(t)
	created := createTask(t, a, "noop")

	w := postJSON(t, a, "/api/tasks/"+created.ID+"/pause", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestControlUnknownTask(t *testing.T) {
	a, _ := setupAPI(t)

	w := postJSON(t, a, "/api/tasks/nope/stop", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestControlUnknownAction(t *testing.T) {
	a, _ := setupAPI(t)
	created := createTask(t, a, "noop")

	w := postJSON(t, a, "/api/tasks/"+created.ID+"/explode", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	a, _ := setupAPI(t)
	created := createTask(t, a, "noop")

	req := httptest.NewRequest(http.MethodDelete, "/api/tasks", nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/tasks/"+created.ID, nil)
	w = httptest.NewRecorder()
	a.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestDashboardStats(t *testing.T) {
	a, _ := setupAPI(t)
	createTask(t, a, "noop")

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	w := httptest.NewRecorder()
	a.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "total_tasks")
}
