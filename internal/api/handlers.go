// Package api exposes the HTTP control surface over the task controller.
// Work items cannot travel over the wire, so callers register named work
// factories and clients create tasks by type.
package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/pricegrid/taskcore/internal/controller"
	"github.com/pricegrid/taskcore/internal/dashboard"
	"github.com/pricegrid/taskcore/internal/event"
	"github.com/pricegrid/taskcore/internal/httputil"
)

// WorkFactory builds a work item from a request payload.
type WorkFactory func(payload map[string]any) controller.WorkFunc

type API struct {
	ctrl *controller.Controller
	mux  *http.ServeMux
	hub  *event.WSHub

	mu        sync.RWMutex
	factories map[string]WorkFactory
}

type CreateTaskRequest struct {
	Type    string         `json:"type"`
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload"`
}

func NewAPI(ctrl *controller.Controller, hub *event.WSHub) *API {
	api := &API{
		ctrl:      ctrl,
		mux:       http.NewServeMux(),
		hub:       hub,
		factories: make(map[string]WorkFactory),
	}

	api.setupRoutes()
	return api
}

// RegisterWorkType makes a named work factory available to clients.
func (a *API) RegisterWorkType(name string, factory WorkFactory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.factories[name] = factory
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskByID)

	dash := dashboard.NewDashboard(a.ctrl)
	a.mux.HandleFunc("/api/dashboard/stats", dash.GetStats)
	a.mux.HandleFunc("/api/dashboard/history", dash.GetRecentTasks)

	if a.hub != nil {
		a.mux.HandleFunc("/api/events", a.hub.HandleWS)
	}

	fs := http.FileServer(http.Dir("./web"))
	a.mux.Handle("/", fs)
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Printf("failed to close request body: %v", err)
		}
	}()

	var req CreateTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Type == "" {
		httputil.WriteJSONError(w, "Task type is required", http.StatusBadRequest)
		return
	}

	a.mu.RLock()
	factory, exists := a.factories[req.Type]
	a.mu.RUnlock()
	if !exists {
		httputil.WriteJSONError(w, "Unknown task type: "+req.Type, http.StatusBadRequest)
		return
	}

	name := req.Name
	if name == "" {
		name = req.Type
	}

	id, err := a.ctrl.CreateTask(name, factory(req.Payload))
	if err != nil {
		httputil.WriteJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	info, _ := a.ctrl.GetTaskInfo(id)
	httputil.WriteJSON(w, http.StatusCreated, info)
}

func (a *API) listTasks(w http.ResponseWriter) {
	httputil.WriteJSON(w, http.StatusOK, a.ctrl.ListTasks())
}

func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tasks/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a.getTask(w, parts[0])

	case len(parts) == 2:
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a.controlTask(w, parts[0], parts[1])

	default:
		httputil.WriteJSONError(w, "Task ID is required", http.StatusBadRequest)
	}
}

func (a *API) getTask(w http.ResponseWriter, taskID string) {
	info, ok := a.ctrl.GetTaskInfo(taskID)
	if !ok {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, info)
}

func (a *API) controlTask(w http.ResponseWriter, taskID, action string) {
	var ok bool
	switch action {
	case "start":
		ok = a.ctrl.StartTask(taskID)
	case "pause":
		ok = a.ctrl.PauseTask(taskID)
	case "resume":
		ok = a.ctrl.ResumeTask(taskID)
	case "stop":
		ok = a.ctrl.StopTask(taskID)
	default:
		httputil.WriteJSONError(w, "Unknown action: "+action, http.StatusBadRequest)
		return
	}

	if !ok {
		httputil.WriteJSONError(w, "Transition rejected", http.StatusConflict)
		return
	}

	info, found := a.ctrl.GetTaskInfo(taskID)
	if !found {
		httputil.WriteJSONError(w, "Task not found", http.StatusNotFound)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}
