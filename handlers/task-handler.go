package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"task-tracker/tasks-service/middleware"
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/services"
	"task-tracker/tasks-service/utils"

	"github.com/gorilla/mux"
)

type TaskHandler struct {
	service *services.TaskService
	debug   bool
}

// NewTaskHandler builds the task endpoints. debug exposes internal error details in 500 responses.
func NewTaskHandler(service *services.TaskService, debug bool) *TaskHandler {
	return &TaskHandler{service: service, debug: debug}
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var in services.CreateTaskInput
	if err := decodeBody(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	task, err := h.service.CreateTask(r.Context(), caller, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "Task created successfully",
		"task":    task,
	})
}

func (h *TaskHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	in, err := listInput(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	page, err := h.service.ListTasks(r.Context(), caller, in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, page)
}

func (h *TaskHandler) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	stats, err := h.service.GetStats(r.Context(), caller)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

func (h *TaskHandler) GetTaskByID(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	task, err := h.service.GetTask(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"task": task})
}

func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	var in services.UpdateTaskInput
	if err := decodeBody(r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload", err.Error())
		return
	}

	task, err := h.service.UpdateTask(r.Context(), caller, mux.Vars(r)["id"], in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Task updated successfully",
		"task":    task,
	})
}

func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	task, err := h.service.CompleteTask(r.Context(), caller, mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"message": "Task marked as completed",
		"task":    task,
	})
}

func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTask(r.Context(), caller, mux.Vars(r)["id"]); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"message": "Task deleted successfully"})
}

func callerOf(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Access denied. No token provided.", nil)
	}
	return caller, ok
}

func decodeBody(r *http.Request, dest any) error {
	// Unknown fields such as createdBy or completed are ignored.
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dest)
}

func listInput(r *http.Request) (services.ListTasksInput, error) {
	q := r.URL.Query()
	in := services.ListTasksInput{
		Status:     q.Get("status"),
		Priority:   q.Get("priority"),
		AssignedTo: q.Get("assignedTo"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sortBy"),
		SortOrder:  q.Get("sortOrder"),
	}
	for _, p := range []struct {
		name string
		dest **int64
	}{{"page", &in.Page}, {"limit", &in.Limit}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return in, services.InvalidField(p.name)
		}
		*p.dest = &n
	}
	return in, nil
}

func (h *TaskHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *services.ValidationError
		conflict *services.ConflictError
		denied   *services.AccessDeniedError
	)
	switch {
	case errors.As(err, &verr):
		utils.WriteError(w, http.StatusBadRequest, "Validation failed", verr.Fields)
	case errors.Is(err, services.ErrInvalidID):
		utils.WriteError(w, http.StatusBadRequest, "Invalid ID format", nil)
	case errors.As(err, &denied):
		utils.WriteError(w, http.StatusForbidden, "Access denied", capitalize(denied.Error()))
	case errors.Is(err, services.ErrTaskNotFound):
		utils.WriteError(w, http.StatusNotFound, "Task not found", nil)
	case errors.As(err, &conflict):
		if conflict.Field == "version" {
			utils.WriteError(w, http.StatusConflict, "Task was modified by another request", "Reload the task and retry")
			return
		}
		utils.WriteError(w, http.StatusConflict, conflict.Field+" already exists", nil)
	default:
		requestLog(r).Errorf("Event ID: INTERNAL_ERROR, Description: %s %s failed: %v", r.Method, r.URL.Path, err)
		var details any
		if h.debug {
			details = err.Error()
		}
		utils.WriteError(w, http.StatusInternalServerError, "Internal server error", details)
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
