package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"task-tracker/tasks-service/lifecycle"
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/services"
	"task-tracker/tasks-service/store"
	"task-tracker/tasks-service/users"
	"task-tracker/tasks-service/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

type apiFixture struct {
	handler http.Handler
	tokens  *utils.TokenManager
	alice   models.Caller
	bob     models.Caller
	admin   models.Caller
}

func newAPIFixture(t *testing.T, debug bool) *apiFixture {
	t.Helper()
	f := &apiFixture{
		tokens: utils.NewTokenManager(testSecret, "tasks-service"),
		alice:  models.Caller{ID: primitive.NewObjectID(), Role: models.RoleUser},
		bob:    models.Caller{ID: primitive.NewObjectID(), Role: models.RoleUser},
		admin:  models.Caller{ID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
	dir := users.StaticDirectory{
		f.alice.ID: {ID: f.alice.ID, Username: "alice", Email: "alice@example.com"},
	}
	memory := store.NewMemoryStore(nil)
	svc := services.NewTaskService(memory, dir, lifecycle.New(store.Clock), services.StatsScopeGlobal)
	f.handler = NewRouter(NewTaskHandler(svc, debug), NewHealthHandler(svc, nil, "test"), RouterOptions{Tokens: f.tokens})
	return f
}

func (f *apiFixture) do(t *testing.T, caller *models.Caller, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != nil {
		token, err := f.tokens.GenerateToken(caller.ID, caller.Role, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type taskEnvelope struct {
	Message string          `json:"message"`
	Task    models.TaskView `json:"task"`
}

func TestCreateAndFetchTask(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, &f.alice, http.MethodPost, "/api/tasks", map[string]any{
		"title":    "Ship release",
		"priority": "high",
		"tags":     []string{"Release"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[taskEnvelope](t, rec)
	assert.Equal(t, "Task created successfully", created.Message)
	assert.Equal(t, "alice", created.Task.AssignedTo.Username)
	assert.Equal(t, []string{"release"}, created.Task.Tags)

	rec = f.do(t, &f.alice, http.MethodGet, "/api/tasks/"+created.Task.ID.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Task models.TaskView `json:"task"`
	}](t, rec)
	assert.Equal(t, created.Task.ID, got.Task.ID)
	assert.Equal(t, models.PriorityHigh, got.Task.Priority)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthErrors(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, nil, http.MethodGet, "/api/tasks", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access denied. No token provided.", decode[utils.ErrorResponse](t, rec).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid token", decode[utils.ErrorResponse](t, rec).Error)

	expired, err := f.tokens.GenerateToken(f.alice.ID, f.alice.Role, -time.Minute)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token expired", decode[utils.ErrorResponse](t, rec).Error)
}

func TestValidationErrorEnvelope(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, &f.alice, http.MethodPost, "/api/tasks", map[string]any{"title": "ab", "status": "done"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[struct {
		Error   string                `json:"error"`
		Details []services.FieldError `json:"details"`
	}](t, rec)
	assert.Equal(t, "Validation failed", body.Error)
	fields := make([]string, len(body.Details))
	for i, d := range body.Details {
		fields[i] = d.Field
	}
	assert.ElementsMatch(t, []string{"title", "status"}, fields)

	rec = f.do(t, &f.alice, http.MethodGet, "/api/tasks?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, &f.alice, http.MethodGet, "/api/tasks/12345", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid ID format", decode[utils.ErrorResponse](t, rec).Error)
}

func TestDeletePermissions(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, &f.alice, http.MethodPost, "/api/tasks", map[string]any{"title": "For Bob", "assignedTo": f.bob.ID.Hex()})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[taskEnvelope](t, rec).Task.ID.Hex()

	rec = f.do(t, &f.bob, http.MethodDelete, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You do not have permission to delete this task", decode[utils.ErrorResponse](t, rec).Details)

	rec = f.do(t, &f.bob, http.MethodPut, "/api/tasks/"+id, map[string]any{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[taskEnvelope](t, rec).Task.Completed)

	rec = f.do(t, &f.alice, http.MethodDelete, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Task deleted successfully", decode[taskEnvelope](t, rec).Message)

	rec = f.do(t, &f.alice, http.MethodGet, "/api/tasks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndStats(t *testing.T) {
	f := newAPIFixture(t, false)
	for _, title := range []string{"Alpha task", "Beta task", "Gamma task"} {
		rec := f.do(t, &f.alice, http.MethodPost, "/api/tasks", map[string]any{"title": title})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := f.do(t, &f.alice, http.MethodGet, "/api/tasks?limit=2&sortBy=title&sortOrder=asc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[services.TaskPage](t, rec)
	require.Len(t, page.Tasks, 2)
	assert.Equal(t, "Alpha task", page.Tasks[0].Title)
	assert.Equal(t, int64(2), page.Pagination.Pages)

	rec = f.do(t, &f.bob, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[services.TaskPage](t, rec).Tasks)

	rec = f.do(t, &f.admin, http.MethodGet, "/api/tasks/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[models.TaskStats](t, rec)
	assert.Equal(t, int64(3), stats.TotalTasks)
	assert.Equal(t, map[string]int64{"pending": 3}, stats.StatusStats)
}

func TestCompleteEndpoint(t *testing.T) {
	f := newAPIFixture(t, false)
	rec := f.do(t, &f.alice, http.MethodPost, "/api/tasks", map[string]any{"title": "Complete me"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[taskEnvelope](t, rec).Task.ID.Hex()

	rec = f.do(t, &f.alice, http.MethodPatch, "/api/tasks/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	task := decode[taskEnvelope](t, rec).Task
	assert.Equal(t, models.StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)
}

func TestHealthAndRouting(t *testing.T) {
	f := newAPIFixture(t, false)

	rec := f.do(t, nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode[map[string]any](t, rec)["status"])

	rec = f.do(t, nil, http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "running", decode[map[string]any](t, rec)["status"])

	rec = f.do(t, nil, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Route not found", decode[utils.ErrorResponse](t, rec).Error)

	rec = f.do(t, nil, http.MethodOptions, "/api/tasks", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

type downStore struct{ store.TaskStore }

func (downStore) Ping(context.Context) error { return errors.New("no reachable servers") }

func TestStatusReportsUnreachableStore(t *testing.T) {
	h := NewHealthHandler(downStore{}, nil, "test")
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", decode[map[string]any](t, rec)["store"])
}

func TestInternalErrorDetailsOnlyInDebug(t *testing.T) {
	for _, debug := range []bool{false, true} {
		h := &TaskHandler{debug: debug}
		rec := httptest.NewRecorder()
		h.writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), errors.New("socket closed"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := decode[utils.ErrorResponse](t, rec)
		if debug {
			assert.Equal(t, "socket closed", body.Details)
		} else {
			assert.Nil(t, body.Details)
		}
	}
}

func TestAccessDeniedMapsToForbidden(t *testing.T) {
	h := &TaskHandler{}
	rec := httptest.NewRecorder()
	err := fmt.Errorf("update task: %w", &services.AccessDeniedError{Action: "update"})
	h.writeServiceError(rec, httptest.NewRequest(http.MethodPut, "/api/tasks/x", nil), err)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decode[utils.ErrorResponse](t, rec)
	assert.Equal(t, "Access denied", body.Error)
	assert.Equal(t, "You do not have permission to update this task", body.Details)
}
