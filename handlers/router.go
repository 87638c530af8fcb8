package handlers

import (
	"net/http"

	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/middleware"
	"task-tracker/tasks-service/utils"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type RouterOptions struct {
	Tokens     middleware.TokenValidator
	Limiter    *middleware.Limiter // nil disables rate limiting
	CORSOrigin string
}

func NewRouter(tasks *TaskHandler, health *HealthHandler, opts RouterOptions) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", health.Health).Methods(http.MethodGet)
	r.HandleFunc("/api/status", health.Status).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.JWTAuth(opts.Tokens))
	if opts.Limiter != nil {
		api.Use(middleware.RateLimit(opts.Limiter))
	}

	// stats must be registered before {id} so it is not taken for a task id.
	api.HandleFunc("/tasks", tasks.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks", tasks.GetTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks/stats", tasks.GetTaskStats).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", tasks.GetTaskByID).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", tasks.UpdateTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}/complete", tasks.CompleteTask).Methods(http.MethodPatch)
	api.HandleFunc("/tasks/{id}", tasks.DeleteTask).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusNotFound, "Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		utils.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})
	// CORS wraps the router so preflight requests are answered before routing and auth.
	return middleware.RequestID(middleware.RequestLogger(middleware.EnableCORS(opts.CORSOrigin)(r)))
}

func requestLog(r *http.Request) *logrus.Entry {
	return logging.Logger.WithField("requestId", middleware.RequestIDFromContext(r.Context()))
}
