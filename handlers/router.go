package handlers

import (
	"net/http"
	"time"

	"task-management/microservices/tasks-service/middleware"

	"github.com/gorilla/mux"
)

func NewRouter(taskHandler *TaskHandler, verifier middleware.TokenVerifier, requestTimeout time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api/tasks").Subrouter()
	api.Use(middleware.RequestTimeout(requestTimeout), middleware.JWTAuthMiddleware(verifier))

	api.HandleFunc("", taskHandler.GetTasks).Methods(http.MethodGet)
	api.HandleFunc("", taskHandler.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/{taskId}", taskHandler.GetTask).Methods(http.MethodGet)
	api.HandleFunc("/{taskId}", taskHandler.UpdateTask).Methods(http.MethodPut)
	api.HandleFunc("/{taskId}", taskHandler.DeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/{taskId}/status", taskHandler.UpdateTaskStatus).Methods(http.MethodPatch)

	return r
}
