package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Rule routes
	api.HandleFunc("/users/{userID}/rules", handler.ListRules).Methods("GET")
	api.HandleFunc("/users/{userID}/rules", handler.CreateRule).Methods("POST")
	api.HandleFunc("/rules/{id}", handler.GetRule).Methods("GET")
	api.HandleFunc("/rules/{id}", handler.PatchRule).Methods("PATCH")
	api.HandleFunc("/rules/{id}", handler.DeleteRule).Methods("DELETE")
	api.HandleFunc("/rules/{id}/test", handler.TestRule).Methods("POST")

	// Event routes
	api.HandleFunc("/users/{userID}/events", handler.ListEvents).Methods("GET")
	api.HandleFunc("/events/{id}/payload", handler.PatchEventPayload).Methods("PATCH")
	api.HandleFunc("/events/{id}/dismiss", handler.DismissEvent).Methods("POST")
	api.HandleFunc("/events/{id}/snooze", handler.SnoozeEvent).Methods("POST")
	api.HandleFunc("/events/{id}", handler.DeleteEvent).Methods("DELETE")

	// Engine routes
	api.HandleFunc("/engine/run", handler.RunEngine).Methods("POST")
	api.HandleFunc("/engine/status", handler.EngineStatus).Methods("GET")

	return r
}
