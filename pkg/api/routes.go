package api

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API routes with the given router
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Database management of an application
	dbm := router.PathPrefix("/sys-api/apps/{appid}/dbm").Subrouter()
	dbm.HandleFunc("/collections/index", h.HandleCreateIndex).Methods("POST")
}
