package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/servly-app/servlygo/internal/booking"
	"github.com/servly-app/servlygo/internal/config"
	"github.com/servly-app/servlygo/internal/database"
	"github.com/servly-app/servlygo/internal/middleware"
	"github.com/servly-app/servlygo/internal/store"
	"github.com/servly-app/servlygo/internal/sync"
	"github.com/servly-app/servlygo/internal/websocket"
)

// Router wraps the mux router and the agent's components
type Router struct {
	*mux.Router
	db       *database.DB
	cfg      *config.Config
	bookings *booking.Store
	engine   *sync.Engine
	monitor  *sync.Monitor
	client   *sync.APIClient
	queue    store.MutationQueue
	cache    store.EntityCache
	hub      *websocket.Hub
}

// NewRouter creates the local HTTP API with all routes
func NewRouter(db *database.DB, cfg *config.Config, bookings *booking.Store, engine *sync.Engine, monitor *sync.Monitor, client *sync.APIClient, queue store.MutationQueue, cache store.EntityCache, hub *websocket.Hub) *Router {
	r := &Router{
		Router:   mux.NewRouter(),
		db:       db,
		cfg:      cfg,
		bookings: bookings,
		engine:   engine,
		monitor:  monitor,
		client:   client,
		queue:    queue,
		cache:    cache,
		hub:      hub,
	}

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Websocket for sync-state events
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWs(hub, w, req)
	})

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")
	auth.HandleFunc("/logout", r.logout).Methods("POST")

	// API routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg))

	// Booking routes
	api.HandleFunc("/bookings", r.listBookings).Methods("GET")
	api.HandleFunc("/bookings", r.createBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}", r.getBooking).Methods("GET")
	api.HandleFunc("/bookings/{id}", r.updateBooking).Methods("PUT")
	api.HandleFunc("/bookings/{id}/reschedule", r.rescheduleBooking).Methods("POST")
	api.HandleFunc("/bookings/{id}/{action}", r.transitionBooking).Methods("POST")

	// Catalog routes (read-through cache)
	api.HandleFunc("/providers", r.listProviders).Methods("GET")
	api.HandleFunc("/services", r.listServices).Methods("GET")
	api.HandleFunc("/providers/{id}/preferences", r.updatePreferences).Methods("PUT")

	// Sync control routes
	api.HandleFunc("/sync/status", r.syncStatus).Methods("GET")
	api.HandleFunc("/sync/force", r.forceSync).Methods("POST")

	return r
}

// healthCheck returns the health status of the local agent
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"online": r.monitor.IsOnline(),
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
