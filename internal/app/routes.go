package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"pulse-engine/internal/handlers"
	"pulse-engine/internal/middleware"
)

// Routes builds the HTTP routing table.
func (app *App) Routes() http.Handler {
	h := handlers.New(app.Storage, app.Engine, app.Invoker, app.Config)

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware)

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	// Inbound asynchronous messages
	r.HandleFunc("/playlists", h.HandleTrigger).Methods("POST")
	r.HandleFunc("/playlists/update", h.HandleSegue).Methods("POST")
	r.HandleFunc("/playlists/adhoc", h.HandleAdhoc).Methods("POST")

	// Read surface
	r.HandleFunc("/playlists", h.ListPlaylists).Methods("GET")
	r.HandleFunc("/playlists/{slug}", h.GetPlaylist).Methods("GET")
	r.HandleFunc("/plugins", h.ListPlugins).Methods("GET")
	r.HandleFunc("/plugins/{slug}", h.GetPlugin).Methods("GET")

	return r
}
