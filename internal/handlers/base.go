package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/config"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/storage"
	"pulse-engine/internal/workers"
)

type Handlers struct {
	storage storage.Storage
	engine  *engine.Engine
	invoker workers.Invoker
	config  *config.Config
	logger  logging.Logger

	// httpClient performs subscription confirmation calls
	httpClient *http.Client
}

func New(store storage.Storage, eng *engine.Engine, invoker workers.Invoker, cfg *config.Config) *Handlers {
	return &Handlers{
		storage: store,
		engine:  eng,
		invoker: invoker,
		config:  cfg,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "handlers"}),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy onto HTTP statuses. Not-found and
// validation errors carry their message; everything else is opaque.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
