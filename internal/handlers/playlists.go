package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"pulse-engine/internal/common/errors"
	"pulse-engine/internal/common/logging"
	"pulse-engine/internal/engine"
	"pulse-engine/internal/storage"
)

// HandleTrigger starts a pipeline run for a named strategy. The message
// arrives enveloped when published by the ad hoc worker or another topic
// producer.
func (h *Handlers) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	var msg engine.TriggerMessage
	ok, err := h.decodeMessage(w, r, &msg)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		return
	}

	playlist, err := h.engine.Trigger(r.Context(), msg)
	if err != nil {
		h.logger.Warn("Trigger handling failed",
			logging.Field{Key: "strategy", Value: msg.Strategy},
			logging.Field{Key: "error", Value: err.Error()})
		writeError(w, err)
		return
	}
	if playlist == nil {
		// Other deployment mode; acknowledged but not acted on.
		writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
		return
	}

	writeJSON(w, http.StatusCreated, playlist)
}

// HandleSegue processes a worker completion message.
func (h *Handlers) HandleSegue(w http.ResponseWriter, r *http.Request) {
	var msg engine.SegueMessage
	ok, err := h.decodeMessage(w, r, &msg)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		return
	}

	if err := h.engine.Segue(r.Context(), msg); err != nil {
		h.logger.Warn("Completion handling failed",
			logging.Field{Key: "playlist_id", Value: msg.ID},
			logging.Field{Key: "error", Value: err.Error()})
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

// AdhocRequest asks the dedicated ad hoc worker to resolve and publish a
// trigger message for a single URL.
type AdhocRequest struct {
	URL          string `json:"url"`
	MembershipID *int64 `json:"membership_id,omitempty"`
}

// HandleAdhoc fires the ad hoc worker and returns immediately; the playlist
// is created later when the worker publishes a trigger message.
func (h *Handlers) HandleAdhoc(w http.ResponseWriter, r *http.Request) {
	var req AdhocRequest
	ok, err := h.decodeMessage(w, r, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		return
	}
	if req.URL == "" {
		writeError(w, errors.ValidationError("url is required"))
		return
	}
	if h.config.AdhocWorkerHandle == "" {
		http.Error(w, "Ad hoc triggering is not configured", http.StatusServiceUnavailable)
		return
	}

	payload := map[string]interface{}{
		"url":           req.URL,
		"membership_id": req.MembershipID,
		"isBeta":        h.engine.Beta(),
	}
	if err := h.invoker.Invoke(r.Context(), h.config.AdhocWorkerHandle, payload); err != nil {
		h.logger.Error("Failed to invoke ad hoc worker", err,
			logging.Field{Key: "url", Value: req.URL})
		http.Error(w, "Failed to invoke ad hoc worker", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "dispatched"})
}

// ListPlaylists returns a filtered, paged window of playlists plus the
// total row count, for table rendering.
func (h *Handlers) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	filters, err := parsePlaylistFilters(r)
	if err != nil {
		writeError(w, err)
		return
	}

	playlists, count, err := h.storage.ListPlaylists(filters)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows":  playlists,
		"count": count,
	})
}

// GetPlaylist returns a single playlist by slug.
func (h *Handlers) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	playlist, err := h.storage.GetPlaylistBySlug(vars["slug"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func parsePlaylistFilters(r *http.Request) (storage.PlaylistFilters, error) {
	query := r.URL.Query()
	filters := storage.PlaylistFilters{
		Sort: query.Get("sort"),
	}

	if raw := query.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, errors.ValidationError("from must be an RFC3339 timestamp")
		}
		filters.From = &from
	}
	if raw := query.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, errors.ValidationError("to must be an RFC3339 timestamp")
		}
		filters.To = &to
	}
	if raw := query.Get("startRow"); raw != "" {
		start, err := strconv.Atoi(raw)
		if err != nil || start < 0 {
			return filters, errors.ValidationError("startRow must be a non-negative integer")
		}
		filters.StartRow = start
	}
	if raw := query.Get("endRow"); raw != "" {
		end, err := strconv.Atoi(raw)
		if err != nil || end < filters.StartRow {
			return filters, errors.ValidationError("endRow must be an integer >= startRow")
		}
		filters.EndRow = end
	}

	return filters, nil
}
