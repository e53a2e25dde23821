package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
)

// ListPlugins returns the plugin registry. Secret callback keys are never
// serialized.
func (h *Handlers) ListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := h.storage.ListPlugins()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plugins)
}

// GetPlugin returns a single plugin by slug.
func (h *Handlers) GetPlugin(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	plugin, err := h.storage.GetPluginBySlug(vars["slug"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, plugin)
}
