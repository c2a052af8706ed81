package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/events"
)

func registerEventRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/events/stream", RequireAdmin(h.streamEvents)).Methods("GET")
	api.HandleFunc("/executions/{id}/stream", h.streamExecution).Methods("GET")
}

// streamEvents serves the global event feed, filtered by the optional
// "kinds" (comma-separated) and "server_id" query parameters.
func (h *handlers) streamEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := events.Filter{ServerID: q.Get("server_id")}
	if kinds := q.Get("kinds"); kinds != "" {
		filter.Kinds = strings.Split(kinds, ",")
	}
	if err := events.StreamGlobal(w, r, h.deps.Bus, filter); err != nil {
		h.deps.Log.WithContext(r.Context()).WithError(err).Warn("event stream ended with error")
	}
}

func (h *handlers) streamExecution(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if err := events.StreamExecution(w, r, h.deps.Bus, id); err != nil {
		h.deps.Log.WithContext(r.Context()).WithError(err).Warn("execution stream ended with error")
	}
}
