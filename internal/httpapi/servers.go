package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func registerServerRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/servers", RequireAdmin(h.createServer)).Methods("POST")
	api.HandleFunc("/servers", RequireAdmin(h.listServers)).Methods("GET")
	api.HandleFunc("/servers/{id}", RequireAdmin(h.getServer)).Methods("GET")
	api.HandleFunc("/servers/{id}", RequireAdmin(h.updateServer)).Methods("PUT")
	api.HandleFunc("/servers/{id}", RequireAdmin(h.deleteServer)).Methods("DELETE")
	api.HandleFunc("/servers/{id}/connect", RequireAdmin(h.connectServer)).Methods("POST")
	api.HandleFunc("/servers/{id}/disconnect", RequireAdmin(h.disconnectServer)).Methods("POST")
}

// serverWithStatus is a ServerConfig enriched with its live Pool status,
// the shape the admin catalog view needs (spec §6: server catalog CRUD
// "with connection status").
type serverWithStatus struct {
	model.ServerConfig
	ConnectionState string    `json:"connection_state"`
	LastHealth      time.Time `json:"last_health,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

func (h *handlers) withStatus(cfg model.ServerConfig) serverWithStatus {
	out := serverWithStatus{ServerConfig: cfg, ConnectionState: "unknown"}
	if st, ok := h.deps.Pool.GetStatus(cfg.ID); ok {
		out.ConnectionState = string(st.State)
		out.LastHealth = st.LastHealth
		out.LastError = st.LastError
	}
	return out
}

func (h *handlers) createServer(w http.ResponseWriter, r *http.Request) {
	var cfg model.ServerConfig
	if !DecodeJSON(w, r, &cfg) {
		return
	}
	if cfg.Name == "" {
		WriteError(w, errs.Validation("name", "must not be empty"))
		return
	}
	now := time.Now()
	cfg.ID = ids.New()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := h.deps.Store.Servers().Create(r.Context(), cfg); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "create_server", "server", cfg.ID, nil)
	WriteJSON(w, http.StatusCreated, h.withStatus(cfg))
}

func (h *handlers) listServers(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.Servers().List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	out := make([]serverWithStatus, 0, len(list))
	for _, cfg := range list {
		out = append(out, h.withStatus(cfg))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"servers": out})
}

func (h *handlers) getServer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	cfg, err := h.deps.Store.Servers().Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.withStatus(cfg))
}

func (h *handlers) updateServer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	existing, err := h.deps.Store.Servers().Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	var patch model.ServerConfig
	if !DecodeJSON(w, r, &patch) {
		return
	}
	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	if err := h.deps.Store.Servers().Update(r.Context(), patch); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "update_server", "server", id, nil)
	WriteJSON(w, http.StatusOK, h.withStatus(patch))
}

func (h *handlers) deleteServer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	h.deps.Pool.Disconnect(id)
	if err := h.deps.Registry.UnregisterServer(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.deps.Router.RemoveServer(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.deps.Store.Servers().Delete(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "delete_server", "server", id, nil)
	WriteJSON(w, http.StatusNoContent, nil)
}

// connectServer dials the backend and, on success, lists its capabilities
// into the Registry (spec §4.1/§4.2: a server must be connected before its
// tools/prompts/resources are invocable).
func (h *handlers) connectServer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	cfg, err := h.deps.Store.Servers().Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	if _, err := h.deps.Pool.Connect(r.Context(), cfg); err != nil {
		WriteError(w, errs.Upstream("connect failed", err))
		return
	}
	client, ok := h.deps.Pool.GetClient(cfg.ID)
	if ok {
		if err := h.deps.Registry.RegisterServer(r.Context(), cfg, client); err != nil {
			WriteError(w, err)
			return
		}
	}
	h.audit(r, "connect_server", "server", id, nil)
	WriteJSON(w, http.StatusOK, h.withStatus(cfg))
}

func (h *handlers) disconnectServer(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	h.deps.Pool.Disconnect(id)
	if err := h.deps.Registry.UnregisterServer(r.Context(), id); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "disconnect_server", "server", id, nil)
	WriteJSON(w, http.StatusNoContent, nil)
}
