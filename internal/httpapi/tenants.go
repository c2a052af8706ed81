package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
)

func registerTenantRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/tenants", RequireAdmin(h.createTenant)).Methods("POST")
	api.HandleFunc("/tenants", RequireAdmin(h.listTenants)).Methods("GET")
	api.HandleFunc("/tenants/{id}", RequireAdmin(h.getTenant)).Methods("GET")
	api.HandleFunc("/tenants/{id}/keys", RequireAdmin(h.issueAPIKey)).Methods("POST")
	api.HandleFunc("/tenants/{id}/keys", RequireAdmin(h.listAPIKeys)).Methods("GET")
	api.HandleFunc("/keys/{id}", RequireAdmin(h.revokeAPIKey)).Methods("DELETE")
}

func (h *handlers) createTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.deps.Tenants.CreateTenant(r.Context(), req.Name)
	h.audit(r, "create_tenant", "tenant", t.ID, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

func (h *handlers) listTenants(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Tenants.ListTenants(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"tenants": list})
}

func (h *handlers) getTenant(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Tenants.GetTenant(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) issueAPIKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}
	id := pathVar(r, "id")
	issued, err := h.deps.Tenants.IssueAPIKey(r.Context(), id, req.Label)
	h.audit(r, "issue_api_key", "tenant", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"key": issued.Raw, "record": issued.Record})
}

func (h *handlers) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Tenants.ListAPIKeys(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"keys": list})
}

func (h *handlers) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	if id == "" {
		WriteError(w, errs.Validation("id", "must not be empty"))
		return
	}
	err := h.deps.Tenants.RevokeAPIKey(r.Context(), id)
	h.audit(r, "revoke_api_key", "api_key", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}
