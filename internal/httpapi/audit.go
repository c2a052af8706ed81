package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/audit"
)

func registerAuditRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/audit", RequireAdmin(h.listAudit)).Methods("GET")
}

// audit records one admin mutation against the audit log, tagging it with
// the caller that performed it. err is nil on success.
func (h *handlers) audit(r *http.Request, action, resourceType, resourceID string, err error) {
	if h.deps.Audit == nil {
		return
	}
	caller := CallerFromContext(r.Context())
	entry := audit.Entry{
		Action:       action,
		KeyID:        caller.KeyID,
		TenantID:     caller.TenantID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Success:      err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	h.deps.Audit.Record(entry)
}

func (h *handlers) listAudit(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := h.deps.Audit.List(r.Context(), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
