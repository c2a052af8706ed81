package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func registerTemplateRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/templates/servers", RequireAdmin(h.createServerTemplate)).Methods("POST")
	api.HandleFunc("/templates/servers", RequireAdmin(h.listServerTemplates)).Methods("GET")
	api.HandleFunc("/templates/servers/{id}", RequireAdmin(h.getServerTemplate)).Methods("GET")
	api.HandleFunc("/templates/servers/{id}", RequireAdmin(h.updateServerTemplate)).Methods("PUT")
	api.HandleFunc("/templates/servers/{id}", RequireAdmin(h.deleteServerTemplate)).Methods("DELETE")
	api.HandleFunc("/templates/servers/{id}/instantiate", RequireAdmin(h.instantiateServer)).Methods("POST")

	api.HandleFunc("/templates/workflows", RequireAdmin(h.createWorkflowTemplate)).Methods("POST")
	api.HandleFunc("/templates/workflows", RequireAdmin(h.listWorkflowTemplates)).Methods("GET")
	api.HandleFunc("/templates/workflows/{id}", RequireAdmin(h.getWorkflowTemplate)).Methods("GET")
	api.HandleFunc("/templates/workflows/{id}", RequireAdmin(h.updateWorkflowTemplate)).Methods("PUT")
	api.HandleFunc("/templates/workflows/{id}", RequireAdmin(h.deleteWorkflowTemplate)).Methods("DELETE")
	api.HandleFunc("/templates/workflows/{id}/instantiate", RequireAdmin(h.instantiateWorkflow)).Methods("POST")
}

type templateRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Defaults    map[string]any `json:"defaults"`
}

func (h *handlers) createServerTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.deps.Templates.CreateServerTemplate(r.Context(), req.Name, req.Description, req.Defaults)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

func (h *handlers) listServerTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Templates.ListServerTemplates(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (h *handlers) getServerTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Templates.GetServerTemplate(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) updateServerTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.deps.Templates.UpdateServerTemplate(r.Context(), pathVar(r, "id"), req.Name, req.Description, req.Defaults)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) deleteServerTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Templates.DeleteServerTemplate(r.Context(), pathVar(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) instantiateServer(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]any
	if r.ContentLength > 0 && !DecodeJSON(w, r, &overrides) {
		return
	}
	cfg, err := h.deps.Templates.InstantiateServer(r.Context(), pathVar(r, "id"), overrides)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.deps.Store.Servers().Create(r.Context(), cfg); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "instantiate_server_template", "server", cfg.ID, nil)
	WriteJSON(w, http.StatusCreated, h.withStatus(cfg))
}

func (h *handlers) createWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.deps.Templates.CreateWorkflowTemplate(r.Context(), req.Name, req.Description, req.Defaults)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, t)
}

func (h *handlers) listWorkflowTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Templates.ListWorkflowTemplates(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"templates": list})
}

func (h *handlers) getWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := h.deps.Templates.GetWorkflowTemplate(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) updateWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.deps.Templates.UpdateWorkflowTemplate(r.Context(), pathVar(r, "id"), req.Name, req.Description, req.Defaults)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) deleteWorkflowTemplate(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Templates.DeleteWorkflowTemplate(r.Context(), pathVar(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) instantiateWorkflow(w http.ResponseWriter, r *http.Request) {
	var overrides map[string]any
	if r.ContentLength > 0 && !DecodeJSON(w, r, &overrides) {
		return
	}
	wf, err := h.deps.Templates.InstantiateWorkflow(r.Context(), pathVar(r, "id"), overrides)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.deps.Engine.CreateWorkflow(r.Context(), wf); err != nil {
		WriteError(w, err)
		return
	}
	h.audit(r, "instantiate_workflow_template", "workflow", wf.ID, nil)
	WriteJSON(w, http.StatusCreated, wf)
}
