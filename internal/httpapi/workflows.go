package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func registerWorkflowRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/workflows", RequireAdmin(h.createWorkflow)).Methods("POST")
	api.HandleFunc("/workflows", RequireAdmin(h.listWorkflows)).Methods("GET")
	api.HandleFunc("/workflows/{id}", RequireAdmin(h.getWorkflow)).Methods("GET")
	api.HandleFunc("/workflows/{id}", RequireAdmin(h.updateWorkflow)).Methods("PUT")
	api.HandleFunc("/workflows/{id}", RequireAdmin(h.deleteWorkflow)).Methods("DELETE")
	api.HandleFunc("/workflows/{id}/execute", h.executeWorkflow).Methods("POST")
	api.HandleFunc("/workflows/{id}/executions", h.listExecutions).Methods("GET")
	api.HandleFunc("/executions/{id}", h.getExecution).Methods("GET")
}

func (h *handlers) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf model.Workflow
	if !DecodeJSON(w, r, &wf) {
		return
	}
	if wf.Name == "" {
		WriteError(w, errs.Validation("name", "must not be empty"))
		return
	}
	now := time.Now()
	wf.ID = ids.New()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	err := h.deps.Engine.CreateWorkflow(r.Context(), wf)
	h.audit(r, "create_workflow", "workflow", wf.ID, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, wf)
}

func (h *handlers) listWorkflows(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.Workflows().List(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"workflows": list})
}

func (h *handlers) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.deps.Store.Workflows().Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, wf)
}

func (h *handlers) updateWorkflow(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	existing, err := h.deps.Store.Workflows().Get(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	var patch model.Workflow
	if !DecodeJSON(w, r, &patch) {
		return
	}
	patch.ID = existing.ID
	patch.CreatedAt = existing.CreatedAt
	patch.UpdatedAt = time.Now()

	err = h.deps.Engine.UpdateWorkflow(r.Context(), patch)
	h.audit(r, "update_workflow", "workflow", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, patch)
}

func (h *handlers) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	err := h.deps.Store.Workflows().Delete(r.Context(), id)
	h.audit(r, "delete_workflow", "workflow", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) executeWorkflow(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	var body struct {
		Input map[string]any `json:"input"`
	}
	if r.ContentLength > 0 {
		if !DecodeJSON(w, r, &body) {
			return
		}
	}

	caller := CallerFromContext(r.Context())
	execID, err := h.deps.Engine.Execute(r.Context(), id, caller.TenantID, caller.KeyID, body.Input)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"execution_id": execID, "status": string(model.ExecRunning)})
}

func (h *handlers) listExecutions(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	list, err := h.deps.Store.Executions().ListExecutions(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"executions": list})
}

func (h *handlers) getExecution(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	exec, err := h.deps.Store.Executions().GetExecution(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	steps, err := h.deps.Store.Executions().ListSteps(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"execution": exec, "steps": steps})
}
