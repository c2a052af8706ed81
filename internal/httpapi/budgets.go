package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func registerBudgetRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/budgets", RequireAdmin(h.createBudgetRule)).Methods("POST")
	api.HandleFunc("/budgets", RequireAdmin(h.listBudgetRules)).Methods("GET")
	api.HandleFunc("/budgets/{id}", RequireAdmin(h.deleteBudgetRule)).Methods("DELETE")
}

func (h *handlers) createBudgetRule(w http.ResponseWriter, r *http.Request) {
	var rule model.BudgetRule
	if !DecodeJSON(w, r, &rule) {
		return
	}
	if rule.Limit <= 0 {
		WriteError(w, errs.Validation("limit", "must be positive"))
		return
	}
	rule.ID = ids.New()

	err := h.deps.Store.Budgets().CreateRule(r.Context(), rule)
	h.audit(r, "create_budget_rule", "budget_rule", rule.ID, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rule)
}

func (h *handlers) listBudgetRules(w http.ResponseWriter, r *http.Request) {
	scope := model.BudgetScope(r.URL.Query().Get("scope"))
	scopeID := r.URL.Query().Get("scope_id")
	list, err := h.deps.Store.Budgets().ListRules(r.Context(), scope, scopeID)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (h *handlers) deleteBudgetRule(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	err := h.deps.Store.Budgets().DeleteRule(r.Context(), id)
	h.audit(r, "delete_budget_rule", "budget_rule", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}
