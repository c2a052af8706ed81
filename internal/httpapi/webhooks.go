package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func registerWebhookRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/webhooks", RequireAdmin(h.createWebhook)).Methods("POST")
	api.HandleFunc("/webhooks", RequireAdmin(h.listWebhooks)).Methods("GET")
	api.HandleFunc("/webhooks/{id}", RequireAdmin(h.getWebhook)).Methods("GET")
	api.HandleFunc("/webhooks/{id}", RequireAdmin(h.deleteWebhook)).Methods("DELETE")
	api.HandleFunc("/webhooks/{id}/deliveries", RequireAdmin(h.listWebhookDeliveries)).Methods("GET")
}

func (h *handlers) createWebhook(w http.ResponseWriter, r *http.Request) {
	var sub model.WebhookSubscription
	if !DecodeJSON(w, r, &sub) {
		return
	}
	if sub.URL == "" {
		WriteError(w, errs.Validation("url", "must not be empty"))
		return
	}
	if len(sub.EventKinds) == 0 {
		WriteError(w, errs.Validation("event_kinds", "must list at least one event kind"))
		return
	}
	sub.ID = ids.New()
	sub.Enabled = true
	sub.CreatedAt = time.Now()

	err := h.deps.Store.Webhooks().CreateSubscription(r.Context(), sub)
	h.audit(r, "create_webhook_subscription", "webhook_subscription", sub.ID, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, sub)
}

func (h *handlers) listWebhooks(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.Store.Webhooks().ListSubscriptions(r.Context(), r.URL.Query().Get("event_kind"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"subscriptions": list})
}

func (h *handlers) getWebhook(w http.ResponseWriter, r *http.Request) {
	sub, err := h.deps.Store.Webhooks().GetSubscription(r.Context(), pathVar(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sub)
}

func (h *handlers) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "id")
	err := h.deps.Store.Webhooks().DeleteSubscription(r.Context(), id)
	h.audit(r, "delete_webhook_subscription", "webhook_subscription", id, err)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusNoContent, nil)
}

func (h *handlers) listWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	list, err := h.deps.Store.Webhooks().ListDeliveries(r.Context(), pathVar(r, "id"), limit)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"deliveries": list})
}
