package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ratelimit"
	"github.com/opencore/mcpgate/internal/registry"
	"github.com/opencore/mcpgate/internal/router"
	"github.com/opencore/mcpgate/internal/storage/model"
)

func registerInvokeRoutes(api *mux.Router, h *handlers) {
	api.HandleFunc("/invoke", h.invoke).Methods("POST")
	api.HandleFunc("/invoke/batch", h.invokeBatch).Methods("POST")
	api.HandleFunc("/search", h.search).Methods("GET")
}

// invokeRequest is the wire shape of a single call, whether it arrives
// alone via /invoke or as an element of /invoke/batch's list.
type invokeRequest struct {
	Kind        model.CapabilityKind `json:"kind"`
	Name        string               `json:"name"`
	Params      map[string]any       `json:"params"`
	ResourceURI string               `json:"resource_uri"`
	Cacheable   bool                 `json:"cacheable"`
	CacheTTLMs  int64                `json:"cache_ttl_ms"`
}

func (req invokeRequest) toCallSpec(callerKeyID string) router.CallSpec {
	return router.CallSpec{
		Kind: req.Kind, Name: req.Name, Params: req.Params, ResourceURI: req.ResourceURI,
		CallerKeyID: callerKeyID, Cacheable: req.Cacheable,
		CacheTTL: time.Duration(req.CacheTTLMs) * time.Millisecond,
	}
}

type invokeResponse struct {
	Raw        json.RawMessage `json:"result,omitempty"`
	Cached     bool            `json:"cached"`
	ServerID   string          `json:"server_id,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	Error      *errorBody      `json:"error,omitempty"`
}

func toInvokeResponse(res router.Result) invokeResponse {
	out := invokeResponse{Raw: res.Raw, Cached: res.Cached, ServerID: res.ServerID, DurationMs: res.Duration.Milliseconds()}
	if res.Err != nil {
		ge, ok := errs.As(res.Err)
		if !ok {
			ge = errs.Internal("unexpected error", res.Err)
		}
		body := &errorBody{}
		body.Error.Kind = string(ge.Kind)
		body.Error.Message = ge.Message
		body.Error.Details = ge.Details
		out.Error = body
	}
	return out
}

func (h *handlers) invoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, errs.Validation("name", "must not be empty"))
		return
	}

	caller := CallerFromContext(r.Context())
	res := h.deps.Router.Invoke(r.Context(), req.toCallSpec(caller.KeyID), h.policy())
	if res.Err != nil {
		WriteError(w, res.Err)
		return
	}
	WriteJSON(w, http.StatusOK, toInvokeResponse(res))
}

func (h *handlers) invokeBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Calls []invokeRequest `json:"calls"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Calls) == 0 {
		WriteError(w, errs.Validation("calls", "must not be empty"))
		return
	}

	caller := CallerFromContext(r.Context())
	specs := make([]router.CallSpec, len(req.Calls))
	for i, c := range req.Calls {
		specs[i] = c.toCallSpec(caller.KeyID)
	}

	results := h.deps.Router.InvokeBatch(r.Context(), specs, h.policy())
	out := make([]invokeResponse, len(results))
	for i, res := range results {
		out[i] = toInvokeResponse(res)
	}
	WriteJSON(w, http.StatusOK, map[string]any{"results": out})
}

// policy resolves the rate limit policy applied per server to every call;
// the Router looks it up by the resolved entry's server id internally, so
// httpapi only needs to supply the gateway-wide default (spec §4.4: a
// server without its own override inherits this).
func (h *handlers) policy() ratelimit.Policy {
	return ratelimit.Policy{PerMinute: h.deps.RateLimitDefaultPerMinute, PerDay: h.deps.RateLimitDefaultPerDay}
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	entries, total := h.deps.Registry.Search(registrySearchOptions(r.URL.Query()))
	WriteJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func registrySearchOptions(q url.Values) registry.SearchOptions {
	return registry.SearchOptions{
		Kind:     model.CapabilityKind(q.Get("kind")),
		Query:    q.Get("q"),
		ServerID: q.Get("server_id"),
		Offset:   queryIntFromValues(q, "offset", 0),
		Limit:    queryIntFromValues(q, "limit", 50),
	}
}
