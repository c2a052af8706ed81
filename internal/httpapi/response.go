// Package httpapi implements the gateway's client-facing HTTP surface
// (spec §6): server catalog, tool/prompt/resource invocation and search,
// the workflow engine's CRUD and execution endpoints, the template
// catalog, tenant/key administration, SSE streams, and webhook
// subscription management, routed with gorilla/mux the way the teacher's
// infrastructure/service package builds each marble's Router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/opencore/mcpgate/internal/errs"
)

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape of every non-2xx response.
type errorBody struct {
	Error struct {
		Kind    string         `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// WriteError maps err to its HTTP status and the taxonomy's wire shape
// (spec §7). Any error that isn't a *errs.GatewayError is reported as an
// opaque internal error; handlers should always produce GatewayErrors.
func WriteError(w http.ResponseWriter, err error) {
	ge, ok := errs.As(err)
	if !ok {
		ge = errs.Internal("unexpected error", err)
	}
	body := errorBody{}
	body.Error.Kind = string(ge.Kind)
	body.Error.Message = ge.Message
	body.Error.Details = ge.Details
	WriteJSON(w, ge.HTTPStatus, body)
}

// DecodeJSON decodes the request body into dest, writing a validation
// error and returning false on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	if r.Body == nil {
		WriteError(w, errs.Validation("body", "request body is required"))
		return false
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		WriteError(w, errs.Validation("body", err.Error()))
		return false
	}
	return true
}

// pathVar extracts a mux route variable.
func pathVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

// queryInt parses an integer query parameter, falling back to def on
// absence or parse failure.
func queryInt(r *http.Request, name string, def int) int {
	return queryIntFromValues(r.URL.Query(), name, def)
}

// queryIntFromValues is queryInt's underlying parse, usable directly
// against an already-extracted url.Values.
func queryIntFromValues(q url.Values, name string, def int) int {
	raw := q.Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
