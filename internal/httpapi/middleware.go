package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/opencore/mcpgate/internal/errs"
	"github.com/opencore/mcpgate/internal/ids"
	"github.com/opencore/mcpgate/internal/logging"
	"github.com/opencore/mcpgate/internal/tenant"
)

// responseWriter wraps http.ResponseWriter to capture the status code for
// logging and metrics, the same shape the teacher's middleware package
// uses in LoggingMiddleware.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// LoggingMiddleware logs each request's method, path, status, and
// duration, and tags the request context with a trace id.
func LoggingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			traceID := r.Header.Get("X-Trace-ID")
			if traceID == "" {
				traceID = ids.New()
			}
			ctx := logging.WithTraceID(r.Context(), traceID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Trace-ID", traceID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			log.WithContext(ctx).WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      wrapped.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Info("request handled")
		})
	}
}

// RecoveryMiddleware recovers from panics in downstream handlers, logs
// the stack trace, and reports a 500 rather than crashing the server.
func RecoveryMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.WithContext(r.Context()).WithFields(logrus.Fields{
						"panic": rec,
						"stack": string(debug.Stack()),
						"path":  r.URL.Path,
					}).Error("panic recovered")
					WriteError(w, errs.Internal("internal server error", nil))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type callerContextKey string

const callerKeyCtx callerContextKey = "httpapi_caller"

// Caller carries the authenticated identity for a request: either a
// tenant-scoped API key, or the master admin key with full access.
type Caller struct {
	IsAdmin  bool
	KeyID    string
	TenantID string
}

// CallerFromContext extracts the authenticated Caller a prior call to
// AuthMiddleware attached to ctx.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKeyCtx).(Caller); ok {
		return c
	}
	return Caller{}
}

// AuthMiddleware authenticates every request via the X-API-Key header,
// either against masterAdminKey (constant-time compared, the same
// defense the teacher's HeaderGateMiddleware uses for its shared secret)
// or, failing that, against tenant.Manager's issued keys.
func AuthMiddleware(log *logging.Logger, tenants *tenant.Manager, masterAdminKey string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				WriteError(w, errs.Unauthenticated("missing X-API-Key header"))
				return
			}

			if masterAdminKey != "" && subtle.ConstantTimeCompare([]byte(raw), []byte(masterAdminKey)) == 1 {
				ctx := context.WithValue(r.Context(), callerKeyCtx, Caller{IsAdmin: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			key, err := tenants.Authenticate(r.Context(), raw)
			if err != nil {
				WriteError(w, err)
				return
			}
			ctx := logging.WithCallerKey(r.Context(), key.ID)
			ctx = logging.WithTenantID(ctx, key.TenantID)
			ctx = context.WithValue(ctx, callerKeyCtx, Caller{KeyID: key.ID, TenantID: key.TenantID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects any caller that didn't authenticate as the master
// admin key; used on administrative routes (server catalog, tenant
// administration, templates, budgets) that a tenant-scoped key must not
// reach.
func RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CallerFromContext(r.Context()).IsAdmin {
			WriteError(w, errs.PermissionDenied("admin key required"))
			return
		}
		next(w, r)
	}
}
