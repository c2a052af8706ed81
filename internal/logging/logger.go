// Package logging provides structured, dependency-injected logging for the gateway.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context-carried logging metadata.
type ContextKey string

const (
	TraceIDKey    ContextKey = "trace_id"
	CallerKeyKey  ContextKey = "caller_key_id"
	TenantIDKey   ContextKey = "tenant_id"
	ExecutionKey  ContextKey = "execution_id"
)

// Logger wraps logrus.Logger with gateway-specific structured helpers.
// Every component receives one through its constructor; there is no
// package-level default instance.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls logger construction.
type Config struct {
	Level     string
	Format    string // "json" or "text"
	Component string
}

// New builds a Logger from explicit config.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(cfg.Format, "text") {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}
	l.SetOutput(os.Stdout)

	return &Logger{Logger: l, component: cfg.Component}
}

// NewFromEnv builds a Logger using LOG_LEVEL/LOG_FORMAT, defaulting to info/json.
func NewFromEnv(component string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(Config{Level: level, Format: format, Component: component})
}

// WithContext returns an entry carrying trace/caller/tenant/execution ids found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if v := ctx.Value(TraceIDKey); v != nil {
		entry = entry.WithField("trace_id", v)
	}
	if v := ctx.Value(CallerKeyKey); v != nil {
		entry = entry.WithField("caller_key_id", v)
	}
	if v := ctx.Value(TenantIDKey); v != nil {
		entry = entry.WithField("tenant_id", v)
	}
	if v := ctx.Value(ExecutionKey); v != nil {
		entry = entry.WithField("execution_id", v)
	}
	return entry
}

// WithFields returns an entry tagged with the component and the given fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// Context helpers

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}

func WithCallerKey(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CallerKeyKey, id)
}

func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TenantIDKey, id)
}

func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ExecutionKey, id)
}

// Domain-specific structured helpers, mirroring the teacher's LogX methods.

// LogToolInvocation records the outcome of a single tool dispatch.
func (l *Logger) LogToolInvocation(ctx context.Context, qualifiedName string, cached bool, success bool, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"tool":        qualifiedName,
		"cached":      cached,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("tool invocation failed")
		return
	}
	entry.Info("tool invoked")
}

// LogCircuitTransition records a circuit breaker state change.
func (l *Logger) LogCircuitTransition(ctx context.Context, serverID string, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"server_id": serverID,
		"from":      from,
		"to":        to,
	}).Warn("circuit state changed")
}

// LogWorkflowStep records a single workflow step transition.
func (l *Logger) LogWorkflowStep(ctx context.Context, executionID, step, status string, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"execution_id": executionID,
		"step":         step,
		"status":       status,
	})
	if err != nil {
		entry.WithError(err).Error("workflow step failed")
		return
	}
	entry.Info("workflow step")
}

// LogAudit records a mutating admin operation.
func (l *Logger) LogAudit(ctx context.Context, action, resourceType, resourceID string, success bool, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"success":       success,
		"duration_ms":   duration.Milliseconds(),
		"audit":         true,
	})
	if err != nil {
		entry.WithError(err).Warn("audit event")
		return
	}
	entry.Info("audit event")
}

// LogWebhookDelivery records a single webhook delivery attempt.
func (l *Logger) LogWebhookDelivery(ctx context.Context, subscriptionID string, attempt int, statusCode int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"subscription_id": subscriptionID,
		"attempt":         attempt,
		"status_code":     statusCode,
	})
	if err != nil {
		entry.WithError(err).Warn("webhook delivery attempt failed")
		return
	}
	entry.Info("webhook delivery attempt")
}
