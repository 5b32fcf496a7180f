// Package logging provides structured logging with trace ID support.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type used for context keys carried by this package.
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
	AgentIDKey ContextKey = "agent_id"
	OwnerKey   ContextKey = "owner"
)

// Logger wraps logrus.Logger with APLE-specific structured helpers.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for the named service.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{Logger: logger, service: service}
}

// NewFromEnv builds a logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns an entry tagged with the service name and any
// trace/agent/owner identifiers carried on ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if traceID := ctx.Value(TraceIDKey); traceID != nil {
		entry = entry.WithField("trace_id", traceID)
	}
	if agentID := ctx.Value(AgentIDKey); agentID != nil {
		entry = entry.WithField("agent_id", agentID)
	}
	if owner := ctx.Value(OwnerKey); owner != nil {
		entry = entry.WithField("owner", owner)
	}
	return entry
}

func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{"service": l.service, "error": err.Error()})
}

// Context helpers.

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, OwnerKey, owner)
}

// Domain structured-logging helpers.

// LogStateTransition records a proposal (or any entity) state change.
func (l *Logger) LogStateTransition(ctx context.Context, entity, id, from, to, actor string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"entity": entity,
		"id":     id,
		"from":   from,
		"to":     to,
		"actor":  actor,
	}).Info("state transition")
}

// LogWebhookAttempt records one delivery attempt outcome.
func (l *Logger) LogWebhookAttempt(ctx context.Context, deliveryID, eventType string, attempt, statusCode int, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"delivery_id": deliveryID,
		"event_type":  eventType,
		"attempt":     attempt,
		"status_code": statusCode,
	})
	if err != nil {
		entry.WithError(err).Warn("webhook attempt failed")
		return
	}
	entry.Info("webhook attempt")
}

// LogBreakerStateChange records a circuit breaker transition.
func (l *Logger) LogBreakerStateChange(ctx context.Context, service, from, to string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"service": service,
		"from":    from,
		"to":      to,
	}).Warn("circuit breaker state change")
}

// LogAudit records an audit-relevant event as a structured log line,
// distinct from the first-class AuditEntry the audit store persists.
func (l *Logger) LogAudit(ctx context.Context, actor, action, resourceType, resourceID string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"actor":         actor,
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"audit":         true,
	}).Info("audit event")
}

// Plain level methods used throughout the domain packages.

func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Info(message)
}

func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).Warn(message)
}

func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	entry := l.WithContext(ctx)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.WithFields(fields).Error(message)
}

// Global default logger, mirrored from the teacher's convenience pattern.

var defaultLogger *Logger

func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("apled", "info", "json")
	}
	return defaultLogger
}
