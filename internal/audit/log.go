package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"hookrelay.io/internal/auth"
	"hookrelay.io/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with the request id and the
// caller's organization and application. Token material is never logged.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := logrus.Fields{
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if perms, ok := auth.PermissionsFromContext(ctx); ok {
		entry["org_id"] = perms.OrgID().String()
		entry["key_type"] = perms.Type().String()
		if appID, ok := perms.AppID(); ok {
			entry["app_id"] = appID.String()
		}
	}
	for k, v := range fields {
		if _, reserved := entry[k]; reserved {
			continue
		}
		entry[k] = v
	}
	obs.Logger().WithFields(entry).Info("audit")
	return nil
}
