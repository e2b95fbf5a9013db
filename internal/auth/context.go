package auth

import (
	"context"
	"strings"
)

type permissionsContextKey struct{}
type tokenContextKey struct{}

// ContextWithPermissions attaches the resolved permissions to the context.
func ContextWithPermissions(ctx context.Context, perms Permissions) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, perms)
}

// PermissionsFromContext extracts the permissions stored by ContextWithPermissions.
func PermissionsFromContext(ctx context.Context) (Permissions, bool) {
	if ctx == nil {
		return Permissions{}, false
	}
	v, ok := ctx.Value(permissionsContextKey{}).(Permissions)
	if !ok || v.Type() == 0 {
		return Permissions{}, false
	}
	return v, true
}

// ContextWithToken stores the raw bearer token inside the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the bearer token if it was previously attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

const bearerPrefix = "bearer "

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", false
	}
	return token, true
}
