// This file deals with request-scoped values carried in `context.Context`:
// the verified Identity placed there by the guard, and a request logger.
package auth

import (
	"context"

	"github.com/sirupsen/logrus"
)

// `contextKey` is a custom type for context keys. Using a custom type prevents collisions
// with context keys defined in other packages.
type contextKey string

const (
	identityContextKey contextKey = "auth_identity"
	loggerContextKey   contextKey = "request_logger"
)

// NewContextWithIdentity returns a child context carrying the verified identity.
func NewContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext extracts the identity stored by NewContextWithIdentity.
// The second return value indicates if it was found.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	return identity, ok && identity != nil
}

// NewContextWithLogger attaches a request-scoped logger.
func NewContextWithLogger(ctx context.Context, logger logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerContextKey, logger)
}

// LoggerFromContext returns the request logger, or the standard logrus logger when none is set.
func LoggerFromContext(ctx context.Context) logrus.FieldLogger {
	if logger, ok := ctx.Value(loggerContextKey).(logrus.FieldLogger); ok && logger != nil {
		return logger
	}
	return logrus.StandardLogger()
}
