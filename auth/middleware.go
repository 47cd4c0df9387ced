// This file defines the HTTP middleware that guards protected routes.
// Middleware are functions that process HTTP requests before they reach the main handler.
package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/user/quill-go/apperror"
)

// TokenVerifier is the part of the credential service the guard depends on.
type TokenVerifier interface {
	VerifyToken(token string) (*Identity, error)
}

// bearerToken extracts the token from an `Authorization: Bearer <token>` header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Guard creates the identity guard middleware.
// A missing or non-bearer header is a 401; a token that fails verification is a 403.
// On success the verified Identity is attached to the request context.
func Guard(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, r, apperror.NewAuthError("Unauthorized. No token.", nil))
				return
			}

			identity, err := verifier.VerifyToken(token)
			if err != nil {
				LoggerFromContext(r.Context()).WithError(err).Debug("Rejected bearer token")
				WriteError(w, r, apperror.NewForbiddenError("Unauthorized. Invalid token.", err))
				return
			}

			ctx := NewContextWithIdentity(r.Context(), identity)
			ctx = NewContextWithLogger(ctx, LoggerFromContext(ctx).WithField("user_id", identity.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a logger carrying the chi request id to every request context.
func RequestLogger(logger logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := logger.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			next.ServeHTTP(w, r.WithContext(NewContextWithLogger(r.Context(), entry)))
		})
	}
}
