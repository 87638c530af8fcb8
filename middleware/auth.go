package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"task-tracker/tasks-service/logging"
	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/utils"
)

type contextKey string

const (
	callerKey    contextKey = "caller"
	requestIDKey contextKey = "requestId"
)

// TokenValidator is satisfied by *utils.TokenManager.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*utils.Claims, error)
}

// JWTAuth resolves the bearer token to a Caller and stores it on the request context.
// Requests without a valid token never reach next.
func JWTAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logging.Logger.Warnf("Event ID: JWT_AUTH_MISSING_HEADER, Description: Authorization header missing for request to %s %s", r.Method, r.URL.Path)
				utils.WriteError(w, http.StatusUnauthorized, "Access denied. No token provided.", nil)
				return
			}

			tokenStr, found := strings.CutPrefix(authHeader, "Bearer ")
			if !found || tokenStr == "" {
				logging.Logger.Warnf("Event ID: JWT_AUTH_BEARER_PREFIX_MISSING, Description: Bearer prefix missing in Authorization header for request to %s %s", r.Method, r.URL.Path)
				utils.WriteError(w, http.StatusUnauthorized, "Access denied. No token provided.", nil)
				return
			}

			claims, err := tokens.ValidateToken(tokenStr)
			if err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_INVALID_TOKEN, Description: Invalid token provided for request to %s %s: %v", r.Method, r.URL.Path, err)
				if errors.Is(err, utils.ErrExpiredToken) {
					utils.WriteError(w, http.StatusUnauthorized, "Token expired", nil)
					return
				}
				utils.WriteError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			caller, err := claims.Caller()
			if err != nil {
				logging.Logger.Warnf("Event ID: JWT_AUTH_INVALID_CLAIMS, Description: Token claims rejected for request to %s %s: %v", r.Method, r.URL.Path, err)
				utils.WriteError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func WithCaller(ctx context.Context, caller models.Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CallerFromContext returns the authenticated caller; ok is false outside JWTAuth.
func CallerFromContext(ctx context.Context) (models.Caller, bool) {
	caller, ok := ctx.Value(callerKey).(models.Caller)
	return caller, ok
}
