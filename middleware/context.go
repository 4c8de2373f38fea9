package middleware

import (
	"context"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// ClaimsKey is the context key for JWT claims
	ClaimsKey contextKey = "claims"

	// SessionKey is the context key for the resolved permission session
	SessionKey contextKey = "session"
)

// Claims represents JWT claims extracted from the token
type Claims struct {
	Sub           string   `json:"sub"` // Subject (user ID in Cognito)
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Username      string   `json:"cognito:username"`
	Groups        []string `json:"cognito:groups"`
	Roles         []string `json:"custom:roles"`
	Iss           string   `json:"iss"` // Issuer
	Exp           int64    `json:"exp"` // Expiration
	Iat           int64    `json:"iat"` // Issued at
}

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetClaimsFromContext retrieves JWT claims from context
func GetClaimsFromContext(ctx context.Context) *Claims {
	if val := ctx.Value(ClaimsKey); val != nil {
		if claims, ok := val.(*Claims); ok {
			return claims
		}
	}
	return nil
}

// WithClaims adds JWT claims to the context
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, ClaimsKey, claims)
}

// GetSessionFromContext retrieves the permission session from context. A nil
// session behaves as unauthenticated.
func GetSessionFromContext(ctx context.Context) *permissions.Session {
	if val := ctx.Value(SessionKey); val != nil {
		if session, ok := val.(*permissions.Session); ok {
			return session
		}
	}
	return nil
}

// WithSession adds the permission session to the context
func WithSession(ctx context.Context, session *permissions.Session) context.Context {
	return context.WithValue(ctx, SessionKey, session)
}
