package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Claims), args.Error(1)
}

func claimsEcho(t *testing.T, wantSub string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaimsFromContext(r.Context())
		if wantSub == "" {
			assert.Nil(t, claims)
		} else if assert.NotNil(t, claims) {
			assert.Equal(t, wantSub, claims.Sub)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		setup      func(r *http.Request)
		token      string
		validErr   error
		wantStatus int
	}{
		{
			name:       "bearer header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer header-token") },
			token:      "header-token",
			wantStatus: http.StatusOK,
		},
		{
			name:       "lower-case scheme",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "bearer header-token") },
			token:      "header-token",
			wantStatus: http.StatusOK,
		},
		{
			name:       "auth_token cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-token"}) },
			token:      "cookie-token",
			wantStatus: http.StatusOK,
		},
		{
			name:       "session cookie",
			setup:      func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "session", Value: "session-token"}) },
			token:      "session-token",
			wantStatus: http.StatusOK,
		},
		{
			name: "header wins over cookie",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer header-token")
				r.AddCookie(&http.Cookie{Name: "auth_token", Value: "cookie-token"})
			},
			token:      "header-token",
			wantStatus: http.StatusOK,
		},
		{
			name:       "expired token",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer stale") },
			token:      "stale",
			validErr:   errors.New("token expired"),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing token",
			setup:      func(r *http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic scheme",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := new(MockTokenValidator)
			if tt.token != "" {
				if tt.validErr != nil {
					validator.On("ValidateToken", mock.Anything, tt.token).Return(nil, tt.validErr)
				} else {
					validator.On("ValidateToken", mock.Anything, tt.token).Return(&Claims{Sub: "sub-1"}, nil)
				}
			}

			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				assert.Equal(t, "sub-1", GetClaimsFromContext(r.Context()).Sub)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/access/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			NewAuthMiddleware(validator, logger).RequireAuth(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			validator.AssertExpectations(t)
			if tt.token == "" {
				validator.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	logger := zap.NewNop()

	t.Run("attaches claims for a valid token", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("ValidateToken", mock.Anything, "good").Return(&Claims{Sub: "sub-9"}, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/access/routes/check", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()

		NewAuthMiddleware(validator, logger).OptionalAuth(claimsEcho(t, "sub-9")).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("continues anonymously without a token", func(t *testing.T) {
		validator := new(MockTokenValidator)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/access/routes/check", nil)
		w := httptest.NewRecorder()

		NewAuthMiddleware(validator, logger).OptionalAuth(claimsEcho(t, "")).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		validator.AssertNotCalled(t, "ValidateToken", mock.Anything, mock.Anything)
	})

	t.Run("continues anonymously with an invalid token", func(t *testing.T) {
		validator := new(MockTokenValidator)
		validator.On("ValidateToken", mock.Anything, "forged").Return(nil, errors.New("bad signature"))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/access/routes/check", nil)
		req.Header.Set("Authorization", "Bearer forged")
		w := httptest.NewRecorder()

		NewAuthMiddleware(validator, logger).OptionalAuth(claimsEcho(t, "")).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Nil(t, GetClaimsFromContext(ctx))
	assert.Nil(t, GetSessionFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithClaims(ctx, &Claims{Sub: "sub"})
	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
	assert.Equal(t, "sub", GetClaimsFromContext(ctx).Sub)

	// wrong value types are ignored
	ctx = context.WithValue(ctx, SessionKey, "not a session")
	assert.Nil(t, GetSessionFromContext(ctx))
}
