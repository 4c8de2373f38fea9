package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/augustinmaps01/risk-profiling/internal/observability"
	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/services"
	"github.com/augustinmaps01/risk-profiling/services/audit"
	"github.com/augustinmaps01/risk-profiling/utils"
	"go.uber.org/zap"
)

// SessionResolver turns validated claims into a permission session
type SessionResolver interface {
	Resolve(ctx context.Context, claims *Claims) (*permissions.Session, error)
	Anonymous() *permissions.Session
}

// DenialRecorder receives denied decisions for auditing
type DenialRecorder interface {
	LogRouteDenied(event audit.AccessEvent) error
	LogFeatureDenied(event audit.AccessEvent) error
}

// DecisionRecorder counts decisions
type DecisionRecorder interface {
	RecordDecision(kind string, allowed bool)
}

// AccessMiddleware enforces route, permission and feature checks against the
// session attached by LoadSession
type AccessMiddleware struct {
	resolver         SessionResolver
	denials          DenialRecorder
	metrics          DecisionRecorder
	unauthorizedPath string
	logger           *zap.Logger
}

// NewAccessMiddleware creates a new AccessMiddleware. denials and metrics may
// be nil.
func NewAccessMiddleware(
	resolver SessionResolver,
	denials DenialRecorder,
	metrics DecisionRecorder,
	unauthorizedPath string,
	logger *zap.Logger,
) *AccessMiddleware {
	return &AccessMiddleware{
		resolver:         resolver,
		denials:          denials,
		metrics:          metrics,
		unauthorizedPath: unauthorizedPath,
		logger:           logger,
	}
}

// LoadSession resolves the session for the claims in context, or attaches the
// anonymous session when there are none. Run it after RequireAuth or
// OptionalAuth.
func (m *AccessMiddleware) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		claims := GetClaimsFromContext(ctx)
		if claims == nil {
			next.ServeHTTP(w, r.WithContext(WithSession(ctx, m.resolver.Anonymous())))
			return
		}

		session, err := m.resolver.Resolve(ctx, claims)
		if err != nil {
			m.logger.Warn("failed to resolve session",
				zap.String("request_id", requestID),
				zap.String("sub", claims.Sub),
				zap.Error(err))
			writeResolveError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, session)))
	})
}

// RequireRoute guards handlers with the decision for a fixed client route
func (m *AccessMiddleware) RequireRoute(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.enforceRoute(w, r, route) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// GuardRoutes guards a mounted page tree. The client route is the request
// path with prefix removed, so /app/reports is checked as /reports.
func (m *AccessMiddleware) GuardRoutes(prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.enforceRoute(w, r, ClientRoute(prefix, r.URL.Path)) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// ClientRoute strips prefix from path. The remainder is matched as is, so
// /app/reports/ is the route /reports/, not /reports. Only the bare mount
// point maps to /.
func ClientRoute(prefix, path string) string {
	route := strings.TrimPrefix(path, strings.TrimSuffix(prefix, "/"))
	if route == "" {
		return "/"
	}
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}
	return route
}

func (m *AccessMiddleware) enforceRoute(w http.ResponseWriter, r *http.Request, route string) bool {
	session := GetSessionFromContext(r.Context())
	decision := session.ExplainRoute(route)
	m.record(observability.KindRoute, decision.Allowed)
	if decision.Allowed {
		return true
	}

	m.logger.Info("route access denied",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("sub", session.Subject()),
		zap.String("route", route),
		zap.String("mode", string(decision.Mode)),
		zap.Bool("admin_denied", decision.AdminDenied))

	if m.denials != nil {
		event := accessEvent(r, session, route)
		event.Mode = string(decision.Mode)
		event.MatchedRule = decision.MatchedRule
		event.Required = decision.Required
		_ = m.denials.LogRouteDenied(event)
	}

	if utils.WantsHTML(r) && m.unauthorizedPath != "" {
		http.Redirect(w, r, m.unauthorizedPath, http.StatusSeeOther)
		return false
	}

	details := map[string]interface{}{
		"route": decision.Route,
		"mode":  decision.Mode,
	}
	if decision.MatchedRule != "" {
		details["matched_rule"] = decision.MatchedRule
	}
	if len(decision.Required) > 0 {
		details["required"] = decision.Required
	}
	if decision.AdminDenied {
		details["admin_denied"] = true
	}
	if !session.IsAuthenticated() {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return false
	}
	_ = utils.WriteForbidden(w, "You do not have access to this page", details)
	return false
}

// RequirePermission allows the request when the session holds any of the
// given permissions
func (m *AccessMiddleware) RequirePermission(required ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if !m.authenticated(w, r, session) {
				return
			}
			if !session.HasAnyPermission(required) {
				m.logger.Info("permission denied",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("sub", session.Subject()),
					zap.Strings("required", required))
				_ = utils.WriteForbidden(w, "Insufficient permissions", map[string]interface{}{
					"required": required,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole allows the request when the session holds any of the roles
func (m *AccessMiddleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if !m.authenticated(w, r, session) {
				return
			}
			if !session.HasAnyRole(roles) {
				m.logger.Info("role check failed",
					zap.String("request_id", GetRequestIDFromContext(r.Context())),
					zap.String("sub", session.Subject()),
					zap.Strings("required_roles", roles),
					zap.Strings("roles", session.Roles()))
				_ = utils.WriteForbidden(w, "Insufficient permissions", map[string]interface{}{
					"required_roles": roles,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireFeature allows the request when the feature is enabled for the session
func (m *AccessMiddleware) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := GetSessionFromContext(r.Context())
			if !m.authenticated(w, r, session) {
				return
			}
			allowed := session.CanAccessFeature(feature)
			m.record(observability.KindFeature, allowed)
			if !allowed {
				if m.denials != nil {
					event := accessEvent(r, session, feature)
					event.Mode = "feature"
					event.Required, _ = session.Catalog().FeaturePermissions(feature)
					_ = m.denials.LogFeatureDenied(event)
				}
				_ = utils.WriteForbidden(w, "Feature not available", map[string]interface{}{
					"feature": feature,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *AccessMiddleware) authenticated(w http.ResponseWriter, r *http.Request, session *permissions.Session) bool {
	if session.IsAuthenticated() {
		return true
	}
	m.logger.Debug("unauthenticated request to protected endpoint",
		zap.String("request_id", GetRequestIDFromContext(r.Context())),
		zap.String("path", r.URL.Path))
	_ = utils.WriteUnauthorized(w, "Authentication required")
	return false
}

func (m *AccessMiddleware) record(kind string, allowed bool) {
	if m.metrics != nil {
		m.metrics.RecordDecision(kind, allowed)
	}
}

func accessEvent(r *http.Request, session *permissions.Session, target string) audit.AccessEvent {
	return audit.AccessEvent{
		Subject:   session.Subject(),
		Roles:     session.Roles(),
		Target:    target,
		RequestID: GetRequestIDFromContext(r.Context()),
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already replaced with the forwarded address when present
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeResolveError(w http.ResponseWriter, err error) {
	switch services.GetErrorType(err) {
	case services.ErrorTypeUnauthorized:
		_ = utils.WriteUnauthorized(w, err.Error())
	case services.ErrorTypeUnavailable:
		_ = utils.WriteServiceUnavailable(w, "Identity service unavailable", nil)
	default:
		_ = utils.WriteInternalServerError(w, "Failed to resolve session")
	}
}
