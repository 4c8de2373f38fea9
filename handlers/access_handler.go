package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/augustinmaps01/risk-profiling/internal/observability"
	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/services"
	"github.com/augustinmaps01/risk-profiling/services/audit"
	"github.com/augustinmaps01/risk-profiling/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// IdentityReloader forces a subject's identity to be read again
type IdentityReloader interface {
	Reload(ctx context.Context, subject string) error
}

// RoleLister lists backend role assignments
type RoleLister interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
}

// AccessAuditor records gate denials and profile reloads
type AccessAuditor interface {
	LogGateDenied(event audit.AccessEvent) error
	LogIdentityReload(ctx context.Context, subject, requestID string) error
}

// DecisionRecorder counts decisions
type DecisionRecorder interface {
	RecordDecision(kind string, allowed bool)
}

// GateRequest is one gate to evaluate. Permission and role accept a single
// string or a list.
type GateRequest struct {
	ID         string                 `json:"id" validate:"required,max=128"`
	Permission permissions.StringList `json:"permission,omitempty" validate:"omitempty,dive,permission_value"`
	Role       permissions.StringList `json:"role,omitempty" validate:"omitempty,dive,role_slug"`
	Feature    string                 `json:"feature,omitempty" validate:"omitempty,feature_key"`
	RequireAll bool                   `json:"require_all,omitempty"`
	HideOnFail *bool                  `json:"hide_on_fail,omitempty"`
}

// Gate converts the request to a permissions.Gate
func (g GateRequest) Gate() permissions.Gate {
	return permissions.Gate{
		Permissions: g.Permission,
		Roles:       g.Role,
		Feature:     g.Feature,
		RequireAll:  g.RequireAll,
		HideOnFail:  g.HideOnFail,
	}
}

// EvaluateGatesRequest represents a batch of gates
type EvaluateGatesRequest struct {
	Gates []GateRequest `json:"gates" validate:"required,min=1,max=100,dive"`
}

// SimulateRequest evaluates decisions for a hypothetical role set using the
// reference role permissions
type SimulateRequest struct {
	Roles   []string      `json:"roles" validate:"required,min=1,dive,role_slug"`
	Route   string        `json:"route,omitempty" validate:"omitempty,route_path"`
	Feature string        `json:"feature,omitempty" validate:"omitempty,feature_key"`
	Gates   []GateRequest `json:"gates,omitempty" validate:"omitempty,max=100,dive"`
}

// NormalizeRequest carries a raw auth payload in any supported shape
type NormalizeRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
	Route   string          `json:"route,omitempty" validate:"omitempty,route_path"`
	Feature string          `json:"feature,omitempty" validate:"omitempty,feature_key"`
}

// FeatureDecision is the outcome of a feature check
type FeatureDecision struct {
	Feature  string   `json:"feature"`
	Allowed  bool     `json:"allowed"`
	Known    bool     `json:"known"`
	Required []string `json:"required,omitempty"`
}

// SessionResponse describes the current session
type SessionResponse struct {
	Subject     string            `json:"subject,omitempty"`
	Version     string            `json:"version,omitempty"`
	Roles       []string          `json:"roles"`
	Permissions []string          `json:"permissions"`
	Flags       permissions.Flags `json:"flags"`
	Features    []string          `json:"features"`
	Routes      []string          `json:"routes"`
}

// EvaluationResponse is returned by simulate and normalize
type EvaluationResponse struct {
	Matched     *bool                           `json:"matched,omitempty"`
	Roles       []string                        `json:"roles"`
	Permissions []string                        `json:"permissions"`
	Flags       permissions.Flags               `json:"flags"`
	Route       *permissions.RouteDecision      `json:"route,omitempty"`
	Feature     *FeatureDecision                `json:"feature,omitempty"`
	Gates       map[string]permissions.Decision `json:"gates,omitempty"`
	Features    []string                        `json:"features"`
	Routes      []string                        `json:"routes"`
}

// CatalogResponse is a dump of the permission catalog
type CatalogResponse struct {
	Permissions         map[string]string       `json:"permissions"`
	RolePermissions     map[string][]string     `json:"role_permissions"`
	UIPermissions       map[string][]string     `json:"ui_permissions"`
	RoutePermissions    map[string][]string     `json:"route_permissions"`
	RoleExclusiveRoutes []permissions.RouteRule `json:"role_exclusive_routes"`
}

// DriftResponse compares backend role assignments with the reference table
type DriftResponse struct {
	InSync bool                    `json:"in_sync"`
	Roles  []permissions.RoleDrift `json:"roles"`
}

// AccessHandler serves the access API
type AccessHandler struct {
	catalog  *permissions.Catalog
	reloader IdentityReloader
	roles    RoleLister
	auditor  AccessAuditor
	metrics  DecisionRecorder
	logger   *zap.Logger
}

// NewAccessHandler creates a new AccessHandler. auditor and metrics may be nil.
func NewAccessHandler(
	catalog *permissions.Catalog,
	reloader IdentityReloader,
	roles RoleLister,
	auditor AccessAuditor,
	metrics DecisionRecorder,
	logger *zap.Logger,
) *AccessHandler {
	if catalog == nil {
		catalog = permissions.Default()
	}
	return &AccessHandler{
		catalog:  catalog,
		reloader: reloader,
		roles:    roles,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleMe handles GET /api/v1/access/me
func (h *AccessHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	session := middleware.GetSessionFromContext(r.Context())

	_ = utils.WriteOK(w, SessionResponse{
		Subject:     session.Subject(),
		Version:     session.Version(),
		Roles:       session.Roles(),
		Permissions: session.Permissions(),
		Flags:       session.Flags(),
		Features:    session.VisibleFeatures(),
		Routes:      session.AccessibleRoutes(),
	})
}

// HandleCheckRoute handles GET /api/v1/access/routes/check?path=
func (h *AccessHandler) HandleCheckRoute(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := utils.ValidateRoutePath(path); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), map[string]interface{}{"path": path})
		return
	}

	session := middleware.GetSessionFromContext(r.Context())
	decision := session.ExplainRoute(path)
	h.record(observability.KindRoute, decision.Allowed)

	_ = utils.WriteOK(w, decision)
}

// HandleCheckFeature handles GET /api/v1/access/features/{feature}
func (h *AccessHandler) HandleCheckFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")
	if err := utils.ValidateRequired(feature, "feature"); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	session := middleware.GetSessionFromContext(r.Context())
	decision := featureDecision(session, feature)
	h.record(observability.KindFeature, decision.Allowed)

	_ = utils.WriteOK(w, decision)
}

// HandleEvaluateGates handles POST /api/v1/access/gates
func (h *AccessHandler) HandleEvaluateGates(w http.ResponseWriter, r *http.Request) {
	var req EvaluateGatesRequest
	if !h.decode(w, r, &req) {
		return
	}

	session := middleware.GetSessionFromContext(r.Context())
	results := make(map[string]permissions.Decision, len(req.Gates))
	for _, gate := range req.Gates {
		decision := gate.Gate().Evaluate(session)
		results[gate.ID] = decision
		h.record(observability.KindGate, decision.Allowed)

		if !decision.Allowed && h.auditor != nil && session.IsAuthenticated() {
			_ = h.auditor.LogGateDenied(audit.AccessEvent{
				Subject:   session.Subject(),
				Roles:     session.Roles(),
				Target:    gate.ID,
				Mode:      string(decision.FailedAt),
				RequestID: middleware.GetRequestIDFromContext(r.Context()),
				UserAgent: r.UserAgent(),
			})
		}
	}

	_ = utils.WriteOK(w, results)
}

// HandleSimulate handles POST /api/v1/access/simulate
func (h *AccessHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity := permissions.Identity{Subject: "simulation", Roles: make([]permissions.Role, 0, len(req.Roles))}
	for _, role := range req.Roles {
		identity.Roles = append(identity.Roles, permissions.Role{
			Slug:        role,
			Permissions: h.catalog.RolePermissions(role),
		})
	}
	session := permissions.NewSession(h.catalog, identity, true)

	h.logger.Debug("simulating access",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.Strings("roles", req.Roles))

	_ = utils.WriteOK(w, evaluate(session, req.Route, req.Feature, req.Gates))
}

// HandleNormalize handles POST /api/v1/access/normalize
func (h *AccessHandler) HandleNormalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !h.decode(w, r, &req) {
		return
	}

	payload, err := permissions.ParseAuthPayload(req.Payload)
	if err != nil {
		HandleServiceError(w, services.ErrInvalidPayload.Wrap(err), h.logger)
		return
	}

	identity, matched := payload.Identity()
	session := permissions.NewSession(h.catalog, identity, true)

	response := evaluate(session, req.Route, req.Feature, nil)
	response.Matched = &matched
	_ = utils.WriteOK(w, response)
}

// HandleCatalog handles GET /api/v1/access/catalog
func (h *AccessHandler) HandleCatalog(w http.ResponseWriter, r *http.Request) {
	response := CatalogResponse{
		Permissions:         h.catalog.PermissionNames(),
		RolePermissions:     make(map[string][]string),
		UIPermissions:       make(map[string][]string),
		RoutePermissions:    make(map[string][]string),
		RoleExclusiveRoutes: h.catalog.RoleExclusiveRoutes(),
	}
	for _, role := range h.catalog.RoleSlugs() {
		response.RolePermissions[role] = h.catalog.RolePermissions(role)
	}
	for _, feature := range h.catalog.Features() {
		response.UIPermissions[feature], _ = h.catalog.FeaturePermissions(feature)
	}
	for _, route := range h.catalog.PermissionRoutes() {
		response.RoutePermissions[route], _ = h.catalog.RoutePermissions(route)
	}

	_ = utils.WriteOK(w, response)
}

// HandleDrift handles GET /api/v1/access/drift
func (h *AccessHandler) HandleDrift(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	roles, err := h.roles.ListRoles(ctx)
	if err != nil {
		HandleServiceError(w, services.ErrIdentityUnavailable.Wrap(err), h.logger)
		return
	}

	drift := h.catalog.CompareRoles(models.RoleAssignments(roles))
	if len(drift) > 0 {
		h.logger.Info("role assignments drift from reference table",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.Int("roles", len(drift)))
	}

	_ = utils.WriteOK(w, DriftResponse{
		InSync: len(drift) == 0,
		Roles:  drift,
	})
}

// HandleReload handles POST /api/v1/access/me/reload
func (h *AccessHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	session := middleware.GetSessionFromContext(ctx)
	if !session.IsAuthenticated() {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.reloader.Reload(ctx, session.Subject()); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if h.auditor != nil {
		if err := h.auditor.LogIdentityReload(ctx, session.Subject(), requestID); err != nil {
			h.logger.Warn("failed to audit identity reload",
				zap.String("request_id", requestID),
				zap.Error(err))
		}
	}

	_ = utils.WriteAccepted(w, "Identity will be reloaded on the next request")
}

func (h *AccessHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(r, dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	if err := utils.ValidateStructWithCatalog(h.catalog, dst); err != nil {
		HandleValidationError(w, err, h.logger)
		return false
	}
	return true
}

func (h *AccessHandler) record(kind string, allowed bool) {
	if h.metrics != nil {
		h.metrics.RecordDecision(kind, allowed)
	}
}

func featureDecision(session *permissions.Session, feature string) FeatureDecision {
	required, known := session.Catalog().FeaturePermissions(feature)
	return FeatureDecision{
		Feature:  feature,
		Allowed:  session.CanAccessFeature(feature),
		Known:    known,
		Required: required,
	}
}

func evaluate(session *permissions.Session, route, feature string, gates []GateRequest) EvaluationResponse {
	response := EvaluationResponse{
		Roles:       session.Roles(),
		Permissions: session.Permissions(),
		Flags:       session.Flags(),
		Features:    session.VisibleFeatures(),
		Routes:      session.AccessibleRoutes(),
	}
	if route != "" {
		decision := session.ExplainRoute(route)
		response.Route = &decision
	}
	if feature != "" {
		decision := featureDecision(session, feature)
		response.Feature = &decision
	}
	if len(gates) > 0 {
		response.Gates = make(map[string]permissions.Decision, len(gates))
		for _, gate := range gates {
			response.Gates[gate.ID] = gate.Gate().Evaluate(session)
		}
	}
	return response
}
