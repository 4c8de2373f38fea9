package routes

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/augustinmaps01/risk-profiling/app"
	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/utils"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PublicRoutes are SPA pages reachable without any catalog entry
var PublicRoutes = []string{"/", "/login", "/unauthorized"}

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// SPA pages, each guarded by its catalog rule
	r.Route(app.AppPrefix, func(r chi.Router) {
		r.Use(deps.AuthMiddleware.OptionalAuth)
		r.Use(deps.AccessMiddleware.LoadSession)
		r.Use(deps.AccessMiddleware.GuardRoutes(app.AppPrefix))
		for _, route := range PageRoutes(deps.Catalog) {
			r.Get(chiPattern(route), deps.PageHandler.ServeHTTP)
		}
	})

	// API v1 routes
	r.Route("/api/v1/access", func(r chi.Router) {
		access := deps.AccessMiddleware
		h := deps.AccessHandler

		// Decisions for whoever is calling, anonymous included
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.OptionalAuth)
			r.Use(access.LoadSession)
			r.Get("/me", h.HandleMe)
			r.Get("/routes/check", h.HandleCheckRoute)
			r.Get("/features/{feature}", h.HandleCheckFeature)
			r.Post("/gates", h.HandleEvaluateGates)
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(access.LoadSession)
			r.Post("/me/reload", h.HandleReload)
			r.Post("/normalize", h.HandleNormalize)

			// Catalog administration
			r.With(access.RequireFeature(permissions.FeatureNavPermissions)).
				Get("/catalog", h.HandleCatalog)
			r.With(access.RequireRole(permissions.RoleAdmin)).
				Get("/drift", h.HandleDrift)
			r.With(access.RequirePermission(permissions.PermManageRoles, permissions.PermManagePermissions)).
				Post("/simulate", h.HandleSimulate)

			// Recorded denials, readable by whoever may open the audit log page
			r.Group(func(r chi.Router) {
				r.Use(access.RequireRoute("/audit-logs"))
				r.Get("/audit", deps.AuditHandler.HandleList)
				r.Get("/audit/summary", deps.AuditHandler.HandleSummary)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// PageRoutes lists the client routes served under the SPA prefix: the public
// pages plus every route the catalog configures, sorted.
func PageRoutes(catalog *permissions.Catalog) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(route string) {
		if !seen[route] {
			seen[route] = true
			out = append(out, route)
		}
	}

	for _, route := range PublicRoutes {
		add(route)
	}
	for _, route := range catalog.PermissionRoutes() {
		add(route)
	}
	for _, rule := range catalog.RoleExclusiveRoutes() {
		add(rule.Route)
	}

	sort.Strings(out)
	return out
}

// chiPattern turns a catalog route into a chi pattern; each "*" segment
// becomes a named parameter.
func chiPattern(route string) string {
	segments := strings.Split(route, "/")
	params := 0
	for i, segment := range segments {
		if segment != "*" {
			continue
		}
		if params == 0 {
			segments[i] = "{id}"
		} else {
			segments[i] = fmt.Sprintf("{id%d}", params+1)
		}
		params++
	}
	return strings.Join(segments, "/")
}
