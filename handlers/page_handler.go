package handlers

import (
	"net/http"

	"github.com/augustinmaps01/risk-profiling/middleware"
	"github.com/augustinmaps01/risk-profiling/utils"
)

// PageResponse is returned for guarded pages when no SPA bundle is configured
type PageResponse struct {
	Route       string `json:"route"`
	Subject     string `json:"subject,omitempty"`
	Permissions int    `json:"permissions"`
}

// PageHandler serves SPA pages that already passed the route guard
type PageHandler struct {
	prefix    string
	indexFile string
}

// NewPageHandler creates a PageHandler for pages mounted under prefix.
// indexFile may be empty.
func NewPageHandler(prefix, indexFile string) *PageHandler {
	return &PageHandler{prefix: prefix, indexFile: indexFile}
}

// ServeHTTP serves the SPA entry point to browsers and a JSON summary to
// everything else
func (h *PageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.indexFile != "" && utils.WantsHTML(r) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, h.indexFile)
		return
	}

	session := middleware.GetSessionFromContext(r.Context())
	_ = utils.WriteOK(w, PageResponse{
		Route:       middleware.ClientRoute(h.prefix, r.URL.Path),
		Subject:     session.Subject(),
		Permissions: len(session.Permissions()),
	})
}
