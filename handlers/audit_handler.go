package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/augustinmaps01/risk-profiling/models"
	"github.com/augustinmaps01/risk-profiling/repositories"
	"github.com/augustinmaps01/risk-profiling/services"
	"github.com/augustinmaps01/risk-profiling/utils"
	"go.uber.org/zap"
)

const defaultSummaryWindow = 24 * time.Hour

// AuditLogReader reads stored access audit logs
type AuditLogReader interface {
	List(ctx context.Context, filter repositories.AuditFilter) ([]*models.AccessAuditLog, error)
	CountByAction(ctx context.Context, since time.Time) (map[models.AuditAction]int64, error)
}

// AuditQuery is the query string of GET /api/v1/access/audit
type AuditQuery struct {
	Subject string    `json:"subject" validate:"omitempty,max=255"`
	Action  string    `json:"action" validate:"omitempty,oneof=route_denied feature_denied gate_denied identity_reload"`
	Since   time.Time `json:"since"`
	Limit   int       `json:"limit" validate:"omitempty,min=1,max=500"`
	Offset  int       `json:"offset" validate:"min=0"`
}

// AuditListResponse is a page of audit logs
type AuditListResponse struct {
	Logs   []*models.AccessAuditLog `json:"logs"`
	Limit  int                      `json:"limit"`
	Offset int                      `json:"offset"`
}

// AuditSummaryResponse counts audit logs per action
type AuditSummaryResponse struct {
	Since  time.Time                    `json:"since"`
	Counts map[models.AuditAction]int64 `json:"counts"`
}

// AuditHandler exposes the recorded access denials
type AuditHandler struct {
	logs   AuditLogReader
	logger *zap.Logger
	now    func() time.Time
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(logs AuditLogReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{logs: logs, logger: logger, now: time.Now}
}

// HandleList handles GET /api/v1/access/audit
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	query, err := parseAuditQuery(r.URL.Query())
	if err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(query); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	logs, err := h.logs.List(r.Context(), repositories.AuditFilter{
		Subject: query.Subject,
		Action:  models.AuditAction(query.Action),
		Since:   query.Since,
		Limit:   query.Limit,
		Offset:  query.Offset,
	})
	if err != nil {
		HandleServiceError(w, services.ErrIdentityUnavailable.Wrap(err), h.logger)
		return
	}

	_ = utils.WriteOK(w, AuditListResponse{Logs: logs, Limit: query.Limit, Offset: query.Offset})
}

// HandleSummary handles GET /api/v1/access/audit/summary?since=
// The window defaults to the last 24 hours.
func (h *AuditHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	since := h.now().Add(-defaultSummaryWindow).UTC()
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			_ = utils.WriteBadRequest(w, "since must be an RFC 3339 timestamp", map[string]interface{}{"since": raw})
			return
		}
		since = parsed
	}

	counts, err := h.logs.CountByAction(r.Context(), since)
	if err != nil {
		HandleServiceError(w, services.ErrIdentityUnavailable.Wrap(err), h.logger)
		return
	}

	_ = utils.WriteOK(w, AuditSummaryResponse{Since: since, Counts: counts})
}

func parseAuditQuery(values url.Values) (*AuditQuery, error) {
	query := &AuditQuery{
		Subject: values.Get("subject"),
		Action:  values.Get("action"),
	}

	fields := make(map[string]string)
	if raw := values.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields["since"] = "must be an RFC 3339 timestamp"
		}
		query.Since = since
	}
	for name, dst := range map[string]*int{"limit": &query.Limit, "offset": &query.Offset} {
		raw := values.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields[name] = "must be an integer"
			continue
		}
		*dst = n
	}

	if len(fields) > 0 {
		return nil, &utils.ValidationError{Message: "Invalid query", Fields: fields}
	}
	return query, nil
}
