package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of access event being audited
type AuditAction string

const (
	AuditActionRouteDenied    AuditAction = "route_denied"
	AuditActionFeatureDenied  AuditAction = "feature_denied"
	AuditActionGateDenied     AuditAction = "gate_denied"
	AuditActionIdentityReload AuditAction = "identity_reload"
)

// AccessAuditLog records a denied access decision or an identity event
type AccessAuditLog struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Subject     string          `json:"subject" db:"subject"` // empty for anonymous callers
	UserID      *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	Action      AuditAction     `json:"action" db:"action"`
	Target      string          `json:"target" db:"target"` // route path or feature name
	Mode        string          `json:"mode,omitempty" db:"mode"`
	MatchedRule string          `json:"matched_rule,omitempty" db:"matched_rule"`
	Roles       []string        `json:"roles" db:"roles"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress   string          `json:"ip_address" db:"ip_address"`
	UserAgent   string          `json:"user_agent" db:"user_agent"`
	RequestID   string          `json:"request_id" db:"request_id"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AccessAuditLog model
func (AccessAuditLog) TableName() string {
	return "access_audit_logs"
}

// NewAccessAuditLog creates a new AccessAuditLog instance
func NewAccessAuditLog(subject string, action AuditAction, target string) *AccessAuditLog {
	return &AccessAuditLog{
		ID:        uuid.New(),
		Subject:   subject,
		Action:    action,
		Target:    target,
		Roles:     []string{},
		Timestamp: time.Now().UTC(),
	}
}

// WithUser sets the backend user ID
func (a *AccessAuditLog) WithUser(userID uuid.UUID) *AccessAuditLog {
	a.UserID = &userID
	return a
}

// WithDecision records how the decision was reached
func (a *AccessAuditLog) WithDecision(mode, matchedRule string) *AccessAuditLog {
	a.Mode = mode
	a.MatchedRule = matchedRule
	return a
}

// WithRoles records the caller's role slugs at decision time
func (a *AccessAuditLog) WithRoles(roles []string) *AccessAuditLog {
	a.Roles = append([]string{}, roles...)
	return a
}

// WithDetails sets the details
func (a *AccessAuditLog) WithDetails(details interface{}) *AccessAuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AccessAuditLog) WithRequest(requestID, ipAddress, userAgent string) *AccessAuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
