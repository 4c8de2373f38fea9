package permissions

import (
	"encoding/json"
	"fmt"
)

// StringList is a list that also decodes from a single JSON string.
type StringList []string

// UnmarshalJSON accepts "a", ["a", "b"] or null.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = many
	return nil
}

// GateStage names one of the gate checks.
type GateStage string

const (
	StagePermission GateStage = "permission"
	StageRole       GateStage = "role"
	StageFeature    GateStage = "feature"
)

// RenderMode is what a caller should show for a gate result.
type RenderMode string

const (
	RenderContent  RenderMode = "content"
	RenderHidden   RenderMode = "hidden"
	RenderFallback RenderMode = "fallback"
)

// Gate describes the requirements guarding a piece of content. Empty fields
// impose no requirement.
type Gate struct {
	Permissions StringList `json:"permission,omitempty"`
	Roles       StringList `json:"role,omitempty"`
	Feature     string     `json:"feature,omitempty"`
	RequireAll  bool       `json:"require_all,omitempty"`
	// HideOnFail defaults to true when nil.
	HideOnFail *bool `json:"hide_on_fail,omitempty"`
}

// Decision is the outcome of evaluating a Gate.
type Decision struct {
	Allowed  bool       `json:"allowed"`
	Render   RenderMode `json:"render"`
	FailedAt GateStage  `json:"failed_at,omitempty"`
}

func (g Gate) hideOnFail() bool {
	return g.HideOnFail == nil || *g.HideOnFail
}

// Evaluate runs the permission, role and feature checks in that order and
// stops at the first failure.
func (g Gate) Evaluate(s *Session) Decision {
	stage, ok := g.check(s)
	if ok {
		return Decision{Allowed: true, Render: RenderContent}
	}
	render := RenderFallback
	if g.hideOnFail() {
		render = RenderHidden
	}
	return Decision{Render: render, FailedAt: stage}
}

func (g Gate) check(s *Session) (GateStage, bool) {
	if len(g.Permissions) > 0 {
		var ok bool
		if g.RequireAll {
			ok = s.HasAllPermissions(g.Permissions)
		} else {
			ok = s.HasAnyPermission(g.Permissions)
		}
		if !ok {
			return StagePermission, false
		}
	}
	if len(g.Roles) > 0 && !s.HasAnyRole(g.Roles) {
		return StageRole, false
	}
	if g.Feature != "" && !s.CanAccessFeature(g.Feature) {
		return StageFeature, false
	}
	return "", true
}

// Render returns content when the gate passes. On failure it returns the zero
// value, or fallback when HideOnFail is false. The boolean reports whether
// anything should be rendered.
func Render[T any](s *Session, g Gate, content, fallback T) (T, bool) {
	switch g.Evaluate(s).Render {
	case RenderContent:
		return content, true
	case RenderFallback:
		return fallback, true
	default:
		var zero T
		return zero, false
	}
}

// Hide is a convenience for building a Gate with HideOnFail set explicitly.
func Hide(v bool) *bool {
	return &v
}
