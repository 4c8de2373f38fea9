package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func identityFor(roles ...string) Identity {
	identity := Identity{Subject: "sub-1", Version: "1"}
	for _, role := range roles {
		identity.Roles = append(identity.Roles, Role{Slug: role, Permissions: Default().RolePermissions(role)})
	}
	return identity
}

func TestSession_Unauthenticated(t *testing.T) {
	s := NewSession(nil, identityFor(RoleAdmin), false)

	assert.False(t, s.IsAuthenticated())
	assert.Empty(t, s.Permissions())
	assert.Empty(t, s.Roles())
	assert.False(t, s.IsAdmin())
	assert.False(t, s.HasPermission(PermViewDashboard))
	assert.False(t, s.HasAllPermissions(nil))
	assert.False(t, s.HasAnyRole([]string{RoleAdmin}))

	assert.False(t, s.CanAccessRoute("/dashboard"))
	assert.False(t, s.CanAccessRoute("/risk-form"))
	assert.True(t, s.CanAccessRoute("/help"))
	assert.False(t, s.CanAccessFeature(FeatureNavDashboard))
	assert.True(t, s.CanAccessFeature("BTN_UNKNOWN"))
}

func TestSession_Nil(t *testing.T) {
	var s *Session

	assert.False(t, s.IsAuthenticated())
	assert.Equal(t, []string{}, s.Permissions())
	assert.False(t, s.HasPermission(PermViewDashboard))
	assert.True(t, s.CanAccessRoute("/help"))
	assert.False(t, s.CanAccessRoute("/dashboard"))
	assert.Same(t, Default(), s.Catalog())
}

func TestSession_RegularUser(t *testing.T) {
	s := NewSession(Default(), identityFor(RoleUser), true)

	assert.True(t, s.IsAuthenticated())
	assert.True(t, s.IsRegularUser())
	assert.False(t, s.IsAdmin())
	assert.True(t, s.CanSubmitRiskAssessment())
	assert.False(t, s.CanViewAuditLogs())
	assert.True(t, s.CanAccessRoute("/risk-form"))
	assert.True(t, s.CanAccessRoute("/customers/42/risk-form"))
	assert.False(t, s.CanAccessRoute("/users"))

	routes := s.AccessibleRoutes()
	assert.Contains(t, routes, "/risk-form")
	assert.Contains(t, routes, "/customers/*/edit")
	assert.Contains(t, routes, "/dashboard")
	assert.NotContains(t, routes, "/risk-assessments/*/review")
	assert.NotContains(t, routes, "/settings")
}

func TestSession_Admin(t *testing.T) {
	s := NewSession(Default(), identityFor(RoleAdmin), true)

	assert.True(t, s.IsAdmin())
	assert.True(t, s.HasPermission(PermSubmitRiskAssessment))
	assert.True(t, s.HasAnyPermission([]string{"not-a-permission"}))
	assert.True(t, s.HasAllPermissions([]string{PermManageUsers, "not-a-permission"}))
	assert.True(t, s.CanManageSettings())

	assert.False(t, s.CanAccessRoute("/risk-form"))
	assert.False(t, s.CanAccessRoute("/my-submissions"))
	assert.True(t, s.CanAccessRoute("/settings"))
	assert.True(t, s.ExplainRoute("/customers/1/edit").AdminDenied)
}

func TestSession_AdminFeatureWithoutPermission(t *testing.T) {
	identity := Identity{Subject: "sub-2", Version: "1", Roles: []Role{{Slug: RoleAdmin, Permissions: []string{PermViewDashboard}}}}
	s := NewSession(Default(), identity, true)

	assert.True(t, s.HasPermission(PermViewAuditLogs))
	assert.False(t, s.CanAccessFeature(FeatureNavAuditLogs))
	assert.NotContains(t, s.VisibleFeatures(), FeatureNavAuditLogs)
	assert.Contains(t, s.VisibleFeatures(), FeatureNavDashboard)
}

func TestSession_ReadOnlyViews(t *testing.T) {
	s := NewSession(Default(), identityFor(RoleManager), true)

	perms := s.Permissions()
	perms[0] = PermManageSettings
	roles := s.Roles()
	roles[0] = RoleAdmin

	assert.False(t, s.HasPermission(PermManageSettings))
	assert.False(t, s.IsAdmin())
	assert.Equal(t, []string{RoleManager}, s.Roles())
}

func TestSession_Flags(t *testing.T) {
	s := NewSession(Default(), identityFor(RoleCompliance, RoleManager), true)

	flags := s.Flags()
	assert.True(t, flags.IsAuthenticated)
	assert.True(t, flags.IsCompliance)
	assert.True(t, flags.IsManager)
	assert.False(t, flags.IsAdmin)
	assert.False(t, flags.IsRegularUser)

	assert.Equal(t, "sub-1", s.Subject())
	assert.Equal(t, "1", s.Version())
	assert.Equal(t, Flags{}, Anonymous(nil).Flags())
}
