package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasAnyPermission(t *testing.T) {
	tests := []struct {
		name     string
		user     []string
		required []string
		want     bool
	}{
		{"intersection", []string{"a", "b"}, []string{"b", "c"}, true},
		{"disjoint", []string{"a"}, []string{"b"}, false},
		{"empty user", []string{}, []string{"a"}, false},
		{"nil user", nil, []string{"a"}, false},
		{"empty required", []string{"a"}, []string{}, false},
		{"nil required", []string{"a"}, nil, false},
		{"both empty", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAnyPermission(tt.user, tt.required))
		})
	}
}

func TestHasAllPermissions(t *testing.T) {
	tests := []struct {
		name     string
		user     []string
		required []string
		want     bool
	}{
		{"superset", []string{"a", "b", "c"}, []string{"a", "c"}, true},
		{"missing one", []string{"a"}, []string{"a", "b"}, false},
		{"vacuous with empty user", []string{}, []string{}, true},
		{"vacuous with nil user", nil, nil, true},
		{"vacuous with permissions", []string{"a"}, []string{}, true},
		{"nil user with requirement", nil, []string{"a"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAllPermissions(tt.user, tt.required))
		})
	}
}

func TestCanAccessRoute_RoleExclusive(t *testing.T) {
	allPerms := Default().RolePermissions(RoleAdmin)

	t.Run("risk form for regular user", func(t *testing.T) {
		assert.True(t, CanAccessRoute(nil, []string{RoleUser}, "/risk-form"))
	})

	t.Run("risk form for manager", func(t *testing.T) {
		assert.False(t, CanAccessRoute(nil, []string{RoleManager}, "/risk-form"))
	})

	t.Run("risk form for admin", func(t *testing.T) {
		decision := Default().ExplainRoute(allPerms, []string{RoleAdmin}, "/risk-form")
		assert.False(t, decision.Allowed)
		assert.True(t, decision.AdminDenied)
		assert.Equal(t, AccessModeRoleExclusive, decision.Mode)
	})

	t.Run("admin denied even when also a listed role", func(t *testing.T) {
		assert.False(t, CanAccessRoute(nil, []string{RoleUser, RoleAdmin}, "/risk-form"))
	})

	t.Run("permissions do not open exclusive routes", func(t *testing.T) {
		perms := []string{PermSubmitRiskAssessment, PermEditCustomers}
		assert.False(t, CanAccessRoute(perms, []string{RoleCompliance}, "/customers/42/edit"))
	})

	t.Run("wildcard edit", func(t *testing.T) {
		decision := Default().ExplainRoute(nil, []string{RoleManager}, "/customers/42/edit")
		assert.True(t, decision.Allowed)
		assert.Equal(t, "/customers/*/edit", decision.MatchedRule)
		assert.Equal(t, []string{RoleUser, RoleManager}, decision.Required)

		assert.True(t, CanAccessRoute(nil, []string{RoleUser}, "/customers/abc/edit"))
		assert.False(t, CanAccessRoute(allPerms, []string{RoleAdmin}, "/customers/abc/edit"))
	})

	t.Run("wildcard does not span segments", func(t *testing.T) {
		decision := Default().ExplainRoute(nil, nil, "/customers/42/sub/edit")
		assert.Equal(t, AccessModePublic, decision.Mode)

		decision = Default().ExplainRoute(nil, nil, "/customers//edit")
		assert.Equal(t, AccessModePublic, decision.Mode)
	})

	t.Run("review for compliance", func(t *testing.T) {
		assert.True(t, CanAccessRoute(nil, []string{RoleCompliance}, "/risk-assessments/9/review"))
		assert.False(t, CanAccessRoute(nil, []string{RoleUser}, "/risk-assessments/9/review"))
	})
}

func TestCanAccessRoute_PermissionGated(t *testing.T) {
	t.Run("any of", func(t *testing.T) {
		assert.True(t, CanAccessRoute([]string{PermManageUsers}, nil, "/users"))
		assert.True(t, CanAccessRoute([]string{PermViewUsers}, nil, "/users"))
		assert.False(t, CanAccessRoute([]string{PermViewCustomers}, nil, "/users"))
	})

	t.Run("admin role alone is not a permission", func(t *testing.T) {
		assert.False(t, CanAccessRoute(nil, []string{RoleAdmin}, "/users"))
	})

	t.Run("unlisted route is public", func(t *testing.T) {
		assert.True(t, CanAccessRoute(nil, nil, "/public-unlisted-route"))
	})

	t.Run("no normalization", func(t *testing.T) {
		assert.True(t, CanAccessRoute(nil, nil, "/dashboard/"))
		assert.True(t, CanAccessRoute(nil, nil, "/Dashboard"))
		assert.False(t, CanAccessRoute(nil, nil, "/dashboard"))
	})

	t.Run("nil catalog falls back to default", func(t *testing.T) {
		var c *Catalog
		assert.False(t, c.CanAccessRoute(nil, []string{RoleAdmin}, "/risk-form"))
	})
}

func TestCanAccessRoute_FirstMatchWins(t *testing.T) {
	c, err := NewCatalog(Definition{
		RoleExclusiveRoutes: []RouteRule{
			{Route: "/a/*/c", Roles: []string{"first"}},
			{Route: "/*/b/c", Roles: []string{"second"}},
			{Route: "/a/b/c", Roles: []string{"exact"}},
		},
	})
	require.NoError(t, err)

	t.Run("exact key beats patterns", func(t *testing.T) {
		decision := c.ExplainRoute(nil, []string{"exact"}, "/a/b/c")
		assert.True(t, decision.Allowed)
		assert.Equal(t, "/a/b/c", decision.MatchedRule)
	})

	t.Run("earlier pattern beats later", func(t *testing.T) {
		decision := c.ExplainRoute(nil, []string{"second"}, "/a/x/c")
		assert.False(t, decision.Allowed)
		assert.Equal(t, "/a/*/c", decision.MatchedRule)

		assert.True(t, c.CanAccessRoute(nil, []string{"second"}, "/z/b/c"))
	})
}

func TestCanAccessFeature(t *testing.T) {
	t.Run("audit logs with permission", func(t *testing.T) {
		assert.True(t, CanAccessFeature([]string{PermViewAuditLogs}, FeatureNavAuditLogs))
	})

	t.Run("audit logs without permission", func(t *testing.T) {
		assert.False(t, CanAccessFeature([]string{}, FeatureNavAuditLogs))
	})

	t.Run("unknown feature is public", func(t *testing.T) {
		assert.True(t, CanAccessFeature(nil, "BTN_SOMETHING_NEW"))
	})

	t.Run("any of list", func(t *testing.T) {
		assert.True(t, CanAccessFeature([]string{PermManageBranches}, FeatureNavBranches))
	})
}

func TestGetRolePermissions(t *testing.T) {
	assert.Equal(t, []string{}, GetRolePermissions("auditor"))
	assert.NotContains(t, GetRolePermissions(RoleAdmin), PermSubmitRiskAssessment)
	assert.Contains(t, GetRolePermissions(RoleUser), PermSubmitRiskAssessment)
	assert.Contains(t, GetRolePermissions(RoleCompliance), PermViewAuditLogs)
}
