package permissions

// Session is the derived, read-only view of the current identity. It is
// rebuilt when the identity changes and never mutated. All methods accept a
// nil receiver and then behave as an unauthenticated session.
type Session struct {
	catalog       *Catalog
	subject       string
	version       string
	authenticated bool
	roles         []string
	permissions   []string
	roleSet       map[string]struct{}
	permSet       map[string]struct{}
}

// NewSession derives the permission and role sets from identity. When
// authenticated is false both sets are empty regardless of identity.
func NewSession(catalog *Catalog, identity Identity, authenticated bool) *Session {
	if catalog == nil {
		catalog = Default()
	}
	s := &Session{
		catalog:       catalog,
		subject:       identity.Subject,
		version:       identity.Version,
		authenticated: authenticated,
		roles:         []string{},
		permissions:   []string{},
	}
	if authenticated {
		s.roles = identity.RoleSlugs()
		s.permissions = identity.PermissionSlugs()
	}
	s.roleSet = toSet(s.roles)
	s.permSet = toSet(s.permissions)
	return s
}

// Anonymous returns an unauthenticated session bound to catalog.
func Anonymous(catalog *Catalog) *Session {
	return NewSession(catalog, Identity{}, false)
}

// Subject returns the identity subject the session was built from.
func (s *Session) Subject() string {
	if s == nil {
		return ""
	}
	return s.subject
}

// Version returns the identity version the session was built from.
func (s *Session) Version() string {
	if s == nil {
		return ""
	}
	return s.version
}

// Catalog returns the catalog the session evaluates against.
func (s *Session) Catalog() *Catalog {
	if s == nil || s.catalog == nil {
		return Default()
	}
	return s.catalog
}

// IsAuthenticated reports whether the session belongs to a signed-in user.
func (s *Session) IsAuthenticated() bool {
	return s != nil && s.authenticated
}

// Permissions returns a copy of the effective permission set.
func (s *Session) Permissions() []string {
	if s == nil {
		return []string{}
	}
	return cloneStrings(s.permissions)
}

// Roles returns a copy of the role slugs in source order.
func (s *Session) Roles() []string {
	if s == nil {
		return []string{}
	}
	return cloneStrings(s.roles)
}

// HasRole reports whether the user holds role.
func (s *Session) HasRole(role string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	_, ok := s.roleSet[role]
	return ok
}

// HasAnyRole reports whether the user holds at least one of roles.
func (s *Session) HasAnyRole(roles []string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	for _, role := range roles {
		if _, ok := s.roleSet[role]; ok {
			return true
		}
	}
	return false
}

func (s *Session) IsAdmin() bool       { return s.HasRole(RoleAdmin) }
func (s *Session) IsCompliance() bool  { return s.HasRole(RoleCompliance) }
func (s *Session) IsManager() bool     { return s.HasRole(RoleManager) }
func (s *Session) IsRegularUser() bool { return s.HasRole(RoleUser) }

// HasPermission reports whether the user holds permission. Admin holds every
// permission for content checks.
func (s *Session) HasPermission(permission string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	if s.IsAdmin() {
		return true
	}
	_, ok := s.permSet[permission]
	return ok
}

// HasAnyPermission is HasAnyPermission over the session set with the admin
// short-circuit applied.
func (s *Session) HasAnyPermission(required []string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	if s.IsAdmin() {
		return true
	}
	return HasAnyPermission(s.permissions, required)
}

// HasAllPermissions is HasAllPermissions over the session set with the admin
// short-circuit applied.
func (s *Session) HasAllPermissions(required []string) bool {
	if !s.IsAuthenticated() {
		return false
	}
	if s.IsAdmin() {
		return true
	}
	return HasAllPermissions(s.permissions, required)
}

// CanAccessRoute evaluates route with the session's sets. Role-exclusive rules
// still deny admin.
func (s *Session) CanAccessRoute(route string) bool {
	return s.ExplainRoute(route).Allowed
}

// ExplainRoute returns the full route decision for the session.
func (s *Session) ExplainRoute(route string) RouteDecision {
	return s.Catalog().ExplainRoute(s.Permissions(), s.Roles(), route)
}

// CanAccessFeature evaluates a UI feature with the session's permission set.
// There is no admin bypass on this path.
func (s *Session) CanAccessFeature(feature string) bool {
	return s.Catalog().CanAccessFeature(s.Permissions(), feature)
}

// VisibleFeatures lists the catalog features available to the session.
func (s *Session) VisibleFeatures() []string {
	features := s.Catalog().Features()
	visible := make([]string, 0, len(features))
	for _, feature := range features {
		if s.CanAccessFeature(feature) {
			visible = append(visible, feature)
		}
	}
	return visible
}

// AccessibleRoutes lists the configured routes the session may open. Wildcard
// patterns are reported as written.
func (s *Session) AccessibleRoutes() []string {
	catalog := s.Catalog()
	routes := make([]string, 0)
	for _, rule := range catalog.RoleExclusiveRoutes() {
		if s.CanAccessRoute(rule.Route) {
			routes = append(routes, rule.Route)
		}
	}
	for _, route := range catalog.PermissionRoutes() {
		if s.CanAccessRoute(route) {
			routes = append(routes, route)
		}
	}
	return routes
}

// Per-permission helpers used by screens.

func (s *Session) CanViewDashboard() bool        { return s.HasPermission(PermViewDashboard) }
func (s *Session) CanViewCustomers() bool        { return s.HasPermission(PermViewCustomers) }
func (s *Session) CanCreateCustomers() bool      { return s.HasPermission(PermCreateCustomers) }
func (s *Session) CanEditCustomers() bool        { return s.HasPermission(PermEditCustomers) }
func (s *Session) CanDeleteCustomers() bool      { return s.HasPermission(PermDeleteCustomers) }
func (s *Session) CanExportCustomers() bool      { return s.HasPermission(PermExportCustomers) }
func (s *Session) CanSubmitRiskAssessment() bool { return s.HasPermission(PermSubmitRiskAssessment) }
func (s *Session) CanViewRiskAssessments() bool  { return s.HasPermission(PermViewRiskAssessments) }
func (s *Session) CanApproveAssessments() bool   { return s.HasPermission(PermApproveRiskAssessments) }
func (s *Session) CanManageRiskCriteria() bool   { return s.HasPermission(PermManageRiskCriteria) }
func (s *Session) CanViewReports() bool          { return s.HasPermission(PermViewReports) }
func (s *Session) CanExportReports() bool        { return s.HasPermission(PermExportReports) }
func (s *Session) CanManageBranches() bool       { return s.HasPermission(PermManageBranches) }
func (s *Session) CanViewUsers() bool            { return s.HasPermission(PermViewUsers) }
func (s *Session) CanManageUsers() bool          { return s.HasPermission(PermManageUsers) }
func (s *Session) CanManageRoles() bool          { return s.HasPermission(PermManageRoles) }
func (s *Session) CanManagePermissions() bool    { return s.HasPermission(PermManagePermissions) }
func (s *Session) CanViewAuditLogs() bool        { return s.HasPermission(PermViewAuditLogs) }
func (s *Session) CanManageSettings() bool       { return s.HasPermission(PermManageSettings) }

// Flags is the serializable summary of a session.
type Flags struct {
	IsAuthenticated bool `json:"is_authenticated"`
	IsAdmin         bool `json:"is_admin"`
	IsCompliance    bool `json:"is_compliance"`
	IsManager       bool `json:"is_manager"`
	IsRegularUser   bool `json:"is_regular_user"`
}

// Flags returns the convenience role flags.
func (s *Session) Flags() Flags {
	return Flags{
		IsAuthenticated: s.IsAuthenticated(),
		IsAdmin:         s.IsAdmin(),
		IsCompliance:    s.IsCompliance(),
		IsManager:       s.IsManager(),
		IsRegularUser:   s.IsRegularUser(),
	}
}
