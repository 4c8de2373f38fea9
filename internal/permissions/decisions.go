package permissions

// AccessMode identifies which catalog rule decided a route.
type AccessMode string

const (
	AccessModeRoleExclusive AccessMode = "role_exclusive"
	AccessModePermission    AccessMode = "permission"
	AccessModePublic        AccessMode = "public"
)

// RouteDecision explains the outcome of a route check.
type RouteDecision struct {
	Route   string     `json:"route"`
	Allowed bool       `json:"allowed"`
	Mode    AccessMode `json:"mode"`
	// MatchedRule is the role-exclusive key (exact route or pattern) that applied.
	MatchedRule string   `json:"matched_rule,omitempty"`
	Required    []string `json:"required,omitempty"`
	AdminDenied bool     `json:"admin_denied,omitempty"`
}

// HasAnyPermission reports whether userPermissions and required intersect.
// A nil or empty input on either side yields false.
func HasAnyPermission(userPermissions, required []string) bool {
	if len(userPermissions) == 0 || len(required) == 0 {
		return false
	}
	held := toSet(userPermissions)
	for _, perm := range required {
		if _, ok := held[perm]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every required permission is held. An
// empty requirement is always satisfied.
func HasAllPermissions(userPermissions, required []string) bool {
	if len(required) == 0 {
		return true
	}
	held := toSet(userPermissions)
	for _, perm := range required {
		if _, ok := held[perm]; !ok {
			return false
		}
	}
	return true
}

// CanAccessRoute decides whether a user holding userPermissions and userRoles
// may open route.
//
// Role-exclusive rules take precedence over permission rules. When one applies
// the admin role is always denied, otherwise any listed role grants access.
// Routes the catalog does not know are public.
func (c *Catalog) CanAccessRoute(userPermissions, userRoles []string, route string) bool {
	return c.ExplainRoute(userPermissions, userRoles, route).Allowed
}

// ExplainRoute is CanAccessRoute with the matching rule attached.
func (c *Catalog) ExplainRoute(userPermissions, userRoles []string, route string) RouteDecision {
	if c == nil {
		c = Default()
	}

	if rule, roles, ok := c.exclusiveRule(route); ok {
		decision := RouteDecision{
			Route:       route,
			Mode:        AccessModeRoleExclusive,
			MatchedRule: rule,
			Required:    cloneStrings(roles),
		}
		if contains(userRoles, RoleAdmin) {
			decision.AdminDenied = true
			return decision
		}
		decision.Allowed = intersects(userRoles, roles)
		return decision
	}

	required, ok := c.routePermissions[route]
	if !ok {
		return RouteDecision{Route: route, Allowed: true, Mode: AccessModePublic}
	}

	return RouteDecision{
		Route:    route,
		Allowed:  HasAnyPermission(userPermissions, required),
		Mode:     AccessModePermission,
		Required: cloneStrings(required),
	}
}

// CanAccessFeature decides whether a UI feature is available. Features the
// catalog does not know are public. Admin gets no special treatment here.
func (c *Catalog) CanAccessFeature(userPermissions []string, feature string) bool {
	if c == nil {
		c = Default()
	}
	required, ok := c.uiPermissions[feature]
	if !ok {
		return true
	}
	return HasAnyPermission(userPermissions, required)
}

// CanAccessRoute evaluates route against the default catalog.
func CanAccessRoute(userPermissions, userRoles []string, route string) bool {
	return Default().CanAccessRoute(userPermissions, userRoles, route)
}

// CanAccessFeature evaluates feature against the default catalog.
func CanAccessFeature(userPermissions []string, feature string) bool {
	return Default().CanAccessFeature(userPermissions, feature)
}

// GetRolePermissions returns the default catalog's reference set for role.
func GetRolePermissions(role string) []string {
	return Default().RolePermissions(role)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := toSet(a)
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
