package permissions

import (
	"fmt"
	"sort"
	"sync"
)

// RouteRule restricts a route, or a route pattern with one "*" segment, to a
// fixed list of roles.
type RouteRule struct {
	Route string   `json:"route"`
	Roles []string `json:"roles"`
}

// Definition is the raw catalog data. RoleExclusiveRoutes is ordered because
// wildcard patterns are matched first-match-wins.
type Definition struct {
	Permissions         map[string]string   // symbolic name -> permission string
	RolePermissions     map[string][]string // role slug -> permissions (reference data)
	UIPermissions       map[string][]string // feature name -> permissions (any of)
	RoutePermissions    map[string][]string // route -> permissions (any of)
	RoleExclusiveRoutes []RouteRule
}

// Catalog is the immutable authorization configuration. Build it once with
// NewCatalog or use Default; accessors hand out copies.
type Catalog struct {
	permissions      map[string]string
	permissionValues map[string]struct{}
	rolePermissions  map[string][]string
	uiPermissions    map[string][]string
	routePermissions map[string][]string
	exclusiveRules   []RouteRule
	exclusiveRoutes  map[string][]string
	patterns         []*routePattern
}

// NewCatalog copies def into a Catalog. It fails on duplicate role-exclusive
// routes and malformed wildcard patterns.
func NewCatalog(def Definition) (*Catalog, error) {
	c := &Catalog{
		permissions:      make(map[string]string, len(def.Permissions)),
		permissionValues: make(map[string]struct{}, len(def.Permissions)),
		rolePermissions:  copyTable(def.RolePermissions),
		uiPermissions:    copyTable(def.UIPermissions),
		routePermissions: copyTable(def.RoutePermissions),
		exclusiveRules:   make([]RouteRule, 0, len(def.RoleExclusiveRoutes)),
		exclusiveRoutes:  make(map[string][]string, len(def.RoleExclusiveRoutes)),
	}

	for name, value := range def.Permissions {
		c.permissions[name] = value
		c.permissionValues[value] = struct{}{}
	}

	for _, rule := range def.RoleExclusiveRoutes {
		if _, exists := c.exclusiveRoutes[rule.Route]; exists {
			return nil, fmt.Errorf("duplicate role-exclusive route %q", rule.Route)
		}
		roles := cloneStrings(rule.Roles)
		c.exclusiveRoutes[rule.Route] = roles
		c.exclusiveRules = append(c.exclusiveRules, RouteRule{Route: rule.Route, Roles: roles})

		if isPattern(rule.Route) {
			pattern, err := compileRoutePattern(rule.Route, roles)
			if err != nil {
				return nil, err
			}
			c.patterns = append(c.patterns, pattern)
		}
	}

	return c, nil
}

// MustCatalog is like NewCatalog but panics on error. Intended for
// package-level catalog variables.
func MustCatalog(def Definition) *Catalog {
	c, err := NewCatalog(def)
	if err != nil {
		panic(fmt.Sprintf("permissions: %v", err))
	}
	return c
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the compiled-in catalog, built on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog = MustCatalog(defaultDefinition())
	})
	return defaultCatalog
}

// Permission resolves a symbolic permission name such as "VIEW_CUSTOMERS".
func (c *Catalog) Permission(name string) (string, bool) {
	value, ok := c.permissions[name]
	return value, ok
}

// PermissionNames returns the symbolic-name to permission mapping.
func (c *Catalog) PermissionNames() map[string]string {
	out := make(map[string]string, len(c.permissions))
	for name, value := range c.permissions {
		out[name] = value
	}
	return out
}

// HasPermissionValue reports whether value is a known permission string.
func (c *Catalog) HasPermissionValue(value string) bool {
	_, ok := c.permissionValues[value]
	return ok
}

// RolePermissions returns the reference permission set for role, or an empty
// slice when the role is unknown.
func (c *Catalog) RolePermissions(role string) []string {
	perms, ok := c.rolePermissions[role]
	if !ok {
		return []string{}
	}
	return cloneStrings(perms)
}

// RoleSlugs lists the roles present in the reference table.
func (c *Catalog) RoleSlugs() []string {
	return sortedKeys(c.rolePermissions)
}

// FeaturePermissions returns the requirements of a UI feature.
func (c *Catalog) FeaturePermissions(feature string) ([]string, bool) {
	perms, ok := c.uiPermissions[feature]
	return cloneStrings(perms), ok
}

// Features lists every configured UI feature name.
func (c *Catalog) Features() []string {
	return sortedKeys(c.uiPermissions)
}

// RoutePermissions returns the requirements of a permission-gated route.
func (c *Catalog) RoutePermissions(route string) ([]string, bool) {
	perms, ok := c.routePermissions[route]
	return cloneStrings(perms), ok
}

// PermissionRoutes lists the permission-gated routes.
func (c *Catalog) PermissionRoutes() []string {
	return sortedKeys(c.routePermissions)
}

// RoleExclusiveRoutes returns the role-exclusive rules in catalog order.
func (c *Catalog) RoleExclusiveRoutes() []RouteRule {
	out := make([]RouteRule, len(c.exclusiveRules))
	for i, rule := range c.exclusiveRules {
		out[i] = RouteRule{Route: rule.Route, Roles: cloneStrings(rule.Roles)}
	}
	return out
}

// IsConfigured reports whether route is known to the catalog, either as a
// role-exclusive rule (exact or pattern) or as a permission-gated route.
func (c *Catalog) IsConfigured(route string) bool {
	if _, _, ok := c.exclusiveRule(route); ok {
		return true
	}
	_, ok := c.routePermissions[route]
	return ok
}

// exclusiveRule finds the role-exclusive entry for route: exact key first,
// then the first wildcard pattern in catalog order.
func (c *Catalog) exclusiveRule(route string) (string, []string, bool) {
	if roles, ok := c.exclusiveRoutes[route]; ok {
		return route, roles, true
	}
	for _, pattern := range c.patterns {
		if pattern.Match(route) {
			return pattern.source, pattern.roles, true
		}
	}
	return "", nil, false
}

func copyTable(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for key, values := range in {
		out[key] = cloneStrings(values)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func sortedKeys(in map[string][]string) []string {
	keys := make([]string, 0, len(in))
	for key := range in {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
