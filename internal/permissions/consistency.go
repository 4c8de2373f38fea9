package permissions

import (
	"fmt"
	"sort"
	"strings"
)

// Issue is a single catalog inconsistency.
type Issue struct {
	Table string `json:"table"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s[%s]: unknown %q", i.Table, i.Key, i.Value)
}

// ConsistencyError lists every inconsistency found by Validate.
type ConsistencyError struct {
	Issues []Issue
}

func (e *ConsistencyError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return fmt.Sprintf("catalog has %d inconsistencies: %s", len(e.Issues), strings.Join(parts, "; "))
}

// Validate checks that every permission string referenced by the role, feature
// and route tables exists in the permission list, and that role-exclusive rules
// only name roles from the role table. It returns *ConsistencyError or nil.
func (c *Catalog) Validate() error {
	var issues []Issue

	checkTable := func(table string, entries map[string][]string) {
		keys := sortedKeys(entries)
		for _, key := range keys {
			for _, perm := range entries[key] {
				if !c.HasPermissionValue(perm) {
					issues = append(issues, Issue{Table: table, Key: key, Value: perm})
				}
			}
		}
	}
	checkTable("role_permissions", c.rolePermissions)
	checkTable("ui_permissions", c.uiPermissions)
	checkTable("route_permissions", c.routePermissions)

	for _, rule := range c.exclusiveRules {
		if len(rule.Roles) == 0 {
			issues = append(issues, Issue{Table: "role_exclusive_routes", Key: rule.Route, Value: ""})
			continue
		}
		for _, role := range rule.Roles {
			if _, ok := c.rolePermissions[role]; !ok {
				issues = append(issues, Issue{Table: "role_exclusive_routes", Key: rule.Route, Value: role})
			}
		}
	}

	if len(issues) == 0 {
		return nil
	}
	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Table < issues[j].Table })
	return &ConsistencyError{Issues: issues}
}

// RoleDrift describes how one role's backend assignment differs from the
// reference table.
type RoleDrift struct {
	Role string `json:"role"`
	// Missing are reference permissions the backend does not grant.
	Missing []string `json:"missing"`
	// Extra are backend permissions absent from the reference table.
	Extra []string `json:"extra"`
	// Unreferenced is true when the role does not exist in the reference table.
	Unreferenced bool `json:"unreferenced,omitempty"`
}

// CompareRoles reports the differences between backend role assignments and
// RolePermissions. Only drifting roles are returned, sorted by slug. Nothing is
// reconciled.
func (c *Catalog) CompareRoles(backend map[string][]string) []RoleDrift {
	drift := make([]RoleDrift, 0)
	seen := make(map[string]struct{}, len(backend))

	for _, role := range sortedKeys(backend) {
		seen[role] = struct{}{}
		reference, known := c.rolePermissions[role]
		d := RoleDrift{
			Role:         role,
			Missing:      difference(reference, backend[role]),
			Extra:        difference(backend[role], reference),
			Unreferenced: !known,
		}
		if d.Unreferenced || len(d.Missing) > 0 || len(d.Extra) > 0 {
			drift = append(drift, d)
		}
	}

	for _, role := range c.RoleSlugs() {
		if _, ok := seen[role]; ok {
			continue
		}
		drift = append(drift, RoleDrift{
			Role:    role,
			Missing: cloneStrings(c.rolePermissions[role]),
			Extra:   []string{},
		})
	}

	sort.SliceStable(drift, func(i, j int) bool { return drift[i].Role < drift[j].Role })
	return drift
}

// difference returns the values of a not present in b, in a's order.
func difference(a, b []string) []string {
	set := toSet(b)
	out := make([]string, 0)
	for _, v := range a {
		if _, ok := set[v]; !ok {
			out = append(out, v)
		}
	}
	return out
}
