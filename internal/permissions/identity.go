package permissions

import (
	"encoding/json"
	"fmt"
)

// Role is a role in canonical form: its slug and the flattened permission slugs.
type Role struct {
	Slug        string   `json:"slug"`
	Permissions []string `json:"permissions"`
}

// Identity is the canonical identity handed to NewSession. Version changes
// whenever the identity is re-issued (login, token refresh, profile reload);
// sessions are memoized on (Subject, Version).
type Identity struct {
	Subject string `json:"subject"`
	Version string `json:"version"`
	Roles   []Role `json:"roles"`
}

// RoleSlugs returns the role slugs in source order.
func (i Identity) RoleSlugs() []string {
	slugs := make([]string, 0, len(i.Roles))
	for _, role := range i.Roles {
		slugs = append(slugs, role.Slug)
	}
	return slugs
}

// PermissionSlugs returns the union of all role permissions, deduplicated,
// in first-seen order.
func (i Identity) PermissionSlugs() []string {
	seen := make(map[string]struct{})
	perms := make([]string, 0)
	for _, role := range i.Roles {
		for _, perm := range role.Permissions {
			if _, dup := seen[perm]; dup {
				continue
			}
			seen[perm] = struct{}{}
			perms = append(perms, perm)
		}
	}
	return perms
}

// PermissionClaim is a permission object as sent by the backend.
type PermissionClaim struct {
	Slug string `json:"slug"`
}

// RoleClaim is a role object as sent by the backend.
type RoleClaim struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name,omitempty"`
	Permissions []PermissionClaim `json:"permissions"`
}

// roleHolder is an object that may carry a roles list. A nil pointer means the
// key was absent or null.
type roleHolder struct {
	Roles *[]RoleClaim `json:"roles"`
}

// AuthPayload is the user object returned by the authentication backend. The
// roles list is found at data.roles, roles or user.roles depending on the
// endpoint that produced it.
type AuthPayload struct {
	Data  *roleHolder  `json:"data,omitempty"`
	Roles *[]RoleClaim `json:"roles,omitempty"`
	User  *roleHolder  `json:"user,omitempty"`
}

// ParseAuthPayload decodes a raw user object. Only malformed JSON is an
// error. A candidate key holding the wrong type counts as absent, so the
// search moves on to the next shape.
func ParseAuthPayload(data []byte) (*AuthPayload, error) {
	var payload AuthPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode auth payload: %w", err)
	}
	return &payload, nil
}

// UnmarshalJSON probes the three known shapes one key at a time.
func (p *AuthPayload) UnmarshalJSON(data []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = AuthPayload{}
	fields, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	p.Data = decodeHolder(fields["data"])
	p.Roles = decodeRoleList(fields["roles"])
	p.User = decodeHolder(fields["user"])
	return nil
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	var fields map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &fields) != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

func decodeHolder(raw json.RawMessage) *roleHolder {
	fields, ok := decodeObject(raw)
	if !ok {
		return nil
	}
	return &roleHolder{Roles: decodeRoleList(fields["roles"])}
}

// decodeRoleList returns nil unless raw is an array. Entries that are not
// objects or whose slug is not a string are dropped.
func decodeRoleList(raw json.RawMessage) *[]RoleClaim {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || items == nil {
		return nil
	}

	roles := make([]RoleClaim, 0, len(items))
	for _, item := range items {
		fields, ok := decodeObject(item)
		if !ok {
			continue
		}
		slug, ok := decodeString(fields["slug"])
		if !ok {
			continue
		}
		role := RoleClaim{Slug: slug, Permissions: decodePermissionList(fields["permissions"])}
		role.Name, _ = decodeString(fields["name"])
		roles = append(roles, role)
	}
	return &roles
}

func decodePermissionList(raw json.RawMessage) []PermissionClaim {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil {
		return []PermissionClaim{}
	}

	perms := make([]PermissionClaim, 0, len(items))
	for _, item := range items {
		fields, ok := decodeObject(item)
		if !ok {
			continue
		}
		if slug, ok := decodeString(fields["slug"]); ok {
			perms = append(perms, PermissionClaim{Slug: slug})
		}
	}
	return perms
}

func decodeString(raw json.RawMessage) (string, bool) {
	var value *string
	if len(raw) == 0 || json.Unmarshal(raw, &value) != nil || value == nil {
		return "", false
	}
	return *value, true
}

// NewAuthPayload wraps roles in the flat {roles: [...]} shape.
func NewAuthPayload(roles []RoleClaim) *AuthPayload {
	list := make([]RoleClaim, len(roles))
	copy(list, roles)
	return &AuthPayload{Roles: &list}
}

// RoleClaims returns the roles list chosen by priority: data.roles, then
// roles, then user.roles. The first present key wins even when its list is
// empty. The boolean is false when no known shape matched.
func (p *AuthPayload) RoleClaims() ([]RoleClaim, bool) {
	if p == nil {
		return nil, false
	}
	switch {
	case p.Data != nil && p.Data.Roles != nil:
		return *p.Data.Roles, true
	case p.Roles != nil:
		return *p.Roles, true
	case p.User != nil && p.User.Roles != nil:
		return *p.User.Roles, true
	}
	return nil, false
}

// Identity normalizes the payload into canonical form. Subject and Version are
// left for the caller. An unrecognized shape yields an empty identity and false.
func (p *AuthPayload) Identity() (Identity, bool) {
	claims, ok := p.RoleClaims()
	if !ok {
		return Identity{Roles: []Role{}}, false
	}

	roles := make([]Role, 0, len(claims))
	for _, claim := range claims {
		perms := make([]string, 0, len(claim.Permissions))
		for _, perm := range claim.Permissions {
			perms = append(perms, perm.Slug)
		}
		roles = append(roles, Role{Slug: claim.Slug, Permissions: perms})
	}
	return Identity{Roles: roles}, true
}
