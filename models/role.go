package models

import (
	"time"

	"github.com/augustinmaps01/risk-profiling/internal/permissions"
	"github.com/google/uuid"
)

// Permission is a backend permission row
type Permission struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Slug string    `json:"slug" db:"slug"`
	Name string    `json:"name" db:"name"`
}

// TableName returns the table name for the Permission model
func (Permission) TableName() string {
	return "permissions"
}

// Role is a backend role with the permissions granted to it
type Role struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Slug        string       `json:"slug" db:"slug"`
	Name        string       `json:"name" db:"name"`
	Permissions []Permission `json:"permissions"`
}

// TableName returns the table name for the Role model
func (Role) TableName() string {
	return "roles"
}

// PermissionSlugs returns the role's permission slugs in stored order
func (r Role) PermissionSlugs() []string {
	slugs := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}

// Claim converts the role to the object shape sent to clients
func (r Role) Claim() permissions.RoleClaim {
	perms := make([]permissions.PermissionClaim, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, permissions.PermissionClaim{Slug: p.Slug})
	}
	return permissions.RoleClaim{Slug: r.Slug, Name: r.Name, Permissions: perms}
}

// UserIdentity is a user together with its assigned roles, in assignment order
type UserIdentity struct {
	User     User      `json:"user"`
	Roles    []Role    `json:"roles"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Payload renders the identity as a flat {roles: [...]} user object
func (u *UserIdentity) Payload() *permissions.AuthPayload {
	claims := make([]permissions.RoleClaim, 0, len(u.Roles))
	for _, role := range u.Roles {
		claims = append(claims, role.Claim())
	}
	return permissions.NewAuthPayload(claims)
}

// RoleAssignments maps each role slug to its permission slugs
func RoleAssignments(roles []Role) map[string][]string {
	out := make(map[string][]string, len(roles))
	for _, role := range roles {
		out[role.Slug] = role.PermissionSlugs()
	}
	return out
}
