// Package permissions provides the access-control engine for the risk
// profiling console.
//
// This package implements:
//   - The static permission catalog (permissions, role reference sets, UI
//     feature requirements, route requirements and role-exclusive routes)
//   - Pure access decision functions (any/all permission, route and feature access)
//   - The identity adapter that flattens an authenticated user payload into a Session
//   - The presentation gate used to show, hide or replace gated content
//
// Everything here is free of I/O and safe for concurrent use. Acquiring the
// identity payload is the job of the authentication layer.
package permissions
