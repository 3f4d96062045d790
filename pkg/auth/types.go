// Package auth provides authentication for gateway requests. It contains no
// security logic of its own: tokens are validated by the remote MeshAI auth
// service, and this package only consumes the verdict.
package auth

import (
	"slices"

	"github.com/google/uuid"
)

// UserContext identifies an authenticated caller. It is produced by the
// authenticator, immutable for the lifetime of one request, and never
// persisted.
type UserContext struct {
	// UserID is the unique identifier for the user.
	UserID uuid.UUID

	// TenantID is the tenant the user belongs to. May be uuid.Nil for
	// accounts without tenant scoping.
	TenantID uuid.UUID

	// Permissions are the permission tokens granted to the user.
	Permissions []string

	// RateLimit is the user's request quota in requests per hour.
	RateLimit int
}

// HasPermission checks if the user holds a specific permission.
func (u *UserContext) HasPermission(permission string) bool {
	return slices.Contains(u.Permissions, permission)
}

// MissingPermissions returns the subset of required permissions the user
// does not hold, preserving the order of required.
func (u *UserContext) MissingPermissions(required []string) []string {
	var missing []string
	for _, perm := range required {
		if !u.HasPermission(perm) {
			missing = append(missing, perm)
		}
	}
	return missing
}
