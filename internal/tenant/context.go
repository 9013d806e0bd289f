// Package tenant wraps the router with tenant-scoped access control: it
// stamps writes, filters reads, rate-limits per (operation, tenant, user),
// and emits audit events into a bounded ring (spec.md §4.7).
package tenant

import "time"

// Context scopes one call to a tenant/user/session (spec.md glossary
// "Tenant context").
type Context struct {
	TenantID    string
	UserID      string
	SessionID   string
	Roles       []string
	Permissions []string
	ExpiresAt   *time.Time
}

// Expired reports whether the context has passed its ExpiresAt, if any.
func (c *Context) Expired(now time.Time) bool {
	return c != nil && c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// HasRole reports whether the context carries the given role.
func (c *Context) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}
