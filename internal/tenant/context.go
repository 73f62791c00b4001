// Package tenant carries the active organization for a request and resolves
// it from the organization slug header.
package tenant

import (
	"context"
	"errors"
	"time"
)

// ErrMissingTenant is returned by organization-scoped operations when no
// organization is attached to the request context.
var ErrMissingTenant = errors.New("no active organization")

// Organization is the isolation boundary. Inactive organizations never
// resolve, so their data is unreachable through the API.
type Organization struct {
	ID          string
	Name        string
	Slug        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type orgContextKey struct{}

// WithOrganization attaches the active organization to the context. The value
// lives and dies with the request context; concurrent requests never observe
// each other's organization.
func WithOrganization(ctx context.Context, org Organization) context.Context {
	return context.WithValue(ctx, orgContextKey{}, org)
}

// FromContext returns the active organization, if one was attached.
func FromContext(ctx context.Context) (Organization, bool) {
	org, ok := ctx.Value(orgContextKey{}).(Organization)
	return org, ok
}
