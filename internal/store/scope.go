package store

import (
	"context"
	"errors"

	"taskboard/api/internal/tenant"
)

// ErrNotFound is returned when a record does not resolve within the active
// organization. A record owned by another organization is reported the same
// way as one that does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert collides with a uniqueness
// constraint, such as a duplicate organization slug.
var ErrConflict = errors.New("record already exists")

// ScopeKind classifies how an entity type is confined to an organization.
type ScopeKind int

const (
	// ScopeNone: the entity has no organization attribute; queries pass
	// through unfiltered. Organizations themselves are the only such type.
	ScopeNone ScopeKind = iota
	// ScopeDirect: the entity carries an organization_id column.
	ScopeDirect
	// ScopeParent: the entity reaches its organization through a parent
	// relation and is filtered with a join.
	ScopeParent
)

// TenantScoped declares an entity type's scoping classification. The store
// never inspects rows at runtime to decide whether to filter; the
// classification is fixed here, per type.
type TenantScoped interface {
	TenantScope() ScopeKind
}

func (Organization) TenantScope() ScopeKind { return ScopeNone }
func (Project) TenantScope() ScopeKind      { return ScopeDirect }
func (Task) TenantScope() ScopeKind         { return ScopeParent }
func (TaskComment) TenantScope() ScopeKind  { return ScopeParent }

// scopeOrg returns the organization id for the current request. Scoped
// queries call this before touching the database; without an active
// organization they fail instead of running unfiltered.
func scopeOrg(ctx context.Context) (string, error) {
	org, ok := tenant.FromContext(ctx)
	if !ok {
		return "", tenant.ErrMissingTenant
	}
	return org.ID, nil
}
