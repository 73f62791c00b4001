package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"taskboard/api/internal/tenant"
)

func TestUniqueViolationDetection(t *testing.T) {
	wrapped := fmt.Errorf("insert organization: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Fatal("wrapped 23505 must be recognized as a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error is not a unique violation")
	}
	if isUniqueViolation(nil) {
		t.Fatal("nil is not a unique violation")
	}
}

func TestTenantScopeClassification(t *testing.T) {
	cases := []struct {
		name   string
		entity TenantScoped
		want   ScopeKind
	}{
		{"organization is unscoped", Organization{}, ScopeNone},
		{"project is directly scoped", Project{}, ScopeDirect},
		{"task is scoped via its project", Task{}, ScopeParent},
		{"comment is scoped via its task", TaskComment{}, ScopeParent},
	}
	for _, tc := range cases {
		if got := tc.entity.TenantScope(); got != tc.want {
			t.Errorf("%s: got scope %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestScopeOrgWithoutTenant(t *testing.T) {
	_, err := scopeOrg(context.Background())
	if !errors.Is(err, tenant.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestScopeOrgReturnsActiveOrganization(t *testing.T) {
	ctx := tenant.WithOrganization(context.Background(), tenant.Organization{ID: "org-42"})
	orgID, err := scopeOrg(ctx)
	if err != nil {
		t.Fatalf("scopeOrg failed: %v", err)
	}
	if orgID != "org-42" {
		t.Fatalf("expected org-42, got %s", orgID)
	}
}

func TestScopedReadsRejectMissingTenant(t *testing.T) {
	// No database handle is needed: the tenant check fires before any query.
	s := NewPostgresStore(nil)
	ctx := context.Background()

	if _, err := s.ListProjects(ctx, ProjectFilter{}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("ListProjects: expected ErrMissingTenant, got %v", err)
	}
	if _, err := s.GetProject(ctx, "p1"); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("GetProject: expected ErrMissingTenant, got %v", err)
	}
	if _, err := s.ListTasks(ctx, TaskFilter{}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("ListTasks: expected ErrMissingTenant, got %v", err)
	}
	if _, err := s.GetTask(ctx, "t1"); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("GetTask: expected ErrMissingTenant, got %v", err)
	}
	if _, err := s.ListTaskComments(ctx, "t1", 0, 0); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("ListTaskComments: expected ErrMissingTenant, got %v", err)
	}
}

func TestScopedWritesRejectMissingTenant(t *testing.T) {
	s := NewPostgresStore(nil)
	ctx := context.Background()

	if err := s.InsertProject(ctx, Project{ID: "p1"}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("InsertProject: expected ErrMissingTenant, got %v", err)
	}
	if err := s.UpdateProject(ctx, Project{ID: "p1"}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("UpdateProject: expected ErrMissingTenant, got %v", err)
	}
	if err := s.DeleteProject(ctx, "p1"); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("DeleteProject: expected ErrMissingTenant, got %v", err)
	}
	if err := s.InsertTask(ctx, Task{ID: "t1"}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("InsertTask: expected ErrMissingTenant, got %v", err)
	}
	if err := s.DeleteTask(ctx, "t1"); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("DeleteTask: expected ErrMissingTenant, got %v", err)
	}
	if err := s.InsertComment(ctx, TaskComment{ID: "c1"}); !errors.Is(err, tenant.ErrMissingTenant) {
		t.Errorf("InsertComment: expected ErrMissingTenant, got %v", err)
	}
}
