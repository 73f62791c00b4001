package store

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"taskboard/api/internal/tenant"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	databaseURL := os.Getenv("TASKBOARD_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TASKBOARD_TEST_DATABASE_URL not set; skipping integration test")
	}
	return databaseURL
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func seedOrganization(t *testing.T, s *PostgresStore, name string) tenant.Organization {
	t.Helper()
	org := Organization{ID: uuid.NewString(), Name: name + "-" + uuid.NewString()[:8], Slug: uuid.NewString()}
	if err := s.InsertOrganization(context.Background(), org); err != nil {
		t.Fatalf("seed organization: %v", err)
	}
	return tenant.Organization{ID: org.ID, Name: org.Name, Slug: org.Slug, IsActive: true}
}

// TestCrossTenantLookupIsNotFound verifies that a caller scoped to one
// organization cannot read, mutate, or delete another organization's project
// even with its exact identifier.
func TestCrossTenantLookupIsNotFound(t *testing.T) {
	s := openTestStore(t)

	orgA := seedOrganization(t, s, "acme")
	orgB := seedOrganization(t, s, "globex")
	ctxA := tenant.WithOrganization(context.Background(), orgA)
	ctxB := tenant.WithOrganization(context.Background(), orgB)

	project := Project{ID: uuid.NewString(), Name: "Secret Launch", Status: "active"}
	if err := s.InsertProject(ctxB, project); err != nil {
		t.Fatalf("insert project under org B: %v", err)
	}

	if _, err := s.GetProject(ctxA, project.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant get: expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateProject(ctxA, project); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant update: expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteProject(ctxA, project.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant delete: expected ErrNotFound, got %v", err)
	}

	// The record must be untouched for its owner.
	got, err := s.GetProject(ctxB, project.ID)
	if err != nil {
		t.Fatalf("owner get after cross-tenant attempts: %v", err)
	}
	if got.Name != "Secret Launch" {
		t.Fatalf("project mutated across tenants: %+v", got)
	}
}

func TestTaskScopedThroughParentProject(t *testing.T) {
	s := openTestStore(t)

	orgA := seedOrganization(t, s, "acme")
	orgB := seedOrganization(t, s, "globex")
	ctxA := tenant.WithOrganization(context.Background(), orgA)
	ctxB := tenant.WithOrganization(context.Background(), orgB)

	project := Project{ID: uuid.NewString(), Name: "Board", Status: "active"}
	if err := s.InsertProject(ctxA, project); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	task := Task{ID: uuid.NewString(), ProjectID: project.ID, Title: "Ship it", Status: "todo", Priority: "high"}
	if err := s.InsertTask(ctxA, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	// Creating a task against a foreign project is NotFound, not a hint that
	// the project exists.
	foreign := Task{ID: uuid.NewString(), ProjectID: project.ID, Title: "Poke", Status: "todo", Priority: "low"}
	if err := s.InsertTask(ctxB, foreign); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant task insert: expected ErrNotFound, got %v", err)
	}

	if _, err := s.GetTask(ctxB, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-tenant task get: expected ErrNotFound, got %v", err)
	}

	tasks, err := s.ListTasks(ctxB, TaskFilter{ProjectID: project.ID})
	if err != nil {
		t.Fatalf("cross-tenant task list: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("cross-tenant task list leaked %d rows", len(tasks))
	}

	got, err := s.GetTask(ctxA, task.ID)
	if err != nil {
		t.Fatalf("owner task get: %v", err)
	}
	if got.Title != "Ship it" || got.CommentCount != 0 {
		t.Fatalf("unexpected task: %+v", got)
	}
}

func TestProjectTaskStats(t *testing.T) {
	s := openTestStore(t)

	org := seedOrganization(t, s, "acme")
	ctx := tenant.WithOrganization(context.Background(), org)

	project := Project{ID: uuid.NewString(), Name: "Stats", Status: "active"}
	if err := s.InsertProject(ctx, project); err != nil {
		t.Fatalf("insert project: %v", err)
	}

	for _, status := range []string{"todo", "in_progress", "completed", "completed"} {
		task := Task{ID: uuid.NewString(), ProjectID: project.ID, Title: status, Status: status, Priority: "medium"}
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatalf("insert %s task: %v", status, err)
		}
	}

	stats, err := s.ProjectTaskStats(ctx, project.ID)
	if err != nil {
		t.Fatalf("ProjectTaskStats: %v", err)
	}
	if stats.Total != 4 || stats.Todo != 1 || stats.InProgress != 1 || stats.Completed != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.CompletionRate != 50 {
		t.Fatalf("expected completion rate 50, got %v", stats.CompletionRate)
	}
}

func TestDuplicateOrganizationSlugIsConflict(t *testing.T) {
	s := openTestStore(t)

	slug := uuid.NewString()
	first := Organization{ID: uuid.NewString(), Name: "First " + slug[:8], Slug: slug}
	if err := s.InsertOrganization(context.Background(), first); err != nil {
		t.Fatalf("insert organization: %v", err)
	}

	dup := Organization{ID: uuid.NewString(), Name: "Second " + slug[:8], Slug: slug}
	if err := s.InsertOrganization(context.Background(), dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate slug: expected ErrConflict, got %v", err)
	}
}

func TestResolveOrganizationSkipsInactive(t *testing.T) {
	s := openTestStore(t)

	org := Organization{ID: uuid.NewString(), Name: "Dormant " + uuid.NewString()[:8], Slug: uuid.NewString()}
	if err := s.InsertOrganization(context.Background(), org); err != nil {
		t.Fatalf("insert organization: %v", err)
	}
	if _, err := s.DB().ExecContext(context.Background(), `UPDATE organizations SET is_active=FALSE WHERE id=$1`, org.ID); err != nil {
		t.Fatalf("deactivate organization: %v", err)
	}

	if _, err := s.ResolveOrganization(context.Background(), org.Slug); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive organization, got %v", err)
	}
}
