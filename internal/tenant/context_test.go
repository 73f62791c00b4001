package tenant

import (
	"context"
	"sync"
	"testing"
)

func TestFromContextWithoutOrganization(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Fatal("expected no organization on a bare context")
	}
}

func TestWithOrganizationRoundTrip(t *testing.T) {
	org := Organization{ID: "org-1", Slug: "acme", Name: "Acme", IsActive: true}
	ctx := WithOrganization(context.Background(), org)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected organization on context")
	}
	if got.ID != "org-1" || got.Slug != "acme" {
		t.Fatalf("unexpected organization: %+v", got)
	}
}

func TestOrganizationConfinedToOwnContext(t *testing.T) {
	base := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"org-a", "org-b", "org-c"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ctx := WithOrganization(base, Organization{ID: id})
			got, ok := FromContext(ctx)
			if !ok || got.ID != id {
				t.Errorf("context for %s observed %+v", id, got)
			}
		}(id)
	}
	wg.Wait()

	if _, ok := FromContext(base); ok {
		t.Fatal("base context must not inherit an organization")
	}
}
