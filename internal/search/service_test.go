package search

import (
	"encoding/json"
	"strings"
	"testing"

	meili "github.com/meilisearch/meilisearch-go"
)

func TestServiceBlankQueryReturnsEmptyResponse(t *testing.T) {
	s := NewService(nil, NewPG(nil))

	resp := s.Search(Query{Text: "   ", OrgID: "org-1"})

	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("blank query returned %d results, total %d", len(resp.Results), resp.Total)
	}
	if resp.Results == nil {
		t.Fatal("results must be an empty slice, not nil")
	}
}

func TestServiceDegradesToEmptyWhenNoBackendAvailable(t *testing.T) {
	// No Meilisearch and a fallback without a database: the caller still
	// gets a well-formed empty response rather than an error.
	s := NewService(nil, NewPG(nil))

	resp := s.Search(Query{Text: "roadmap", OrgID: "org-1"})

	if len(resp.Results) != 0 || resp.Total != 0 {
		t.Fatalf("got %d results, total %d", len(resp.Results), resp.Total)
	}
	if resp.Query != "roadmap" {
		t.Fatalf("response echoes query %q", resp.Query)
	}
}

func TestIndexCallsAreNoOpsWithoutMeilisearch(t *testing.T) {
	s := NewService(nil, NewPG(nil))

	s.IndexProject(ProjectRecord{ID: "p1"})
	s.IndexTask(TaskRecord{ID: "t1"})
	s.DeleteProject("p1")
	s.DeleteTask("t1")
}

func TestPGSearchRequiresOrganization(t *testing.T) {
	p := NewPG(nil)
	if p.Healthy() {
		t.Fatal("fallback without a database reported healthy")
	}

	if _, _, err := p.Search(Query{Text: "x", OrgID: "org-1"}); err == nil {
		t.Fatal("expected error without a database")
	}
}

func TestMeiliSearchRejectsMissingOrganization(t *testing.T) {
	m := &Meili{done: make(chan struct{})}
	m.healthy.Store(true)

	if _, _, err := m.Search(Query{Text: "x"}); err == nil {
		t.Fatal("expected error for query without organization")
	}
}

func TestIndexToResultType(t *testing.T) {
	if got := indexToResultType(idxProjects); got != ResultProject {
		t.Errorf("projects index mapped to %q", got)
	}
	if got := indexToResultType(idxTasks); got != ResultTask {
		t.Errorf("tasks index mapped to %q", got)
	}
	if got := indexToResultType("unknown"); got != "" {
		t.Errorf("unknown index mapped to %q", got)
	}
}

func TestHitToResultPrefersHighlightedFields(t *testing.T) {
	hit := meili.Hit{
		"id":          json.RawMessage(`"t1"`),
		"title":       json.RawMessage(`"Fix login"`),
		"description": json.RawMessage(`"Login breaks on refresh"`),
		"projectId":   json.RawMessage(`"p1"`),
		"status":      json.RawMessage(`"todo"`),
		"_formatted":  json.RawMessage(`{"title":"Fix <mark>login</mark>","description":"<mark>Login</mark> breaks on refresh"}`),
	}

	r := hitToResult(hit, ResultTask)

	if r.ID != "t1" || r.ProjectID != "p1" || r.Status != "todo" {
		t.Fatalf("unexpected identity fields: %+v", r)
	}
	if r.Title != "Fix <mark>login</mark>" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Snippet != "<mark>Login</mark> breaks on refresh" {
		t.Errorf("snippet = %q", r.Snippet)
	}
}

func TestHitToResultFallsBackToRawFields(t *testing.T) {
	hit := meili.Hit{
		"id":   json.RawMessage(`"p1"`),
		"name": json.RawMessage(`"Website redesign"`),
	}

	r := hitToResult(hit, ResultProject)

	if r.Title != "Website redesign" {
		t.Errorf("title = %q", r.Title)
	}
	if r.Snippet != "" {
		t.Errorf("snippet = %q, want empty", r.Snippet)
	}
}

func TestSnippetTruncatesOnRuneBoundary(t *testing.T) {
	short := "fits entirely"
	if got := snippet(short); got != short {
		t.Errorf("short snippet changed to %q", got)
	}

	long := strings.Repeat("é", snippetLimit)
	got := snippet(long)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("long snippet not truncated: %q", got)
	}
	for _, r := range got {
		if r == '�' {
			t.Fatal("snippet split a rune")
		}
	}
}
