package search

import (
	"database/sql"
	"fmt"
	"unicode/utf8"
)

// PG is the fallback searcher backed by Postgres ILIKE matching. It is
// always available when the database is, so the service degrades to it
// whenever Meilisearch is down or unconfigured.
type PG struct {
	db *sql.DB
}

func NewPG(db *sql.DB) *PG {
	return &PG{db: db}
}

// Healthy always reports true; the fallback shares the primary database
// connection and fails loudly through Search if that is gone.
func (p *PG) Healthy() bool {
	return p.db != nil
}

func (p *PG) Search(q Query) ([]Result, int, error) {
	if p.db == nil {
		return nil, 0, fmt.Errorf("postgres search unavailable")
	}
	if q.OrgID == "" {
		return nil, 0, fmt.Errorf("search query missing organization")
	}

	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	pattern := "%" + q.Text + "%"

	var results []Result
	total := 0

	if q.FilterType == "" || q.FilterType == ResultProject {
		found, n, err := p.searchProjects(q.OrgID, pattern, limit, q.Offset)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, found...)
		total += n
	}

	if q.FilterType == "" || q.FilterType == ResultTask {
		found, n, err := p.searchTasks(q.OrgID, pattern, limit, q.Offset)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, found...)
		total += n
	}

	return results, total, nil
}

func (p *PG) searchProjects(orgID, pattern string, limit, offset int) ([]Result, int, error) {
	rows, err := p.db.Query(`
		SELECT id, name, description, status, COUNT(*) OVER ()
		FROM projects
		WHERE organization_id = $1
		  AND (name ILIKE $2 OR description ILIKE $2)
		ORDER BY updated_at DESC
		LIMIT $3 OFFSET $4`,
		orgID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search projects: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		var desc string
		if err := rows.Scan(&r.ID, &r.Title, &desc, &r.Status, &total); err != nil {
			return nil, 0, fmt.Errorf("scan project hit: %w", err)
		}
		r.Type = ResultProject
		r.Snippet = snippet(desc)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func (p *PG) searchTasks(orgID, pattern string, limit, offset int) ([]Result, int, error) {
	rows, err := p.db.Query(`
		SELECT t.id, t.title, t.description, t.status, t.project_id, COUNT(*) OVER ()
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE p.organization_id = $1
		  AND (t.title ILIKE $2 OR t.description ILIKE $2)
		ORDER BY t.updated_at DESC
		LIMIT $3 OFFSET $4`,
		orgID, pattern, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search tasks: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		var desc string
		if err := rows.Scan(&r.ID, &r.Title, &desc, &r.Status, &r.ProjectID, &total); err != nil {
			return nil, 0, fmt.Errorf("scan task hit: %w", err)
		}
		r.Type = ResultTask
		r.Snippet = snippet(desc)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

const snippetLimit = 200

func snippet(s string) string {
	if len(s) <= snippetLimit {
		return s
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
