package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"taskboard/api/internal/tenant"
)

// PostgresStore executes all data access. Every query over a scoped entity
// type carries an equality filter on the active organization, either on the
// organization_id column (ScopeDirect) or through the parent relation
// (ScopeParent). No caller gets to bypass that filter.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Organizations (unscoped: the boundary itself)

func (s *PostgresStore) ListOrganizations(ctx context.Context) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, slug, description, is_active, created_at, updated_at
		FROM organizations
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	items := make([]Organization, 0)
	for rows.Next() {
		var item Organization
		if err := rows.Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organizations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	var item Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, is_active, created_at, updated_at
		FROM organizations
		WHERE slug=$1
	`, slug).Scan(&item.ID, &item.Name, &item.Slug, &item.Description, &item.IsActive, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Organization{}, ErrNotFound
	}
	if err != nil {
		return Organization{}, fmt.Errorf("get organization: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertOrganization(ctx context.Context, item Organization) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, name, slug, description)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.Name, item.Slug, item.Description)
	if isUniqueViolation(err) {
		return fmt.Errorf("insert organization slug %s: %w", item.Slug, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ResolveOrganization implements tenant.Resolver. Only active organizations
// resolve; a deactivated slug behaves like an unknown one.
func (s *PostgresStore) ResolveOrganization(ctx context.Context, slug string) (tenant.Organization, error) {
	var org tenant.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, is_active, created_at, updated_at
		FROM organizations
		WHERE slug=$1 AND is_active=TRUE
	`, slug).Scan(&org.ID, &org.Name, &org.Slug, &org.Description, &org.IsActive, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return tenant.Organization{}, ErrNotFound
	}
	if err != nil {
		return tenant.Organization{}, fmt.Errorf("resolve organization: %w", err)
	}
	return org, nil
}

// ---------------------------------------------------------------------------
// Projects (ScopeDirect)

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT id, organization_id, name, description, status, start_date, end_date, created_at, updated_at
		FROM projects
		WHERE organization_id=$1
	`
	args := []any{orgID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var item Project
		if err := rows.Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.Status, &item.StartDate, &item.EndDate, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return Project{}, err
	}

	var item Project
	err = s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, description, status, start_date, end_date, created_at, updated_at
		FROM projects
		WHERE id=$1 AND organization_id=$2
	`, projectID, orgID).Scan(&item.ID, &item.OrganizationID, &item.Name, &item.Description, &item.Status, &item.StartDate, &item.EndDate, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	if err != nil {
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertProject(ctx context.Context, item Project) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, organization_id, name, description, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, orgID, item.Name, item.Description, item.Status, item.StartDate, item.EndDate)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$1, description=$2, status=$3, start_date=$4, end_date=$5, updated_at=NOW()
		WHERE id=$6 AND organization_id=$7
	`, item.Name, item.Description, item.Status, item.StartDate, item.EndDate, item.ID, orgID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireRow(result, "update project")
}

func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM projects WHERE id=$1 AND organization_id=$2
	`, projectID, orgID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireRow(result, "delete project")
}

func (s *PostgresStore) ProjectTaskStats(ctx context.Context, projectID string) (TaskStats, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return TaskStats{}, err
	}

	var stats TaskStats
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(t.id),
			COUNT(t.id) FILTER (WHERE t.status='todo'),
			COUNT(t.id) FILTER (WHERE t.status='in_progress'),
			COUNT(t.id) FILTER (WHERE t.status='completed')
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.id=$1 AND p.organization_id=$2
		GROUP BY p.id
	`, projectID, orgID).Scan(&stats.Total, &stats.Todo, &stats.InProgress, &stats.Completed)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskStats{}, ErrNotFound
	}
	if err != nil {
		return TaskStats{}, fmt.Errorf("project task stats: %w", err)
	}
	if stats.Total > 0 {
		stats.CompletionRate = float64(stats.Completed) / float64(stats.Total) * 100
	}
	return stats, nil
}

// ---------------------------------------------------------------------------
// Tasks (ScopeParent via projects)

const taskColumns = `
	t.id, t.project_id, t.title, t.description, t.status, t.priority, t.due_date, t.sort_order,
	(SELECT COUNT(*) FROM task_comments c WHERE c.task_id = t.id),
	t.created_at, t.updated_at
`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var item Task
	err := row.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status, &item.Priority, &item.DueDate, &item.SortOrder, &item.CommentCount, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + taskColumns + `
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE p.organization_id=$1
	`
	args := []any{orgID}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += fmt.Sprintf(" AND t.project_id=$%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND t.status=$%d", len(args))
	}
	if filter.Priority != "" {
		args = append(args, filter.Priority)
		query += fmt.Sprintf(" AND t.priority=$%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += fmt.Sprintf(" AND (t.title ILIKE $%d OR t.description ILIKE $%d)", len(args), len(args))
	}
	query += " ORDER BY t.sort_order, t.created_at"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return Task{}, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE t.id=$1 AND p.organization_id=$2
	`, taskID, orgID)
	item, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("get task: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, item Task) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	// The parent project must belong to the active organization; inserting
	// against a foreign project reports NotFound, same as reading one.
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, due_date, sort_order)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM projects WHERE id=$2 AND organization_id=$9)
	`, item.ID, item.ProjectID, item.Title, item.Description, item.Status, item.Priority, item.DueDate, item.SortOrder, orgID)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return requireRow(result, "insert task")
}

func (s *PostgresStore) UpdateTask(ctx context.Context, item Task) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks t
		SET title=$1, description=$2, status=$3, priority=$4, due_date=$5, sort_order=$6, updated_at=NOW()
		FROM projects p
		WHERE t.id=$7 AND p.id = t.project_id AND p.organization_id=$8
	`, item.Title, item.Description, item.Status, item.Priority, item.DueDate, item.SortOrder, item.ID, orgID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(result, "update task")
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks t
		USING projects p
		WHERE t.id=$1 AND p.id = t.project_id AND p.organization_id=$2
	`, taskID, orgID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(result, "delete task")
}

// ---------------------------------------------------------------------------
// Task comments (ScopeParent via tasks -> projects)

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string, limit, offset int) ([]TaskComment, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT c.id, c.task_id, c.author_name, c.content, c.created_at, c.updated_at
		FROM task_comments c
		JOIN tasks t ON t.id = c.task_id
		JOIN projects p ON p.id = t.project_id
		WHERE c.task_id=$1 AND p.organization_id=$2
		ORDER BY c.created_at DESC
	`
	args := []any{taskID, orgID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]TaskComment, 0)
	for rows.Next() {
		var item TaskComment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.AuthorName, &item.Content, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (TaskComment, error) {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return TaskComment{}, err
	}

	var item TaskComment
	err = s.db.QueryRowContext(ctx, `
		SELECT c.id, c.task_id, c.author_name, c.content, c.created_at, c.updated_at
		FROM task_comments c
		JOIN tasks t ON t.id = c.task_id
		JOIN projects p ON p.id = t.project_id
		WHERE c.id=$1 AND p.organization_id=$2
	`, commentID, orgID).Scan(&item.ID, &item.TaskID, &item.AuthorName, &item.Content, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskComment{}, ErrNotFound
	}
	if err != nil {
		return TaskComment{}, fmt.Errorf("get comment: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertComment(ctx context.Context, item TaskComment) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, author_name, content)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (
			SELECT 1 FROM tasks t
			JOIN projects p ON p.id = t.project_id
			WHERE t.id=$2 AND p.organization_id=$5
		)
	`, item.ID, item.TaskID, item.AuthorName, item.Content, orgID)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return requireRow(result, "insert comment")
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, content string) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE task_comments c
		SET content=$1, updated_at=NOW()
		FROM tasks t
		JOIN projects p ON p.id = t.project_id
		WHERE c.id=$2 AND t.id = c.task_id AND p.organization_id=$3
	`, content, commentID, orgID)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return requireRow(result, "update comment")
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	orgID, err := scopeOrg(ctx)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM task_comments c
		USING tasks t, projects p
		WHERE c.id=$1 AND t.id = c.task_id AND p.id = t.project_id AND p.organization_id=$2
	`, commentID, orgID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return requireRow(result, "delete comment")
}

// requireRow converts "zero rows affected" into ErrNotFound so scoped writes
// against foreign or missing records are indistinguishable.
func requireRow(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
