package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/tenant"
	"taskboard/api/internal/util"
)

// dataStore is the persistence surface the service needs. *store.PostgresStore
// implements it; tests swap in a fakeStore.
type dataStore interface {
	Ping(ctx context.Context) error

	ListOrganizations(ctx context.Context) ([]store.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (store.Organization, error)
	InsertOrganization(ctx context.Context, item store.Organization) error

	ListProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, error)
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	InsertProject(ctx context.Context, item store.Project) error
	UpdateProject(ctx context.Context, item store.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	ProjectTaskStats(ctx context.Context, projectID string) (store.TaskStats, error)

	ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, error)
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	InsertTask(ctx context.Context, item store.Task) error
	UpdateTask(ctx context.Context, item store.Task) error
	DeleteTask(ctx context.Context, taskID string) error

	ListTaskComments(ctx context.Context, taskID string, limit, offset int) ([]store.TaskComment, error)
	GetComment(ctx context.Context, commentID string) (store.TaskComment, error)
	InsertComment(ctx context.Context, item store.TaskComment) error
	UpdateComment(ctx context.Context, commentID, content string) error
	DeleteComment(ctx context.Context, commentID string) error
}

// notifier pushes realtime events to project watchers. *realtime.Dispatcher
// implements it; a nil-backed dispatcher is a silent no-op.
type notifier interface {
	Notify(projectID string, event realtime.Event)
}

// searchService is the optional search facade. May be nil.
type searchService interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
	IndexTask(t search.TaskRecord)
	DeleteProject(id string)
	DeleteTask(id string)
}

type Service struct {
	store      dataStore
	dispatcher notifier
	search     searchService
}

func NewService(store dataStore, dispatcher notifier, searchSvc searchService) *Service {
	return &Service{store: store, dispatcher: dispatcher, search: searchSvc}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

var projectStatuses = map[string]bool{
	"planning":  true,
	"active":    true,
	"on_hold":   true,
	"completed": true,
}

var taskStatuses = map[string]bool{
	"todo":        true,
	"in_progress": true,
	"completed":   true,
}

var taskPriorities = map[string]bool{
	"low":    true,
	"medium": true,
	"high":   true,
	"urgent": true,
}

// ---------------------------------------------------------------------------
// Organizations

func (s *Service) ListOrganizations(ctx context.Context) (map[string]any, error) {
	items, err := s.store.ListOrganizations(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, organizationPayload(item))
	}
	return map[string]any{"organizations": payload}, nil
}

func (s *Service) GetOrganization(ctx context.Context, slug string) (map[string]any, error) {
	item, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return map[string]any{"organization": organizationPayload(item)}, nil
}

func (s *Service) CreateOrganization(ctx context.Context, name, slug, description string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = util.Slugify(name)
	}
	if slug == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "slug could not be derived from name", nil)
	}

	item := store.Organization{
		ID:          util.NewID(),
		Name:        name,
		Slug:        slug,
		Description: strings.TrimSpace(description),
	}
	if err := s.store.InsertOrganization(ctx, item); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainError(http.StatusConflict, "SLUG_TAKEN", "an organization with this slug already exists", map[string]any{"slug": slug})
		}
		return nil, fmt.Errorf("create organization: %w", err)
	}
	created, err := s.store.GetOrganizationBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("load created organization: %w", err)
	}
	return map[string]any{"organization": organizationPayload(created)}, nil
}

// ---------------------------------------------------------------------------
// Projects

// ProjectInput carries create/update fields. Nil pointers mean "leave as is"
// on update and "use the default" on create.
type ProjectInput struct {
	Name        *string
	Description *string
	Status      *string
	StartDate   *time.Time
	EndDate     *time.Time
}

func (s *Service) ListProjects(ctx context.Context, filter store.ProjectFilter) (map[string]any, error) {
	if filter.Status != "" && !projectStatuses[filter.Status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown project status", nil)
	}
	items, err := s.store.ListProjects(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, projectPayload(item))
	}
	return map[string]any{"projects": payload}, nil
}

func (s *Service) GetProject(ctx context.Context, projectID string) (map[string]any, error) {
	item, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.ProjectTaskStats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	payload := projectPayload(item)
	payload["taskStats"] = taskStatsPayload(stats)
	return map[string]any{"project": payload}, nil
}

func (s *Service) CreateProject(ctx context.Context, input ProjectInput) (map[string]any, error) {
	name := strings.TrimSpace(deref(input.Name))
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	status := deref(input.Status)
	if status == "" {
		status = "planning"
	}
	if !projectStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown project status", nil)
	}

	item := store.Project{
		ID:          util.NewID(),
		Name:        name,
		Description: strings.TrimSpace(deref(input.Description)),
		Status:      status,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}
	if err := s.store.InsertProject(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetProject(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load created project: %w", err)
	}
	s.indexProject(created)
	return map[string]any{"project": projectPayload(created)}, nil
}

func (s *Service) UpdateProject(ctx context.Context, projectID string, input ProjectInput) (map[string]any, error) {
	item, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be blank", nil)
		}
		item.Name = name
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		if !projectStatuses[*input.Status] {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown project status", nil)
		}
		item.Status = *input.Status
	}
	if input.StartDate != nil {
		item.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		item.EndDate = input.EndDate
	}

	if err := s.store.UpdateProject(ctx, item); err != nil {
		return nil, err
	}
	updated, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load updated project: %w", err)
	}
	s.indexProject(updated)
	return map[string]any{"project": projectPayload(updated)}, nil
}

func (s *Service) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Tasks

// TaskInput carries create/update fields, nil meaning "leave as is" on update.
type TaskInput struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *time.Time
	SortOrder   *int
}

func (s *Service) ListTasks(ctx context.Context, filter store.TaskFilter) (map[string]any, error) {
	if filter.Status != "" && !taskStatuses[filter.Status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task status", nil)
	}
	if filter.Priority != "" && !taskPriorities[filter.Priority] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task priority", nil)
	}
	items, err := s.store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, taskPayload(item))
	}
	return map[string]any{"tasks": payload}, nil
}

func (s *Service) GetTask(ctx context.Context, taskID string) (map[string]any, error) {
	item, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task": taskPayload(item)}, nil
}

func (s *Service) CreateTask(ctx context.Context, projectID string, input TaskInput) (map[string]any, error) {
	title := strings.TrimSpace(deref(input.Title))
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	status := deref(input.Status)
	if status == "" {
		status = "todo"
	}
	if !taskStatuses[status] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task status", nil)
	}
	priority := deref(input.Priority)
	if priority == "" {
		priority = "medium"
	}
	if !taskPriorities[priority] {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task priority", nil)
	}

	item := store.Task{
		ID:          util.NewID(),
		ProjectID:   projectID,
		Title:       title,
		Description: strings.TrimSpace(deref(input.Description)),
		Status:      status,
		Priority:    priority,
		DueDate:     input.DueDate,
	}
	if input.SortOrder != nil {
		item.SortOrder = *input.SortOrder
	}
	if err := s.store.InsertTask(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetTask(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load created task: %w", err)
	}

	s.notifyTask(created.ProjectID, realtime.TaskCreated, created)
	s.indexTask(ctx, created)
	return map[string]any{"task": taskPayload(created)}, nil
}

func (s *Service) UpdateTask(ctx context.Context, taskID string, input TaskInput) (map[string]any, error) {
	item, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title cannot be blank", nil)
		}
		item.Title = title
	}
	if input.Description != nil {
		item.Description = strings.TrimSpace(*input.Description)
	}
	if input.Status != nil {
		if !taskStatuses[*input.Status] {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task status", nil)
		}
		item.Status = *input.Status
	}
	if input.Priority != nil {
		if !taskPriorities[*input.Priority] {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown task priority", nil)
		}
		item.Priority = *input.Priority
	}
	if input.DueDate != nil {
		item.DueDate = input.DueDate
	}
	if input.SortOrder != nil {
		item.SortOrder = *input.SortOrder
	}

	if err := s.store.UpdateTask(ctx, item); err != nil {
		return nil, err
	}
	updated, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load updated task: %w", err)
	}

	s.notifyTask(updated.ProjectID, realtime.TaskUpdated, updated)
	s.indexTask(ctx, updated)
	return map[string]any{"task": taskPayload(updated)}, nil
}

func (s *Service) DeleteTask(ctx context.Context, taskID string) error {
	// The scoped read pins down the project before the row disappears; it
	// also makes cross-tenant deletes fail with NotFound up front.
	item, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return err
	}

	if s.dispatcher != nil {
		event, err := realtime.TaskDeleted(taskID)
		if err != nil {
			log.Printf("app: build task_deleted event: %v", err)
		} else {
			s.dispatcher.Notify(item.ProjectID, event)
		}
	}
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Comments

func (s *Service) ListComments(ctx context.Context, taskID string, limit, offset int) (map[string]any, error) {
	// Task existence within the tenant is checked first so an unknown or
	// foreign task yields NotFound rather than an empty list.
	if _, err := s.store.GetTask(ctx, taskID); err != nil {
		return nil, err
	}
	items, err := s.store.ListTaskComments(ctx, taskID, limit, offset)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, commentPayload(item))
	}
	return map[string]any{"comments": payload}, nil
}

func (s *Service) CreateComment(ctx context.Context, taskID, authorName, content string) (map[string]any, error) {
	authorName = strings.TrimSpace(authorName)
	if authorName == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "authorName is required", nil)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	item := store.TaskComment{
		ID:         util.NewID(),
		TaskID:     taskID,
		AuthorName: authorName,
		Content:    content,
	}
	if err := s.store.InsertComment(ctx, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetComment(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load created comment: %w", err)
	}

	if s.dispatcher != nil {
		event, err := realtime.CommentCreated(commentPayload(created))
		if err != nil {
			log.Printf("app: build comment_created event: %v", err)
		} else {
			s.dispatcher.Notify(task.ProjectID, event)
		}
	}
	return map[string]any{"comment": commentPayload(created)}, nil
}

func (s *Service) UpdateComment(ctx context.Context, commentID, content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content is required", nil)
	}
	if err := s.store.UpdateComment(ctx, commentID, content); err != nil {
		return nil, err
	}
	updated, err := s.store.GetComment(ctx, commentID)
	if err != nil {
		return nil, fmt.Errorf("load updated comment: %w", err)
	}
	return map[string]any{"comment": commentPayload(updated)}, nil
}

func (s *Service) DeleteComment(ctx context.Context, commentID string) error {
	return s.store.DeleteComment(ctx, commentID)
}

// ---------------------------------------------------------------------------
// Search

func (s *Service) Search(ctx context.Context, text, filterType string, limit, offset int) (search.Response, error) {
	org, ok := tenant.FromContext(ctx)
	if !ok {
		return search.Response{}, tenant.ErrMissingTenant
	}

	var rtyp search.ResultType
	switch filterType {
	case "":
	case "project":
		rtyp = search.ResultProject
	case "task":
		rtyp = search.ResultTask
	default:
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be 'project' or 'task'", nil)
	}

	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		Text:       text,
		OrgID:      org.ID,
		FilterType: rtyp,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

// ---------------------------------------------------------------------------
// Helpers

// notifyTask builds a task event and pushes it to the project group. Event
// delivery never gates the mutation: failures are logged and dropped.
func (s *Service) notifyTask(projectID string, build func(task any) (realtime.Event, error), task store.Task) {
	if s.dispatcher == nil {
		return
	}
	event, err := build(taskPayload(task))
	if err != nil {
		log.Printf("app: build task event: %v", err)
		return
	}
	s.dispatcher.Notify(projectID, event)
}

func (s *Service) indexProject(item store.Project) {
	if s.search == nil {
		return
	}
	s.search.IndexProject(search.ProjectRecord{
		ID:             item.ID,
		OrganizationID: item.OrganizationID,
		Name:           item.Name,
		Description:    item.Description,
		Status:         item.Status,
	})
}

func (s *Service) indexTask(ctx context.Context, item store.Task) {
	if s.search == nil {
		return
	}
	org, ok := tenant.FromContext(ctx)
	if !ok {
		return
	}
	s.search.IndexTask(search.TaskRecord{
		ID:             item.ID,
		OrganizationID: org.ID,
		ProjectID:      item.ProjectID,
		Title:          item.Title,
		Description:    item.Description,
		Status:         item.Status,
		Priority:       item.Priority,
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

const dateOnly = "2006-01-02"

func organizationPayload(item store.Organization) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"name":        item.Name,
		"slug":        item.Slug,
		"description": item.Description,
		"isActive":    item.IsActive,
		"createdAt":   item.CreatedAt,
		"updatedAt":   item.UpdatedAt,
	}
}

func projectPayload(item store.Project) map[string]any {
	return map[string]any{
		"id":             item.ID,
		"organizationId": item.OrganizationID,
		"name":           item.Name,
		"description":    item.Description,
		"status":         item.Status,
		"startDate":      datePayload(item.StartDate),
		"endDate":        datePayload(item.EndDate),
		"createdAt":      item.CreatedAt,
		"updatedAt":      item.UpdatedAt,
	}
}

func taskStatsPayload(stats store.TaskStats) map[string]any {
	return map[string]any{
		"total":          stats.Total,
		"todo":           stats.Todo,
		"inProgress":     stats.InProgress,
		"completed":      stats.Completed,
		"completionRate": stats.CompletionRate,
	}
}

func taskPayload(item store.Task) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"projectId":    item.ProjectID,
		"title":        item.Title,
		"description":  item.Description,
		"status":       item.Status,
		"priority":     item.Priority,
		"dueDate":      item.DueDate,
		"sortOrder":    item.SortOrder,
		"commentCount": item.CommentCount,
		"createdAt":    item.CreatedAt,
		"updatedAt":    item.UpdatedAt,
	}
}

func commentPayload(item store.TaskComment) map[string]any {
	return map[string]any{
		"id":         item.ID,
		"taskId":     item.TaskID,
		"authorName": item.AuthorName,
		"content":    item.Content,
		"createdAt":  item.CreatedAt,
		"updatedAt":  item.UpdatedAt,
	}
}

func datePayload(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateOnly)
}
