package store

import "time"

type Organization struct {
	ID          string
	Name        string
	Slug        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Project struct {
	ID             string
	OrganizationID string
	Name           string
	Description    string
	Status         string
	StartDate      *time.Time
	EndDate        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskStats summarizes the tasks of one project.
type TaskStats struct {
	Total          int
	Todo           int
	InProgress     int
	Completed      int
	CompletionRate float64
}

type Task struct {
	ID           string
	ProjectID    string
	Title        string
	Description  string
	Status       string
	Priority     string
	DueDate      *time.Time
	SortOrder    int
	CommentCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type TaskComment struct {
	ID         string
	TaskID     string
	AuthorName string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProjectFilter narrows ListProjects. Zero values mean "no filter".
type ProjectFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

// TaskFilter narrows ListTasks. Zero values mean "no filter".
type TaskFilter struct {
	ProjectID string
	Status    string
	Priority  string
	Search    string
	Limit     int
	Offset    int
}
