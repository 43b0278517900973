// Package model holds the typed view of the application's database as one
// dump delivers it: tasks, projects, tags, and folders, plus the derived
// state (blocking, availability, effective dates) that the dump itself
// does not carry.
package model

import "time"

// ProjectStatus is the normalized project state.
type ProjectStatus string

const (
	ProjectActive  ProjectStatus = "active"
	ProjectOnHold  ProjectStatus = "on_hold"
	ProjectDone    ProjectStatus = "done"
	ProjectDropped ProjectStatus = "dropped"
)

// Task mirrors one task row from a dump. Field names match the dump keys.
type Task struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Note             string     `json:"note,omitempty"`
	Completed        bool       `json:"completed"`
	Dropped          bool       `json:"dropped"`
	Flagged          bool       `json:"flagged"`
	InInbox          bool       `json:"inInbox"`
	Sequential       bool       `json:"sequential"`
	DeferDate        *time.Time `json:"deferDate"`
	DueDate          *time.Time `json:"dueDate"`
	CompletionDate   *time.Time `json:"completionDate"`
	EstimatedMinutes *int       `json:"estimatedMinutes"`
	ProjectID        string     `json:"projectId"`
	ParentID         string     `json:"parentId"`
	Tags             []string   `json:"tags"`
	TagNames         []string   `json:"tagNames"`
	// Order is the task's position in the dump, which follows document
	// order. Sibling precedence derives from it.
	Order int `json:"order"`
}

// Project mirrors one project row from a dump.
type Project struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Status         ProjectStatus `json:"status"`
	Sequential     bool          `json:"sequential"`
	FolderID       string        `json:"folderId"`
	RootTaskID     string        `json:"rootTaskId"`
	DeferDate      *time.Time    `json:"deferDate"`
	DueDate        *time.Time    `json:"dueDate"`
	TaskCount      int           `json:"taskCount"`
	AvailableCount int           `json:"availableCount"`
	CompletedCount int           `json:"completedCount"`
}

// Tag mirrors one tag row.
type Tag struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	ParentID       string `json:"parentId"`
	AvailableCount int    `json:"availableCount"`
}

// Folder mirrors one folder row.
type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

// Dump is the raw payload of a database snapshot operation.
type Dump struct {
	Tasks       []*Task    `json:"tasks"`
	Projects    []*Project `json:"projects"`
	GeneratedAt time.Time  `json:"generatedAt"`
}
