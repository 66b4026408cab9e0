package models

import "time"

// TaskStatusCompleted is the vendor status marking a finished task.
const TaskStatusCompleted = "completed"

// Task mirrors a project task from the vendor CRM.
type Task struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id"`
	Name        string     `json:"name"`
	ProjectID   string     `json:"project_id"`
	ProjectName string     `json:"project_name"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NotificationKind distinguishes an upcoming-due reminder from an overdue nag.
type NotificationKind string

const (
	NotificationReminder NotificationKind = "reminder"
	NotificationOverdue  NotificationKind = "overdue"
)

// TaskNotification records a staff reminder sent for a task.
type TaskNotification struct {
	ID                string           `json:"id"`
	TaskID            string           `json:"task_id"`
	Phone             string           `json:"phone"`
	Kind              NotificationKind `json:"kind"`
	ProviderMessageID string           `json:"provider_message_id,omitempty"`
	SentAt            time.Time        `json:"sent_at"`
}
