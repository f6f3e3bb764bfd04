package api

import (
	"time"

	"podforge/internal/task"
)

// TaskView is the JSON representation of one task record.
type TaskView struct {
	TaskID           string     `json:"task_id"`
	URL              string     `json:"url"`
	Title            string     `json:"title,omitempty"`
	Status           string     `json:"status"`
	Progress         string     `json:"progress"`
	CurrentStep      string     `json:"current_step,omitempty"`
	CurrentStepIndex int        `json:"current_step_index"`
	TotalSteps       int        `json:"total_steps"`
	StepProgress     int        `json:"step_progress"`
	ProgressMessage  string     `json:"progress_message,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Files            task.Files `json:"files,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// FromRecord converts a store record into its API view.
func FromRecord(record *task.Record) TaskView {
	return TaskView{
		TaskID:           record.TaskID,
		URL:              record.URL,
		Title:            record.Title,
		Status:           string(record.Status),
		Progress:         string(record.Progress),
		CurrentStep:      record.CurrentStep,
		CurrentStepIndex: record.CurrentStepIndex,
		TotalSteps:       record.TotalSteps,
		StepProgress:     record.StepProgress,
		ProgressMessage:  record.ProgressMessage,
		ErrorMessage:     record.ErrorMessage,
		Files:            record.Files,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	URL string `json:"url"`
}

// TaskListResponse wraps GET /api/tasks.
type TaskListResponse struct {
	Tasks []TaskView `json:"tasks"`
}

// TaskResponse wraps endpoints returning one task.
type TaskResponse struct {
	Task TaskView `json:"task"`
}

// RemoveResponse wraps DELETE /api/tasks/{id}.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// StatusResponse wraps GET /api/status.
type StatusResponse struct {
	Running  bool           `json:"running"`
	PID      int            `json:"pid"`
	DBPath   string         `json:"db_path"`
	LockPath string         `json:"lock_path"`
	Tasks    map[string]int `json:"tasks"`
}

// ErrorResponse carries a failure message on non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
