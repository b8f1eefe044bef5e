package models

import "github.com/google/uuid"

// Event is a single error event forwarded by the host's event pipeline.
// Level is the host's level display name (e.g. "error", "WARNING").
type Event struct {
	ProjectID uuid.UUID `json:"project_id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
}

// Alert is a project-wide alert raised by the host.
type Alert struct {
	ProjectID uuid.UUID `json:"project_id"`
	Message   string    `json:"message"`
	Link      string    `json:"link"`
}
