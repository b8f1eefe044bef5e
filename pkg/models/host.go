package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a human account of the monitoring host.
type User struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Username  string    `db:"username"   json:"username"`
	Email     string    `db:"email"      json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Organization struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Slug      string    `db:"slug"       json:"slug"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Team struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	Slug           string    `db:"slug"            json:"slug"`
	Name           string    `db:"name"            json:"name"`
}

// Project is the unit events are reported against. Plugin options are keyed by project.
type Project struct {
	ID             uuid.UUID `db:"id"              json:"id"`
	OrganizationID uuid.UUID `db:"organization_id" json:"organization_id"`
	TeamID         uuid.UUID `db:"team_id"         json:"team_id"`
	Slug           string    `db:"slug"            json:"slug"`
	Name           string    `db:"name"            json:"name"`
}

// TeamProjects pairs a team with the projects it owns.
type TeamProjects struct {
	Team     Team
	Projects []Project
}
