// Package models contains shared data models used across the roombridge codebase.
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tenant is one installation of the integration in a single chat room.
// The ID is the OAuth client id handed over by the chat service on install.
type Tenant struct {
	ID            string       `db:"id"              json:"id"`
	RoomID        int64        `db:"room_id"         json:"room_id"`
	Secret        Secret       `db:"secret"          json:"secret"`
	Capabilities  Capabilities `db:"capabilities"    json:"capabilities"`
	RoomName      string       `db:"room_name"       json:"room_name"`
	RoomOwnerName string       `db:"room_owner_name" json:"room_owner_name"`
	AuthUserID    *uuid.UUID   `db:"auth_user_id"    json:"auth_user_id,omitempty"`
	CreatedAt     time.Time    `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at"      json:"updated_at"`
}

// Authorized reports whether a human has completed the grant-access step.
func (t *Tenant) Authorized() bool {
	return t.AuthUserID != nil
}

// Secret holds the OAuth shared secret. It never serializes in cleartext.
type Secret string

// Redacted returns a redacted representation for display.
func (s Secret) Redacted() string {
	if s == "" {
		return ""
	}
	return "REDACTED"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Redacted())
}

func (s Secret) String() string {
	return s.Redacted()
}

// Reveal returns the raw secret for signing and token requests.
func (s Secret) Reveal() string {
	return string(s)
}
