package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/store"
	"github.com/kiranshivaraju/roombridge/pkg/models"
)

// Notifier delivers host events and alerts to linked rooms.
type Notifier interface {
	NotifyUsers(ctx context.Context, event models.Event, failSilently bool) (int, error)
	OnAlert(ctx context.Context, alert models.Alert) (int, error)
}

type notifiedResponse struct {
	Notified int `json:"notified"`
}

// NewEventHandler returns an http.HandlerFunc for POST /api/v1/events.
func NewEventHandler(svc Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID string `json:"project_id"`
			Level     string `json:"level"`
			Message   string `json:"message"`
			Link      string `json:"link"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		projectID, ok := parseProjectID(w, req.ProjectID)
		if !ok {
			return
		}
		if req.Message == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "message is required", nil)
			return
		}
		level := req.Level
		if level == "" {
			level = "error"
		}

		failSilently := false
		if v := r.URL.Query().Get("fail_silently"); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "fail_silently must be a boolean", nil)
				return
			}
			failSilently = b
		}

		n, err := svc.NotifyUsers(r.Context(), models.Event{
			ProjectID: projectID,
			Level:     level,
			Message:   req.Message,
			Link:      req.Link,
		}, failSilently)
		if err != nil {
			notifyError(w, r, err)
			return
		}
		response.Accepted(w, notifiedResponse{Notified: n})
	}
}

// NewAlertHandler returns an http.HandlerFunc for POST /api/v1/alerts.
func NewAlertHandler(svc Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProjectID string `json:"project_id"`
			Message   string `json:"message"`
			Link      string `json:"link"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		projectID, ok := parseProjectID(w, req.ProjectID)
		if !ok {
			return
		}
		if req.Message == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "message is required", nil)
			return
		}

		n, err := svc.OnAlert(r.Context(), models.Alert{
			ProjectID: projectID,
			Message:   req.Message,
			Link:      req.Link,
		})
		if err != nil {
			notifyError(w, r, err)
			return
		}
		response.Accepted(w, notifiedResponse{Notified: n})
	}
}

func parseProjectID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	if raw == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id is required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "project_id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func notifyError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
		return
	}
	apiError(w, r, err)
}
