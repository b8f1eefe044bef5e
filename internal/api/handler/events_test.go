package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/roombridge/internal/api/handler"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
	"github.com/kiranshivaraju/roombridge/internal/notifier"
	"github.com/kiranshivaraju/roombridge/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) linkTenant(t *testing.T, id string, roomID int64) {
	t.Helper()
	f.addTenant(t, id, roomID)
	require.NoError(t, notifier.EnableForTenant(context.Background(), f.plugin, f.project.ID, id))
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func decodeErrCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Error.Code
}

func eventReq(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestEvents_NotifiesLinkedRooms(t *testing.T) {
	f := setup(t)
	f.linkTenant(t, "t1", 1)
	f.linkTenant(t, "t2", 2)

	body := fmt.Sprintf(`{"project_id":%q,"level":"warning","message":"disk <full>","link":"https://host/e/1"}`, f.project.ID)
	w := f.serve(eventReq("/api/v1/events", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(2), decodeData(t, w)["notified"])

	sent := f.chat.Notifications()
	require.Len(t, sent, 2)
	assert.Equal(t, "yellow", sent[0].Notification.Color)
	assert.True(t, sent[0].Notification.Notify)
	assert.Equal(t, `[WARNING]<strong>API</strong> disk &lt;full&gt; [<a href="https://host/e/1">view</a>]`, sent[0].Notification.Message)
}

func TestEvents_FailSilently(t *testing.T) {
	f := setup(t)
	f.linkTenant(t, "t1", 1)
	f.chat.FailNotifications(http.StatusInternalServerError)
	body := fmt.Sprintf(`{"project_id":%q,"level":"error","message":"boom"}`, f.project.ID)

	w := f.serve(eventReq("/api/v1/events", body))
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "CHAT_API_UNAVAILABLE", decodeErrCode(t, w))

	w = f.serve(eventReq("/api/v1/events?fail_silently=true", body))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, float64(0), decodeData(t, w)["notified"])
}

func TestEvents_Validation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name     string
		target   string
		body     string
		wantCode int
		wantErr  string
	}{
		{"bad json", "/api/v1/events", `{`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing project", "/api/v1/events", `{"message":"x"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad project id", "/api/v1/events", `{"project_id":"nope","message":"x"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing message", "/api/v1/events", fmt.Sprintf(`{"project_id":%q}`, f.project.ID), http.StatusBadRequest, "INVALID_REQUEST"},
		{"bad fail_silently", "/api/v1/events?fail_silently=maybe", fmt.Sprintf(`{"project_id":%q,"message":"x"}`, f.project.ID), http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown project", "/api/v1/events", fmt.Sprintf(`{"project_id":%q,"message":"x"}`, uuid.New()), http.StatusNotFound, "PROJECT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.serve(eventReq(tt.target, tt.body))
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeErrCode(t, w))
		})
	}
}

func TestAlerts_SendsRed(t *testing.T) {
	f := setup(t)
	f.linkTenant(t, "t1", 1)

	body := fmt.Sprintf(`{"project_id":%q,"message":"error rate spiked","link":"https://host/a/1"}`, f.project.ID)
	w := f.serve(eventReq("/api/v1/alerts", body))

	require.Equal(t, http.StatusAccepted, w.Code)
	sent := f.chat.Notifications()
	require.Len(t, sent, 1)
	assert.Equal(t, "red", sent[0].Notification.Color)
	assert.Equal(t, `[ALERT] <strong>API</strong> error rate spiked[<a href="https://host/a/1">view</a>]`, sent[0].Notification.Message)
}

type failingNotifier struct{ err error }

func (n failingNotifier) NotifyUsers(context.Context, models.Event, bool) (int, error) {
	return 0, n.err
}

func (n failingNotifier) OnAlert(context.Context, models.Alert) (int, error) {
	return 0, n.err
}

func TestEvents_UpstreamErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode int
		wantErr  string
	}{
		{fmt.Errorf("sending: %w", hipchat.ErrTimeout), http.StatusGatewayTimeout, "CHAT_API_TIMEOUT"},
		{fmt.Errorf("sending: %w", hipchat.ErrUnreachable), http.StatusBadGateway, "CHAT_API_UNAVAILABLE"},
		{errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.wantErr, func(t *testing.T) {
			h := handler.NewAlertHandler(failingNotifier{err: tt.err})
			w := httptest.NewRecorder()
			h.ServeHTTP(w, eventReq("/api/v1/alerts", fmt.Sprintf(`{"project_id":%q,"message":"x"}`, uuid.New())))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantErr, decodeErrCode(t, w))
		})
	}
}
