// Package hipchattest provides an in-process chat server for tests.
package hipchattest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
)

// Server fakes the capabilities document, token endpoint and room API.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	notifications []Delivery
	tokenRequests int
	roomStatus    int
	notifyStatus  int
	selfLink      string
	rooms         map[int64]hipchat.Room
}

// Delivery is one notification received by the fake.
type Delivery struct {
	RoomID       int64
	Token        string
	Notification hipchat.Notification
}

// AccessToken is the bearer token the fake issues.
const AccessToken = "test-access-token"

// NewServer starts a fake chat server. Call Close when done.
func NewServer() *Server {
	s := &Server{
		roomStatus:   http.StatusOK,
		notifyStatus: http.StatusNoContent,
		rooms:        make(map[int64]hipchat.Room),
	}

	r := chi.NewRouter()
	r.Get("/v2/capabilities", s.handleCapabilities)
	r.Post("/v2/oauth/token", s.handleToken)
	r.Get("/v2/room/{roomID}", s.handleRoom)
	r.Post("/v2/room/{roomID}/notification", s.handleNotification)

	s.Server = httptest.NewServer(r)
	return s
}

// CapabilitiesURL is the URL installers pass as capabilitiesUrl.
func (s *Server) CapabilitiesURL() string {
	return s.URL + "/v2/capabilities"
}

// APIURL is the REST API base advertised in the capabilities document.
func (s *Server) APIURL() string {
	return s.URL + "/v2/"
}

// TokenURL is the OAuth2 token endpoint advertised in the capabilities document.
func (s *Server) TokenURL() string {
	return s.URL + "/v2/oauth/token"
}

// CapabilitiesJSON returns the document the fake serves.
func (s *Server) CapabilitiesJSON() []byte {
	s.mu.Lock()
	self := s.selfLink
	s.mu.Unlock()
	if self == "" {
		self = s.CapabilitiesURL()
	}
	doc := map[string]any{
		"name": "HipChat",
		"links": map[string]string{
			"self": self,
			"api":  s.URL + "/v2",
		},
		"capabilities": map[string]any{
			"oauth2Provider": map[string]string{
				"authorizationUrl": s.URL + "/users/authorize",
				"tokenUrl":         s.TokenURL(),
			},
			"hipchatApiProvider": map[string]string{
				"url": s.APIURL(),
			},
		},
	}
	b, _ := json.Marshal(doc)
	return b
}

// SetSelfLink overrides links.self in the capabilities document.
func (s *Server) SetSelfLink(link string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfLink = link
}

// AddRoom registers a room returned by the room endpoint.
func (s *Server) AddRoom(id int64, name, owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := hipchat.Room{ID: id, Name: name}
	if owner != "" {
		room.Owner = &hipchat.RoomOwner{Name: owner}
	}
	s.rooms[id] = room
}

// FailRoom makes the room endpoint answer with status.
func (s *Server) FailRoom(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomStatus = status
}

// FailNotifications makes the notification endpoint answer with status.
func (s *Server) FailNotifications(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyStatus = status
}

// Notifications returns every delivery received so far.
func (s *Server) Notifications() []Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Delivery(nil), s.notifications...)
}

// TokenRequests counts client-credentials grants served.
func (s *Server) TokenRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenRequests
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(s.CapabilitiesJSON())
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := r.BasicAuth(); !ok {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, `{"error":"unsupported_grant_type"}`, http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.tokenRequests++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token": AccessToken,
		"token_type":   "bearer",
		"expires_in":   3600,
		"scope":        strings.Join(hipchat.Scopes, " "),
	})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	status := s.roomStatus
	room, ok := s.rooms[id]
	s.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	if !ok {
		room = hipchat.Room{ID: id, Name: fmt.Sprintf("room-%d", id)}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(room)
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	if !authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var n hipchat.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifyStatus != http.StatusNoContent {
		w.WriteHeader(s.notifyStatus)
		return
	}
	s.notifications = append(s.notifications, Delivery{
		RoomID:       id,
		Token:        strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "),
		Notification: n,
	})
	w.WriteHeader(http.StatusNoContent)
}

func authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+AccessToken
}
