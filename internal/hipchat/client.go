package hipchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/roombridge/pkg/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Sentinel errors for chat API failures.
var (
	ErrUnreachable = errors.New("chat server unreachable")
	ErrTimeout     = errors.New("chat server timeout")
	ErrAPI         = errors.New("chat server API error")
)

// Scopes requested for every tenant token.
var Scopes = []string{"send_notification", "view_room"}

// Client is the interface for talking to a chat server.
type Client interface {
	FetchCapabilities(ctx context.Context, url string) (models.Capabilities, error)
	FetchToken(ctx context.Context, creds Credentials) (*oauth2.Token, error)
	GetRoom(ctx context.Context, apiURL, token string, roomID int64) (*Room, error)
	SendRoomNotification(ctx context.Context, apiURL, token string, roomID int64, n Notification) error
}

// Credentials identify a tenant to the chat server's token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// Room is the subset of the room resource the bridge keeps.
type Room struct {
	ID    int64      `json:"id"`
	Name  string     `json:"name"`
	Owner *RoomOwner `json:"owner,omitempty"`
}

type RoomOwner struct {
	Name string `json:"name"`
}

// OwnerName returns the owner's display name, or "" when the room has none.
func (r *Room) OwnerName() string {
	if r.Owner == nil {
		return ""
	}
	return r.Owner.Name
}

// Notification is the room notification payload.
type Notification struct {
	Message       string `json:"message"`
	MessageFormat string `json:"message_format"`
	Color         string `json:"color,omitempty"`
	Notify        bool   `json:"notify"`
	Card          *Card  `json:"card,omitempty"`
}

// HTTPClient implements Client over HTTP. Outbound requests are traced with otelhttp.
type HTTPClient struct {
	client *http.Client
}

// NewHTTPClient creates a client whose requests time out after timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (c *HTTPClient) FetchCapabilities(ctx context.Context, url string) (models.Capabilities, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Capabilities{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.Capabilities{}, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Capabilities{}, fmt.Errorf("%w: capabilities status %d", ErrAPI, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Capabilities{}, classifyError(err)
	}
	caps, err := models.ParseCapabilities(body)
	if err != nil {
		return models.Capabilities{}, fmt.Errorf("%w: %v", ErrAPI, err)
	}
	return caps, nil
}

// FetchToken performs a client-credentials grant against the tenant's token URL.
func (c *HTTPClient) FetchToken(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	if creds.TokenURL == "" {
		return nil, fmt.Errorf("%w: capabilities document has no token URL", ErrAPI)
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       Scopes,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.client)

	tok, err := cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: token status %d", ErrAPI, re.Response.StatusCode)
		}
		return nil, classifyError(err)
	}
	return tok, nil
}

func (c *HTTPClient) GetRoom(ctx context.Context, apiURL, token string, roomID int64) (*Room, error) {
	u := apiURL + "room/" + strconv.FormatInt(roomID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: room status %d", ErrAPI, resp.StatusCode)
	}

	var room Room
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		return nil, fmt.Errorf("%w: decoding room: %v", ErrAPI, err)
	}
	return &room, nil
}

func (c *HTTPClient) SendRoomNotification(ctx context.Context, apiURL, token string, roomID int64, n Notification) error {
	u := apiURL + "room/" + strconv.FormatInt(roomID, 10) + "/notification"

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// The chat server answers 204, some proxies 200.
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: notification status %d", ErrAPI, resp.StatusCode)
	}
	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
