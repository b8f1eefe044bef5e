package handler

import (
	"net/http"

	"github.com/kiranshivaraju/roombridge/internal/api/response"
	"github.com/kiranshivaraju/roombridge/internal/hipchat"
)

// Paths advertised in the descriptor. The router mounts the same paths.
const (
	DescriptorPath  = "/descriptor"
	InstallablePath = "/installable"
	ConfigurePath   = "/configure"
	RoomMessagePath = "/webhook/room-message"
)

type Descriptor struct {
	Key          string                 `json:"key"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Links        DescriptorLinks        `json:"links"`
	Capabilities DescriptorCapabilities `json:"capabilities"`
	Vendor       Vendor                 `json:"vendor"`
}

type DescriptorLinks struct {
	Self string `json:"self"`
}

type DescriptorCapabilities struct {
	Installable        Installable        `json:"installable"`
	HipchatAPIConsumer HipchatAPIConsumer `json:"hipchatApiConsumer"`
	Configurable       Configurable       `json:"configurable"`
	Webhook            []Webhook          `json:"webhook"`
}

type Installable struct {
	AllowRoom   bool   `json:"allowRoom"`
	AllowGlobal bool   `json:"allowGlobal"`
	CallbackURL string `json:"callbackUrl"`
}

type HipchatAPIConsumer struct {
	Scopes []string `json:"scopes"`
}

type Configurable struct {
	URL string `json:"url"`
}

type Webhook struct {
	Event          string `json:"event"`
	URL            string `json:"url"`
	Pattern        string `json:"pattern"`
	Authentication string `json:"authentication"`
}

type Vendor struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// NewDescriptor builds the add-on descriptor with absolute URLs under baseURL.
func NewDescriptor(baseURL string) Descriptor {
	return Descriptor{
		Key:         "hipchat-sentry",
		Name:        "Sentry for Hipchat",
		Description: "Sentry integration for Hipchat.",
		Links:       DescriptorLinks{Self: baseURL + DescriptorPath},
		Capabilities: DescriptorCapabilities{
			Installable: Installable{
				AllowRoom:   true,
				AllowGlobal: false,
				CallbackURL: baseURL + InstallablePath,
			},
			HipchatAPIConsumer: HipchatAPIConsumer{Scopes: hipchat.Scopes},
			Configurable:       Configurable{URL: baseURL + ConfigurePath},
			Webhook: []Webhook{{
				Event:          "room_message",
				URL:            baseURL + RoomMessagePath,
				Pattern:        "sentry[,:]",
				Authentication: "jwt",
			}},
		},
		Vendor: Vendor{URL: "https://www.getsentry.com/", Name: "Sentry"},
	}
}

// NewDescriptorHandler returns an http.HandlerFunc for GET /descriptor.
func NewDescriptorHandler(baseURL string) http.HandlerFunc {
	d := NewDescriptor(baseURL)
	return func(w http.ResponseWriter, _ *http.Request) {
		response.Document(w, d)
	}
}
