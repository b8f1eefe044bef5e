package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Capabilities is the capabilities document published by the installing chat
// server. Only the fields the bridge relies on are decoded; the full document
// is preserved in Raw for storage.
type Capabilities struct {
	Name         string          `json:"name,omitempty"`
	Links        CapabilityLinks `json:"links"`
	Capabilities CapabilitySet   `json:"capabilities"`
	Raw          json.RawMessage `json:"-"`
}

type CapabilityLinks struct {
	Self string `json:"self"`
	API  string `json:"api,omitempty"`
}

type CapabilitySet struct {
	OAuth2Provider     *OAuth2Provider     `json:"oauth2Provider,omitempty"`
	HipchatAPIProvider *HipchatAPIProvider `json:"hipchatApiProvider,omitempty"`
}

type OAuth2Provider struct {
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
	TokenURL         string `json:"tokenUrl"`
}

type HipchatAPIProvider struct {
	URL string `json:"url"`
}

// ParseCapabilities decodes a capabilities document, keeping the raw bytes.
func ParseCapabilities(data []byte) (Capabilities, error) {
	var c Capabilities
	if err := json.Unmarshal(data, &c); err != nil {
		return Capabilities{}, fmt.Errorf("decoding capabilities document: %w", err)
	}
	c.Raw = append(json.RawMessage(nil), data...)
	return c, nil
}

// JSON returns the document as stored: the raw bytes when available.
func (c Capabilities) JSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(c)
}

// TokenURL is the OAuth2 token endpoint advertised by the chat server.
func (c Capabilities) TokenURL() string {
	if c.Capabilities.OAuth2Provider == nil {
		return ""
	}
	return c.Capabilities.OAuth2Provider.TokenURL
}

// APIURL is the REST API base, always with a trailing slash.
func (c Capabilities) APIURL() string {
	u := c.Links.API
	if c.Capabilities.HipchatAPIProvider != nil && c.Capabilities.HipchatAPIProvider.URL != "" {
		u = c.Capabilities.HipchatAPIProvider.URL
	}
	if u == "" {
		return ""
	}
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	return u
}
