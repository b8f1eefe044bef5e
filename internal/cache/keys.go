package cache

import "fmt"

// TokenKey holds the chat API access token issued to a tenant.
func TokenKey(tenantID string) string {
	return fmt.Sprintf("hipchat:token:%s", tenantID)
}

// SessionKey maps a host session id to the signed-in user.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}
