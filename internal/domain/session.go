package domain

import (
	"fmt"
	"strings"
	"time"
)

// sessionExpirySkew is subtracted from the stored expiry when deciding
// whether a session can still be used for API calls.
const sessionExpirySkew = 60 * time.Second

// Session represents the persisted authorization state for a shop (offline)
// or for one user of a shop (online).
type Session struct {
	ID                  string            `json:"id"`
	Shop                string            `json:"shop"`
	State               string            `json:"state"`
	IsOnline            bool              `json:"is_online"`
	Scope               string            `json:"scope"`
	AccessToken         string            `json:"-"`
	Expires             *time.Time        `json:"expires,omitempty"`
	RefreshToken        string            `json:"-"`
	RefreshTokenExpires *time.Time        `json:"refresh_token_expires,omitempty"`
	OnlineAccessInfo    *OnlineAccessInfo `json:"online_access_info,omitempty"`
}

// OnlineAccessInfo is only present on online sessions with an attached user.
// ExpiresIn is derived at read time from Expires and is never persisted.
type OnlineAccessInfo struct {
	ExpiresIn           int64          `json:"expires_in"`
	AssociatedUserScope string         `json:"associated_user_scope"`
	AssociatedUser      AssociatedUser `json:"associated_user"`
}

// AssociatedUser is the staff member an online session belongs to.
type AssociatedUser struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	AccountOwner  bool   `json:"account_owner"`
	Locale        string `json:"locale"`
	Collaborator  bool   `json:"collaborator"`
	EmailVerified bool   `json:"email_verified"`
}

// OfflineSessionID returns the id under which the shop-wide session is stored.
func OfflineSessionID(shop string) string {
	return "offline_" + shop
}

// OnlineSessionID returns the id of the session for one user of a shop.
func OnlineSessionID(shop string, userID int64) string {
	return fmt.Sprintf("%s_%d", shop, userID)
}

// IsExpired reports whether the access token is past its expiry at now.
// Sessions without an expiry never expire.
func (s *Session) IsExpired(now time.Time) bool {
	if s.Expires == nil {
		return false
	}
	return !now.Before(s.Expires.Add(-sessionExpirySkew))
}

// IsScopeChanged reports whether the granted scopes no longer cover scopes.
func (s *Session) IsScopeChanged(scopes []string) bool {
	return !NewAuthScopes(s.Scope).Has(scopes)
}

// IsActive reports whether the session can authenticate API calls requiring scopes.
func (s *Session) IsActive(scopes []string) bool {
	return s.AccessToken != "" && !s.IsExpired(time.Now()) && !s.IsScopeChanged(scopes)
}

// AuthScopes is a normalized set of granted permissions. A write_x scope
// implies read_x, and unauthenticated_write_x implies unauthenticated_read_x.
type AuthScopes map[string]struct{}

// NewAuthScopes parses a comma-delimited scope string.
func NewAuthScopes(scope string) AuthScopes {
	set := AuthScopes{}
	for _, s := range strings.Split(scope, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
		if implied, ok := impliedReadScope(s); ok {
			set[implied] = struct{}{}
		}
	}
	return set
}

func impliedReadScope(scope string) (string, bool) {
	switch {
	case strings.HasPrefix(scope, "write_"):
		return "read_" + strings.TrimPrefix(scope, "write_"), true
	case strings.HasPrefix(scope, "unauthenticated_write_"):
		return "unauthenticated_read_" + strings.TrimPrefix(scope, "unauthenticated_write_"), true
	}
	return "", false
}

// Has reports whether every scope in required is granted.
func (a AuthScopes) Has(required []string) bool {
	for _, r := range required {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := a[r]; !ok {
			return false
		}
	}
	return true
}
