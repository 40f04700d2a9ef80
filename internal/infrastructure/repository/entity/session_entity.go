package entity

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/ports"
)

// SessionColumns lists the sessions table columns in bind order.
var SessionColumns = []string{
	"id", "shop", "state", "isOnline", "scope", "accessToken", "expires",
	"userId", "firstName", "lastName", "email", "accountOwner", "locale",
	"collaborator", "emailVerified", "refreshToken", "refreshTokenExpires",
}

// SessionValues flattens a session into column values ordered like
// SessionColumns. Empty strings and absent timestamps become nil; user
// columns are nil (flags 0) unless an associated user is attached.
func SessionValues(s *domain.Session) []any {
	var (
		userID, firstName, lastName, email, locale any
		accountOwner, collaborator, emailVerified  = 0, 0, 0
	)
	if s.OnlineAccessInfo != nil {
		u := s.OnlineAccessInfo.AssociatedUser
		userID = nullableInt(u.ID)
		firstName = nullableString(u.FirstName)
		lastName = nullableString(u.LastName)
		email = nullableString(u.Email)
		locale = nullableString(u.Locale)
		accountOwner = boolInt(u.AccountOwner)
		collaborator = boolInt(u.Collaborator)
		emailVerified = boolInt(u.EmailVerified)
	}

	return []any{
		nullableString(s.ID),
		nullableString(s.Shop),
		nullableString(s.State),
		boolInt(s.IsOnline),
		nullableString(s.Scope),
		nullableString(s.AccessToken),
		epochMillis(s.Expires),
		userID,
		firstName,
		lastName,
		email,
		accountOwner,
		locale,
		collaborator,
		emailVerified,
		nullableString(s.RefreshToken),
		epochMillis(s.RefreshTokenExpires),
	}
}

// SessionFromRow rebuilds a session from a result row. The online access
// info is only materialized when the row names a user, and its ExpiresIn is
// computed relative to now.
func SessionFromRow(row ports.Row, now time.Time) (*domain.Session, error) {
	id := stringValue(row["id"])
	if id == "" {
		return nil, fmt.Errorf("session row has no id")
	}

	session := &domain.Session{
		ID:           id,
		Shop:         stringValue(row["shop"]),
		State:        stringValue(row["state"]),
		IsOnline:     boolValue(row["isOnline"]),
		Scope:        stringValue(row["scope"]),
		AccessToken:  stringValue(row["accessToken"]),
		RefreshToken: stringValue(row["refreshToken"]),
	}

	expiresMs, hasExpires := int64Value(row["expires"])
	if hasExpires && expiresMs != 0 {
		expires := time.UnixMilli(expiresMs)
		session.Expires = &expires
	}
	if ms, ok := int64Value(row["refreshTokenExpires"]); ok && ms != 0 {
		refreshExpires := time.UnixMilli(ms)
		session.RefreshTokenExpires = &refreshExpires
	}

	if userID, ok := int64Value(row["userId"]); ok && userID != 0 {
		var expiresIn int64
		if session.Expires != nil {
			expiresIn = int64(math.Floor(float64(expiresMs-now.UnixMilli()) / 1000))
		}
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{
			ExpiresIn:           expiresIn,
			AssociatedUserScope: session.Scope,
			AssociatedUser: domain.AssociatedUser{
				ID:            userID,
				FirstName:     stringValue(row["firstName"]),
				LastName:      stringValue(row["lastName"]),
				Email:         stringValue(row["email"]),
				AccountOwner:  boolValue(row["accountOwner"]),
				Locale:        stringValue(row["locale"]),
				Collaborator:  boolValue(row["collaborator"]),
				EmailVerified: boolValue(row["emailVerified"]),
			},
		}
	}

	return session, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func epochMillis(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Drivers disagree on column types (int32 vs int64, []byte vs string), so
// the decoders below accept every representation they produce.

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func int64Value(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case int16:
		return int64(t), true
	case int8:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float64:
		return int64(t), true
	case float32:
		return int64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case []byte:
		n, err := strconv.ParseInt(string(t), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	case time.Time:
		return t.UnixMilli(), true
	default:
		return 0, false
	}
}

func boolValue(v any) bool {
	n, ok := int64Value(v)
	return ok && n != 0
}
