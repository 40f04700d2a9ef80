package shopify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"archie-shopify-session-store/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const sessionTokenLeeway = 5 * time.Second

// SessionTokenClaims are the claims App Bridge puts in the session token an
// embedded app sends as its bearer credential.
type SessionTokenClaims struct {
	jwt.RegisteredClaims
	Dest string `json:"dest"`
	Sid  string `json:"sid"`
}

// TokenInfo represents the identity carried by a verified session token
type TokenInfo struct {
	Shop   string
	UserID int64
	Sid    string
}

// TokenManager verifies session tokens signed with the app's API secret
type TokenManager struct {
	apiKey        string
	apiSecret     string
	customDomains []string
	logger        zerolog.Logger
}

// NewTokenManager creates a new token manager
func NewTokenManager(apiKey, apiSecret string, customDomains []string, logger zerolog.Logger) *TokenManager {
	return &TokenManager{
		apiKey:        apiKey,
		apiSecret:     apiSecret,
		customDomains: customDomains,
		logger:        logger,
	}
}

// ValidateToken parses and verifies a session token and returns the shop and
// user it was issued for
func (tm *TokenManager) ValidateToken(token string) (*TokenInfo, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: session token is empty", domain.ErrUnauthenticated)
	}
	if tm.apiSecret == "" {
		return nil, fmt.Errorf("%w: api secret is not configured", domain.ErrUnauthenticated)
	}

	claims := &SessionTokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(tm.apiSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tm.apiKey),
		jwt.WithLeeway(sessionTokenLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		tm.logger.Debug().Err(err).Msg("Session token validation failed")
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	shop, err := domain.SanitizeShop(strings.TrimPrefix(claims.Dest, "https://"), tm.customDomains)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}

	info := &TokenInfo{Shop: shop, Sid: claims.Sid}
	if claims.Subject != "" {
		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid subject claim", domain.ErrUnauthenticated)
		}
		info.UserID = userID
	}
	return info, nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
