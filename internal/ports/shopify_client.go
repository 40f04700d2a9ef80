package ports

import (
	"context"
	"net/http"
	"net/url"

	"archie-shopify-session-store/internal/domain"

	shopify "github.com/bold-commerce/go-shopify/v4"
)

// AccessTokenResponse is the body returned by the platform's token endpoint.
// AssociatedUser is only set for online (per-user) grants.
type AccessTokenResponse struct {
	AccessToken           string                 `json:"access_token"`
	Scope                 string                 `json:"scope"`
	ExpiresIn             int64                  `json:"expires_in"`
	AssociatedUserScope   string                 `json:"associated_user_scope"`
	AssociatedUser        *domain.AssociatedUser `json:"associated_user"`
	RefreshToken          string                 `json:"refresh_token"`
	RefreshTokenExpiresIn int64                  `json:"refresh_token_expires_in"`
}

// ShopifyClient defines the platform operations the authorization service uses
type ShopifyClient interface {
	// Authentication
	AuthorizeURL(shop string, state string, online bool) (string, error)
	VerifyAuthorizationURL(u *url.URL) (bool, error)
	VerifyWebhookRequest(r *http.Request) bool
	ExchangeToken(ctx context.Context, shop string, code string) (*AccessTokenResponse, error)

	// Admin API
	NewAdminClient(shop string, accessToken string) (*shopify.Client, error)

	// Webhook API
	CreateWebhook(ctx context.Context, shop string, accessToken string, topic string, address string) (*shopify.Webhook, error)
	ListWebhooks(ctx context.Context, shop string, accessToken string) ([]shopify.Webhook, error)
}
