package shopify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archie-shopify-session-store/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const defaultRetries = 3

// Options configures the Shopify client adapter
type Options struct {
	APIKey      string
	APISecret   string
	Scopes      []string
	RedirectURL string
	APIVersion  string
	// ExpiringOfflineTokens asks the platform for offline tokens that expire
	// and come with a refresh token.
	ExpiringOfflineTokens bool
	HTTPClient            *http.Client
	Logger                zerolog.Logger
}

type client struct {
	app        goshopify.App
	opts       Options
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Shopify client adapter
func NewClient(opts Options) ports.ShopifyClient {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	app := goshopify.App{
		ApiKey:      opts.APIKey,
		ApiSecret:   opts.APISecret,
		RedirectUrl: opts.RedirectURL,
		Scope:       strings.Join(opts.Scopes, ","),
	}
	return &client{
		app:        app,
		opts:       opts,
		httpClient: httpClient,
		logger:     opts.Logger,
	}
}

// NewAdminClient is a helper to create a goshopify client for a shop
func (c *client) NewAdminClient(shopDomain string, accessToken string) (*goshopify.Client, error) {
	options := []goshopify.Option{
		goshopify.WithRetry(defaultRetries),
		goshopify.WithHTTPClient(c.httpClient),
	}
	if c.opts.APIVersion != "" {
		options = append(options, goshopify.WithVersion(c.opts.APIVersion))
	}
	client, err := goshopify.NewClient(c.app, shopDomain, accessToken, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return client, nil
}

// Authentication methods

func (c *client) AuthorizeURL(shop string, state string, online bool) (string, error) {
	authURL, err := c.app.AuthorizeUrl(shop, state)
	if err != nil {
		return "", fmt.Errorf("failed to build authorize url: %w", err)
	}
	if !online {
		return authURL, nil
	}

	u, err := url.Parse(authURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse authorize url: %w", err)
	}
	query := u.Query()
	query.Set("grant_options[]", "per-user")
	u.RawQuery = query.Encode()

	c.logger.Debug().
		Str("shop", shop).
		Str("scopes", c.app.Scope).
		Bool("online", online).
		Msg("Generated OAuth authorization URL")

	return u.String(), nil
}

func (c *client) VerifyAuthorizationURL(u *url.URL) (bool, error) {
	return c.app.VerifyAuthorizationURL(u)
}

func (c *client) VerifyWebhookRequest(r *http.Request) bool {
	return c.app.VerifyWebhookRequest(r)
}

func (c *client) ExchangeToken(ctx context.Context, shop string, code string) (*ports.AccessTokenResponse, error) {
	// go-shopify's GetAccessToken only returns the token string; the
	// associated user and expiry are needed to build the session.
	tokenURL := fmt.Sprintf("https://%s/admin/oauth/access_token", shop)

	values := url.Values{}
	values.Set("client_id", c.app.ApiKey)
	values.Set("client_secret", c.app.ApiSecret)
	values.Set("code", code)
	if c.opts.ExpiringOfflineTokens {
		values.Set("expiring", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("failed to exchange token: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var tokenResponse ports.AccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, fmt.Errorf("failed to exchange token: empty access token")
	}

	return &tokenResponse, nil
}

// Webhook API

func (c *client) CreateWebhook(ctx context.Context, shopDomain string, accessToken string, topic string, address string) (*goshopify.Webhook, error) {
	client, err := c.NewAdminClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	webhook := goshopify.Webhook{
		Topic:   topic,
		Address: address,
		Format:  "json",
	}
	created, err := client.Webhook.Create(ctx, webhook)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook: %w", err)
	}
	return created, nil
}

func (c *client) ListWebhooks(ctx context.Context, shopDomain string, accessToken string) ([]goshopify.Webhook, error) {
	client, err := c.NewAdminClient(shopDomain, accessToken)
	if err != nil {
		return nil, err
	}
	webhooks, err := client.Webhook.List(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhooks: %w", err)
	}
	return webhooks, nil
}
