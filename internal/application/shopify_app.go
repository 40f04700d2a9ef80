package application

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"archie-shopify-session-store/internal/domain"
	shopifyinfra "archie-shopify-session-store/internal/infrastructure/shopify"
	"archie-shopify-session-store/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

const (
	stateTTL        = 10 * time.Minute
	adminOrigin     = "https://admin.shopify.com"
	maxWebhookBytes = 1 << 20
)

// WebhookPath is where the app receives webhook deliveries
const WebhookPath = "/webhooks"

// AppWebhookTopics are subscribed for every shop that installs the app
var AppWebhookTopics = []string{domain.TopicAppUninstalled, domain.TopicAppScopesUpdate}

// AdminContext carries the session an Admin API call is made on behalf of
type AdminContext struct {
	Session *domain.Session
	Client  *goshopify.Client
}

// WebhookContext carries a verified webhook delivery. Session is the shop's
// offline session, or nil when the shop has none.
type WebhookContext struct {
	Event   *domain.WebhookEvent
	Session *domain.Session
}

// ShopifyApp is the authorization service: it runs the OAuth handshake,
// authenticates admin and webhook requests, and persists the resulting
// sessions through SessionStorage.
type ShopifyApp struct {
	config  domain.AppConfig
	client  ports.ShopifyClient
	tokens  *shopifyinfra.TokenManager
	storage ports.SessionStorage
	states  ports.StateStore
	logger  zerolog.Logger
	now     func() time.Time
}

// NewShopifyApp creates a new authorization service
func NewShopifyApp(
	config domain.AppConfig,
	client ports.ShopifyClient,
	storage ports.SessionStorage,
	states ports.StateStore,
	logger zerolog.Logger,
) *ShopifyApp {
	return &ShopifyApp{
		config:  config,
		client:  client,
		tokens:  shopifyinfra.NewTokenManager(config.APIKey, config.APISecret, config.CustomShopDomains, logger),
		storage: storage,
		states:  states,
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the configuration the app was built with
func (a *ShopifyApp) Config() domain.AppConfig {
	return a.config
}

// SessionStorage returns the storage sessions are persisted through
func (a *ShopifyApp) SessionStorage() ports.SessionStorage {
	return a.storage
}

// AddDocumentResponseHeaders sets the headers an embedded admin page needs
func (a *ShopifyApp) AddDocumentResponseHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Link", `<https://cdn.shopify.com/>; rel="preconnect", <https://cdn.shopify.com/shopifycloud/app-bridge.js>; rel="preload"; as="script"`)

	shop, err := domain.SanitizeShop(r.URL.Query().Get("shop"), a.config.CustomShopDomains)
	if err != nil {
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none';")
		return
	}

	ancestors := []string{"https://" + shop, adminOrigin}
	for _, d := range a.config.CustomShopDomains {
		if d = strings.TrimSpace(d); d != "" {
			ancestors = append(ancestors, "https://*."+d)
		}
	}
	w.Header().Set("Content-Security-Policy", "frame-ancestors "+strings.Join(ancestors, " ")+";")
}

// Login starts the OAuth handshake for the shop named in the request
func (a *ShopifyApp) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rawShop := r.URL.Query().Get("shop")
	if rawShop == "" && r.Method == http.MethodPost {
		rawShop = r.FormValue("shop")
	}
	shop, err := domain.SanitizeShop(rawShop, a.config.CustomShopDomains)
	if err != nil {
		a.logger.Warn().Err(err).Str("shop", rawShop).Msg("Login rejected")
		http.Error(w, "Invalid shop", http.StatusBadRequest)
		return
	}

	state, err := newState()
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to generate state")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if err := a.states.Save(ctx, state, shop, stateTTL); err != nil {
		a.logger.Error().Err(err).Str("shop", shop).Msg("Failed to save state")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	online := r.URL.Query().Get("online") == "true"
	authURL, err := a.client.AuthorizeURL(shop, state, online)
	if err != nil {
		a.logger.Error().Err(err).Str("shop", shop).Msg("Failed to build authorization URL")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	a.logger.Info().Str("shop", shop).Bool("online", online).Msg("Redirecting to authorization")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback completes the OAuth handshake from the redirect back to the app
// and stores the resulting session
func (a *ShopifyApp) Callback(ctx context.Context, u *url.URL) (*domain.Session, error) {
	ok, err := a.client.VerifyAuthorizationURL(u)
	if err != nil || !ok {
		return nil, domain.ErrInvalidHMAC
	}

	query := u.Query()
	shop, err := domain.SanitizeShop(query.Get("shop"), a.config.CustomShopDomains)
	if err != nil {
		return nil, err
	}
	code := query.Get("code")
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", domain.ErrInvalidState)
	}

	state := query.Get("state")
	stateShop, err := a.states.Consume(ctx, state)
	if err != nil {
		return nil, err
	}
	if stateShop != shop {
		return nil, fmt.Errorf("%w: state was issued for another shop", domain.ErrInvalidState)
	}

	token, err := a.client.ExchangeToken(ctx, shop, code)
	if err != nil {
		a.logger.Error().Err(err).Str("shop", shop).Msg("Failed to exchange token")
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	session := sessionFromToken(shop, state, token, a.now())
	if !a.storage.StoreSession(ctx, session) {
		return nil, fmt.Errorf("failed to store session %s: %w", session.ID, domain.ErrStoreExecution)
	}

	a.logger.Info().
		Str("shop", shop).
		Str("sessionId", session.ID).
		Bool("online", session.IsOnline).
		Str("scope", session.Scope).
		Msg("OAuth handshake completed")

	if !session.IsOnline {
		if err := a.RegisterWebhooks(ctx, session); err != nil {
			a.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to register webhooks")
		}
	}

	return session, nil
}

// sessionFromToken builds the session for a token response. Responses with
// an associated user are online grants.
func sessionFromToken(shop, state string, token *ports.AccessTokenResponse, now time.Time) *domain.Session {
	session := &domain.Session{
		Shop:        shop,
		State:       state,
		Scope:       token.Scope,
		AccessToken: token.AccessToken,
	}
	if token.ExpiresIn > 0 {
		expires := now.Add(time.Duration(token.ExpiresIn) * time.Second)
		session.Expires = &expires
	}

	if token.AssociatedUser != nil {
		session.ID = domain.OnlineSessionID(shop, token.AssociatedUser.ID)
		session.IsOnline = true
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{
			ExpiresIn:           token.ExpiresIn,
			AssociatedUserScope: token.AssociatedUserScope,
			AssociatedUser:      *token.AssociatedUser,
		}
		return session
	}

	session.ID = domain.OfflineSessionID(shop)
	if token.RefreshToken != "" {
		session.RefreshToken = token.RefreshToken
		if token.RefreshTokenExpiresIn > 0 {
			refreshExpires := now.Add(time.Duration(token.RefreshTokenExpiresIn) * time.Second)
			session.RefreshTokenExpires = &refreshExpires
		}
	}
	return session
}

// RegisterWebhooks subscribes the shop to the app's webhook topics, skipping
// topics already subscribed at the app's address
func (a *ShopifyApp) RegisterWebhooks(ctx context.Context, session *domain.Session) error {
	if session == nil || session.AccessToken == "" {
		return fmt.Errorf("%w: no access token", domain.ErrUnauthenticated)
	}
	address := strings.TrimRight(a.config.AppURL, "/") + WebhookPath

	existing, err := a.client.ListWebhooks(ctx, session.Shop, session.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to list webhooks: %w", err)
	}
	subscribed := make(map[string]bool, len(existing))
	for _, w := range existing {
		if w.Address == address {
			subscribed[w.Topic] = true
		}
	}

	var errs []error
	for _, topic := range AppWebhookTopics {
		if subscribed[topic] {
			continue
		}
		if _, err := a.client.CreateWebhook(ctx, session.Shop, session.AccessToken, topic, address); err != nil {
			errs = append(errs, fmt.Errorf("failed to subscribe to %s: %w", topic, err))
			continue
		}
		a.logger.Info().Str("shop", session.Shop).Str("topic", topic).Msg("Subscribed to webhook")
	}
	return errors.Join(errs...)
}

// Authenticator authenticates requests made to the app
type Authenticator struct {
	app *ShopifyApp
}

// Authenticate returns the request authenticator
func (a *ShopifyApp) Authenticate() Authenticator {
	return Authenticator{app: a}
}

// Admin authenticates a request from the embedded admin. The session token
// comes from the Authorization header or the id_token query parameter;
// without one, a signed request with a shop parameter uses the offline
// session.
func (au Authenticator) Admin(r *http.Request) (*AdminContext, error) {
	a := au.app
	ctx := r.Context()

	token := shopifyinfra.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		token = r.URL.Query().Get("id_token")
	}

	var (
		shop string
		ids  []string
	)
	if token != "" {
		info, err := a.tokens.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		shop = info.Shop
		if info.UserID != 0 {
			ids = append(ids, domain.OnlineSessionID(shop, info.UserID))
		}
		ids = append(ids, domain.OfflineSessionID(shop))
	} else {
		ok, err := a.client.VerifyAuthorizationURL(r.URL)
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: missing session token", domain.ErrUnauthenticated)
		}
		shop, err = domain.SanitizeShop(r.URL.Query().Get("shop"), a.config.CustomShopDomains)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
		}
		ids = append(ids, domain.OfflineSessionID(shop))
	}

	session := a.activeSession(ctx, ids...)
	if session == nil {
		return nil, fmt.Errorf("%w: no active session for %s", domain.ErrUnauthenticated, shop)
	}
	return a.adminContext(session)
}

// Webhook verifies a webhook delivery and resolves the shop's offline session
func (au Authenticator) Webhook(r *http.Request) (*WebhookContext, error) {
	a := au.app

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read webhook body: %w", err)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if !a.client.VerifyWebhookRequest(r) {
		return nil, domain.ErrInvalidHMAC
	}

	shop, err := domain.SanitizeShop(r.Header.Get("X-Shopify-Shop-Domain"), a.config.CustomShopDomains)
	if err != nil {
		return nil, err
	}
	event := &domain.WebhookEvent{
		Topic:      r.Header.Get("X-Shopify-Topic"),
		Shop:       shop,
		WebhookID:  r.Header.Get("X-Shopify-Webhook-Id"),
		APIVersion: r.Header.Get("X-Shopify-Api-Version"),
		Payload:    body,
	}

	return &WebhookContext{
		Event:   event,
		Session: a.storage.LoadSession(r.Context(), domain.OfflineSessionID(shop)),
	}, nil
}

// UnauthenticatedAccess gives background jobs Admin API access for a shop
// through its offline session
type UnauthenticatedAccess struct {
	app *ShopifyApp
}

// Unauthenticated returns access helpers that do not need a request
func (a *ShopifyApp) Unauthenticated() UnauthenticatedAccess {
	return UnauthenticatedAccess{app: a}
}

// Admin returns an Admin API context for shop's offline session
func (u UnauthenticatedAccess) Admin(ctx context.Context, shop string) (*AdminContext, error) {
	a := u.app
	shop, err := domain.SanitizeShop(shop, a.config.CustomShopDomains)
	if err != nil {
		return nil, err
	}
	session := a.storage.LoadSession(ctx, domain.OfflineSessionID(shop))
	if session == nil || session.AccessToken == "" {
		return nil, fmt.Errorf("%w: no offline session for %s", domain.ErrUnauthenticated, shop)
	}
	return a.adminContext(session)
}

func (a *ShopifyApp) activeSession(ctx context.Context, ids ...string) *domain.Session {
	for _, id := range ids {
		session := a.storage.LoadSession(ctx, id)
		if session == nil {
			continue
		}
		if session.IsActive(a.config.Scopes) {
			return session
		}
		a.logger.Debug().Str("sessionId", id).Msg("Session is not active")
	}
	return nil
}

func (a *ShopifyApp) adminContext(session *domain.Session) (*AdminContext, error) {
	client, err := a.client.NewAdminClient(session.Shop, session.AccessToken)
	if err != nil {
		return nil, err
	}
	return &AdminContext{Session: session, Client: client}, nil
}

func newState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
