package application

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"archie-shopify-session-store/internal/domain"
	shopifyinfra "archie-shopify-session-store/internal/infrastructure/shopify"
	"archie-shopify-session-store/internal/infrastructure/state"
	"archie-shopify-session-store/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testShop = "shop-a.myshopify.com"

var testConfig = domain.AppConfig{
	APIKey:         "api-key",
	APISecret:      "api-secret",
	Scopes:         []string{"read_products"},
	AppURL:         "https://app.example.com",
	APIVersion:     "2025-10",
	AuthPathPrefix: "/auth",
}

type appFixture struct {
	app     *ShopifyApp
	client  *fakeShopifyClient
	storage *fakeStorage
	states  *state.MemoryStateStore
}

func newAppFixture(cfg domain.AppConfig) *appFixture {
	f := &appFixture{
		client:  &fakeShopifyClient{validHMAC: true, validWebhook: true},
		storage: newFakeStorage(),
		states:  state.NewMemoryStateStore(),
	}
	f.app = NewShopifyApp(cfg, f.client, f.storage, f.states, zerolog.Nop())
	return f
}

func callbackURL(shop, code, state string) *url.URL {
	q := url.Values{}
	q.Set("shop", shop)
	q.Set("code", code)
	q.Set("state", state)
	q.Set("hmac", "signed")
	return &url.URL{Path: "/auth/callback", RawQuery: q.Encode()}
}

func TestAddDocumentResponseHeaders(t *testing.T) {
	t.Run("valid shop", func(t *testing.T) {
		cfg := testConfig
		cfg.CustomShopDomains = []string{"example.dev"}
		f := newAppFixture(cfg)

		rec := httptest.NewRecorder()
		f.app.AddDocumentResponseHeaders(rec, httptest.NewRequest(http.MethodGet, "/?shop="+testShop, nil))

		assert.Equal(t,
			"frame-ancestors https://shop-a.myshopify.com https://admin.shopify.com https://*.example.dev;",
			rec.Header().Get("Content-Security-Policy"))
		assert.Contains(t, rec.Header().Get("Link"), "app-bridge.js")
	})

	t.Run("invalid shop", func(t *testing.T) {
		f := newAppFixture(testConfig)

		rec := httptest.NewRecorder()
		f.app.AddDocumentResponseHeaders(rec, httptest.NewRequest(http.MethodGet, "/?shop=evil.example.com", nil))

		assert.Equal(t, "frame-ancestors 'none';", rec.Header().Get("Content-Security-Policy"))
	})
}

func TestLogin(t *testing.T) {
	t.Run("redirects and remembers state", func(t *testing.T) {
		f := newAppFixture(testConfig)

		rec := httptest.NewRecorder()
		f.app.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?shop=shop-a", nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, "bare shop names are rejected")

		rec = httptest.NewRecorder()
		f.app.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?shop="+testShop, nil))
		require.Equal(t, http.StatusFound, rec.Code)

		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, testShop, location.Host)
		nonce := location.Query().Get("state")
		require.Len(t, nonce, 32)

		shop, err := f.states.Consume(context.Background(), nonce)
		require.NoError(t, err)
		assert.Equal(t, testShop, shop)
	})

	t.Run("online grant", func(t *testing.T) {
		f := newAppFixture(testConfig)

		rec := httptest.NewRecorder()
		f.app.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/login?online=true&shop="+testShop, nil))
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Location"), "per-user")
	})

	t.Run("form post", func(t *testing.T) {
		f := newAppFixture(testConfig)

		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("shop="+testShop))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		f.app.Login(rec, req)
		assert.Equal(t, http.StatusFound, rec.Code)
	})
}

func TestCallbackOffline(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(testConfig)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.app.now = func() time.Time { return now }
	f.client.token = &ports.AccessTokenResponse{
		AccessToken:           "tok-123",
		Scope:                 "read_products",
		ExpiresIn:             3600,
		RefreshToken:          "refresh-1",
		RefreshTokenExpiresIn: 7200,
	}
	require.NoError(t, f.states.Save(ctx, "nonce", testShop, time.Minute))

	session, err := f.app.Callback(ctx, callbackURL(testShop, "code-1", "nonce"))
	require.NoError(t, err)

	assert.Equal(t, "offline_shop-a.myshopify.com", session.ID)
	assert.False(t, session.IsOnline)
	assert.Equal(t, "tok-123", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	require.NotNil(t, session.Expires)
	assert.Equal(t, now.Add(time.Hour), *session.Expires)
	require.NotNil(t, session.RefreshTokenExpires)
	assert.Equal(t, now.Add(2*time.Hour), *session.RefreshTokenExpires)
	assert.Nil(t, session.OnlineAccessInfo)

	stored := f.storage.LoadSession(ctx, session.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "tok-123", stored.AccessToken)
	assert.Equal(t, []string{testShop + ":code-1"}, f.client.exchanged)

	// App webhooks are subscribed for new offline sessions.
	require.Len(t, f.client.created, len(AppWebhookTopics))
	for i, w := range f.client.created {
		assert.Equal(t, AppWebhookTopics[i], w.Topic)
		assert.Equal(t, "https://app.example.com/webhooks", w.Address)
	}

	// The state is single use.
	_, err = f.app.Callback(ctx, callbackURL(testShop, "code-1", "nonce"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCallbackOnline(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(testConfig)
	f.client.token = &ports.AccessTokenResponse{
		AccessToken:         "tok-online",
		Scope:               "read_products",
		ExpiresIn:           86399,
		AssociatedUserScope: "read_products",
		AssociatedUser:      &domain.AssociatedUser{ID: 42, Email: "ada@example.com"},
	}
	require.NoError(t, f.states.Save(ctx, "nonce", testShop, time.Minute))

	session, err := f.app.Callback(ctx, callbackURL(testShop, "code-1", "nonce"))
	require.NoError(t, err)

	assert.Equal(t, "shop-a.myshopify.com_42", session.ID)
	assert.True(t, session.IsOnline)
	require.NotNil(t, session.OnlineAccessInfo)
	assert.Equal(t, int64(86399), session.OnlineAccessInfo.ExpiresIn)
	assert.Equal(t, "ada@example.com", session.OnlineAccessInfo.AssociatedUser.Email)
	assert.Empty(t, f.client.created, "webhooks are only registered for offline sessions")
}

func TestCallbackRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("bad hmac", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.client.validHMAC = false
		_, err := f.app.Callback(ctx, callbackURL(testShop, "code", "nonce"))
		assert.ErrorIs(t, err, domain.ErrInvalidHMAC)
	})

	t.Run("unknown state", func(t *testing.T) {
		f := newAppFixture(testConfig)
		_, err := f.app.Callback(ctx, callbackURL(testShop, "code", "nonce"))
		assert.ErrorIs(t, err, domain.ErrInvalidState)
		assert.Empty(t, f.client.exchanged)
	})

	t.Run("state issued for another shop", func(t *testing.T) {
		f := newAppFixture(testConfig)
		require.NoError(t, f.states.Save(ctx, "nonce", "shop-b.myshopify.com", time.Minute))
		_, err := f.app.Callback(ctx, callbackURL(testShop, "code", "nonce"))
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("invalid shop", func(t *testing.T) {
		f := newAppFixture(testConfig)
		_, err := f.app.Callback(ctx, callbackURL("evil.example.com", "code", "nonce"))
		assert.ErrorIs(t, err, domain.ErrInvalidShop)
	})

	t.Run("session not stored", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.client.token = &ports.AccessTokenResponse{AccessToken: "tok"}
		f.storage.failStore = true
		require.NoError(t, f.states.Save(ctx, "nonce", testShop, time.Minute))

		_, err := f.app.Callback(ctx, callbackURL(testShop, "code", "nonce"))
		assert.ErrorIs(t, err, domain.ErrStoreExecution)
	})
}

func TestRegisterWebhooksSkipsExisting(t *testing.T) {
	f := newAppFixture(testConfig)
	f.client.existing = []goshopify.Webhook{
		{Topic: domain.TopicAppUninstalled, Address: "https://app.example.com/webhooks"},
		{Topic: domain.TopicAppScopesUpdate, Address: "https://elsewhere.example.com/webhooks"},
	}

	err := f.app.RegisterWebhooks(context.Background(), &domain.Session{Shop: testShop, AccessToken: "tok"})
	require.NoError(t, err)
	require.Len(t, f.client.created, 1)
	assert.Equal(t, domain.TopicAppScopesUpdate, f.client.created[0].Topic)

	err = f.app.RegisterWebhooks(context.Background(), &domain.Session{Shop: testShop})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func sessionToken(t *testing.T, userID string) string {
	t.Helper()
	claims := shopifyinfra.SessionTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{testConfig.APIKey},
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		Dest: "https://" + testShop,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.APISecret))
	require.NoError(t, err)
	return token
}

func TestAuthenticateAdmin(t *testing.T) {
	ctx := context.Background()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	online := &domain.Session{
		ID: domain.OnlineSessionID(testShop, 42), Shop: testShop, IsOnline: true,
		Scope: "read_products", AccessToken: "tok-online", Expires: &future,
	}
	offline := &domain.Session{
		ID: domain.OfflineSessionID(testShop), Shop: testShop,
		Scope: "write_products", AccessToken: "tok-offline",
	}

	t.Run("online session from bearer token", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.storage.StoreSession(ctx, online)
		f.storage.StoreSession(ctx, offline)

		req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "42"))
		admin, err := f.app.Authenticate().Admin(req)
		require.NoError(t, err)
		assert.Equal(t, online.ID, admin.Session.ID)
		assert.NotNil(t, admin.Client)
	})

	t.Run("expired online session falls back to offline", func(t *testing.T) {
		f := newAppFixture(testConfig)
		expired := *online
		expired.Expires = &past
		f.storage.StoreSession(ctx, &expired)
		f.storage.StoreSession(ctx, offline)

		req := httptest.NewRequest(http.MethodGet, "/?id_token="+sessionToken(t, "42"), nil)
		admin, err := f.app.Authenticate().Admin(req)
		require.NoError(t, err)
		assert.Equal(t, offline.ID, admin.Session.ID)
	})

	t.Run("signed request uses offline session", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.storage.StoreSession(ctx, offline)

		admin, err := f.app.Authenticate().Admin(httptest.NewRequest(http.MethodGet, "/?hmac=x&shop="+testShop, nil))
		require.NoError(t, err)
		assert.Equal(t, offline.ID, admin.Session.ID)
	})

	t.Run("no session", func(t *testing.T) {
		f := newAppFixture(testConfig)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sessionToken(t, "42"))
		_, err := f.app.Authenticate().Admin(req)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("missing scopes", func(t *testing.T) {
		cfg := testConfig
		cfg.Scopes = []string{"write_orders"}
		f := newAppFixture(cfg)
		f.storage.StoreSession(ctx, offline)

		admin, err := f.app.Authenticate().Admin(httptest.NewRequest(http.MethodGet, "/?shop="+testShop, nil))
		assert.Nil(t, admin)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("unsigned request", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.client.validHMAC = false
		f.storage.StoreSession(ctx, offline)

		_, err := f.app.Authenticate().Admin(httptest.NewRequest(http.MethodGet, "/?shop="+testShop, nil))
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}

func TestAuthenticateWebhook(t *testing.T) {
	ctx := context.Background()
	offline := &domain.Session{ID: domain.OfflineSessionID(testShop), Shop: testShop, AccessToken: "tok"}

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"id":1}`))
		req.Header.Set("X-Shopify-Shop-Domain", testShop)
		req.Header.Set("X-Shopify-Topic", domain.TopicAppUninstalled)
		req.Header.Set("X-Shopify-Webhook-Id", "wh-1")
		req.Header.Set("X-Shopify-Api-Version", "2025-10")
		return req
	}

	t.Run("verified delivery", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.storage.StoreSession(ctx, offline)

		wh, err := f.app.Authenticate().Webhook(newRequest())
		require.NoError(t, err)
		assert.Equal(t, domain.TopicAppUninstalled, wh.Event.Topic)
		assert.Equal(t, testShop, wh.Event.Shop)
		assert.Equal(t, "wh-1", wh.Event.WebhookID)
		assert.Equal(t, "2025-10", wh.Event.APIVersion)
		assert.JSONEq(t, `{"id":1}`, string(wh.Event.Payload))
		require.NotNil(t, wh.Session)
		assert.Equal(t, offline.ID, wh.Session.ID)
	})

	t.Run("shop without session", func(t *testing.T) {
		f := newAppFixture(testConfig)
		wh, err := f.app.Authenticate().Webhook(newRequest())
		require.NoError(t, err)
		assert.Nil(t, wh.Session)
	})

	t.Run("bad hmac", func(t *testing.T) {
		f := newAppFixture(testConfig)
		f.client.validWebhook = false
		_, err := f.app.Authenticate().Webhook(newRequest())
		assert.ErrorIs(t, err, domain.ErrInvalidHMAC)
	})
}

func TestUnauthenticatedAdmin(t *testing.T) {
	ctx := context.Background()
	f := newAppFixture(testConfig)

	_, err := f.app.Unauthenticated().Admin(ctx, testShop)
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)

	f.storage.StoreSession(ctx, &domain.Session{ID: domain.OfflineSessionID(testShop), Shop: testShop, AccessToken: "tok"})
	admin, err := f.app.Unauthenticated().Admin(ctx, "https://"+testShop)
	require.NoError(t, err)
	assert.Equal(t, "tok", admin.Session.AccessToken)

	_, err = f.app.Unauthenticated().Admin(ctx, "evil.example.com")
	assert.ErrorIs(t, err, domain.ErrInvalidShop)
}
