package application

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
)

type fakeShopifyClient struct {
	mu sync.Mutex

	validHMAC    bool
	validWebhook bool
	token        *ports.AccessTokenResponse
	tokenErr     error
	existing     []goshopify.Webhook

	exchanged []string
	created   []goshopify.Webhook
}

var _ ports.ShopifyClient = (*fakeShopifyClient)(nil)

func (c *fakeShopifyClient) AuthorizeURL(shop string, state string, online bool) (string, error) {
	q := url.Values{}
	q.Set("state", state)
	if online {
		q.Set("grant_options[]", "per-user")
	}
	return "https://" + shop + "/admin/oauth/authorize?" + q.Encode(), nil
}

func (c *fakeShopifyClient) VerifyAuthorizationURL(*url.URL) (bool, error) {
	return c.validHMAC, nil
}

func (c *fakeShopifyClient) VerifyWebhookRequest(*http.Request) bool {
	return c.validWebhook
}

func (c *fakeShopifyClient) ExchangeToken(_ context.Context, shop string, code string) (*ports.AccessTokenResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanged = append(c.exchanged, shop+":"+code)
	if c.tokenErr != nil {
		return nil, c.tokenErr
	}
	return c.token, nil
}

func (c *fakeShopifyClient) NewAdminClient(shop string, accessToken string) (*goshopify.Client, error) {
	return &goshopify.Client{}, nil
}

func (c *fakeShopifyClient) CreateWebhook(_ context.Context, _ string, _ string, topic string, address string) (*goshopify.Webhook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := goshopify.Webhook{Topic: topic, Address: address}
	c.created = append(c.created, w)
	return &w, nil
}

func (c *fakeShopifyClient) ListWebhooks(context.Context, string, string) ([]goshopify.Webhook, error) {
	return c.existing, nil
}

// fakeStorage keeps sessions in a map and can be told to fail writes
type fakeStorage struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	failStore bool
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{sessions: map[string]*domain.Session{}}
}

func (s *fakeStorage) StoreSession(_ context.Context, session *domain.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStore {
		return false
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return true
}

func (s *fakeStorage) LoadSession(_ context.Context, id string) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

func (s *fakeStorage) DeleteSession(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return true
}

func (s *fakeStorage) DeleteSessions(ctx context.Context, ids []string) bool {
	for _, id := range ids {
		s.DeleteSession(ctx, id)
	}
	return true
}

func (s *fakeStorage) FindSessionsByShop(_ context.Context, shop string) []*domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Session{}
	for _, session := range s.sessions {
		if session.Shop == shop {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out
}
