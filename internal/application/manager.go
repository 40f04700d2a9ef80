package application

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/infrastructure/metrics"
	"archie-shopify-session-store/internal/infrastructure/repository"
	shopifyinfra "archie-shopify-session-store/internal/infrastructure/shopify"
	"archie-shopify-session-store/internal/infrastructure/state"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
)

const (
	defaultAPIVersion     = "2025-10"
	defaultAuthPathPrefix = "/auth"
)

// Binding is the environment a request delivers to the Manager: named
// configuration values and an optional database handle.
type Binding struct {
	APIKey           string
	APISecret        string
	Scopes           string
	AppURL           string
	ShopCustomDomain string
	DB               ports.Database
}

func (b Binding) hasConfig() bool {
	return b.APIKey != "" || b.APISecret != "" || b.Scopes != "" || b.AppURL != "" || b.ShopCustomDomain != ""
}

// State is the Manager's initialization state
type State int

const (
	StateUninitialized State = iota
	StateConfiguring
	StateReady
)

func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// AppFactory builds the authorization service from the captured config
type AppFactory func(config domain.AppConfig, storage ports.SessionStorage) *ShopifyApp

// Manager owns the process-wide configuration snapshot, the shared database
// handle and the lazily built ShopifyApp. Config and database are captured
// from the first binding that carries them and never replaced; the app is
// built at most once.
type Manager struct {
	mu     sync.RWMutex
	config *domain.AppConfig
	db     ports.Database

	once sync.Once
	app  *ShopifyApp

	factory        AppFactory
	repo           ports.SessionRepository
	storage        *repository.SessionStorage
	states         ports.StateStore
	httpClient     *http.Client
	metrics        *metrics.StoreMetrics
	apiVersion     string
	authPathPrefix string
	logger         zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithAppFactory replaces how the ShopifyApp is built
func WithAppFactory(f AppFactory) Option {
	return func(m *Manager) { m.factory = f }
}

// WithSessionRepository stores sessions in repo instead of the SQL
// repository over the captured database handle
func WithSessionRepository(repo ports.SessionRepository) Option {
	return func(m *Manager) { m.repo = repo }
}

// WithStateStore sets where OAuth state nonces are kept
func WithStateStore(s ports.StateStore) Option {
	return func(m *Manager) { m.states = s }
}

// WithHTTPClient sets the client used for platform calls
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithMetrics instruments the default session repository
func WithMetrics(sm *metrics.StoreMetrics) Option {
	return func(m *Manager) { m.metrics = sm }
}

// WithAPIVersion sets the Admin API version
func WithAPIVersion(v string) Option {
	return func(m *Manager) {
		if v != "" {
			m.apiVersion = v
		}
	}
}

// WithAuthPathPrefix sets the path the login and callback routes live under
func WithAuthPathPrefix(p string) Option {
	return func(m *Manager) {
		if p != "" {
			m.authPathPrefix = "/" + strings.Trim(p, "/")
		}
	}
}

// NewManager creates an uninitialized manager
func NewManager(logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		apiVersion:     defaultAPIVersion,
		authPathPrefix: defaultAuthPathPrefix,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.repo == nil {
		m.repo = repository.NewSessionRepository(m, m.metrics, logger)
	}
	if m.states == nil {
		m.states = state.NewMemoryStateStore()
	}
	if m.factory == nil {
		m.factory = m.newApp
	}
	m.storage = repository.NewSessionStorage(m.repo, logger)
	return m
}

// Setup captures the binding's configuration and database handle if none
// has been captured yet. It is safe to call on every request.
func (m *Manager) Setup(b Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config == nil && b.hasConfig() {
		cfg := domain.AppConfig{
			APIKey:            b.APIKey,
			APISecret:         b.APISecret,
			Scopes:            splitList(b.Scopes),
			AppURL:            b.AppURL,
			CustomShopDomains: splitList(b.ShopCustomDomain),
			APIVersion:        m.apiVersion,
			AuthPathPrefix:    m.authPathPrefix,
		}
		m.config = &cfg
		m.logger.Info().
			Str("appUrl", cfg.AppURL).
			Strs("scopes", cfg.Scopes).
			Msg("Captured app configuration")
	}
	if m.db == nil && b.DB != nil {
		m.db = b.DB
		m.logger.Info().Msg("Captured session database")
	}
}

// Config returns the captured configuration snapshot
func (m *Manager) Config() (domain.AppConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return domain.AppConfig{}, false
	}
	return *m.config, true
}

// DB returns the captured database handle, or nil before one is captured
func (m *Manager) DB() ports.Database {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// State reports how far initialization has progressed. The manager is ready
// once a config has been captured and the app has been built; an app built
// before any Setup leaves it configuring.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.app != nil && m.config != nil:
		return StateReady
	case m.app != nil || m.config != nil || m.db != nil:
		return StateConfiguring
	default:
		return StateUninitialized
	}
}

// Ready reports whether State is StateReady
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// App returns the ShopifyApp, building it from the current snapshot on
// first use. Missing configuration values are left empty.
func (m *Manager) App() *ShopifyApp {
	m.once.Do(func() {
		cfg, ok := m.Config()
		if !ok {
			cfg = domain.AppConfig{APIVersion: m.apiVersion, AuthPathPrefix: m.authPathPrefix}
		}
		app := m.factory(cfg, m.storage)

		m.mu.Lock()
		m.app = app
		m.mu.Unlock()
		m.logger.Info().Msg("Shopify app initialized")
	})
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.app
}

// SessionStorage returns the boolean session storage
func (m *Manager) SessionStorage() ports.SessionStorage {
	return m.storage
}

// SessionRepository returns the error-returning session repository
func (m *Manager) SessionRepository() ports.SessionRepository {
	return m.repo
}

func (m *Manager) newApp(cfg domain.AppConfig, storage ports.SessionStorage) *ShopifyApp {
	client := shopifyinfra.NewClient(shopifyinfra.Options{
		APIKey:                cfg.APIKey,
		APISecret:             cfg.APISecret,
		Scopes:                cfg.Scopes,
		RedirectURL:           strings.TrimRight(cfg.AppURL, "/") + cfg.AuthPathPrefix + "/callback",
		APIVersion:            cfg.APIVersion,
		ExpiringOfflineTokens: true,
		HTTPClient:            m.httpClient,
		Logger:                m.logger,
	})
	return NewShopifyApp(cfg, client, storage, m.states, m.logger)
}

// AddDocumentResponseHeaders delegates to the app, building it if needed
func (m *Manager) AddDocumentResponseHeaders(w http.ResponseWriter, r *http.Request) {
	m.App().AddDocumentResponseHeaders(w, r)
}

// Login starts the OAuth flow for the shop named in the request
func (m *Manager) Login(w http.ResponseWriter, r *http.Request) {
	m.App().Login(w, r)
}

// Callback completes the OAuth flow and stores the resulting session
func (m *Manager) Callback(ctx context.Context, u *url.URL) (*domain.Session, error) {
	return m.App().Callback(ctx, u)
}

// Authenticate returns the app's authenticated access helpers
func (m *Manager) Authenticate() Authenticator {
	return m.App().Authenticate()
}

// Unauthenticated returns the app's offline-session access helpers
func (m *Manager) Unauthenticated() UnauthenticatedAccess {
	return m.App().Unauthenticated()
}

// RegisterWebhooks registers the configured webhooks for session's shop
func (m *Manager) RegisterWebhooks(ctx context.Context, session *domain.Session) error {
	return m.App().RegisterWebhooks(ctx, session)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
