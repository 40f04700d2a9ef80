package ports

import (
	"context"
	"time"

	"archie-shopify-session-store/internal/domain"
)

// SessionRepository defines the interface for session persistence.
// Failures are distinguishable with errors.Is against domain.ErrSessionNotFound,
// domain.ErrStoreUnavailable and domain.ErrStoreExecution.
type SessionRepository interface {
	// Store inserts the session or replaces the one with the same id
	Store(ctx context.Context, session *domain.Session) error

	// Load retrieves a session by id
	Load(ctx context.Context, id string) (*domain.Session, error)

	// Delete removes a session by id; deleting a missing id is not an error
	Delete(ctx context.Context, id string) error

	// DeleteMany removes each id in turn
	DeleteMany(ctx context.Context, ids []string) error

	// FindByShop retrieves every session belonging to a shop
	FindByShop(ctx context.Context, shop string) ([]*domain.Session, error)
}

// SessionStorage is the boolean contract the authorization service consumes:
// every failure collapses into false, nil or an empty slice.
type SessionStorage interface {
	StoreSession(ctx context.Context, session *domain.Session) bool
	LoadSession(ctx context.Context, id string) *domain.Session
	DeleteSession(ctx context.Context, id string) bool
	DeleteSessions(ctx context.Context, ids []string) bool
	FindSessionsByShop(ctx context.Context, shop string) []*domain.Session
}

// StateStore keeps OAuth state nonces between login and callback.
type StateStore interface {
	// Save records state for shop until ttl elapses
	Save(ctx context.Context, state string, shop string, ttl time.Duration) error

	// Consume returns the shop the state was issued for and invalidates it.
	// Unknown or expired states return domain.ErrInvalidState.
	Consume(ctx context.Context, state string) (string, error)
}
