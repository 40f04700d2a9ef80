package repository

import (
	"context"
	"errors"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
)

// SessionStorage adapts a SessionRepository to the boolean contract the
// authorization service consumes. Every failure is logged and reported as
// false, nil or an empty slice so callers treat it as "no session".
type SessionStorage struct {
	repo   ports.SessionRepository
	logger zerolog.Logger
}

// NewSessionStorage creates a new session storage on top of repo
func NewSessionStorage(repo ports.SessionRepository, logger zerolog.Logger) *SessionStorage {
	return &SessionStorage{
		repo:   repo,
		logger: logger,
	}
}

// Repository returns the error-returning repository behind the storage, for
// callers that need to tell failures apart.
func (s *SessionStorage) Repository() ports.SessionRepository {
	return s.repo
}

// StoreSession upserts session by id
func (s *SessionStorage) StoreSession(ctx context.Context, session *domain.Session) bool {
	if err := s.repo.Store(ctx, session); err != nil {
		s.logFailure(err).Str("sessionId", sessionID(session)).Msg("Failed to store session")
		return false
	}
	return true
}

// LoadSession returns nil when the session is missing or cannot be read
func (s *SessionStorage) LoadSession(ctx context.Context, id string) *domain.Session {
	session, err := s.repo.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			s.logger.Debug().Str("sessionId", id).Msg("Session not found")
			return nil
		}
		s.logFailure(err).Str("sessionId", id).Msg("Failed to load session")
		return nil
	}
	return session
}

// DeleteSession reports true even when no row matched
func (s *SessionStorage) DeleteSession(ctx context.Context, id string) bool {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logFailure(err).Str("sessionId", id).Msg("Failed to delete session")
		return false
	}
	return true
}

// DeleteSessions is best-effort: it reports false only when the batch could
// not start, individual failures are logged and do not change the result.
func (s *SessionStorage) DeleteSessions(ctx context.Context, ids []string) bool {
	err := s.repo.DeleteMany(ctx, ids)
	if err == nil {
		return true
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		s.logFailure(err).Int("count", len(ids)).Msg("Failed to delete sessions")
		return false
	}
	s.logger.Warn().Err(err).Int("count", len(ids)).Msg("Some sessions could not be deleted")
	return true
}

// FindSessionsByShop returns an empty slice when nothing matches or the
// store cannot be read.
func (s *SessionStorage) FindSessionsByShop(ctx context.Context, shop string) []*domain.Session {
	sessions, err := s.repo.FindByShop(ctx, shop)
	if err != nil {
		s.logFailure(err).Str("shop", shop).Msg("Failed to find sessions by shop")
		return []*domain.Session{}
	}
	return sessions
}

func (s *SessionStorage) logFailure(err error) *zerolog.Event {
	event := s.logger.Error().Err(err)
	if errors.Is(err, domain.ErrStoreUnavailable) {
		event = event.Str("reason", "database not initialized")
	}
	return event
}

func sessionID(session *domain.Session) string {
	if session == nil {
		return ""
	}
	return session.ID
}
