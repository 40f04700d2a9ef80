package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/infrastructure/metrics"
	"archie-shopify-session-store/internal/infrastructure/repository/entity"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
)

var (
	upsertSessionQuery        = buildUpsertQuery()
	selectSessionByIDQuery    = "SELECT * FROM sessions WHERE id = ?"
	selectSessionsByShopQuery = "SELECT * FROM sessions WHERE shop = ?"
	deleteSessionQuery        = "DELETE FROM sessions WHERE id = ?"
)

// buildUpsertQuery replaces every column of an existing row, which gives the
// same result as INSERT OR REPLACE while also running on PostgreSQL.
func buildUpsertQuery() string {
	quoted := make([]string, len(entity.SessionColumns))
	placeholders := make([]string, len(entity.SessionColumns))
	var updates []string
	for i, col := range entity.SessionColumns {
		quoted[i] = `"` + col + `"`
		placeholders[i] = "?"
		if col != "id" {
			updates = append(updates, fmt.Sprintf(`%s = excluded.%s`, quoted[i], quoted[i]))
		}
	}
	return fmt.Sprintf(
		"INSERT INTO sessions (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "),
	)
}

// SessionRepository implements ports.SessionRepository on top of the shared
// statement execution interface
type SessionRepository struct {
	provider ports.DatabaseProvider
	metrics  *metrics.StoreMetrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSessionRepository creates a new SQL session repository. The database
// handle is looked up from provider on every call.
func NewSessionRepository(provider ports.DatabaseProvider, storeMetrics *metrics.StoreMetrics, logger zerolog.Logger) *SessionRepository {
	return &SessionRepository{
		provider: provider,
		metrics:  storeMetrics,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *SessionRepository) db() (ports.Database, error) {
	if r.provider == nil {
		return nil, domain.ErrStoreUnavailable
	}
	db := r.provider.DB()
	if db == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return db, nil
}

// Store inserts the session or replaces every column of the row with the same id
func (r *SessionRepository) Store(ctx context.Context, session *domain.Session) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("store", start, err) }()

	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrStoreExecution)
	}
	db, err := r.db()
	if err != nil {
		return err
	}

	if _, err := db.Prepare(upsertSessionQuery).Bind(entity.SessionValues(session)...).Run(ctx); err != nil {
		return fmt.Errorf("failed to store session %s: %w: %w", session.ID, domain.ErrStoreExecution, err)
	}
	return nil
}

// Load retrieves a session by id
func (r *SessionRepository) Load(ctx context.Context, id string) (session *domain.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("load", start, err) }()

	db, err := r.db()
	if err != nil {
		return nil, err
	}

	row, err := db.Prepare(selectSessionByIDQuery).Bind(nullable(id)).First(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	session, err = entity.SessionFromRow(row, r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}
	return session, nil
}

// Delete removes the row with that id. Deleting a missing id succeeds.
func (r *SessionRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("delete", start, err) }()

	db, err := r.db()
	if err != nil {
		return err
	}
	return r.delete(ctx, db, id)
}

func (r *SessionRepository) delete(ctx context.Context, db ports.Database, id string) error {
	if _, err := db.Prepare(deleteSessionQuery).Bind(nullable(id)).Run(ctx); err != nil {
		return fmt.Errorf("failed to delete session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}
	return nil
}

// DeleteMany deletes each id sequentially. It only fails up front when no
// database is available; individual failures do not stop the batch and are
// returned joined once every id has been attempted.
func (r *SessionRepository) DeleteMany(ctx context.Context, ids []string) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("delete_many", start, err) }()

	db, err := r.db()
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		if err := r.delete(ctx, db, id); err != nil {
			r.logger.Warn().Err(err).Str("sessionId", id).Msg("Failed to delete session in batch")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FindByShop retrieves every session belonging to shop
func (r *SessionRepository) FindByShop(ctx context.Context, shop string) (sessions []*domain.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("find_by_shop", start, err) }()

	db, err := r.db()
	if err != nil {
		return nil, err
	}

	rows, err := db.Prepare(selectSessionsByShopQuery).Bind(nullable(shop)).All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions for shop %s: %w: %w", shop, domain.ErrStoreExecution, err)
	}

	now := r.now()
	sessions = make([]*domain.Session, 0, len(rows))
	for _, row := range rows {
		session, err := entity.SessionFromRow(row, now)
		if err != nil {
			return nil, fmt.Errorf("failed to decode session: %w: %w", domain.ErrStoreExecution, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
