package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-shopify-session-store/internal/domain"
	"archie-shopify-session-store/internal/infrastructure/metrics"
	"archie-shopify-session-store/internal/infrastructure/repository/entity"
	"archie-shopify-session-store/internal/ports"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const createIndexTimeout = 5 * time.Second

// MongoSessionRepository implements ports.SessionRepository using MongoDB.
// Documents use the same field names and encodings as the sessions table.
type MongoSessionRepository struct {
	collection *mongo.Collection
	metrics    *metrics.StoreMetrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewMongoSessionRepository creates a new MongoDB session repository and
// ensures its indexes exist
func NewMongoSessionRepository(db *mongo.Database, storeMetrics *metrics.StoreMetrics, logger zerolog.Logger) (*MongoSessionRepository, error) {
	r := &MongoSessionRepository{
		metrics: storeMetrics,
		logger:  logger,
		now:     time.Now,
	}
	if db == nil {
		return r, nil
	}
	r.collection = db.Collection("sessions")

	ctx, cancel := context.WithTimeout(context.Background(), createIndexTimeout)
	defer cancel()
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "shop", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session indexes: %w", err)
	}
	return r, nil
}

func (r *MongoSessionRepository) coll() (*mongo.Collection, error) {
	if r.collection == nil {
		return nil, domain.ErrStoreUnavailable
	}
	return r.collection, nil
}

// Store replaces the document with the same id, inserting it if missing
func (r *MongoSessionRepository) Store(ctx context.Context, session *domain.Session) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("store", start, err) }()

	if session == nil || session.ID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrStoreExecution)
	}
	coll, err := r.coll()
	if err != nil {
		return err
	}

	values := entity.SessionValues(session)
	doc := make(bson.D, 0, len(values))
	for i, col := range entity.SessionColumns {
		doc = append(doc, bson.E{Key: col, Value: values[i]})
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := coll.ReplaceOne(ctx, bson.M{"id": session.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to store session %s: %w: %w", session.ID, domain.ErrStoreExecution, err)
	}
	return nil
}

// Load retrieves a session by id
func (r *MongoSessionRepository) Load(ctx context.Context, id string) (session *domain.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("load", start, err) }()

	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	var doc bson.M
	err = coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}

	session, err = entity.SessionFromRow(ports.Row(doc), r.now())
	if err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}
	return session, nil
}

// Delete removes a session by id; a missing id is not an error
func (r *MongoSessionRepository) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("delete", start, err) }()

	coll, err := r.coll()
	if err != nil {
		return err
	}
	return r.delete(ctx, coll, id)
}

func (r *MongoSessionRepository) delete(ctx context.Context, coll *mongo.Collection, id string) error {
	if _, err := coll.DeleteOne(ctx, bson.M{"id": id}); err != nil {
		return fmt.Errorf("failed to delete session %s: %w: %w", id, domain.ErrStoreExecution, err)
	}
	return nil
}

// DeleteMany deletes each id in turn, continuing past individual failures
func (r *MongoSessionRepository) DeleteMany(ctx context.Context, ids []string) (err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("delete_many", start, err) }()

	coll, err := r.coll()
	if err != nil {
		return err
	}

	var errs []error
	for _, id := range ids {
		if err := r.delete(ctx, coll, id); err != nil {
			r.logger.Warn().Err(err).Str("sessionId", id).Msg("Failed to delete session in batch")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FindByShop retrieves all sessions for a shop
func (r *MongoSessionRepository) FindByShop(ctx context.Context, shop string) (sessions []*domain.Session, err error) {
	start := time.Now()
	defer func() { r.metrics.Observe("find_by_shop", start, err) }()

	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	cursor, err := coll.Find(ctx, bson.M{"shop": shop})
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions for shop %s: %w: %w", shop, domain.ErrStoreExecution, err)
	}
	defer cursor.Close(ctx)

	now := r.now()
	sessions = []*domain.Session{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w: %w", domain.ErrStoreExecution, err)
		}
		session, err := entity.SessionFromRow(ports.Row(doc), now)
		if err != nil {
			return nil, fmt.Errorf("failed to decode session: %w: %w", domain.ErrStoreExecution, err)
		}
		sessions = append(sessions, session)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w: %w", domain.ErrStoreExecution, err)
	}

	return sessions, nil
}
