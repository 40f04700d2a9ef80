package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"archie-shopify-session-store/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const sessionsNamespace = "test.sessions"

var mongoCommandError = mtest.CommandError{Code: 8, Name: "UnknownError", Message: "boom"}

func newMockMongoRepository(mt *mtest.T) *MongoSessionRepository {
	mt.AddMockResponses(mtest.CreateSuccessResponse())
	repo, err := NewMongoSessionRepository(mt.DB, nil, zerolog.Nop())
	require.NoError(mt, err)
	mt.ClearEvents()
	return repo
}

func TestMongoSessionRepository(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("store replaces the document by id", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := repo.Store(context.Background(), &domain.Session{
			ID:          "s1",
			Shop:        "shop-a.example",
			AccessToken: "tok-456",
		})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)

		update := started.Command.Lookup("updates").Array().Index(0).Value().Document()
		assert.True(mt, update.Lookup("upsert").Boolean())
		assert.Equal(mt, "s1", update.Lookup("q", "id").StringValue())

		replacement := update.Lookup("u").Document()
		assert.Equal(mt, "tok-456", replacement.Lookup("accessToken").StringValue())
		assert.Equal(mt, bsontype.Null, replacement.Lookup("scope").Type, "every column is written, empty ones as null")
		assert.Equal(mt, bsontype.Null, replacement.Lookup("userId").Type)
		elems, err := replacement.Elements()
		require.NoError(mt, err)
		assert.Len(mt, elems, 17)
	})

	mt.Run("store requires an id", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		assert.ErrorIs(mt, repo.Store(context.Background(), &domain.Session{Shop: "shop-a.example"}), domain.ErrStoreExecution)
	})

	mt.Run("load decodes driver types", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		now := time.UnixMilli(1_700_000_000_000)
		repo.now = func() time.Time { return now }

		mt.AddMockResponses(mtest.CreateCursorResponse(0, sessionsNamespace, mtest.FirstBatch, bson.D{
			{Key: "id", Value: "shop-a.myshopify.com_7"},
			{Key: "shop", Value: "shop-a.myshopify.com"},
			{Key: "state", Value: nil},
			{Key: "isOnline", Value: int32(1)},
			{Key: "scope", Value: "read_products"},
			{Key: "accessToken", Value: "tok"},
			{Key: "expires", Value: int64(1_700_000_120_000)},
			{Key: "userId", Value: int64(7)},
			{Key: "firstName", Value: "Ada"},
			{Key: "email", Value: nil},
			{Key: "accountOwner", Value: int32(1)},
			{Key: "collaborator", Value: int32(0)},
			{Key: "emailVerified", Value: int32(1)},
			{Key: "refreshTokenExpires", Value: nil},
		}))

		session, err := repo.Load(context.Background(), "shop-a.myshopify.com_7")
		require.NoError(mt, err)
		assert.True(mt, session.IsOnline)
		assert.Empty(mt, session.State)
		require.NotNil(mt, session.Expires)
		assert.Equal(mt, int64(1_700_000_120_000), session.Expires.UnixMilli())
		assert.Nil(mt, session.RefreshTokenExpires)

		require.NotNil(mt, session.OnlineAccessInfo)
		assert.Equal(mt, int64(120), session.OnlineAccessInfo.ExpiresIn)
		user := session.OnlineAccessInfo.AssociatedUser
		assert.Equal(mt, int64(7), user.ID)
		assert.Equal(mt, "Ada", user.FirstName)
		assert.Empty(mt, user.Email)
		assert.True(mt, user.AccountOwner)
		assert.False(mt, user.Collaborator)
		assert.True(mt, user.EmailVerified)
	})

	mt.Run("load missing session", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, sessionsNamespace, mtest.FirstBatch))

		_, err := repo.Load(context.Background(), "missing")
		assert.ErrorIs(mt, err, domain.ErrSessionNotFound)
		assert.NotErrorIs(mt, err, domain.ErrStoreExecution)
	})

	mt.Run("load failure", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mongoCommandError))

		_, err := repo.Load(context.Background(), "s1")
		assert.ErrorIs(mt, err, domain.ErrStoreExecution)
	})

	mt.Run("delete of a missing id succeeds", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		assert.NoError(mt, repo.Delete(context.Background(), "missing"))
	})

	mt.Run("delete many attempts every id", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(
			mtest.CreateCommandErrorResponse(mongoCommandError),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateCommandErrorResponse(mongoCommandError),
		)

		err := repo.DeleteMany(context.Background(), []string{"a", "b", "c"})
		assert.ErrorIs(mt, err, domain.ErrStoreExecution)
		var joined interface{ Unwrap() []error }
		require.True(mt, errors.As(err, &joined))
		assert.Len(mt, joined.Unwrap(), 2)
	})

	mt.Run("find by shop", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, sessionsNamespace, mtest.FirstBatch,
			bson.D{{Key: "id", Value: "offline_shop-a.example"}, {Key: "shop", Value: "shop-a.example"}, {Key: "isOnline", Value: int32(0)}},
			bson.D{{Key: "id", Value: "shop-a.example_1"}, {Key: "shop", Value: "shop-a.example"}, {Key: "isOnline", Value: int32(1)}, {Key: "userId", Value: int32(1)}},
		))

		sessions, err := repo.FindByShop(context.Background(), "shop-a.example")
		require.NoError(mt, err)
		require.Len(mt, sessions, 2)
		assert.Nil(mt, sessions[0].OnlineAccessInfo)
		require.NotNil(mt, sessions[1].OnlineAccessInfo)
		assert.Equal(mt, int64(1), sessions[1].OnlineAccessInfo.AssociatedUser.ID)
	})

	mt.Run("find by shop without matches", func(mt *mtest.T) {
		repo := newMockMongoRepository(mt)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, sessionsNamespace, mtest.FirstBatch))

		sessions, err := repo.FindByShop(context.Background(), "shop-c.example")
		require.NoError(mt, err)
		assert.NotNil(mt, sessions)
		assert.Empty(mt, sessions)
	})
}

func TestMongoSessionRepositoryUnavailable(t *testing.T) {
	ctx := context.Background()
	repo, err := NewMongoSessionRepository(nil, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Store(ctx, &domain.Session{ID: "s1"}), domain.ErrStoreUnavailable)
	_, err = repo.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, repo.Delete(ctx, "s1"), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, repo.DeleteMany(ctx, []string{"s1"}), domain.ErrStoreUnavailable)
	_, err = repo.FindByShop(ctx, "shop-a.example")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}
