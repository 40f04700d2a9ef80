package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"archie-shopify-session-store/internal/domain"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "shopify:oauth:state:"

// RedisStateStore keeps OAuth state nonces in Redis so that login and
// callback may be served by different instances.
type RedisStateStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisStateStore connects to the Redis server at url
func NewRedisStateStore(ctx context.Context, url string) (*RedisStateStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStateStoreWithClient(client, defaultKeyPrefix), nil
}

// NewRedisStateStoreWithClient creates a store on a pre-configured client
func NewRedisStateStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStateStore {
	return &RedisStateStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Save records state for shop until ttl elapses. Reusing a live state fails.
func (s *RedisStateStore) Save(ctx context.Context, state string, shop string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+state, shop, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: state already issued", domain.ErrInvalidState)
	}
	return nil
}

// Consume returns the shop bound to state and deletes it atomically
func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	shop, err := s.client.GetDel(ctx, s.keyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return shop, nil
}

// Health checks Redis connectivity
func (s *RedisStateStore) Health(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the Redis client connection
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
