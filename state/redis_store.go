package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
)

// RedisStore is a Redis-backed implementation of Store. State lives as
// JSON blobs under a fixed set of keys; the service is single-session so
// no per-entity indexing is needed.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisStore creates a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg config.RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "forge3d"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger.With(zap.String("component", "redis_store")),
	}, nil
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) productKey() string {
	return s.keyPrefix + ":product:state"
}

func (s *RedisStore) statusKey() string {
	return s.keyPrefix + ":product:status"
}

func (s *RedisStore) packagingKey() string {
	return s.keyPrefix + ":packaging:state"
}

func (s *RedisStore) get(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		// A corrupt blob is treated as absent so the session can restart.
		s.logger.Warn("discarding corrupt state blob",
			zap.String("key", key),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// GetProduct retrieves the product state, defaulting to a fresh idle state.
func (s *RedisStore) GetProduct(ctx context.Context) (*ProductState, error) {
	var st ProductState
	found, err := s.get(ctx, s.productKey(), &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewProductState(), nil
	}
	return &st, nil
}

// SaveProduct persists the product state.
func (s *RedisStore) SaveProduct(ctx context.Context, st *ProductState) error {
	st.Touch()
	return s.set(ctx, s.productKey(), st)
}

// ClearProduct removes the product state.
func (s *RedisStore) ClearProduct(ctx context.Context) error {
	return s.client.Del(ctx, s.productKey()).Err()
}

// GetStatus retrieves the status projection, defaulting to idle.
func (s *RedisStore) GetStatus(ctx context.Context) (*ProductStatus, error) {
	var st ProductStatus
	found, err := s.get(ctx, s.statusKey(), &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewProductStatus(), nil
	}
	return &st, nil
}

// SaveStatus persists the status projection.
func (s *RedisStore) SaveStatus(ctx context.Context, st *ProductStatus) error {
	return s.set(ctx, s.statusKey(), st)
}

// ClearStatus removes the status projection.
func (s *RedisStore) ClearStatus(ctx context.Context) error {
	return s.client.Del(ctx, s.statusKey()).Err()
}

// GetPackaging retrieves the packaging state, defaulting to a box.
func (s *RedisStore) GetPackaging(ctx context.Context) (*PackagingState, error) {
	var st PackagingState
	found, err := s.get(ctx, s.packagingKey(), &st)
	if err != nil {
		return nil, err
	}
	if !found {
		return NewPackagingState(), nil
	}
	if st.PanelTextures == nil {
		st.PanelTextures = map[string]PanelTexture{}
	}
	return &st, nil
}

// SavePackaging persists the packaging state.
func (s *RedisStore) SavePackaging(ctx context.Context, st *PackagingState) error {
	st.UpdatedAt = time.Now().UTC()
	return s.set(ctx, s.packagingKey(), st)
}

// ClearPackaging removes the packaging state.
func (s *RedisStore) ClearPackaging(ctx context.Context) error {
	return s.client.Del(ctx, s.packagingKey()).Err()
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
