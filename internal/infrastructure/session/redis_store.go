package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"archie-core-shopify-app/internal/domain"
	"archie-core-shopify-app/internal/ports"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	DefaultTTL = 24 * time.Hour

	sessionKeyPrefix = "shopify_app:session:"
	guardKeyPrefix   = "shopify_app:guard:"
)

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func guardKey(id string) string {
	return guardKeyPrefix + id
}

// RedisStore implements SessionStore on Redis. Every Save refreshes the TTL.
type RedisStore struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStore creates a new Redis-backed session store
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) ports.SessionStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, logger: logger}
}

// Load returns the stored session values, or empty values when none exist
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*domain.SessionData, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return &domain.SessionData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return decodeSession(raw)
}

// Save stores the session values
func (s *RedisStore) Save(ctx context.Context, sessionID string, data *domain.SessionData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Destroy removes the session values and the guard entry
func (s *RedisStore) Destroy(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID), guardKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to destroy session: %w", err)
	}
	return nil
}

func decodeSession(raw []byte) (*domain.SessionData, error) {
	var data domain.SessionData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &data, nil
}

// RedisGuard implements AuthGuard on Redis
type RedisGuard struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisGuard creates a new Redis-backed auth guard
func NewRedisGuard(rdb redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) ports.AuthGuard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, logger: logger}
}

// Login binds the session to the shop
func (g *RedisGuard) Login(ctx context.Context, sessionID string, shop *domain.Shop) error {
	if shop == nil {
		return domain.ErrShopNotFound
	}
	if err := g.rdb.Set(ctx, guardKey(sessionID), shop.Domain.String(), g.ttl).Err(); err != nil {
		return fmt.Errorf("failed to login shop: %w", err)
	}
	g.logger.Debug().Str("shop", shop.Domain.String()).Msg("Shop logged in")
	return nil
}

// Logout unbinds the session
func (g *RedisGuard) Logout(ctx context.Context, sessionID string) error {
	if err := g.rdb.Del(ctx, guardKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to logout shop: %w", err)
	}
	return nil
}

// Current returns the shop bound to the session, or ""
func (g *RedisGuard) Current(ctx context.Context, sessionID string) (domain.ShopDomain, error) {
	value, err := g.rdb.Get(ctx, guardKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read guard: %w", err)
	}
	return domain.ShopDomain(value), nil
}

// NewRedisClient connects to Redis from a redis:// URL and pings it
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
