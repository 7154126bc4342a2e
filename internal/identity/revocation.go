package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers token ids that must no longer authenticate.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Connect initializes a Redis client from a redis:// URL or host:port.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisRevocations keeps revoked token ids with a TTL matching the token.
type RedisRevocations struct {
	client *redis.Client
}

func NewRedisRevocations(client *redis.Client) *RedisRevocations {
	return &RedisRevocations{client: client}
}

func revocationKey(tokenID string) string {
	return "bidline:revoked:" + tokenID
}

func (s *RedisRevocations) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, revocationKey(tokenID), "1", ttl).Err()
}

func (s *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Ping checks the Redis connection.
func (s *RedisRevocations) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisRevocations) Close() error {
	return s.client.Close()
}

// MemoryRevocations is the single-process store used when no Redis URL is
// configured.
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{revoked: map[string]time.Time{}, now: time.Now}
}

func (s *MemoryRevocations) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[tokenID] = expiresAt
	now := s.now()
	for id, exp := range s.revoked {
		if !exp.IsZero() && exp.Before(now) {
			delete(s.revoked, id)
		}
	}
	return nil
}

func (s *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[tokenID]
	return ok, nil
}
