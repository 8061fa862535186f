package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"lms-session-manager/backend/internal/blacklist/domain"
)

// DefaultRedisPrefix is the key prefix used when NewRedisRepository is given none.
const DefaultRedisPrefix = "bl"

// RedisRepository stores entries as JSON under <prefix>:<fingerprint> with a
// TTL ending at the token's expiry, so Redis drops them on its own.
type RedisRepository struct {
	client redis.UniversalClient
	prefix string
	nowF   func() time.Time
}

// NewRedisRepository returns a blacklist repository backed by client.
func NewRedisRepository(client redis.UniversalClient, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisRepository{client: client, prefix: prefix, nowF: time.Now}
}

func (r *RedisRepository) key(fingerprint string) string {
	return r.prefix + ":" + fingerprint
}

// Put writes e with SET NX, so the first live entry wins. Entries whose
// token has already expired are not written.
func (r *RedisRepository) Put(ctx context.Context, e *domain.Entry) error {
	ttl := e.ExpiresAt.Sub(r.nowF())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.SetNX(ctx, r.key(e.Fingerprint), data, ttl).Err()
}

// Get returns the entry for fingerprint, or nil if not found.
func (r *RedisRepository) Get(ctx context.Context, fingerprint string) (*domain.Entry, error) {
	data, err := r.client.Get(ctx, r.key(fingerprint)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var e domain.Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
