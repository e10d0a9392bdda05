package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cskovec22/test-sarafan/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	linesTTL  = 15 * time.Minute
	maxJitter = 5 * time.Minute

	// must outlive any lines entry written under it
	versionTTL = time.Hour
)

// RedisCache stores each owner's lines as JSON next to a version counter.
// Both keys share a hash tag so they land on the same cluster slot.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, owner string) ([]domain.CartLine, error) {
	data, err := r.client.Get(ctx, linesKey(owner)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("read cart lines for %s: %w", owner, err)
	}

	var lines []domain.CartLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("decode cart lines for %s: %w", owner, err)
	}
	return lines, nil
}

// Version returns 0 for an owner that was never invalidated.
func (r *RedisCache) Version(ctx context.Context, owner string) (int64, error) {
	return readVersion(ctx, r.client, owner)
}

// Set stores lines only if the owner's version still equals version. The
// check and the write run under WATCH, so an Invalidate landing in between
// aborts the write with ErrStale.
func (r *RedisCache) Set(ctx context.Context, owner string, version int64, lines []domain.CartLine) error {
	if lines == nil {
		lines = []domain.CartLine{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("encode cart lines for %s: %w", owner, err)
	}

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, owner)
		if err != nil {
			return err
		}
		if current != version {
			return ErrStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, linesKey(owner), data, expiry())
			return nil
		})
		return err
	}, versionKey(owner))

	switch {
	case errors.Is(err, ErrStale), errors.Is(err, redis.TxFailedErr):
		return ErrStale
	case err != nil:
		return fmt.Errorf("store cart lines for %s: %w", owner, err)
	}
	return nil
}

// Invalidate bumps the owner's version and drops the cached lines in one
// MULTI block.
func (r *RedisCache) Invalidate(ctx context.Context, owner string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, versionKey(owner))
		pipe.Expire(ctx, versionKey(owner), versionTTL)
		pipe.Del(ctx, linesKey(owner))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate cart lines for %s: %w", owner, err)
	}
	return nil
}

// Ping is used by the health checker.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, c getter, owner string) (int64, error) {
	v, err := c.Get(ctx, versionKey(owner)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cart version for %s: %w", owner, err)
	}
	return v, nil
}

// expiry spreads entries written together over a few minutes.
func expiry() time.Duration {
	return linesTTL + time.Duration(rand.Int63n(int64(maxJitter)))
}

func linesKey(owner string) string {
	return fmt.Sprintf("cart:{%s}:lines", owner)
}

func versionKey(owner string) string {
	return fmt.Sprintf("cart:{%s}:version", owner)
}
