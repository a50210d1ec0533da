package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// Denylist records revoked token ids until they expire.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Contains(ctx context.Context, jti string) (bool, error)
}

const denylistPrefix = "promptd:denylist:"

// RedisDenylist stores revoked jtis as expiring Redis keys.
type RedisDenylist struct {
	Client *redis.Client
}

// NewRedisDenylist connects to addr and pings it.
func NewRedisDenylist(ctx context.Context, addr, password string, db int) (*RedisDenylist, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &RedisDenylist{Client: c}, nil
}

// Add marks jti as revoked for ttl.
func (d *RedisDenylist) Add(ctx context.Context, jti string, ttl time.Duration) error {
	return d.Client.Set(ctx, denylistPrefix+jti, 1, ttl).Err()
}

// Contains reports whether jti has been revoked.
func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.Client.Exists(ctx, denylistPrefix+jti).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return n > 0, nil
}

// Close releases the underlying client.
func (d *RedisDenylist) Close() error { return d.Client.Close() }
