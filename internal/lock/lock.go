// Package lock guards the ledger against concurrent runs in separate
// processes. The ledger itself assumes a single writer.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrHeld indicates another process holds the lock.
var ErrHeld = errors.New("lock held by another run")

// ErrNotHeld indicates a release for a lock this process does not own.
var ErrNotHeld = errors.New("lock not held")

// DefaultTTL bounds how long a crashed holder blocks later runs.
const DefaultTTL = 6 * time.Hour

// Locker acquires an exclusive lease on a named resource.
type Locker interface {
	// Acquire takes the lock or returns ErrHeld. The returned release func
	// must be called once the resource is no longer in use.
	Acquire(ctx context.Context, name string) (release func(context.Context) error, err error)
}

// NopLocker always succeeds; it is used when no lock store is configured.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return func(context.Context) error { return nil }, nil
}

// store is the subset of *redis.Client the locker needs.
type store interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// releaseScript deletes the key only if it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

const keyPrefix = "clinaudit:lock:"

// RedisLocker implements Locker with SET NX PX and a compare-and-delete release.
type RedisLocker struct {
	client store
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisLocker connects to url and verifies the connection.
func NewRedisLocker(ctx context.Context, url string, ttl time.Duration, logger *slog.Logger) (*RedisLocker, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisLocker(client, ttl, logger), client.Close, nil
}

func newRedisLocker(client store, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLocker{client: client, ttl: ttl, logger: logger.With("component", "lock")}
}

// Acquire implements Locker.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	key := keyPrefix + name

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHeld, key)
	}
	l.logger.Info("lock acquired", "key", key, "ttl", l.ttl)

	release := func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrNotHeld, key)
		}
		l.logger.Info("lock released", "key", key)
		return nil
	}
	return release, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
