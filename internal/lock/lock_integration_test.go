//go:build integration

package lock

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

type RedisLockerSuite struct {
	suite.Suite
	container *tcredis.RedisContainer
	url       string
	client    *redis.Client
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	s.Require().NoError(err)
	s.container = container

	s.url, err = container.ConnectionString(ctx)
	s.Require().NoError(err)

	opts, err := redis.ParseURL(s.url)
	s.Require().NoError(err)
	s.client = redis.NewClient(opts)
}

func (s *RedisLockerSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(context.Background())
	}
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.client.FlushAll(context.Background()).Err())
}

func (s *RedisLockerSuite) TestExclusiveAcquire() {
	ctx := context.Background()
	l, closeFn, err := NewRedisLocker(ctx, s.url, time.Minute, nil)
	s.Require().NoError(err)
	defer closeFn()

	release, err := l.Acquire(ctx, "output/ledger.json")
	s.Require().NoError(err)

	_, err = l.Acquire(ctx, "output/ledger.json")
	s.ErrorIs(err, ErrHeld)

	s.Require().NoError(release(ctx))
	s.ErrorIs(release(ctx), ErrNotHeld)

	again, err := l.Acquire(ctx, "output/ledger.json")
	s.Require().NoError(err)
	s.NoError(again(ctx))
}

// TestExpiredLeaseIsNotReleasedByOldHolder verifies a crashed holder's lease
// expires and its late release leaves the new holder's lock in place.
func (s *RedisLockerSuite) TestExpiredLeaseIsNotReleasedByOldHolder() {
	ctx := context.Background()
	l, closeFn, err := NewRedisLocker(ctx, s.url, 200*time.Millisecond, nil)
	s.Require().NoError(err)
	defer closeFn()

	stale, err := l.Acquire(ctx, "ledger")
	s.Require().NoError(err)

	s.Eventually(func() bool {
		return s.client.Exists(ctx, keyPrefix+"ledger").Val() == 0
	}, 5*time.Second, 50*time.Millisecond)

	current, err := l.Acquire(ctx, "ledger")
	s.Require().NoError(err)

	s.ErrorIs(stale(ctx), ErrNotHeld)
	s.Equal(int64(1), s.client.Exists(ctx, keyPrefix+"ledger").Val())
	s.NoError(current(ctx))
}
