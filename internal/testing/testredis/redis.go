package testredis

import (
	"context"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	sharedContainer *RedisContainer
	sharedErr       error
	sharedOnce      sync.Once
)

type RedisContainer struct {
	Container *tcredis.RedisContainer
	URL       string
}

// SetupSharedRedis starts one redis container per test binary, skipping the
// test when no container provider is reachable.
func SetupSharedRedis(t *testing.T) *RedisContainer {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	sharedOnce.Do(func() {
		ctx := context.Background()
		c, err := tcredis.Run(ctx, "redis:7-alpine")
		if err != nil {
			sharedErr = err
			return
		}
		url, err := c.ConnectionString(ctx)
		if err != nil {
			sharedErr = err
			return
		}
		sharedContainer = &RedisContainer{Container: c, URL: url}
	})

	require.NoError(t, sharedErr, "start redis container")
	return sharedContainer
}

// Connect returns a client on a flushed database, closed when the test ends.
func (rc *RedisContainer) Connect(t *testing.T) *redis.Client {
	t.Helper()

	opts, err := redis.ParseURL(rc.URL)
	require.NoError(t, err)

	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(context.Background()).Err())

	t.Cleanup(func() { _ = client.Close() })
	return client
}
