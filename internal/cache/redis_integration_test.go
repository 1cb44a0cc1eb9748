//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestRedisClientIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	c, err := NewRedisClient(RedisConfig{Addr: uri[len("redis://"):], Prefix: "test:"})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "eq:1", []byte("omml"), time.Minute))
	got, err := c.Get(ctx, "eq:1")
	require.NoError(t, err)
	assert.Equal(t, []byte("omml"), got)

	require.NoError(t, c.DeleteByPrefix(ctx, "eq:"))
	_, err = c.Get(ctx, "eq:1")
	assert.ErrorIs(t, err, ErrCacheMiss)

	msgs, unsubscribe, err := c.Subscribe(ctx, "progress:b1")
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, c.Publish(ctx, "progress:b1", map[string]int{"percent": 50}))
	select {
	case msg := <-msgs:
		assert.JSONEq(t, `{"percent":50}`, string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}
