package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/planpage/server/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("connects to running server", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := NewRedisClient(&config.RedisConfig{Address: mr.Addr()})
		require.NoError(t, err)
		defer Close(client)

		require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
		assert.True(t, mr.Exists("k"))
	})

	t.Run("fails when server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		client, err := NewRedisClient(&config.RedisConfig{Address: addr})
		assert.Error(t, err)
		assert.Nil(t, client)
	})
}
