package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedauth/internal/platform/config"
	"sharedauth/pkg/platform/sentinel"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNew_WithoutURLFallsBackToProcess(t *testing.T) {
	c, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestNew_RejectsMalformedURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "memcached://localhost"})
	assert.ErrorContains(t, err, "parse redis URL")
}

func TestOptions(t *testing.T) {
	ro, err := options(config.RedisConfig{
		URL:          "redis://localhost:6379/2",
		PoolSize:     20,
		MinIdleConns: 4,
		DialTimeout:  time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, ro.DB)
	assert.Equal(t, 20, ro.PoolSize)
	assert.Equal(t, 4, ro.MinIdleConns)
	assert.Equal(t, time.Second, ro.DialTimeout)
	assert.Equal(t, "shared-auth", ro.ClientName)

	ro, err = options(config.RedisConfig{URL: "redis://localhost:6379/0"})
	require.NoError(t, err)
	assert.Positive(t, ro.PoolSize, "library default kept")
}

func TestNew_UnreachableIsUnavailable(t *testing.T) {
	t.Run("cancelled while waiting to retry", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := New(ctx, config.RedisConfig{URL: "redis://127.0.0.1:1/0", ConnectAttempts: 3}, quiet())
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("refused after the last attempt", func(t *testing.T) {
		_, err := New(context.Background(), config.RedisConfig{
			URL:             "redis://127.0.0.1:1/0?max_retries=-1",
			DialTimeout:     100 * time.Millisecond,
			ConnectAttempts: 1,
		}, quiet())
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.ErrorContains(t, err, "after 1 attempts")
	})
}
