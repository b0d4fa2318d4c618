package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedauth/internal/auth/models"
)

type countingResolver struct {
	calls int
	roles []string
	err   error
}

func (c *countingResolver) Resolve(context.Context, Subject, models.AppType) ([]string, error) {
	c.calls++
	return c.roles, c.err
}

func TestCachedResolver(t *testing.T) {
	ctx := context.Background()
	subject := Subject{ID: "u1", Email: "u1@example.com"}

	t.Run("serves repeats from cache until ttl", func(t *testing.T) {
		next := &countingResolver{roles: []string{"user"}}
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cached := NewCachedResolver(next, time.Minute)
		cached.now = func() time.Time { return now }

		for range 3 {
			roles, err := cached.Resolve(ctx, subject, models.AppFrontend)
			require.NoError(t, err)
			assert.Equal(t, []string{"user"}, roles)
		}
		assert.Equal(t, 1, next.calls)

		now = now.Add(time.Minute)
		_, err := cached.Resolve(ctx, subject, models.AppFrontend)
		require.NoError(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("keys by app", func(t *testing.T) {
		next := &countingResolver{roles: []string{"user"}}
		cached := NewCachedResolver(next, time.Minute)

		_, _ = cached.Resolve(ctx, subject, models.AppFrontend)
		_, _ = cached.Resolve(ctx, subject, models.AppAdmin)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("invalidate drops every app", func(t *testing.T) {
		next := &countingResolver{roles: []string{"user"}}
		cached := NewCachedResolver(next, time.Minute)

		_, _ = cached.Resolve(ctx, subject, models.AppFrontend)
		cached.Invalidate("u1")
		_, _ = cached.Resolve(ctx, subject, models.AppFrontend)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("errors are not cached", func(t *testing.T) {
		next := &countingResolver{err: errors.New("boom")}
		cached := NewCachedResolver(next, time.Minute)

		_, err := cached.Resolve(ctx, subject, models.AppFrontend)
		assert.Error(t, err)
		_, err = cached.Resolve(ctx, subject, models.AppFrontend)
		assert.Error(t, err)
		assert.Equal(t, 2, next.calls)
	})

	t.Run("callers cannot mutate cached roles", func(t *testing.T) {
		next := &countingResolver{roles: []string{"user"}}
		cached := NewCachedResolver(next, time.Minute)

		_, _ = cached.Resolve(ctx, subject, models.AppFrontend)
		roles, _ := cached.Resolve(ctx, subject, models.AppFrontend)
		roles[0] = "admin"
		again, _ := cached.Resolve(ctx, subject, models.AppFrontend)
		assert.Equal(t, []string{"user"}, again)
	})
}
