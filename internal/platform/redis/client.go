// Package redis connects the shared Redis used for feature flag overrides and
// the refresh rotation ledger, which lets several shared-auth replicas agree on
// which refresh token was exchanged for which.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"sharedauth/internal/platform/config"
	"sharedauth/pkg/platform/sentinel"
)

const connectBackoff = 250 * time.Millisecond

type Client struct {
	*redis.Client
	logger *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New connects to Redis. It returns nil, nil when no URL is configured; the
// service then keeps flag overrides and refresh rotations in process, which
// is only correct for a single replica.
//
// Replicas often start alongside Redis, so the startup ping is retried
// cfg.ConnectAttempts times with a growing pause. A final failure wraps
// sentinel.ErrUnavailable.
func New(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	ro, err := options(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Client: redis.NewClient(ro), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.connect(ctx, max(cfg.ConnectAttempts, 1)); err != nil {
		c.Close() //nolint:errcheck // best-effort cleanup on init failure
		return nil, err
	}
	return c, nil
}

func options(cfg config.RedisConfig) (*redis.Options, error) {
	ro, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		ro.PoolSize = cfg.PoolSize
	}
	ro.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		ro.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		ro.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		ro.WriteTimeout = cfg.WriteTimeout
	}
	ro.ClientName = "shared-auth"
	return ro, nil
}

func (c *Client) connect(ctx context.Context, attempts int) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = c.Ping(ctx).Err(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		c.logger.WarnContext(ctx, "redis not ready, retrying",
			"attempt", attempt,
			"of", attempts,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("redis ping: %w: %w", sentinel.ErrUnavailable, ctx.Err())
		case <-time.After(time.Duration(attempt) * connectBackoff):
		}
	}
	return fmt.Errorf("redis ping after %d attempts: %w: %w", attempts, sentinel.ErrUnavailable, err)
}

// Health pings Redis. A replica that lost Redis is still serving, but
// rotations are no longer shared, so the check fails rather than degrades.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

// Name returns the check name for health reporting.
func (c *Client) Name() string {
	return "redis"
}
