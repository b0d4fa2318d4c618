package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sharedauth/pkg/platform/sentinel"
)

const rotationKeyPrefix = "refresh_rotation:"

type kvStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisRotationLedger shares rotations between replicas. Keys are
// refresh_rotation:{sha256(old refresh token)}.
type RedisRotationLedger struct {
	client kvStore
	ttl    time.Duration
}

func NewRedisRotationLedger(client redis.Cmdable, ttl time.Duration) *RedisRotationLedger {
	return newRedisRotationLedger(client, ttl)
}

func newRedisRotationLedger(client kvStore, ttl time.Duration) *RedisRotationLedger {
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}
	return &RedisRotationLedger{client: client, ttl: ttl}
}

func (l *RedisRotationLedger) Lookup(ctx context.Context, oldRefreshToken string) (*Rotation, error) {
	raw, err := l.client.Get(ctx, rotationKeyPrefix+ledgerKey(oldRefreshToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup rotation: %w: %w", classify(err), err)
	}
	var r Rotation
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode rotation: %w", err)
	}
	return &r, nil
}

func (l *RedisRotationLedger) Record(ctx context.Context, oldRefreshToken string, rotation Rotation) error {
	raw, err := json.Marshal(rotation)
	if err != nil {
		return fmt.Errorf("encode rotation: %w", err)
	}
	if err := l.client.Set(ctx, rotationKeyPrefix+ledgerKey(oldRefreshToken), raw, l.ttl).Err(); err != nil {
		return fmt.Errorf("record rotation: %w: %w", classify(err), err)
	}
	return nil
}

// classify maps a redis failure onto the dependency sentinels.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sentinel.ErrTimeout
	}
	return sentinel.ErrUnavailable
}
