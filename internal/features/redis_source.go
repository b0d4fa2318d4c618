package features

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "feature_flags:"

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisSource reads runtime overrides from the hash feature_flags:{env}.
// Each field is a flag key and each value a JSON-encoded Patch.
type RedisSource struct {
	client hashReader
}

func NewRedisSource(client redis.Cmdable) *RedisSource {
	return &RedisSource{client: client}
}

func (s *RedisSource) Overrides(ctx context.Context, env string) (map[Key]Patch, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+env).Result()
	if err != nil {
		return nil, fmt.Errorf("read flag overrides: %w", err)
	}
	out := make(map[Key]Patch, len(fields))
	for field, value := range fields {
		var p Patch
		if err := json.Unmarshal([]byte(value), &p); err != nil {
			return nil, fmt.Errorf("decode override for %q: %w", field, err)
		}
		out[Key(field)] = p
	}
	return out, nil
}

// Publish stores a patch so every process sharing the hash picks it up on
// its next refresh.
func Publish(ctx context.Context, client redis.Cmdable, env string, key Key, p Patch) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	if err := client.HSet(ctx, redisKeyPrefix+env, string(key), raw).Err(); err != nil {
		return fmt.Errorf("publish override: %w", err)
	}
	return nil
}
