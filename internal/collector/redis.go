package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/Be-Wagile-India/pypss/internal/model"
)

// RedisSink appends serialized traces to a Redis list (RPUSH semantics), one
// JSON document per entry. A consumer on the scoring side pops from the same
// key with LPOP/LRANGE.
type RedisSink struct {
	client *redis.Client
	key    string
}

// NewRedisSink connects to Redis at url (redis://...) and targets the given
// list key. The connection is verified with a PING so a misconfigured
// backend fails at collector construction, not at first flush.
func NewRedisSink(ctx context.Context, url, key string) (*RedisSink, error) {
	if key == "" {
		return nil, fmt.Errorf("collector: redis list key is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("collector: parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("collector: redis ping: %w", err)
	}
	return &RedisSink{client: client, key: key}, nil
}

// Write pushes the batch in a single pipelined round trip.
func (s *RedisSink) Write(ctx context.Context, batch []model.Trace) error {
	values := make([]interface{}, 0, len(batch))
	for _, t := range batch {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("collector: marshal trace: %w", err)
		}
		values = append(values, data)
	}

	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("collector: redis rpush: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
