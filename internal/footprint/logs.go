package footprint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ozwald-dev/ozwald/models"
)

// LogStore retains the output of the most recent measurement run per
// (service, variety, profile) triple for later inspection. Like the
// footprint cache, a new run replaces the previous one.
type LogStore interface {
	// Replace stores the run's output lines, discarding any previous
	// run's lines for the same triple.
	Replace(ctx context.Context, key models.FootprintKey, lines []string) error

	// Lines returns the retained output, nil when nothing is retained
	// or retention has expired.
	Lines(ctx context.Context, key models.FootprintKey) ([]string, error)
}

func logKey(key models.FootprintKey) string {
	return fmt.Sprintf("ozwald:footprints:logs:%s/%s+%s", key.Service, key.Variety, key.Profile)
}

// RedisLogStore keeps run output in redis lists with a retention TTL,
// so logs survive controller restarts but never accumulate forever.
type RedisLogStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLogStore(client *redis.Client, ttl time.Duration) *RedisLogStore {
	return &RedisLogStore{client: client, ttl: ttl}
}

func (s *RedisLogStore) Replace(ctx context.Context, key models.FootprintKey, lines []string) error {
	k := logKey(key)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(lines) > 0 {
			args := make([]interface{}, len(lines))
			for i, line := range lines {
				args[i] = line
			}
			pipe.RPush(ctx, k, args...)
			pipe.Expire(ctx, k, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to retain measurement logs: %w", err)
	}
	return nil
}

func (s *RedisLogStore) Lines(ctx context.Context, key models.FootprintKey) ([]string, error) {
	lines, err := s.client.LRange(ctx, logKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read measurement logs: %w", err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return lines, nil
}

// MemoryLogStore is an in-memory LogStore used in tests and single-node
// deployments without redis.
type MemoryLogStore struct {
	mu   sync.Mutex
	runs map[string][]string
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{runs: make(map[string][]string)}
}

func (s *MemoryLogStore) Replace(ctx context.Context, key models.FootprintKey, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(lines) == 0 {
		delete(s.runs, logKey(key))
		return nil
	}
	s.runs[logKey(key)] = append([]string(nil), lines...)
	return nil
}

func (s *MemoryLogStore) Lines(ctx context.Context, key models.FootprintKey) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.runs[logKey(key)]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), lines...), nil
}
