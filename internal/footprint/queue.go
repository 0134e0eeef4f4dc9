package footprint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ozwald-dev/ozwald/models"
)

var (
	// ErrCollision is returned when a concurrent writer modified the
	// request list between read and write.
	ErrCollision = errors.New("concurrent modification of footprint requests")

	// ErrRequestNotFound is returned when a request id is not in the queue.
	ErrRequestNotFound = errors.New("footprint request not found")
)

// Queue holds pending footprint measurement requests. Requests are
// enqueued through the API and drained by the provisioner whenever the
// system is unloaded.
type Queue interface {
	// List returns all queued requests in enqueue order.
	List(ctx context.Context) ([]models.FootprintRequest, error)

	// Enqueue appends a request to the queue.
	Enqueue(ctx context.Context, req models.FootprintRequest) error

	// Update replaces the queued request with the same ID.
	Update(ctx context.Context, req models.FootprintRequest) error

	// Remove deletes the request with the given ID, if present.
	Remove(ctx context.Context, id string) error
}

const requestsKey = "ozwald:footprints:requests"

// RedisQueue stores the request list as a single JSON value and uses
// optimistic transactions to serialize writers.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) List(ctx context.Context) ([]models.FootprintRequest, error) {
	data, err := q.client.Get(ctx, requestsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read footprint requests: %w", err)
	}

	var reqs []models.FootprintRequest
	if err := json.Unmarshal(data, &reqs); err != nil {
		return nil, fmt.Errorf("corrupt footprint request list: %w", err)
	}
	return reqs, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, req models.FootprintRequest) error {
	return q.mutate(ctx, func(reqs []models.FootprintRequest) ([]models.FootprintRequest, error) {
		return append(reqs, req), nil
	})
}

func (q *RedisQueue) Update(ctx context.Context, req models.FootprintRequest) error {
	return q.mutate(ctx, func(reqs []models.FootprintRequest) ([]models.FootprintRequest, error) {
		for i := range reqs {
			if reqs[i].ID == req.ID {
				reqs[i] = req
				return reqs, nil
			}
		}
		return nil, ErrRequestNotFound
	})
}

func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	return q.mutate(ctx, func(reqs []models.FootprintRequest) ([]models.FootprintRequest, error) {
		for i := range reqs {
			if reqs[i].ID == id {
				return append(reqs[:i], reqs[i+1:]...), nil
			}
		}
		return reqs, nil
	})
}

// mutate applies fn to the current request list inside a WATCH
// transaction so concurrent writers fail with ErrCollision instead of
// losing updates.
func (q *RedisQueue) mutate(ctx context.Context, fn func([]models.FootprintRequest) ([]models.FootprintRequest, error)) error {
	err := q.client.Watch(ctx, func(tx *redis.Tx) error {
		var reqs []models.FootprintRequest
		data, err := tx.Get(ctx, requestsKey).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to read footprint requests: %w", err)
		}
		if err == nil {
			if err := json.Unmarshal(data, &reqs); err != nil {
				return fmt.Errorf("corrupt footprint request list: %w", err)
			}
		}

		updated, err := fn(reqs)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(updated)
		if err != nil {
			return fmt.Errorf("failed to encode footprint requests: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, requestsKey, payload, 0)
			return nil
		})
		return err
	}, requestsKey)

	if errors.Is(err, redis.TxFailedErr) {
		return ErrCollision
	}
	return err
}

// MemoryQueue is an in-memory Queue used in tests and single-node
// deployments without redis.
type MemoryQueue struct {
	mu   sync.Mutex
	reqs []models.FootprintRequest
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) List(ctx context.Context) ([]models.FootprintRequest, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.FootprintRequest, len(q.reqs))
	copy(out, q.reqs)
	return out, nil
}

func (q *MemoryQueue) Enqueue(ctx context.Context, req models.FootprintRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

func (q *MemoryQueue) Update(ctx context.Context, req models.FootprintRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.reqs {
		if q.reqs[i].ID == req.ID {
			q.reqs[i] = req
			return nil
		}
	}
	return ErrRequestNotFound
}

func (q *MemoryQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.reqs {
		if q.reqs[i].ID == id {
			q.reqs = append(q.reqs[:i], q.reqs[i+1:]...)
			return nil
		}
	}
	return nil
}
