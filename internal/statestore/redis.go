package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ozwald-dev/ozwald/models"
)

const keyPrefix = "ozwald:instances:"

// RedisStore is the production Store, one redis key per instance
// identity. Compare-and-swap transitions use WATCH/MULTI transactions on
// the single key, so concurrent writers collide instead of overwriting
// each other.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func instanceKey(id models.Identity) string {
	return keyPrefix + id.Key()
}

func (s *RedisStore) List(ctx context.Context, realm string) ([]models.Instance, error) {
	var out []models.Instance

	iter := s.client.Scan(ctx, 0, keyPrefix+realm+"/*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // pruned between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read instance %s: %w", iter.Val(), err)
		}
		var rec models.Instance
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("corrupt instance record %s: %w", iter.Val(), err)
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan instances: %w", err)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, id models.Identity) (models.Instance, error) {
	data, err := s.client.Get(ctx, instanceKey(id)).Bytes()
	if err == redis.Nil {
		return models.Instance{}, ErrNotFound
	}
	if err != nil {
		return models.Instance{}, fmt.Errorf("failed to read instance %s: %w", id, err)
	}

	var rec models.Instance
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Instance{}, fmt.Errorf("corrupt instance record %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Create(ctx context.Context, inst models.Instance) error {
	if inst.LastTransition.IsZero() {
		inst.LastTransition = time.Now().UTC()
	}
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to encode instance %s: %w", inst.Identity, err)
	}

	ok, err := s.client.SetNX(ctx, instanceKey(inst.Identity), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", inst.Identity, err)
	}
	if !ok {
		return ErrConflict
	}
	return nil
}

func (s *RedisStore) Transition(ctx context.Context, id models.Identity, expected models.InstanceState, apply func(*models.Instance)) error {
	key := instanceKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec models.Instance
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("corrupt instance record %s: %w", id, err)
		}
		if rec.State != expected {
			return ErrConflict
		}

		apply(&rec)
		rec.LastTransition = time.Now().UTC()

		updated, err := json.Marshal(rec)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		// The key changed under us between read and write.
		return ErrConflict
	}
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id models.Identity, expected models.InstanceState) error {
	key := instanceKey(id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var rec models.Instance
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("corrupt instance record %s: %w", id, err)
		}
		if rec.State != expected {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txn, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrConflict
	}
	return err
}

func (s *RedisStore) PruneTerminal(ctx context.Context, retain time.Duration) (int, error) {
	cutoff := time.Now().Add(-retain)
	pruned := 0

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return pruned, fmt.Errorf("failed to read instance %s: %w", iter.Val(), err)
		}
		var rec models.Instance
		if err := json.Unmarshal(data, &rec); err != nil {
			continue // don't let one corrupt record block pruning
		}
		if rec.State.Terminal() && rec.LastTransition.Before(cutoff) {
			if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
				return pruned, fmt.Errorf("failed to prune instance %s: %w", rec.Identity, err)
			}
			pruned++
		}
	}
	return pruned, iter.Err()
}
