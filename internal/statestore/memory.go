package statestore

import (
	"context"
	"sync"
	"time"

	"github.com/ozwald-dev/ozwald/models"
)

// MemoryStore is an in-process Store for tests and single-node
// development. It honors the same compare-and-swap contract as the redis
// store but does not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.Instance
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.Instance)}
}

func (s *MemoryStore) List(ctx context.Context, realm string) ([]models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Instance
	for _, rec := range s.records {
		if rec.Identity.Realm == realm {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id models.Identity) (models.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id.Key()]
	if !ok {
		return models.Instance{}, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) Create(ctx context.Context, inst models.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inst.Identity.Key()
	if _, ok := s.records[key]; ok {
		return ErrConflict
	}
	if inst.LastTransition.IsZero() {
		inst.LastTransition = time.Now().UTC()
	}
	s.records[key] = clone(inst)
	return nil
}

func (s *MemoryStore) Transition(ctx context.Context, id models.Identity, expected models.InstanceState, apply func(*models.Instance)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id.Key()]
	if !ok {
		return ErrNotFound
	}
	if rec.State != expected {
		return ErrConflict
	}

	updated := clone(rec)
	apply(&updated)
	updated.LastTransition = time.Now().UTC()
	s.records[id.Key()] = updated
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id models.Identity, expected models.InstanceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id.Key()]
	if !ok {
		return ErrNotFound
	}
	if rec.State != expected {
		return ErrConflict
	}
	delete(s.records, id.Key())
	return nil
}

func (s *MemoryStore) PruneTerminal(ctx context.Context, retain time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retain)
	pruned := 0
	for key, rec := range s.records {
		if rec.State.Terminal() && rec.LastTransition.Before(cutoff) {
			delete(s.records, key)
			pruned++
		}
	}
	return pruned, nil
}

// clone deep-copies a record so callers never share the stored spec map.
func clone(rec models.Instance) models.Instance {
	out := rec
	if rec.Spec != nil {
		spec := *rec.Spec
		spec.Environment = make(map[string]string, len(rec.Spec.Environment))
		for k, v := range rec.Spec.Environment {
			spec.Environment[k] = v
		}
		spec.Lockers = append([]string(nil), rec.Spec.Lockers...)
		spec.Networks = append([]string(nil), rec.Spec.Networks...)
		spec.Portals = append([]models.Portal(nil), rec.Spec.Portals...)
		out.Spec = &spec
	}
	return out
}
