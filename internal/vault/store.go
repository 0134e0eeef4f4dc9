package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// BlobStore persists sealed locker blobs. Blobs are opaque ciphertext;
// the store never sees tokens or plaintext.
type BlobStore interface {
	// SetSecret stores a sealed blob for the locker, replacing any
	// previous content.
	SetSecret(ctx context.Context, realm, locker string, blob []byte) error

	// GetSecret returns the sealed blob. A missing locker returns
	// ErrTokenMismatch: readers must not be able to tell absence from a
	// bad token.
	GetSecret(ctx context.Context, realm, locker string) ([]byte, error)
}

func lockerKey(realm, locker string) string {
	return fmt.Sprintf("vault:%s:%s", realm, locker)
}

// RedisBlobStore keeps sealed blobs in redis under vault:<realm>:<locker>.
type RedisBlobStore struct {
	client *redis.Client
}

// NewRedisBlobStore wraps an existing redis client.
func NewRedisBlobStore(client *redis.Client) *RedisBlobStore {
	return &RedisBlobStore{client: client}
}

func (s *RedisBlobStore) SetSecret(ctx context.Context, realm, locker string, blob []byte) error {
	if err := s.client.Set(ctx, lockerKey(realm, locker), blob, 0).Err(); err != nil {
		return fmt.Errorf("failed to store locker %s/%s: %w", realm, locker, err)
	}
	return nil
}

func (s *RedisBlobStore) GetSecret(ctx context.Context, realm, locker string) ([]byte, error) {
	blob, err := s.client.Get(ctx, lockerKey(realm, locker)).Bytes()
	if err == redis.Nil {
		return nil, ErrTokenMismatch
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read locker %s/%s: %w", realm, locker, err)
	}
	return blob, nil
}

// MemoryBlobStore is an in-process BlobStore for tests and single-node
// development.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) SetSecret(ctx context.Context, realm, locker string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[lockerKey(realm, locker)] = append([]byte(nil), blob...)
	return nil
}

func (s *MemoryBlobStore) GetSecret(ctx context.Context, realm, locker string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[lockerKey(realm, locker)]
	if !ok {
		return nil, ErrTokenMismatch
	}
	return append([]byte(nil), blob...), nil
}
