package vault

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Artifact is a materialized secrets file scoped to a single activation
// attempt. Destroy overwrites the backing file before removing it and is
// safe to call more than once; the controller calls it on every exit
// path of the consuming operation.
type Artifact struct {
	path string
	once sync.Once
}

// Path returns the artifact file location handed to the runtime shim.
func (a *Artifact) Path() string { return a.path }

// Destroy wipes and removes the backing file. Idempotent.
func (a *Artifact) Destroy() error {
	var err error
	a.once.Do(func() {
		err = shred(a.path)
	})
	return err
}

func shred(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err == nil {
		zeros := make([]byte, info.Size())
		_, werr := f.WriteAt(zeros, 0)
		serr := f.Sync()
		cerr := f.Close()
		if werr != nil || serr != nil || cerr != nil {
			log.Printf("Warning: incomplete overwrite of artifact %s", path)
		}
	}
	return os.Remove(path)
}

// Materializer decrypts requested lockers and produces merged artifact
// files under its directory.
type Materializer struct {
	store BlobStore
	dir   string
}

// NewMaterializer creates the artifact directory (0700) if needed.
func NewMaterializer(store BlobStore, dir string) (*Materializer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &Materializer{store: store, dir: dir}, nil
}

// Materialize decrypts each named locker with its corresponding token
// and writes a single merged env-format artifact. All-or-nothing: any
// missing token, missing locker or failed decryption yields
// ErrTokenMismatch and no artifact.
//
// Lockers are merged in the order given; later lockers win on key
// collisions.
func (m *Materializer) Materialize(ctx context.Context, realm string, lockers []string, tokens map[string]string) (*Artifact, error) {
	merged := make(map[string]string)
	for _, locker := range lockers {
		token, ok := tokens[locker]
		if !ok || token == "" {
			return nil, ErrTokenMismatch
		}

		blob, err := m.store.GetSecret(ctx, realm, locker)
		if err != nil {
			return nil, err
		}

		plaintext, err := Open(blob, token)
		if err != nil {
			return nil, err
		}
		for k, v := range plaintext {
			merged[k] = v
		}
	}

	path := filepath.Join(m.dir, uuid.NewString()+".env")
	if err := writeEnvFile(path, merged); err != nil {
		return nil, fmt.Errorf("failed to write secrets artifact: %w", err)
	}
	return &Artifact{path: path}, nil
}

func writeEnvFile(path string, env map[string]string) error {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

// SweepArtifacts destroys every artifact in dir older than ttl. Run at
// startup: anything left over belongs to a crashed activation attempt
// and is removed unconditionally.
func SweepArtifacts(dir string, ttl time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read artifact dir: %w", err)
	}

	cutoff := time.Now().Add(-ttl)
	swept := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".env") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := shred(path); err != nil {
			log.Printf("Warning: failed to sweep artifact %s: %v", path, err)
			continue
		}
		swept++
	}
	return swept, nil
}
