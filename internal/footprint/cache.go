// Package footprint measures and records the resource cost of resolved
// launch specs, and checks admission of new instances against host
// capacity. Footprinting is an explicit operator step: the controller
// never starts a service whose footprint was not recorded first.
package footprint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ozwald-dev/ozwald/models"
)

// ErrNotRecorded is returned by Lookup when no estimate exists for the
// (service, variety, profile) triple.
var ErrNotRecorded = errors.New("no footprint recorded")

// record is one entry of the footprint data file.
type record struct {
	models.FootprintKey `yaml:",inline"`
	Footprint           models.Footprint `yaml:"footprint"`
}

// Cache persists footprint estimates to a YAML file. Records survive
// restarts and are only ever replaced by an explicit re-estimate; the
// file is rewritten atomically and kept sorted for stable diffs.
type Cache struct {
	mu   sync.Mutex
	path string
}

// NewCache uses the YAML file at path, which need not exist yet.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Lookup returns the recorded estimate for the triple, or ErrNotRecorded.
func (c *Cache) Lookup(key models.FootprintKey) (models.Footprint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return models.Footprint{}, err
	}
	for _, rec := range records {
		if rec.FootprintKey == key {
			return rec.Footprint, nil
		}
	}
	return models.Footprint{}, fmt.Errorf("%w for %s/%s/%s", ErrNotRecorded, key.Service, key.Variety, key.Profile)
}

// Record stores an estimate, replacing any previous one for the same
// triple. Repeated calls overwrite, never accumulate.
func (c *Cache) Record(key models.FootprintKey, fp models.Footprint) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	records, err := c.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].FootprintKey == key {
			records[i].Footprint = fp
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, record{FootprintKey: key, Footprint: fp})
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].FootprintKey, records[j].FootprintKey
		if a.Service != b.Service {
			return a.Service < b.Service
		}
		if a.Variety != b.Variety {
			return a.Variety < b.Variety
		}
		return a.Profile < b.Profile
	})

	return c.write(records)
}

func (c *Cache) load() ([]record, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read footprint data: %w", err)
	}

	var records []record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse footprint data: %w", err)
	}
	return records, nil
}

func (c *Cache) write(records []record) error {
	data, err := yaml.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode footprint data: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create footprint data dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write footprint data: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace footprint data: %w", err)
	}
	return nil
}
