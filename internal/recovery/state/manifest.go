package state

import (
	"fmt"
	"os"
	"sync"

	"peaksandprofiles/internal/core"
)

const manifestVersion = 1

type manifestFile struct {
	Version int                           `json:"version"`
	Entries map[string]core.ManifestEntry `json:"entries"`
}

// Manifest is the completion manifest used by the manifest strategy. It maps
// instance keys to the digests recorded when they last completed.
//
// Every Put rewrites the file atomically, so a run interrupted part way keeps
// the records of the instances that finished. Safe for concurrent use.
type Manifest struct {
	mu      sync.Mutex
	path    string
	entries map[string]core.ManifestEntry
}

var _ core.ManifestStore = (*Manifest)(nil)

// LoadManifest reads the manifest of the store. A missing file yields an
// empty manifest.
func (s *Store) LoadManifest() (*Manifest, error) {
	m := &Manifest{path: s.ManifestPath(), entries: make(map[string]core.ManifestEntry)}
	var f manifestFile
	if err := readJSONStrict(m.path, &f); err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", m.path, err)
	}
	if f.Version != manifestVersion {
		return nil, fmt.Errorf("manifest %s: unsupported version %d", m.path, f.Version)
	}
	for k, e := range f.Entries {
		m.entries[k] = e
	}
	return m, nil
}

func (m *Manifest) Lookup(key string) (core.ManifestEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return e, ok
}

func (m *Manifest) Put(key string, entry core.ManifestEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, had := m.entries[key]
	m.entries[key] = entry
	if err := m.saveLocked(); err != nil {
		if had {
			m.entries[key] = prev
		} else {
			delete(m.entries, key)
		}
		return err
	}
	return nil
}

// Len returns the number of recorded instances.
func (m *Manifest) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manifest) saveLocked() error {
	// encoding/json writes map keys sorted, so the file is canonical.
	data, err := jsonMarshalStable(manifestFile{Version: manifestVersion, Entries: m.entries})
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomicDurable(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
