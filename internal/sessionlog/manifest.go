package sessionlog

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/gofrs/flock"
)

// ManifestEntry is one session's row in the manifest file.
type ManifestEntry struct {
	ID        string    `json:"id"`
	Command   string    `json:"command"`
	LogFile   string    `json:"log_file"`
	StartedAt time.Time `json:"started_at"`
}

// Manifest is a cross-process index of currently-running sessions, kept
// as sessions.json inside a shared log_dir (SPEC_FULL.md §4.3) so
// external tooling can discover live session IDs and log file names
// without scraping the filesystem. Reads/writes are guarded by a file
// lock since more than one ptymcpd process may share one log_dir.
type Manifest struct {
	path string
	lock *flock.Flock
}

// NewManifest returns a Manifest backed by the sessions.json file at
// path. The file is created lazily on first Add.
func NewManifest(path string) *Manifest {
	return &Manifest{path: path, lock: flock.New(path + ".lock")}
}

// Add inserts or replaces the entry for id.
func (m *Manifest) Add(id, command string) error {
	return m.update(func(entries map[string]ManifestEntry) {
		entries[id] = ManifestEntry{
			ID:        id,
			Command:   command,
			LogFile:   PathFor("", command, id),
			StartedAt: time.Now().UTC(),
		}
	})
}

// Remove deletes the entry for id, if present.
func (m *Manifest) Remove(id string) error {
	return m.update(func(entries map[string]ManifestEntry) {
		delete(entries, id)
	})
}

// List returns every entry currently in the manifest, sorted by ID. It
// is the read side external tooling (including cmd/ptymcpd's own list
// subcommand) uses to discover live sessions sharing this log_dir
// without scraping the filesystem.
func (m *Manifest) List() ([]ManifestEntry, error) {
	if err := m.lock.Lock(); err != nil {
		return nil, err
	}
	defer m.lock.Unlock()

	entries, err := m.readLocked()
	if err != nil {
		return nil, err
	}
	out := make([]ManifestEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Clear empties the manifest.
func (m *Manifest) Clear() error {
	return m.update(func(entries map[string]ManifestEntry) {
		for id := range entries {
			delete(entries, id)
		}
	})
}

// update performs a locked read-modify-write of the manifest file.
func (m *Manifest) update(mutate func(map[string]ManifestEntry)) error {
	if err := m.lock.Lock(); err != nil {
		return err
	}
	defer m.lock.Unlock()

	entries, err := m.readLocked()
	if err != nil {
		return err
	}
	mutate(entries)
	return m.writeLocked(entries)
}

func (m *Manifest) readLocked() (map[string]ManifestEntry, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]ManifestEntry), nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return make(map[string]ManifestEntry), nil
	}
	var entries map[string]ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]ManifestEntry)
	}
	return entries, nil
}

func (m *Manifest) writeLocked(entries map[string]ManifestEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}
