// Package state persists the last-synced snapshot: the set of repository
// target paths patchwatch has pushed, with content fingerprints. The
// snapshot survives restarts so unchanged files are never re-sent.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Entry records one synced file.
type Entry struct {
	// TargetPath is the repository-relative path (data/... prefix).
	TargetPath string `yaml:"target"`
	// SourcePath is the local path the file was last synced from.
	SourcePath string `yaml:"source"`
	// Hash fingerprints the content that was pushed.
	Hash string `yaml:"hash"`
	// SyncedAt is when the entry was last dispatched successfully.
	SyncedAt time.Time `yaml:"synced_at"`
}

// Snapshot is the in-memory last-synced state, keyed by target path.
// The orchestrator is the only writer; reads from the status surface
// are guarded so they can happen concurrently.
type Snapshot struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty snapshot.
func New() *Snapshot {
	return &Snapshot{entries: make(map[string]Entry)}
}

// snapshotFile is the on-disk YAML layout. Entries are sorted by target
// path so the file round-trips byte-identically for the same state.
type snapshotFile struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads a snapshot from path. A missing file yields an empty
// snapshot; a malformed file is an error.
func Load(path string) (*Snapshot, error) {
	s := New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var f snapshotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse snapshot: %w", err)
	}
	for _, e := range f.Entries {
		if e.TargetPath == "" {
			continue
		}
		s.entries[e.TargetPath] = e
	}
	return s, nil
}

// Save writes the snapshot to path atomically (temp file + rename).
func (s *Snapshot) Save(path string) error {
	f := snapshotFile{Entries: s.Entries()}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Get returns the entry for a target path.
func (s *Snapshot) Get(target string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[target]
	return e, ok
}

// Has reports whether a target path has been synced.
func (s *Snapshot) Has(target string) bool {
	_, ok := s.Get(target)
	return ok
}

// Put stores or replaces an entry.
func (s *Snapshot) Put(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.TargetPath] = e
}

// Delete removes an entry.
func (s *Snapshot) Delete(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, target)
}

// Len returns the number of synced files.
func (s *Snapshot) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns all entries sorted by target path.
func (s *Snapshot) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TargetPath < out[j].TargetPath })
	return out
}

// Targets returns all synced target paths, sorted.
func (s *Snapshot) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.entries))
	for t := range s.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
