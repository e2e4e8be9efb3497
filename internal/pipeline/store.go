package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/eosc-synergy/sqaaas/logger"
)

// Store is the durable map from pipeline ID to Record, backed by a single
// JSON file. Every mutation serializes the full map and atomically replaces
// the file; a file lock guards against sibling processes sharing the state
// file.
type Store struct {
	path   string
	mtx    sync.Mutex
	flk    *flock.Flock
	logger logger.Logger
}

// NewStore returns a store persisting to the given file path.
func NewStore(l logger.Logger, path string) *Store {
	return &Store{
		path:   path,
		flk:    flock.New(path + ".lock"),
		logger: l.WithPrefix("store"),
	}
}

// LoadAll returns the whole pipeline map. A missing state file is an empty
// map, not an error.
func (s *Store) LoadAll() (map[string]*Record, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.load()
}

// Get returns the record for the given ID, or nil when absent.
func (s *Store) Get(id string) (*Record, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return records[id], nil
}

// Put inserts or replaces the record for the given ID.
func (s *Store) Put(id string, record *Record) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records[id] = record
	return s.save(records)
}

// Delete removes the record for the given ID. Deleting an absent ID is a
// no-op.
func (s *Store) Delete(id string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := records[id]; !ok {
		return nil
	}
	delete(records, id)
	return s.save(records)
}

// UpdateCI applies fn to the record under the store lock and persists the
// result. fn gets a nil record when the ID is absent.
func (s *Store) UpdateCI(id string, fn func(*Record) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(records[id]); err != nil {
		return err
	}
	return s.save(records)
}

func (s *Store) load() (map[string]*Record, error) {
	// Nothing written yet; the parent directory (and the lock file with
	// it) only appears on first write.
	if _, err := os.Stat(filepath.Dir(s.path)); os.IsNotExist(err) {
		return map[string]*Record{}, nil
	}

	if err := s.flk.Lock(); err != nil {
		return nil, fmt.Errorf("locking state file: %w", err)
	}
	defer s.flk.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]*Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	records := map[string]*Record{}
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing state file %s: %w", s.path, err)
	}
	return records, nil
}

func (s *Store) save(records map[string]*Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("serializing state: %w", err)
	}

	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("locking state file: %w", err)
	}
	defer s.flk.Unlock()

	// Write then rename so readers never observe a partial file.
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".sqaaas-state-*")
	if err != nil {
		return fmt.Errorf("creating scratch state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}

	s.logger.Debug("State file %s updated (%d pipelines)", s.path, len(records))
	return nil
}
