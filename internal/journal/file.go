package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per pool in Dir. Writes go through a temp
// file and a rename.
type FileStore struct {
	Dir string

	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

func (s *FileStore) path(poolID string) (string, error) {
	if poolID == "" || strings.ContainsAny(poolID, `/\`) || poolID == "." || poolID == ".." {
		return "", fmt.Errorf("invalid pool id %q", poolID)
	}
	return filepath.Join(s.Dir, poolID+".json"), nil
}

func (s *FileStore) Load(_ context.Context, poolID string) (Entry, bool, error) {
	path, err := s.path(poolID)
	if err != nil {
		return Entry{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return readEntry(path)
}

func (s *FileStore) Save(_ context.Context, entry Entry) error {
	path, err := s.path(entry.PoolID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename journal: %w", err)
	}
	return nil
}

// List returns all entries ordered by pool id.
func (s *FileStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := os.ReadDir(s.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal dir: %w", err)
	}

	var out []Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		entry, ok, err := readEntry(filepath.Join(s.Dir, f.Name()))
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out, nil
}

func readEntry(path string) (Entry, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("read journal: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("parse journal %s: %w", filepath.Base(path), err)
	}
	return entry, true, nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.Mutex
	data map[string]Entry
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{data: make(map[string]Entry)}
}

func (m *Memory) Load(_ context.Context, poolID string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[poolID]
	return e, ok, nil
}

func (m *Memory) Save(_ context.Context, entry Entry) error {
	if entry.PoolID == "" {
		return fmt.Errorf("pool id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[entry.PoolID] = entry
	return nil
}

func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.data))
	for _, e := range m.data {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out, nil
}
