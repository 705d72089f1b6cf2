package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per session under a directory. It is the
// local-storage-backed implementation.
type FileStore struct {
	dir  string
	mu   sync.Mutex
	subs subscribers
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path flattens the session id into a safe file name.
func (s *FileStore) path(sessionID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, sessionID)
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStore) Get(sessionID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID)
}

func (s *FileStore) load(sessionID string) (Preferences, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if os.IsNotExist(err) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("read prefs: %w", err)
	}
	p := DefaultPreferences()
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode prefs: %w", err)
	}
	return p, nil
}

func (s *FileStore) Update(sessionID string, patch Patch) error {
	s.mu.Lock()
	current, err := s.load(sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := patch.apply(current)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := os.WriteFile(s.path(sessionID), data, 0644); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("write prefs: %w", err)
	}
	s.mu.Unlock()

	s.subs.notify(sessionID, merged)
	return nil
}

func (s *FileStore) Subscribe(sessionID string, fn func(Preferences)) func() {
	return s.subs.add(sessionID, fn)
}
