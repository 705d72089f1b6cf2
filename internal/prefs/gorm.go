package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/castlemill/convertd/internal/db"
)

// DBStore persists preferences in the service database. It is the
// remote-backed implementation.
type DBStore struct {
	g    *gorm.DB
	mu   sync.Mutex
	subs subscribers
}

func NewDBStore(g *gorm.DB) *DBStore {
	return &DBStore{g: g}
}

func (s *DBStore) Get(sessionID string) (Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID)
}

func (s *DBStore) load(sessionID string) (Preferences, error) {
	var row db.Preference
	err := s.g.First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return Preferences{}, fmt.Errorf("load prefs: %w", err)
	}
	p := DefaultPreferences()
	if err := json.Unmarshal([]byte(row.Payload), &p); err != nil {
		return Preferences{}, fmt.Errorf("decode prefs: %w", err)
	}
	return p, nil
}

func (s *DBStore) Update(sessionID string, patch Patch) error {
	s.mu.Lock()
	current, err := s.load(sessionID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	merged := patch.apply(current)
	payload, err := json.Marshal(merged)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	row := db.Preference{SessionID: sessionID, Payload: string(payload), UpdatedAt: time.Now()}
	if err := s.g.Save(&row).Error; err != nil {
		s.mu.Unlock()
		return fmt.Errorf("save prefs: %w", err)
	}
	s.mu.Unlock()

	s.subs.notify(sessionID, merged)
	return nil
}

func (s *DBStore) Subscribe(sessionID string, fn func(Preferences)) func() {
	return s.subs.add(sessionID, fn)
}
