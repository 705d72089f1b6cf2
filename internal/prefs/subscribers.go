package prefs

import "sync"

// subscribers tracks per-session update callbacks for both store
// implementations.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]func(Preferences)
}

func (s *subscribers) add(sessionID string, fn func(Preferences)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = map[string]map[int]func(Preferences){}
	}
	if s.subs[sessionID] == nil {
		s.subs[sessionID] = map[int]func(Preferences){}
	}
	id := s.next
	s.next++
	s.subs[sessionID][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[sessionID], id)
	}
}

func (s *subscribers) notify(sessionID string, p Preferences) {
	s.mu.Lock()
	fns := make([]func(Preferences), 0, len(s.subs[sessionID]))
	for _, fn := range s.subs[sessionID] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(p)
	}
}
