package config

import "sync"

// Store holds the live settings. Readers get a consistent snapshot;
// the overlay reloader swaps in updates.
type Store struct {
	mu       sync.RWMutex
	settings Settings
}

func NewStore(settings Settings) *Store {
	return &Store{settings: settings}
}

func (s *Store) Current() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func (s *Store) Replace(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}
