package prefs

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store wraps the preference document with thread-safe access, persistence
// and change notification. All reads return copies.
type Store struct {
	mu        sync.RWMutex
	prefs     Prefs
	path      string
	listeners map[int]func()
	nextID    int
}

// NewStore loads preferences from the given path (or the default path when
// empty) and returns a store around them.
func NewStore(path string) (*Store, error) {
	var err error
	if path == "" {
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	p, err := LoadFrom(path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load preferences, using defaults")
	}

	return &Store{
		prefs:     *p,
		path:      path,
		listeners: make(map[int]func()),
	}, nil
}

// Get returns a snapshot of the current preferences.
func (s *Store) Get() Prefs {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// Subscribe registers a change listener and returns an unsubscribe func.
func (s *Store) Subscribe(listener func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) SetVolume(volume int) error {
	return s.update(func(p *Prefs) { p.Volume = ClampVolume(volume) })
}

func (s *Store) SetAutoPlay(enabled bool) error {
	return s.update(func(p *Prefs) { p.AutoPlay = enabled })
}

func (s *Store) SetAmbientEnabled(enabled bool) error {
	return s.update(func(p *Prefs) { p.AmbientEnabled = enabled })
}

func (s *Store) SetStoreEnabled(enabled bool) error {
	return s.update(func(p *Prefs) { p.StoreEnabled = enabled })
}

func (s *Store) SetAmbientDisableInStore(disabled bool) error {
	return s.update(func(p *Prefs) { p.AmbientDisableInStore = disabled })
}

func (s *Store) SetInterruptionMode(mode InterruptionMode) error {
	if !mode.Valid() {
		mode = InterruptPause
	}
	return s.update(func(p *Prefs) { p.InterruptionMode = mode })
}

func (s *Store) SetLaunchStopMode(mode LaunchStopMode) error {
	if !mode.Valid() {
		mode = StopOnLaunch
	}
	return s.update(func(p *Prefs) { p.LaunchStopMode = mode })
}

func (s *Store) update(mutate func(*Prefs)) error {
	s.mu.Lock()
	mutate(&s.prefs)
	snapshot := s.prefs
	listeners := make([]func(), 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	path := s.path
	s.mu.Unlock()

	err := snapshot.SaveTo(path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save preferences")
	}

	for _, l := range listeners {
		l()
	}
	return err
}
