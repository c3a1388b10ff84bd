package steam

import "github.com/rs/zerolog/log"

// Probe is one independent heuristic for storefront visibility.
type Probe func() (bool, error)

// StoreViewSignal combines independent store probes with OR: any probe
// answering true makes the store view active. The combined value is cached
// between refreshes since probes can be slow.
type StoreViewSignal struct {
	probes []Probe

	notifier

	active bool
}

func NewStoreViewSignal(probes ...Probe) *StoreViewSignal {
	return &StoreViewSignal{probes: probes}
}

// RouteStoreProbe answers from the host's current route.
func RouteStoreProbe(host Host) Probe {
	return func() (bool, error) {
		route, err := host.CurrentRoute()
		if err != nil {
			return false, err
		}
		return route.Store, nil
	}
}

// Active returns the cached combined probe result.
func (s *StoreViewSignal) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Subscribe registers a change listener.
func (s *StoreViewSignal) Subscribe(fn func()) func() {
	return s.subscribe(fn)
}

func (s *StoreViewSignal) refresh() error {
	next := false
	answered := false
	var lastErr error

	for _, probe := range s.probes {
		active, err := probe()
		if err != nil {
			lastErr = err
			continue
		}
		answered = true
		if active {
			next = true
			break
		}
	}

	if !answered {
		// Every probe failed; hold the last known value.
		return lastErr
	}

	s.mu.Lock()
	if s.active == next {
		s.mu.Unlock()
		return nil
	}
	s.active = next
	s.mu.Unlock()

	log.Debug().Bool("active", next).Msg("Store view changed")
	s.notify()
	return nil
}
