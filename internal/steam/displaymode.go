package steam

import (
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDisplayModeTTL bounds how often reads trigger a host query.
const DefaultDisplayModeTTL = time.Second

// DisplayModeSignal tracks whether the desktop UI is active. Reads are
// served from a short-lived cache; the poller refreshes it periodically as
// a backstop.
type DisplayModeSignal struct {
	host Host

	// TTL overrides DefaultDisplayModeTTL. Set before polling starts.
	TTL time.Duration

	notifier

	desktop   bool
	fetchedAt time.Time
}

func NewDisplayModeSignal(host Host) *DisplayModeSignal {
	return &DisplayModeSignal{host: host, TTL: DefaultDisplayModeTTL}
}

// Desktop reports whether the desktop UI is active, refreshing the cached
// value when it is older than the TTL.
func (s *DisplayModeSignal) Desktop() bool {
	s.mu.Lock()
	stale := time.Since(s.fetchedAt) > s.TTL
	current := s.desktop
	s.mu.Unlock()

	if stale {
		_ = s.refresh()
		s.mu.Lock()
		current = s.desktop
		s.mu.Unlock()
	}
	return current
}

// Subscribe registers a change listener.
func (s *DisplayModeSignal) Subscribe(fn func()) func() {
	return s.subscribe(fn)
}

func (s *DisplayModeSignal) refresh() error {
	desktop, err := s.host.DesktopMode()
	if err != nil {
		// Hold the last known value.
		return err
	}

	s.mu.Lock()
	s.fetchedAt = time.Now()
	if s.desktop == desktop {
		s.mu.Unlock()
		return nil
	}
	s.desktop = desktop
	s.mu.Unlock()

	log.Debug().Bool("desktop", desktop).Msg("Display mode changed")
	s.notify()
	return nil
}
