package steam

import (
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultFocusSettleDelay is how long the focus signal keeps reporting the
// previous app after the host stops reporting one, so a game-to-game
// transition never emits a transient "none".
const DefaultFocusSettleDelay = 600 * time.Millisecond

// FocusSignal tracks the currently focused app. Route observation is
// trusted over raw focus events; when both queries fail the last known
// value is held.
type FocusSignal struct {
	host Host

	// SettleDelay overrides DefaultFocusSettleDelay. Set before polling
	// starts.
	SettleDelay time.Duration

	notifier

	current int
	clearAt time.Time
}

func NewFocusSignal(host Host) *FocusSignal {
	return &FocusSignal{host: host, SettleDelay: DefaultFocusSettleDelay}
}

// Current returns the focused app id, zero for none.
func (s *FocusSignal) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers a change listener.
func (s *FocusSignal) Subscribe(fn func()) func() {
	return s.subscribe(fn)
}

func (s *FocusSignal) refresh() error {
	route, routeErr := s.host.CurrentRoute()
	focused, focusErr := s.host.FocusedApp()

	if routeErr != nil && focusErr != nil {
		// Hold the last known value.
		return routeErr
	}

	var next int
	switch {
	case routeErr == nil && route.AppID > 0:
		next = route.AppID
	case focusErr == nil && focused > 0:
		next = focused
	}

	s.mu.Lock()
	if next > 0 {
		s.clearAt = time.Time{}
		if s.current == next {
			s.mu.Unlock()
			return nil
		}
		s.current = next
		s.mu.Unlock()
		log.Debug().Int("app_id", next).Msg("Focus changed")
		s.notify()
		return nil
	}

	if s.current == 0 {
		s.mu.Unlock()
		return nil
	}

	// The host reports no focus while we still hold an app. Wait out the
	// settle delay before clearing.
	now := time.Now()
	if s.clearAt.IsZero() {
		s.clearAt = now.Add(s.SettleDelay)
		s.mu.Unlock()
		return nil
	}
	if now.Before(s.clearAt) {
		s.mu.Unlock()
		return nil
	}
	s.current = 0
	s.clearAt = time.Time{}
	s.mu.Unlock()

	log.Debug().Msg("Focus cleared")
	s.notify()
	return nil
}
