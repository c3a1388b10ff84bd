package steam

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// RunningSignal reduces the host's set of launching/started apps to the one
// effective running context. countLaunching decides whether apps that are
// still launching count, which tracks the launch-stop preference.
type RunningSignal struct {
	host           Host
	focus          *FocusSignal
	countLaunching func() bool

	notifier

	current int
}

func NewRunningSignal(host Host, focus *FocusSignal, countLaunching func() bool) *RunningSignal {
	return &RunningSignal{host: host, focus: focus, countLaunching: countLaunching}
}

// Current returns the effective running app id, zero for none.
func (s *RunningSignal) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers a change listener.
func (s *RunningSignal) Subscribe(fn func()) func() {
	return s.subscribe(fn)
}

func (s *RunningSignal) refresh() error {
	apps, err := s.host.RunningApps()
	if err != nil {
		// Hold the last known value.
		return err
	}

	eligible := make([]int, 0, len(apps))
	includeLaunching := s.countLaunching == nil || s.countLaunching()
	for _, app := range apps {
		if app.AppID <= 0 {
			continue
		}
		if app.State == RunStateLaunching && !includeLaunching {
			continue
		}
		eligible = append(eligible, app.AppID)
	}

	next := s.pick(eligible)

	s.mu.Lock()
	if s.current == next {
		s.mu.Unlock()
		return nil
	}
	s.current = next
	s.mu.Unlock()

	log.Debug().Int("app_id", next).Msg("Running context changed")
	s.notify()
	return nil
}

// pick breaks ties between multiple running apps: prefer the one matching
// the current route, then the focused app, then the smallest id so the
// result is deterministic.
func (s *RunningSignal) pick(ids []int) int {
	if len(ids) == 0 {
		return 0
	}
	if len(ids) == 1 {
		return ids[0]
	}

	if route, err := s.host.CurrentRoute(); err == nil && route.AppID > 0 {
		for _, id := range ids {
			if id == route.AppID {
				return id
			}
		}
	}
	if s.focus != nil {
		if focused := s.focus.Current(); focused > 0 {
			for _, id := range ids {
				if id == focused {
					return id
				}
			}
		}
	}

	sort.Ints(ids)
	return ids[0]
}
