// Package orchestrator turns host signals, preferences and the track
// registry into a single playback decision and drives the engine through
// it. The decision itself is a pure function over an explicit input
// snapshot; everything stateful lives in the reconciliation loop around it.
package orchestrator

import (
	"github.com/themedeck/themedeckd/internal/engine"
	"github.com/themedeck/themedeckd/internal/track"
)

// State is the externally visible playback state.
type State struct {
	ActiveContext track.ContextID
	Reason        engine.Reason
	Playing       bool
}

// Inputs is everything one resolution reads. No hidden state: two equal
// Inputs values always resolve to the same intent.
type Inputs struct {
	Desktop          bool
	Running          track.ContextID
	Focused          track.ContextID
	OnAssignmentView bool
	StoreView        bool

	AutoPlay              bool
	AmbientEnabled        bool
	StoreEnabled          bool
	AmbientDisableInStore bool

	Tracks map[track.ContextID]track.Track
	State  State
}

// IntentKind says what the orchestrator should do next.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentPlay
	IntentStop
)

func (k IntentKind) String() string {
	switch k {
	case IntentNone:
		return "none"
	case IntentPlay:
		return "play"
	case IntentStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Intent is one resolved playback decision. Play intents always carry
// reason auto; manual playback never originates here.
type Intent struct {
	Kind  IntentKind
	Track track.Track
}

func play(t track.Track) Intent {
	return Intent{Kind: IntentPlay, Track: t}
}

func stop() Intent {
	return Intent{Kind: IntentStop}
}

// Resolve picks the next playback intent. Checks run in precedence order
// and the first match wins:
//
//  1. manual playback is in progress: leave it alone
//  2. desktop mode: stop
//  3. a game is running: stop
//  4. the track-assignment view is open: stop auto playback, start nothing
//  5. a focused game with a track plays it (auto-play permitting)
//  6. a focused game without a track stays silent
//  7. no focused game: store track, then ambient, then silence
func Resolve(in Inputs) Intent {
	if in.State.Playing && in.State.Reason == engine.ReasonManual {
		return Intent{Kind: IntentNone}
	}

	if in.Desktop {
		return stop()
	}

	if in.Running != track.NoContext {
		return stop()
	}

	if in.OnAssignmentView {
		if in.State.Playing && in.State.Reason == engine.ReasonAuto {
			return stop()
		}
		return Intent{Kind: IntentNone}
	}

	// Auto-play off means no auto intent may ever start music.
	if !in.AutoPlay {
		return stop()
	}

	if in.Focused.IsGame() {
		if t, ok := in.Tracks[in.Focused]; ok {
			return play(t)
		}
		// No trailing ambient leak into a track-less game page.
		return stop()
	}

	if in.StoreView {
		if in.StoreEnabled {
			if t, ok := in.Tracks[track.StoreContext]; ok {
				return play(t)
			}
		}
		if in.AmbientDisableInStore {
			return stop()
		}
	}

	if in.AmbientEnabled {
		if t, ok := in.Tracks[track.AmbientContext]; ok {
			return play(t)
		}
	}
	return stop()
}
