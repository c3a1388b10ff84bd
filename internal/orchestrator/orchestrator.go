package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/audio"
	"github.com/themedeck/themedeckd/internal/engine"
	"github.com/themedeck/themedeckd/internal/library"
	"github.com/themedeck/themedeckd/internal/prefs"
	"github.com/themedeck/themedeckd/internal/track"
)

// backstopInterval re-evaluates unconditionally so a missed notification
// can only delay a decision, never lose it.
const backstopInterval = 750 * time.Millisecond

// Engine is what the loop drives. *engine.Engine satisfies it.
type Engine interface {
	Play(t track.Track, reason engine.Reason, resumeAt *time.Duration)
	Stop(fade bool)
	Status() engine.Status
	Position() (time.Duration, bool)
	Duration() (time.Duration, bool)
	SetMasterVolume(percent int)
	SetVolume(ctx track.ContextID, volume float64)
	SetStartOffset(ctx track.ContextID, offset float64)
	OnStateChange(fn func(engine.Status))
	OnError(fn func(track.Track, error))
}

// FocusSource reports the focused app.
type FocusSource interface {
	Current() int
	Subscribe(fn func()) func()
}

// RunningSource reports the effective running app.
type RunningSource interface {
	Current() int
	Subscribe(fn func()) func()
}

// DisplaySource reports whether the desktop UI is active.
type DisplaySource interface {
	Desktop() bool
	Subscribe(fn func()) func()
}

// StoreSource reports whether the storefront is in view.
type StoreSource interface {
	Active() bool
	Subscribe(fn func()) func()
}

// Config carries the orchestrator's collaborators.
type Config struct {
	Prefs   *prefs.Store
	Library *library.Library
	Engine  Engine
	Cache   *audio.Cache

	Focus   FocusSource
	Running RunningSource
	Display DisplaySource
	Store   StoreSource
}

// Orchestrator owns the reconciliation loop: change notifications from
// any source coalesce into one evaluation, a periodic backstop catches
// anything missed, and each evaluation resolves and executes one intent.
type Orchestrator struct {
	cfg    Config
	resume *ResumeTracker

	notifyCh       chan struct{}
	assignmentView atomic.Bool

	subsMu     sync.Mutex
	subs       []*Subscription
	lastState  State
	stateKnown bool

	unsubs []func()
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		resume:   NewResumeTracker(),
		notifyCh: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start subscribes to every input source and launches the loop.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.unsubs = append(o.unsubs,
		o.cfg.Prefs.Subscribe(o.schedule),
		o.cfg.Library.Subscribe(o.onLibraryChange),
		o.cfg.Focus.Subscribe(o.schedule),
		o.cfg.Running.Subscribe(o.schedule),
		o.cfg.Display.Subscribe(o.schedule),
		o.cfg.Store.Subscribe(o.schedule),
	)

	o.cfg.Engine.OnStateChange(o.onEngineState)
	o.cfg.Engine.OnError(func(t track.Track, err error) {
		log.Error().Err(err).Str("context", t.Context.String()).Str("path", t.Path).
			Msg("Playback failed")
	})

	go o.run(ctx)
}

// Stop tears the loop down, halts playback and releases cached audio.
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done

	for _, unsub := range o.unsubs {
		unsub()
	}
	o.unsubs = nil

	o.cfg.Engine.Stop(false)
	if o.cfg.Cache != nil {
		o.cfg.Cache.Clear()
	}

	o.subsMu.Lock()
	subs := o.subs
	o.subs = nil
	o.subsMu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}

// schedule requests one evaluation. Bursts collapse into a single pending
// notification.
func (o *Orchestrator) schedule() {
	select {
	case o.notifyCh <- struct{}{}:
	default:
	}
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)

	ticker := time.NewTicker(backstopInterval)
	defer ticker.Stop()

	o.evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.notifyCh:
			o.evaluate()
		case <-ticker.C:
			o.evaluate()
		}
	}
}

// evaluate gathers one input snapshot, resolves it and executes the
// resulting intent.
func (o *Orchestrator) evaluate() {
	p := o.cfg.Prefs.Get()
	if p.InterruptionMode == prefs.InterruptStop {
		o.resume.Discard()
	}
	o.cfg.Engine.SetMasterVolume(p.Volume)

	st := o.cfg.Engine.Status()
	in := Inputs{
		Desktop:          o.cfg.Display.Desktop(),
		Running:          track.ContextID(o.cfg.Running.Current()),
		Focused:          track.ContextID(o.cfg.Focus.Current()),
		OnAssignmentView: o.assignmentView.Load(),
		StoreView:        o.cfg.Store.Active(),

		AutoPlay:              p.AutoPlay,
		AmbientEnabled:        p.AmbientEnabled,
		StoreEnabled:          p.StoreEnabled,
		AmbientDisableInStore: p.AmbientDisableInStore,

		Tracks: o.cfg.Library.Tracks(),
		State: State{
			ActiveContext: st.Context,
			Reason:        st.Reason,
			Playing:       st.Playing(),
		},
	}

	o.execute(Resolve(in), st, p)
}

func (o *Orchestrator) execute(intent Intent, st engine.Status, p prefs.Prefs) {
	switch intent.Kind {
	case IntentNone:
		return

	case IntentPlay:
		t := intent.Track
		if st.Playing() && st.Context == t.Context && st.Path == t.Path && st.Reason == engine.ReasonAuto {
			// Identical (context, path, reason): no-op.
			return
		}
		o.captureIfLeavingAmbient(st, t.Context, p)

		var resumeAt *time.Duration
		if t.Context == track.AmbientContext {
			resumeAt = o.resume.Consume(t.Path)
		}
		log.Debug().Str("context", t.Context.String()).Str("path", t.Path).Msg("Intent: play")
		o.cfg.Engine.Play(t, engine.ReasonAuto, resumeAt)

	case IntentStop:
		if st.State == engine.StateIdle || st.State == engine.StateFading {
			return
		}
		o.captureIfLeavingAmbient(st, track.NoContext, p)
		log.Debug().Str("context", st.Context.String()).Msg("Intent: stop")
		o.cfg.Engine.Stop(true)
	}
}

// captureIfLeavingAmbient records the ambient resume position when the
// executed intent moves playback away from a playing ambient track.
func (o *Orchestrator) captureIfLeavingAmbient(st engine.Status, next track.ContextID, p prefs.Prefs) {
	if st.State != engine.StatePlaying || st.Context != track.AmbientContext {
		return
	}
	if next == track.AmbientContext {
		return
	}
	pos, ok := o.cfg.Engine.Position()
	if !ok {
		return
	}
	duration, _ := o.cfg.Engine.Duration()
	o.resume.Capture(st.Path, pos, duration, p.InterruptionMode)
}

// onLibraryChange releases decoded audio for removed tracks and discards
// a resume snapshot that no longer matches the ambient track.
func (o *Orchestrator) onLibraryChange() {
	tracks := o.cfg.Library.Tracks()
	if o.cfg.Cache != nil {
		keep := make(map[string]bool, len(tracks))
		for _, t := range tracks {
			keep[t.Path] = true
		}
		o.cfg.Cache.Retain(keep)
	}

	// Tuning changes to the playing track take effect immediately.
	if st := o.cfg.Engine.Status(); st.Playing() {
		if t, ok := tracks[st.Context]; ok && t.Path == st.Path {
			o.cfg.Engine.SetVolume(t.Context, t.Volume)
			o.cfg.Engine.SetStartOffset(t.Context, t.StartOffset)
		}
	}

	if pending := o.resume.PendingPath(); pending != "" {
		ambient, ok := tracks[track.AmbientContext]
		if !ok || ambient.Path != pending {
			o.resume.Discard()
		}
	}
	o.schedule()
}

func (o *Orchestrator) onEngineState(st engine.Status) {
	o.publish(State{
		ActiveContext: st.Context,
		Reason:        st.Reason,
		Playing:       st.Playing(),
	})
	// Engine-driven transitions (fade completing, track finishing) feed
	// back into the next resolution.
	o.schedule()
}

func (o *Orchestrator) publish(state State) {
	o.subsMu.Lock()
	if o.stateKnown && state == o.lastState {
		o.subsMu.Unlock()
		return
	}
	o.lastState = state
	o.stateKnown = true
	subs := make([]*Subscription, len(o.subs))
	copy(subs, o.subs)
	o.subsMu.Unlock()

	log.Debug().Str("context", state.ActiveContext.String()).Bool("playing", state.Playing).
		Str("reason", string(state.Reason)).Msg("Playback state changed")

	for _, sub := range subs {
		sub.send(state)
	}
}

// CurrentState returns the playback state as presentation sees it.
func (o *Orchestrator) CurrentState() State {
	st := o.cfg.Engine.Status()
	return State{
		ActiveContext: st.Context,
		Reason:        st.Reason,
		Playing:       st.Playing(),
	}
}

// Subscribe returns a subscription delivering playback state changes.
func (o *Orchestrator) Subscribe() *Subscription {
	o.subsMu.Lock()
	defer o.subsMu.Unlock()
	sub := newSubscription()
	o.subs = append(o.subs, sub)
	return sub
}

// PreviewToggle starts or stops a manual preview of the given track.
// Manual playback suppresses auto intents until it stops.
func (o *Orchestrator) PreviewToggle(t track.Track) {
	st := o.cfg.Engine.Status()
	if st.Playing() && st.Reason == engine.ReasonManual &&
		st.Context == t.Context && st.Path == t.Path {
		o.cfg.Engine.Stop(true)
	} else {
		o.cfg.Engine.Play(t, engine.ReasonManual, nil)
	}
	o.schedule()
}

// SetAssignmentView tells the orchestrator whether the track-assignment
// view is open. Auto playback stops there and never starts from it.
func (o *Orchestrator) SetAssignmentView(open bool) {
	o.assignmentView.Store(open)
	o.schedule()
}
