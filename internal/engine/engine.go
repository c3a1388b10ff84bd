// Package engine drives the single shared audio sink. Every play or stop
// invocation gets a monotonically increasing generation; a later invocation
// supersedes earlier ones, which observe the bumped generation and abandon
// their effect even if their asynchronous steps finish afterwards.
package engine

import (
	"fmt"
	"math"
	"time"

	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/audio"
	"github.com/themedeck/themedeckd/internal/track"
)

const (
	// FadeSteps and FadeStepInterval define the linear fade-out ramp.
	FadeSteps        = 8
	FadeStepInterval = 40 * time.Millisecond

	seekRetries    = 5
	seekRetryDelay = 30 * time.Millisecond
)

// Status is the externally visible playback state.
type Status struct {
	Context track.ContextID
	Path    string
	Reason  Reason
	State   State
}

// Playing reports whether the sink is audibly occupied.
func (s Status) Playing() bool {
	return s.State == StatePlaying || s.State == StateFading
}

type activeTrack struct {
	track    track.Track
	reason   Reason
	streamer beep.StreamSeeker
	format   beep.Format
	volume   *effects.Volume
	duration time.Duration
}

// Engine owns the audio sink. All mutation of sink state happens through
// it; concurrent callers are serialized by generation, not blocked.
type Engine struct {
	mu    sync.Mutex
	sink  Sink
	cache *audio.Cache

	sinkInit   bool
	sampleRate beep.SampleRate

	generation uint64
	inflight   map[string]uint64

	state  State
	active *activeTrack
	master int

	fadeCancel chan struct{}

	onState func(Status)
	onError func(track.Track, error)
}

// New creates an engine around the given sink and decoded-audio cache.
func New(sink Sink, cache *audio.Cache) *Engine {
	return &Engine{
		sink:     sink,
		cache:    cache,
		inflight: make(map[string]uint64),
		master:   100,
	}
}

// OnStateChange registers the callback invoked after every externally
// visible state transition, including engine-driven ones (fade completion,
// track finishing, forced stop on failure).
func (e *Engine) OnStateChange(fn func(Status)) {
	e.mu.Lock()
	e.onState = fn
	e.mu.Unlock()
}

// OnError registers the callback invoked for playback failures that are
// not interruptions.
func (e *Engine) OnError(fn func(track.Track, error)) {
	e.mu.Lock()
	e.onError = fn
	e.mu.Unlock()
}

// Status returns the current playback status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

func (e *Engine) statusLocked() Status {
	s := Status{State: e.state}
	if e.active != nil {
		s.Context = e.active.track.Context
		s.Path = e.active.track.Path
		s.Reason = e.active.reason
	}
	return s
}

func playSignature(t track.Track, reason Reason) string {
	return fmt.Sprintf("%s|%d|%s", reason, t.Context, t.Path)
}

// Play starts playback of a track. Duplicate calls for an identical
// (reason, context, path) signature while one is still in flight are
// dropped silently; otherwise the call supersedes whatever the sink is
// doing. resumeAt overrides the configured start offset when non-nil.
func (e *Engine) Play(t track.Track, reason Reason, resumeAt *time.Duration) {
	sig := playSignature(t, reason)

	e.mu.Lock()
	if _, ok := e.inflight[sig]; ok {
		e.mu.Unlock()
		log.Debug().Str("signature", sig).Msg("Duplicate play dropped")
		return
	}
	if e.state == StatePlaying && e.active != nil &&
		e.active.track.Context == t.Context &&
		e.active.track.Path == t.Path &&
		e.active.reason == reason {
		e.mu.Unlock()
		log.Debug().Str("signature", sig).Msg("Already playing, play dropped")
		return
	}

	e.generation++
	gen := e.generation
	e.inflight[sig] = gen
	e.cancelFadeLocked()
	e.state = StateLoading
	e.mu.Unlock()

	log.Debug().Uint64("gen", gen).Str("context", t.Context.String()).
		Str("path", t.Path).Str("reason", string(reason)).Msg("Play scheduled")

	go e.run(gen, sig, t, reason, resumeAt)
}

// run executes the asynchronous steps of one play invocation. Each step
// re-checks the generation so a superseded invocation never touches the
// sink or the visible state.
func (e *Engine) run(gen uint64, sig string, t track.Track, reason Reason, resumeAt *time.Duration) {
	defer e.clearInflight(sig, gen)

	buffer, format, err := e.cache.Get(t.Path)
	if err != nil {
		e.failPlayback(gen, t, err)
		return
	}

	if e.superseded(gen) {
		log.Debug().Uint64("gen", gen).Msg("Play superseded during load")
		return
	}

	if err := e.ensureSink(format.SampleRate); err != nil {
		e.failPlayback(gen, t, err)
		return
	}

	duration := format.SampleRate.D(buffer.Len())
	offset := startOffset(t.StartOffset, resumeAt, duration)

	streamer := buffer.Streamer(0, buffer.Len())
	if err := seekWithRetry(streamer, format.SampleRate.N(offset)); err != nil {
		e.failPlayback(gen, t, err)
		return
	}

	if e.superseded(gen) {
		log.Debug().Uint64("gen", gen).Msg("Play superseded after seek")
		return
	}

	eff := effectiveVolume(t.Volume, e.masterVolume())
	var source beep.Streamer = streamer
	if t.Loop {
		source = &loopStreamer{s: streamer}
	}
	vol := &effects.Volume{
		Streamer: source,
		Base:     2,
		Volume:   fractionToExponent(eff),
		Silent:   eff == 0,
	}

	var out beep.Streamer = vol
	if !t.Loop {
		// The callback runs inside the sink's streaming loop, which holds
		// the sink lock; clearing the sink there would deadlock.
		out = beep.Seq(vol, beep.Callback(func() {
			go e.trackFinished(gen)
		}))
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		log.Debug().Uint64("gen", gen).Msg("Play superseded before start")
		return
	}
	e.sink.Clear()
	e.active = &activeTrack{
		track:    t,
		reason:   reason,
		streamer: streamer,
		format:   format,
		volume:   vol,
		duration: duration,
	}
	e.state = StatePlaying
	status := e.statusLocked()
	onState := e.onState
	e.mu.Unlock()

	e.sink.Play(out)

	log.Debug().Uint64("gen", gen).Str("context", t.Context.String()).
		Dur("offset", offset).Dur("duration", duration).Msg("Playback started")

	if onState != nil {
		onState(status)
	}
}

// Stop halts playback. With fade, the volume ramps linearly to silence
// over FadeSteps * FadeStepInterval before the sink is cleared; a later
// play or stop call cancels an in-progress fade.
func (e *Engine) Stop(fade bool) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.cancelFadeLocked()

	if e.active == nil {
		// Abandon any in-flight load.
		if e.state != StateIdle {
			e.state = StateIdle
		}
		e.mu.Unlock()
		return
	}

	if !fade {
		e.haltLocked("stop")
		return
	}

	e.state = StateFading
	cancel := make(chan struct{})
	e.fadeCancel = cancel
	vol := e.active.volume
	status := e.statusLocked()
	onState := e.onState
	e.mu.Unlock()

	if onState != nil {
		onState(status)
	}

	go e.fadeOut(gen, vol, cancel)
}

// fadeOut ramps amplitude linearly to zero, then halts if this stop still
// owns the sink.
func (e *Engine) fadeOut(gen uint64, vol *effects.Volume, cancel chan struct{}) {
	e.sink.Lock()
	base := vol.Volume
	e.sink.Unlock()

	for step := 1; step <= FadeSteps; step++ {
		select {
		case <-cancel:
			return
		case <-time.After(FadeStepInterval):
		}

		e.sink.Lock()
		if step == FadeSteps {
			vol.Silent = true
		} else {
			vol.Volume = base + math.Log2(1.0-float64(step)/float64(FadeSteps))
		}
		e.sink.Unlock()
	}

	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.haltLocked("fade complete")
}

// haltLocked clears the sink and resets to idle. Takes the engine lock
// held and releases it before notifying.
func (e *Engine) haltLocked(cause string) {
	e.sink.Clear()
	e.active = nil
	e.state = StateIdle
	status := e.statusLocked()
	onState := e.onState
	e.mu.Unlock()

	log.Debug().Str("cause", cause).Msg("Playback halted")

	if onState != nil {
		onState(status)
	}
}

// trackFinished handles a non-looping track draining naturally.
func (e *Engine) trackFinished(gen uint64) {
	e.mu.Lock()
	if gen != e.generation || e.active == nil {
		e.mu.Unlock()
		return
	}
	e.generation++
	e.haltLocked("track finished")
}

// Position returns the current playback position of the active track.
func (e *Engine) Position() (time.Duration, bool) {
	e.mu.Lock()
	a := e.active
	e.mu.Unlock()
	if a == nil {
		return 0, false
	}

	e.sink.Lock()
	pos := a.format.SampleRate.D(a.streamer.Position())
	e.sink.Unlock()
	return pos, true
}

// Duration returns the active track's total length.
func (e *Engine) Duration() (time.Duration, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return 0, false
	}
	return e.active.duration, true
}

// SetVolume applies a per-track volume change to the live stream when the
// given context is the one playing.
func (e *Engine) SetVolume(ctx track.ContextID, volume float64) {
	volume = track.ClampVolume(volume)

	e.mu.Lock()
	if e.active == nil || e.active.track.Context != ctx {
		e.mu.Unlock()
		return
	}
	e.active.track.Volume = volume
	vol := e.active.volume
	eff := effectiveVolume(volume, e.master)
	e.mu.Unlock()

	e.applyVolume(vol, eff)
	log.Debug().Str("context", ctx.String()).Float64("volume", volume).Msg("Live volume applied")
}

// SetStartOffset records a new start offset on the live track copy. It
// takes effect on the next play of that context.
func (e *Engine) SetStartOffset(ctx track.ContextID, offset float64) {
	offset = track.ClampStartOffset(offset)

	e.mu.Lock()
	if e.active != nil && e.active.track.Context == ctx {
		e.active.track.StartOffset = offset
	}
	e.mu.Unlock()
}

// SetMasterVolume scales all playback by the global volume percentage.
func (e *Engine) SetMasterVolume(percent int) {
	e.mu.Lock()
	e.master = percent
	if e.active == nil {
		e.mu.Unlock()
		return
	}
	vol := e.active.volume
	eff := effectiveVolume(e.active.track.Volume, percent)
	e.mu.Unlock()

	e.applyVolume(vol, eff)
}

func (e *Engine) applyVolume(vol *effects.Volume, eff float64) {
	e.sink.Lock()
	vol.Volume = fractionToExponent(eff)
	vol.Silent = eff == 0
	e.sink.Unlock()
}

// Close stops playback immediately and clears the sink.
func (e *Engine) Close() {
	e.Stop(false)
}

func (e *Engine) masterVolume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

func (e *Engine) superseded(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return gen != e.generation
}

func (e *Engine) clearInflight(sig string, gen uint64) {
	e.mu.Lock()
	if current, ok := e.inflight[sig]; ok && current == gen {
		delete(e.inflight, sig)
	}
	e.mu.Unlock()
}

// cancelFadeLocked cancels an in-progress fade. Caller holds the lock.
func (e *Engine) cancelFadeLocked() {
	if e.fadeCancel != nil {
		close(e.fadeCancel)
		e.fadeCancel = nil
	}
}

func (e *Engine) ensureSink(sampleRate beep.SampleRate) error {
	e.mu.Lock()
	needInit := !e.sinkInit || sampleRate != e.sampleRate
	e.mu.Unlock()
	if !needInit {
		return nil
	}

	if err := e.sink.Init(sampleRate, sampleRate.N(SpeakerBufferSize)); err != nil {
		return fmt.Errorf("failed to initialize audio output: %w", err)
	}

	e.mu.Lock()
	e.sinkInit = true
	e.sampleRate = sampleRate
	e.mu.Unlock()

	log.Debug().Int("sample_rate", int(sampleRate)).Msg("Audio sink initialized")
	return nil
}

// failPlayback classifies a failure: interruptions are logged and
// swallowed, anything else surfaces and forces a stop so the engine never
// sits in a stuck loading state.
func (e *Engine) failPlayback(gen uint64, t track.Track, err error) {
	if IsInterruption(err) {
		log.Debug().Err(err).Str("path", t.Path).Msg("Playback interrupted")
		return
	}

	log.Error().Err(err).Str("context", t.Context.String()).Str("path", t.Path).Msg("Playback failed")

	e.mu.Lock()
	onError := e.onError
	if gen != e.generation {
		e.mu.Unlock()
		if onError != nil {
			onError(t, err)
		}
		return
	}
	e.generation++
	if e.active != nil {
		e.haltLocked("playback failed")
	} else {
		e.state = StateIdle
		status := e.statusLocked()
		onState := e.onState
		e.mu.Unlock()
		if onState != nil {
			onState(status)
		}
	}

	if onError != nil {
		onError(t, err)
	}
}

// startOffset resolves where playback should begin: an explicit resume
// position wins over the configured intro skip; both wrap modulo the
// track duration so an offset never lands past the end.
func startOffset(configured float64, resumeAt *time.Duration, duration time.Duration) time.Duration {
	var off time.Duration
	if resumeAt != nil {
		off = *resumeAt
	} else {
		off = time.Duration(configured * float64(time.Second))
	}
	if off < 0 {
		return 0
	}
	if duration > 0 && off >= duration {
		off %= duration
	}
	return off
}

// seekWithRetry seeks with a bounded retry, since some decoders reject
// seeks until an internal ready transition completes.
func seekWithRetry(s beep.StreamSeeker, sample int) error {
	if sample <= 0 {
		return nil
	}
	if s.Len() > 0 && sample >= s.Len() {
		sample %= s.Len()
	}

	var err error
	for attempt := 0; attempt < seekRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(seekRetryDelay)
		}
		if err = s.Seek(sample); err == nil {
			return nil
		}
	}
	return fmt.Errorf("seek failed after %d attempts: %w", seekRetries, err)
}
