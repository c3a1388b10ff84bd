package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/themedeck/themedeckd/internal/engine"
	"github.com/themedeck/themedeckd/internal/library"
	"github.com/themedeck/themedeckd/internal/prefs"
	"github.com/themedeck/themedeckd/internal/track"
)

type playCall struct {
	track    track.Track
	reason   engine.Reason
	resumeAt *time.Duration
}

// fakeEngine records calls and mimics the engine's visible state
// transitions synchronously.
type fakeEngine struct {
	mu       sync.Mutex
	status   engine.Status
	position time.Duration
	duration time.Duration
	plays    []playCall
	stops    []bool
	master   int
	volumes  map[track.ContextID]float64
	offsets  map[track.ContextID]float64
	onState  func(engine.Status)
}

func (f *fakeEngine) Play(t track.Track, reason engine.Reason, resumeAt *time.Duration) {
	f.mu.Lock()
	f.plays = append(f.plays, playCall{track: t, reason: reason, resumeAt: resumeAt})
	f.status = engine.Status{Context: t.Context, Path: t.Path, Reason: reason, State: engine.StatePlaying}
	st := f.status
	onState := f.onState
	f.mu.Unlock()
	if onState != nil {
		onState(st)
	}
}

func (f *fakeEngine) Stop(fade bool) {
	f.mu.Lock()
	f.stops = append(f.stops, fade)
	f.status = engine.Status{State: engine.StateIdle}
	st := f.status
	onState := f.onState
	f.mu.Unlock()
	if onState != nil {
		onState(st)
	}
}

func (f *fakeEngine) Status() engine.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) Position() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, f.status.State == engine.StatePlaying
}

func (f *fakeEngine) Duration() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.status.State == engine.StatePlaying
}

func (f *fakeEngine) SetMasterVolume(percent int) {
	f.mu.Lock()
	f.master = percent
	f.mu.Unlock()
}

func (f *fakeEngine) SetVolume(ctx track.ContextID, volume float64) {
	f.mu.Lock()
	if f.volumes == nil {
		f.volumes = map[track.ContextID]float64{}
	}
	f.volumes[ctx] = volume
	f.mu.Unlock()
}

func (f *fakeEngine) SetStartOffset(ctx track.ContextID, offset float64) {
	f.mu.Lock()
	if f.offsets == nil {
		f.offsets = map[track.ContextID]float64{}
	}
	f.offsets[ctx] = offset
	f.mu.Unlock()
}

func (f *fakeEngine) OnStateChange(fn func(engine.Status)) {
	f.mu.Lock()
	f.onState = fn
	f.mu.Unlock()
}

func (f *fakeEngine) OnError(fn func(track.Track, error)) {}

func (f *fakeEngine) playCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.plays)
}

func (f *fakeEngine) lastPlay(t *testing.T) playCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.plays) == 0 {
		t.Fatal("No play calls recorded")
	}
	return f.plays[len(f.plays)-1]
}

func (f *fakeEngine) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stops)
}

type fakeIntSource struct {
	mu  sync.Mutex
	v   int
	fns []func()
}

func (f *fakeIntSource) Current() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *fakeIntSource) Subscribe(fn func()) func() {
	f.mu.Lock()
	f.fns = append(f.fns, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeIntSource) set(v int) {
	f.mu.Lock()
	f.v = v
	fns := append([]func(){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeDisplaySource struct {
	mu  sync.Mutex
	v   bool
	fns []func()
}

func (f *fakeDisplaySource) Desktop() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *fakeDisplaySource) Subscribe(fn func()) func() {
	f.mu.Lock()
	f.fns = append(f.fns, fn)
	f.mu.Unlock()
	return func() {}
}

func (f *fakeDisplaySource) set(v bool) {
	f.mu.Lock()
	f.v = v
	fns := append([]func(){}, f.fns...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeStoreSource struct {
	mu sync.Mutex
	v  bool
}

func (f *fakeStoreSource) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.v
}

func (f *fakeStoreSource) Subscribe(fn func()) func() { return func() {} }

type fixture struct {
	orch    *Orchestrator
	eng     *fakeEngine
	prefs   *prefs.Store
	lib     *library.Library
	focus   *fakeIntSource
	running *fakeIntSource
	display *fakeDisplaySource
	store   *fakeStoreSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := prefs.NewStore(filepath.Join(dir, "config.yml"))
	if err != nil {
		t.Fatal(err)
	}
	lib, err := library.New(filepath.Join(dir, "tracks.json"))
	if err != nil {
		t.Fatal(err)
	}

	f := &fixture{
		eng:     &fakeEngine{},
		prefs:   store,
		lib:     lib,
		focus:   &fakeIntSource{},
		running: &fakeIntSource{},
		display: &fakeDisplaySource{},
		store:   &fakeStoreSource{},
	}
	f.orch = New(Config{
		Prefs:   store,
		Library: lib,
		Engine:  f.eng,
		Focus:   f.focus,
		Running: f.running,
		Display: f.display,
		Store:   f.store,
	})
	return f
}

// addTrack registers a real media file so library validation passes.
func (f *fixture) addTrack(t *testing.T, ctx track.ContextID) track.Track {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ctx.String()+".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := f.lib.SetTrack(ctx, path, ""); err != nil {
		t.Fatal(err)
	}
	tr := f.lib.Track(ctx)
	if tr == nil {
		t.Fatal("Track missing after SetTrack")
	}
	return *tr
}

func TestEvaluatePlaysAmbientWhenIdle(t *testing.T) {
	f := newFixture(t)
	ambient := f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()

	call := f.eng.lastPlay(t)
	if call.track.Path != ambient.Path || call.reason != engine.ReasonAuto {
		t.Errorf("play = %+v, want ambient with reason auto", call)
	}
	if call.resumeAt != nil {
		t.Errorf("resumeAt = %v, want nil on first play", call.resumeAt)
	}
}

func TestEvaluateIsIdempotentWhilePlaying(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.orch.evaluate()
	f.orch.evaluate()

	if got := f.eng.playCount(); got != 1 {
		t.Errorf("play count = %d, want exactly 1", got)
	}
}

func TestDesktopModeStopsAndCapturesResume(t *testing.T) {
	f := newFixture(t)
	ambient := f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.eng.mu.Lock()
	f.eng.position = 10 * time.Second
	f.eng.duration = 2 * time.Minute
	f.eng.mu.Unlock()

	f.display.v = true
	f.orch.evaluate()

	if got := f.eng.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1", got)
	}
	if !f.orch.resume.Pending() {
		t.Fatal("Resume snapshot should be captured (default mode is pause)")
	}

	// Leaving desktop mode resumes ambient at the captured position.
	f.display.v = false
	f.orch.evaluate()

	call := f.eng.lastPlay(t)
	if call.track.Path != ambient.Path {
		t.Fatalf("resumed track = %q, want ambient", call.track.Path)
	}
	if call.resumeAt == nil || *call.resumeAt != 10*time.Second {
		t.Errorf("resumeAt = %v, want 10s", call.resumeAt)
	}
}

func TestRunningContextInterruptAndResumeCycle(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.eng.mu.Lock()
	f.eng.position = 30 * time.Second
	f.eng.mu.Unlock()

	f.running.v = 440
	f.orch.evaluate()
	if got := f.eng.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1 while a game runs", got)
	}

	f.running.v = 0
	f.orch.evaluate()
	call := f.eng.lastPlay(t)
	if call.resumeAt == nil || *call.resumeAt != 30*time.Second {
		t.Errorf("resumeAt = %v, want the interrupted position", call.resumeAt)
	}
}

func TestInterruptionModeStopNeverResumesMidTrack(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := f.prefs.SetInterruptionMode(prefs.InterruptStop); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.eng.mu.Lock()
	f.eng.position = 30 * time.Second
	f.eng.mu.Unlock()

	f.running.v = 440
	f.orch.evaluate()
	f.running.v = 0
	f.orch.evaluate()

	call := f.eng.lastPlay(t)
	if call.resumeAt != nil {
		t.Errorf("resumeAt = %v, want nil under stop mode", call.resumeAt)
	}
}

func TestAutoPlayOffNeverIssuesPlay(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	f.addTrack(t, 440)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}
	if err := f.prefs.SetAutoPlay(false); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.focus.v = 440
	f.orch.evaluate()
	f.store.v = true
	f.orch.evaluate()

	if got := f.eng.playCount(); got != 0 {
		t.Errorf("play count = %d, want 0 with auto-play off", got)
	}
}

func TestGameWithTrackToTracklessGameStopsWithFade(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, 440)

	f.focus.v = 440
	f.orch.evaluate()
	if f.eng.lastPlay(t).track.Context != 440 {
		t.Fatal("Game 440's track should be playing")
	}

	// Game 570 has no track: stop with fade, start nothing.
	f.focus.v = 570
	f.orch.evaluate()

	if got := f.eng.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1", got)
	}
	f.eng.mu.Lock()
	fade := f.eng.stops[0]
	f.eng.mu.Unlock()
	if !fade {
		t.Error("Auto stop should fade")
	}
	if got := f.eng.playCount(); got != 1 {
		t.Errorf("play count = %d, want no new play for the trackless game", got)
	}
}

func TestManualPreviewSuppressesAutoIntents(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	preview := f.addTrack(t, 570)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.PreviewToggle(preview)
	call := f.eng.lastPlay(t)
	if call.reason != engine.ReasonManual {
		t.Fatalf("reason = %q, want manual", call.reason)
	}

	// The resolver would pick ambient here, but manual playback wins.
	plays := f.eng.playCount()
	f.orch.evaluate()
	if got := f.eng.playCount(); got != plays {
		t.Error("Auto intent must not pre-empt manual playback")
	}

	// Toggling the same track again stops it.
	f.orch.PreviewToggle(preview)
	if got := f.eng.stopCount(); got != 1 {
		t.Errorf("stop count = %d, want 1", got)
	}
}

func TestLibraryChangeDiscardsStaleResume(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)

	f.orch.resume.Capture("/music/replaced.mp3", 10*time.Second, 0, prefs.InterruptPause)
	f.orch.onLibraryChange()

	if f.orch.resume.Pending() {
		t.Error("Snapshot for a replaced ambient path should be discarded")
	}
}

func TestAssignmentViewStopsAutoPlayback(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	f.orch.evaluate()
	f.orch.SetAssignmentView(true)
	f.orch.evaluate()

	if got := f.eng.stopCount(); got != 1 {
		t.Fatalf("stop count = %d, want 1 on the assignment view", got)
	}

	// Nothing restarts while the view stays open.
	plays := f.eng.playCount()
	f.orch.evaluate()
	if got := f.eng.playCount(); got != plays {
		t.Error("Assignment view must never start playback")
	}
}

func TestLoopCoalescesBurstsAndReactsToSignals(t *testing.T) {
	f := newFixture(t)
	ambient := f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.orch.Start(ctx)
	defer f.orch.Stop()

	sub := f.orch.Subscribe()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-sub.StateChanged:
			if state.Playing && state.ActiveContext == track.AmbientContext {
				if got := f.orch.CurrentState().ActiveContext; got != track.AmbientContext {
					t.Errorf("CurrentState context = %v, want ambient", got)
				}
				if f.eng.lastPlay(t).track.Path != ambient.Path {
					t.Errorf("Playing path mismatch")
				}
				return
			}
		case <-deadline:
			t.Fatal("Loop never started ambient playback")
		}
	}
}

func TestLibraryChangeAppliesTuningToPlayingTrack(t *testing.T) {
	f := newFixture(t)
	f.addTrack(t, track.AmbientContext)
	if err := f.prefs.SetAmbientEnabled(true); err != nil {
		t.Fatal(err)
	}
	f.orch.evaluate()

	if _, err := f.lib.SetVolume(track.AmbientContext, 0.4); err != nil {
		t.Fatal(err)
	}
	if _, err := f.lib.SetStartOffset(track.AmbientContext, 7); err != nil {
		t.Fatal(err)
	}
	f.orch.onLibraryChange()

	f.eng.mu.Lock()
	volume := f.eng.volumes[track.AmbientContext]
	offset := f.eng.offsets[track.AmbientContext]
	f.eng.mu.Unlock()
	if volume != 0.4 {
		t.Errorf("live volume = %v, want 0.4", volume)
	}
	if offset != 7 {
		t.Errorf("live start offset = %v, want 7", offset)
	}
}
