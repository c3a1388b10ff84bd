package orchestrator

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/prefs"
)

// resumeSnapshot records where ambient playback was interrupted.
type resumeSnapshot struct {
	path       string
	position   time.Duration
	capturedAt time.Time
	duration   time.Duration // zero when unknown
	mode       prefs.InterruptionMode
}

// ResumeTracker derives the position ambient playback continues from
// after an interruption. Under pause mode it resumes exactly where it
// stopped; under mute mode it resumes as if the track had kept playing
// silently; under stop mode nothing is ever captured.
type ResumeTracker struct {
	mu   sync.Mutex
	snap *resumeSnapshot

	// now is replaceable in tests.
	now func() time.Time
}

func NewResumeTracker() *ResumeTracker {
	return &ResumeTracker{now: time.Now}
}

// Capture records an interruption. Stop mode discards instead of
// capturing, and also clears any stale snapshot.
func (r *ResumeTracker) Capture(path string, position, duration time.Duration, mode prefs.InterruptionMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mode == prefs.InterruptStop {
		r.snap = nil
		return
	}

	r.snap = &resumeSnapshot{
		path:       path,
		position:   position,
		capturedAt: r.now(),
		duration:   duration,
		mode:       mode,
	}
	log.Debug().Str("path", path).Dur("position", position).Str("mode", string(mode)).
		Msg("Ambient resume snapshot captured")
}

// Consume resolves the resume position for the given ambient track path
// and drops the snapshot. A path mismatch invalidates the snapshot and
// resolves to nil (start from the configured offset).
func (r *ResumeTracker) Consume(path string) *time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.snap
	r.snap = nil
	if snap == nil || snap.path != path {
		return nil
	}

	position := snap.position
	if snap.mode == prefs.InterruptMute {
		position += r.now().Sub(snap.capturedAt)
		if snap.duration > 0 {
			position %= snap.duration
		}
	}
	return &position
}

// Discard drops any pending snapshot. Called when the ambient track
// changes or the interruption mode is set to stop.
func (r *ResumeTracker) Discard() {
	r.mu.Lock()
	r.snap = nil
	r.mu.Unlock()
}

// Pending reports whether a snapshot is waiting to be consumed.
func (r *ResumeTracker) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap != nil
}

// PendingPath returns the media path the snapshot refers to, empty when
// none is pending.
func (r *ResumeTracker) PendingPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return ""
	}
	return r.snap.path
}
