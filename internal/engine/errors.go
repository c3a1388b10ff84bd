package engine

import (
	"errors"
	"strings"
)

// ErrSuperseded marks an invocation abandoned because a later play or stop
// call took over the sink. Expected under rapid context switching; never
// surfaced to the user.
var ErrSuperseded = errors.New("playback superseded")

// IsInterruption reports whether an error belongs to the silent class:
// superseded operations and host autoplay/permission rejections. Everything
// else is a real playback failure that must surface and force a stop.
func IsInterruption(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSuperseded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"operation was aborted",
		"interrupted by a call",
		"not allowed by the user agent",
		"autoplay",
		"permission denied by host",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
