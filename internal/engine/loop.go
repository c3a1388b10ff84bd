package engine

import "github.com/gopxl/beep/v2"

// loopStreamer replays a seekable streamer from the start whenever it
// drains. Position reads through to the wrapped streamer, so the reported
// playback position always reflects the current pass.
type loopStreamer struct {
	s beep.StreamSeeker
}

func (l *loopStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for n < len(samples) {
		sn, sok := l.s.Stream(samples[n:])
		n += sn
		if !sok {
			if l.s.Err() != nil {
				return n, n > 0
			}
			if err := l.s.Seek(0); err != nil {
				return n, n > 0
			}
		}
	}
	return n, true
}

func (l *loopStreamer) Err() error {
	return l.s.Err()
}
