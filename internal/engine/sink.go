package engine

import (
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// SpeakerBufferSize is the sink's internal buffer length.
const SpeakerBufferSize = time.Millisecond * 250

// Sink abstracts the single shared audio output so the engine's control
// flow can be exercised without a real device.
type Sink interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Clear()
	Lock()
	Unlock()
}

// speakerSink is the production sink backed by the beep speaker.
type speakerSink struct{}

// NewSpeakerSink returns the sink that drives the real audio device.
func NewSpeakerSink() Sink {
	return speakerSink{}
}

func (speakerSink) Init(sampleRate beep.SampleRate, bufferSize int) error {
	return speaker.Init(sampleRate, bufferSize)
}

func (speakerSink) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerSink) Clear()               { speaker.Clear() }
func (speakerSink) Lock()                { speaker.Lock() }
func (speakerSink) Unlock()              { speaker.Unlock() }
