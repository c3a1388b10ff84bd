// Package track defines the data structures for context-to-music assignments.
package track

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ContextID identifies what a track is attached to. Positive values are
// Steam app ids; the negative sentinels name the two singleton contexts.
type ContextID int

const (
	// NoContext means no specific context is focused.
	NoContext ContextID = 0
	// AmbientContext is the singleton context for idle/ambient music.
	AmbientContext ContextID = -1
	// StoreContext is the singleton context for storefront music.
	StoreContext ContextID = -2
)

// IsGame reports whether the id denotes a real game context.
func (c ContextID) IsGame() bool {
	return c > 0
}

func (c ContextID) String() string {
	switch c {
	case NoContext:
		return "none"
	case AmbientContext:
		return "ambient"
	case StoreContext:
		return "store"
	default:
		return fmt.Sprintf("app:%d", int(c))
	}
}

const (
	MinVolume = 0.0
	MaxVolume = 1.0
	// MaxStartOffset bounds the configurable intro skip.
	MaxStartOffset = 30.0
)

// Track is one context-to-music assignment.
type Track struct {
	Context     ContextID `json:"context"`
	Path        string    `json:"path"`
	Name        string    `json:"filename"`
	Volume      float64   `json:"volume"`
	StartOffset float64   `json:"start_offset"` // seconds
	Loop        bool      `json:"loop"`
}

// DisplayName returns the configured name, falling back to the file name.
func (t *Track) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return filepath.Base(t.Path)
}

// ClampVolume ensures volume is within the valid range [0, 1].
func ClampVolume(v float64) float64 {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// ClampStartOffset ensures the start offset is within [0, 30] seconds.
func ClampStartOffset(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > MaxStartOffset {
		return MaxStartOffset
	}
	return v
}

// SupportedExtensions lists the audio formats the engine can decode.
var SupportedExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".wav":  true,
}

// IsSupportedAudio reports whether the path has a decodable audio extension.
func IsSupportedAudio(path string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(path))]
}
