package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// DecodeFile fully decodes a media file into a seekable in-memory buffer.
// Buffering up front makes seeks and repeated plays cheap, at the cost of
// memory proportional to track length, acceptable for short loops.
func DecodeFile(path string) (*beep.Buffer, beep.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to open audio file: %w", err)
	}

	var streamer beep.StreamSeekCloser
	var format beep.Format

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".ogg":
		streamer, format, err = vorbis.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format: %s", ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}

	buffer := beep.NewBuffer(format)
	buffer.Append(streamer)
	decodeErr := streamer.Err()
	streamer.Close()
	f.Close()

	if decodeErr != nil {
		return nil, beep.Format{}, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), decodeErr)
	}

	return buffer, format, nil
}
