// Package audio reads media files and caches their decoded form for the
// playback engine.
package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Payload is the raw content of a media file plus the metadata presentation
// needs to serve it.
type Payload struct {
	Data    []byte
	MIME    string
	ModTime time.Time
}

var mimeByExtension = map[string]string{
	".mp3":  "audio/mpeg",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
}

// MIMEForPath returns the MIME type for a media path, defaulting to a
// generic binary type for unknown extensions.
func MIMEForPath(path string) string {
	if mime, ok := mimeByExtension[strings.ToLower(filepath.Ext(path))]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Load reads a media file from disk.
func Load(path string) (*Payload, error) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("audio file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("permission denied: %s", path)
		}
		return nil, fmt.Errorf("failed to read audio file %s: %w", path, err)
	}

	return &Payload{
		Data:    data,
		MIME:    MIMEForPath(path),
		ModTime: info.ModTime(),
	}, nil
}
