package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/track"
)

var errNotInstalled = errors.New("yt-dlp is not available")

// IsNotInstalled reports whether an error means yt-dlp needs installing.
func IsNotInstalled(err error) bool {
	return errors.Is(err, errNotInstalled)
}

// Download extracts a video's audio as mp3 into the app's download
// directory and returns the path of the resulting file.
func (f *Fetcher) Download(ctx context.Context, appID int, videoURL string) (string, error) {
	if appID <= 0 {
		return "", fmt.Errorf("invalid app id %d", appID)
	}
	inv, ok := f.resolveInvocation()
	if !ok {
		return "", errNotInstalled
	}
	normalized, err := NormalizeURL(videoURL)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(f.DownloadsDir, strconv.Itoa(appID))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	stdout, stderr, err := f.runner.Run(ctx, downloadTimeout, inv.Path,
		"--no-warnings",
		"--no-playlist",
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"--restrict-filenames",
		"--force-overwrites",
		"--paths", dir,
		"-o", "%(title).150B [%(id)s].%(ext)s",
		"--print", "after_move:filepath",
		normalized,
	)
	if err != nil {
		return "", commandError("download failed", stderr, stdout, err)
	}

	path := downloadedPath(strings.Split(stdout, "\n"), dir)
	if path == "" {
		path = newestAudioFile(dir)
	}
	if path == "" {
		return "", fmt.Errorf("download completed but no audio file was found")
	}

	log.Debug().Int("app_id", appID).Str("path", path).Msg("Audio downloaded")
	return path, nil
}

// downloadedPath finds the final file path yt-dlp printed, scanning from
// the last line backwards since progress noise can precede it.
func downloadedPath(lines []string, baseDir string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		raw := strings.TrimSpace(lines[i])
		if raw == "" {
			continue
		}
		candidate := raw
		if !filepath.IsAbs(candidate) {
			candidate = filepath.Join(baseDir, candidate)
		}
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if track.IsSupportedAudio(candidate) {
			return candidate
		}
	}
	return ""
}

// newestAudioFile is the fallback when the printed path is unusable.
func newestAudioFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var newest string
	var newestMod int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !track.IsSupportedAudio(path) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mod := info.ModTime().UnixNano(); newest == "" || mod > newestMod {
			newest = path
			newestMod = mod
		}
	}
	return newest
}

// commandError condenses a failed command's output into one line.
func commandError(fallback, stderr, stdout string, err error) error {
	msg := lastLine(stderr)
	if out := lastLine(stdout); out != "" {
		if msg != "" {
			msg = msg + " | " + out
		} else {
			msg = out
		}
	}
	if msg == "" {
		return fmt.Errorf("%s: %w", fallback, err)
	}
	if len(msg) > 220 {
		msg = msg[:217] + "..."
	}
	return fmt.Errorf("%s: %s", fallback, msg)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
