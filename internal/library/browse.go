package library

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// DirListing is one level of the file browser.
type DirListing struct {
	Path  string   `json:"path"`
	Dirs  []string `json:"dirs"`
	Files []string `json:"files"`
}

// ListDir lists a directory for the track picker. Unreadable entries are
// skipped; a missing path falls back to its parent and finally to the home
// directory.
func ListDir(path string) DirListing {
	base := path
	if base == "" {
		base, _ = os.UserHomeDir()
	}
	resolved, err := filepath.Abs(expandHome(base))
	if err != nil {
		resolved, _ = os.UserHomeDir()
	}

	if info, err := os.Stat(resolved); err != nil || !info.IsDir() {
		parent := filepath.Dir(resolved)
		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			resolved = parent
		} else {
			resolved, _ = os.UserHomeDir()
		}
	}

	listing := DirListing{
		Path:  resolved,
		Dirs:  []string{},
		Files: []string{},
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		log.Error().Err(err).Str("dir", resolved).Msg("Failed to list directory")
		return listing
	}

	for _, entry := range entries {
		if entry.IsDir() {
			listing.Dirs = append(listing.Dirs, entry.Name())
		} else if entry.Type().IsRegular() {
			listing.Files = append(listing.Files, entry.Name())
		}
	}

	lower := func(s []string) func(i, j int) bool {
		return func(i, j int) bool {
			return strings.ToLower(s[i]) < strings.ToLower(s[j])
		}
	}
	sort.Slice(listing.Dirs, lower(listing.Dirs))
	sort.Slice(listing.Files, lower(listing.Files))

	return listing
}
