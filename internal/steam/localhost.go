package steam

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var runningAppIDRe = regexp.MustCompile(`"RunningAppID"\s+"(\d+)"`)

// LocalHost answers host queries from Steam's on-disk state. It covers
// running-app detection (registry.vdf) and display mode (gamescope process
// presence); focus and route need the frontend and report ErrUnavailable
// here, which the signals treat as "hold last known".
type LocalHost struct {
	// RegistryPaths are candidate locations of Steam's registry.vdf.
	RegistryPaths []string
	// ProcRoot is the procfs mount used for the gamescope scan.
	ProcRoot string
}

func NewLocalHost() *LocalHost {
	home, _ := os.UserHomeDir()
	return &LocalHost{
		RegistryPaths: []string{
			filepath.Join(home, ".steam", "registry.vdf"),
			filepath.Join(home, ".steam", "steam", "registry.vdf"),
		},
		ProcRoot: "/proc",
	}
}

func (h *LocalHost) FocusedApp() (int, error) {
	return 0, ErrUnavailable
}

func (h *LocalHost) CurrentRoute() (Route, error) {
	return Route{}, ErrUnavailable
}

// RunningApps reports the single app registry.vdf marks as running. The
// registry does not distinguish launching from started, so the app is
// always reported as started.
func (h *LocalHost) RunningApps() ([]RunningApp, error) {
	for _, path := range h.RegistryPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		match := runningAppIDRe.FindSubmatch(data)
		if match == nil {
			continue
		}
		id, err := strconv.Atoi(string(match[1]))
		if err != nil || id <= 0 {
			return nil, nil
		}
		return []RunningApp{{AppID: id, State: RunStateStarted}}, nil
	}
	return nil, fmt.Errorf("no readable registry.vdf: %w", ErrUnavailable)
}

// DesktopMode reports desktop UI when no gamescope compositor process is
// found. On a Deck the gamepad UI always runs under gamescope.
func (h *LocalHost) DesktopMode() (bool, error) {
	entries, err := os.ReadDir(h.ProcRoot)
	if err != nil {
		return false, fmt.Errorf("failed to scan %s: %w", h.ProcRoot, ErrUnavailable)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join(h.ProcRoot, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(comm)) == "gamescope" {
			return false, nil
		}
	}
	return true, nil
}
