// Package steam observes the host platform's state: which app is focused,
// which apps are running, whether the desktop UI is active, and whether the
// storefront is in view. Every observation is best-effort; the signal
// wrappers hold the last known value whenever the host cannot answer.
package steam

import "errors"

// ErrUnavailable is returned by host queries that cannot be answered right
// now. Signals treat it as "hold the last known value".
var ErrUnavailable = errors.New("host signal unavailable")

// RunState describes how far along a running app is.
type RunState int

const (
	RunStateLaunching RunState = iota
	RunStateStarted
)

// RunningApp is one app the host reports as launching or started.
type RunningApp struct {
	AppID int
	State RunState
}

// Route is the host UI's current location.
type Route struct {
	// AppID is non-zero when the UI shows a specific app's page.
	AppID int
	// Store is true when the UI shows the storefront.
	Store bool
	// AssignmentView is true when the UI shows the track-assignment view.
	AssignmentView bool
}

// Host answers point-in-time questions about the platform. Implementations
// may fail with ErrUnavailable at any time.
type Host interface {
	FocusedApp() (int, error)
	RunningApps() ([]RunningApp, error)
	DesktopMode() (bool, error)
	CurrentRoute() (Route, error)
}
