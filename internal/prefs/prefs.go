// Package prefs holds the persisted user preferences that drive playback.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gdamore/tcell/v2"
	"gopkg.in/yaml.v3"
)

const (
	AppName        = "themedeckd"
	AppDescription = "Context-driven music daemon for the Steam Deck"

	ConfigDir      = ".config/themedeck"
	ConfigFileName = "config.yml"
	DefaultVolume  = 70
	MinVolume      = 0
	MaxVolume      = 100
)

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/themedeck/themedeckd/internal/prefs.AppVersion=1.0.0"
var AppVersion = "dev"

// InterruptionMode controls how interrupted ambient playback resumes.
type InterruptionMode string

const (
	// InterruptStop discards the ambient position on interruption.
	InterruptStop InterruptionMode = "stop"
	// InterruptPause resumes at the exact interrupted position.
	InterruptPause InterruptionMode = "pause"
	// InterruptMute resumes as if playback had continued silently.
	InterruptMute InterruptionMode = "mute"
)

func (m InterruptionMode) Valid() bool {
	switch m {
	case InterruptStop, InterruptPause, InterruptMute:
		return true
	}
	return false
}

// LaunchStopMode controls when a launching game counts as "running".
type LaunchStopMode string

const (
	// StopOnLaunch stops music as soon as a game starts launching.
	StopOnLaunch LaunchStopMode = "launch_start"
	// StopOnGameStart stops music only once the game is fully started.
	StopOnGameStart LaunchStopMode = "game_started"
)

func (m LaunchStopMode) Valid() bool {
	switch m {
	case StopOnLaunch, StopOnGameStart:
		return true
	}
	return false
}

type Theme struct {
	Background string `yaml:"background"`
	Foreground string `yaml:"foreground"`
	Borders    string `yaml:"borders"`
	Highlight  string `yaml:"highlight"`
	MutedColor string `yaml:"muted"`
}

// Prefs is the on-disk preference document.
type Prefs struct {
	Volume                int              `yaml:"volume"`
	AutoPlay              bool             `yaml:"auto_play"`
	AmbientEnabled        bool             `yaml:"ambient_enabled"`
	StoreEnabled          bool             `yaml:"store_enabled"`
	AmbientDisableInStore bool             `yaml:"ambient_disable_in_store"`
	InterruptionMode      InterruptionMode `yaml:"interruption_mode"`
	LaunchStopMode        LaunchStopMode   `yaml:"launch_stop_mode"`
	Theme                 Theme            `yaml:"theme"`
}

// ClampVolume ensures volume is within the valid range [0, 100].
func ClampVolume(volume int) int {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Default() *Prefs {
	return &Prefs{
		Volume:                DefaultVolume,
		AutoPlay:              true,
		AmbientEnabled:        false,
		StoreEnabled:          false,
		AmbientDisableInStore: false,
		InterruptionMode:      InterruptPause,
		LaunchStopMode:        StopOnLaunch,
		Theme: Theme{
			Background: "#1a1b25",
			Foreground: "#a3aacb",
			Borders:    "#40445b",
			Highlight:  "#ff9d65",
			MutedColor: "#fe0702",
		},
	}
}

// Load reads the preference file, falling back to defaults for a missing
// file or unrecognized enum values.
func Load() (*Prefs, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return Default(), err
	}
	return LoadFrom(configPath)
}

func LoadFrom(configPath string) (*Prefs, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return Default(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return Default(), fmt.Errorf("failed to read config file: %w", err)
	}

	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return Default(), fmt.Errorf("failed to parse config file: %w", err)
	}

	p.Volume = ClampVolume(p.Volume)
	if !p.InterruptionMode.Valid() {
		p.InterruptionMode = InterruptPause
	}
	if !p.LaunchStopMode.Valid() {
		p.LaunchStopMode = StopOnLaunch
	}

	return p, nil
}

// Save writes the preferences to disk atomically using temp file + rename.
func (p *Prefs) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return p.SaveTo(configPath)
}

func (p *Prefs) SaveTo(configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func GetColor(colorStr string) tcell.Color {
	if colorStr == "" || colorStr == "default" {
		return tcell.ColorDefault
	}
	return tcell.GetColor(colorStr)
}
