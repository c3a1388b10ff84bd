package track

import (
	"fmt"
	"testing"
)

func TestContextIDString(t *testing.T) {
	tests := []struct {
		ctx      ContextID
		expected string
	}{
		{NoContext, "none"},
		{AmbientContext, "ambient"},
		{StoreContext, "store"},
		{ContextID(440), "app:440"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.ctx.String(); got != tt.expected {
				t.Errorf("ContextID(%d).String() = %q, want %q", tt.ctx, got, tt.expected)
			}
		})
	}
}

func TestContextIDIsGame(t *testing.T) {
	tests := []struct {
		ctx      ContextID
		expected bool
	}{
		{NoContext, false},
		{AmbientContext, false},
		{StoreContext, false},
		{ContextID(1), true},
		{ContextID(570), true},
	}

	for _, tt := range tests {
		t.Run(tt.ctx.String(), func(t *testing.T) {
			if got := tt.ctx.IsGame(); got != tt.expected {
				t.Errorf("ContextID(%d).IsGame() = %v, want %v", tt.ctx, got, tt.expected)
			}
		})
	}
}

func TestClampVolume(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{1.7, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("volume_%v", tt.in), func(t *testing.T) {
			if got := ClampVolume(tt.in); got != tt.expected {
				t.Errorf("ClampVolume(%v) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestClampStartOffset(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{-3, 0},
		{0, 0},
		{12.5, 12.5},
		{30, 30},
		{45, 30},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset_%v", tt.in), func(t *testing.T) {
			if got := ClampStartOffset(tt.in); got != tt.expected {
				t.Errorf("ClampStartOffset(%v) = %v, want %v", tt.in, got, tt.expected)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{"explicit name", Track{Path: "/music/a.mp3", Name: "Main Theme"}, "Main Theme"},
		{"falls back to base name", Track{Path: "/music/boss_theme.flac"}, "boss_theme.flac"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.track.DisplayName(); got != tt.expected {
				t.Errorf("DisplayName() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestIsSupportedAudio(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"/music/theme.mp3", true},
		{"/music/THEME.MP3", true},
		{"/music/theme.flac", true},
		{"/music/theme.ogg", true},
		{"/music/theme.wav", true},
		{"/music/theme.m4a", false},
		{"/music/theme.txt", false},
		{"/music/theme", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := IsSupportedAudio(tt.path); got != tt.expected {
				t.Errorf("IsSupportedAudio(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}
