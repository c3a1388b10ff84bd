package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
)

// fakeRunner serves canned command results keyed by the first argument
// that identifies the operation.
type fakeRunner struct {
	stdout string
	stderr string
	err    error

	calls [][]string
}

func (r *fakeRunner) Run(_ context.Context, _ time.Duration, name string, args ...string) (string, string, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.stdout, r.stderr, r.err
}

func newTestFetcher(t *testing.T, runner Runner) *Fetcher {
	t.Helper()
	dir := t.TempDir()
	f := New(dir)
	// Point every lookup location inside the temp dir so the host's real
	// yt-dlp never leaks into the test.
	f.VenvBin = filepath.Join(dir, "venv-yt-dlp")
	f.UserBin = filepath.Join(dir, "user-yt-dlp")
	f.BinDir = filepath.Join(dir, "bin")
	f.DownloadsDir = filepath.Join(dir, "downloads")
	if runner != nil {
		f.runner = runner
	}
	return f
}

func installFake(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
}

func TestResolveInvocationPrecedence(t *testing.T) {
	f := newTestFetcher(t, nil)
	t.Setenv("PATH", t.TempDir()) // empty PATH, no system yt-dlp

	if _, ok := f.resolveInvocation(); ok {
		t.Fatal("Nothing installed, resolution should fail")
	}

	installFake(t, f.managedBin())
	inv, ok := f.resolveInvocation()
	if !ok || inv.Source != SourceManaged {
		t.Errorf("inv = %+v, want managed copy", inv)
	}

	installFake(t, f.UserBin)
	inv, _ = f.resolveInvocation()
	if inv.Source != SourceSystem || inv.Path != f.UserBin {
		t.Errorf("inv = %+v, want user install over managed", inv)
	}

	installFake(t, f.VenvBin)
	inv, _ = f.resolveInvocation()
	if inv.Source != SourceVenv {
		t.Errorf("inv = %+v, want venv copy first", inv)
	}
}

func TestStatusIncludesVersion(t *testing.T) {
	runner := &fakeRunner{stdout: "2025.08.11\n"}
	f := newTestFetcher(t, runner)
	t.Setenv("PATH", t.TempDir())
	installFake(t, f.VenvBin)

	status := f.Status(context.Background())
	if !status.Installed {
		t.Fatal("Installed should be true")
	}
	if status.Version != "2025.08.11" {
		t.Errorf("Version = %q, want 2025.08.11", status.Version)
	}
	if status.Source != SourceVenv {
		t.Errorf("Source = %q, want venv", status.Source)
	}
}

func TestValidBinary(t *testing.T) {
	elf := append([]byte("\x7fELF"), make([]byte, 100)...)
	script := append([]byte("#!/usr/bin/env python3\n"), make([]byte, 100)...)
	htmlBody := []byte("<!DOCTYPE html><html><body>" + strings.Repeat("x", 100) + "</body></html>")

	tests := []struct {
		name     string
		data     []byte
		expected bool
	}{
		{"elf binary", elf, true},
		{"shebang script", script, true},
		{"html error page", htmlBody, false},
		{"too short", []byte("tiny"), false},
		{"large opaque blob", make([]byte, 2*1024*1024), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validBinary(tt.data); got != tt.expected {
				t.Errorf("validBinary = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUpdateInstallsManagedBinary(t *testing.T) {
	payload := append([]byte("#!/usr/bin/env python3\n"), make([]byte, 128)...)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	runner := &fakeRunner{stdout: "2025.08.11\n"}
	f := newTestFetcher(t, runner)
	t.Setenv("PATH", t.TempDir())
	f.http = resty.New()
	urls := []string{server.URL + "/yt-dlp"}
	f.releases = urls

	status, err := f.Update(context.Background())
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if !status.Installed || status.Source != SourceManaged {
		t.Errorf("status = %+v, want installed managed copy", status)
	}

	info, err := os.Stat(f.managedBin())
	if err != nil {
		t.Fatalf("managed binary missing: %v", err)
	}
	if info.Mode()&0111 == 0 {
		t.Error("Installed binary should be executable")
	}
}

func TestUpdateRejectsHTMLPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<!DOCTYPE html><html>release page, not the binary</html>")
	}))
	defer server.Close()

	f := newTestFetcher(t, &fakeRunner{})
	t.Setenv("PATH", t.TempDir())
	f.http = resty.New()
	f.releases = []string{server.URL + "/yt-dlp"}

	if _, err := f.Update(context.Background()); err == nil {
		t.Error("Expected error for an HTML payload")
	}
	if _, err := os.Stat(f.managedBin()); !errors.Is(err, os.ErrNotExist) {
		t.Error("No binary should be installed from an invalid payload")
	}
}

func TestParseSearchOutput(t *testing.T) {
	stdout := strings.Join([]string{
		"abc123\tMain Theme\tSome Channel\t185\thttps://www.youtube.com/watch?v=abc123",
		"def456\tFull OST\tOther Channel\t3600\thttps://www.youtube.com/watch?v=def456",
		"ghi789\tNo URL Entry\tChannel\t90\tNA",
		"\t\t",
		"malformed line without tabs",
		"jkl000\t\t\t\t",
	}, "\n")

	results := parseSearchOutput(stdout)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3: %+v", len(results), results)
	}

	if results[0].Title != "Main Theme" || results[0].Duration != 185 {
		t.Errorf("first result = %+v", results[0])
	}
	// The hour-long OST exceeds the duration cap.
	for _, r := range results {
		if r.ID == "def456" {
			t.Error("Over-long result should be filtered out")
		}
	}
	if results[1].URL != "https://www.youtube.com/watch?v=ghi789" {
		t.Errorf("URL = %q, want synthesized watch URL", results[1].URL)
	}
	if results[2].Title != "jkl000" {
		t.Errorf("Title = %q, want id fallback", results[2].Title)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newTestFetcher(t, &fakeRunner{})
	if _, err := f.Search(context.Background(), "   ", 10); err == nil {
		t.Error("Expected error for empty query")
	}
}

func TestSearchRequiresInstall(t *testing.T) {
	f := newTestFetcher(t, &fakeRunner{})
	t.Setenv("PATH", t.TempDir())
	_, err := f.Search(context.Background(), "portal", 10)
	if !IsNotInstalled(err) {
		t.Errorf("err = %v, want not-installed", err)
	}
}

func TestPreviewStreamURL(t *testing.T) {
	runner := &fakeRunner{stdout: "warning noise\nhttps://cdn.example.com/audio.m4a\n"}
	f := newTestFetcher(t, runner)
	t.Setenv("PATH", t.TempDir())
	installFake(t, f.VenvBin)

	url, err := f.PreviewStreamURL(context.Background(), "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("PreviewStreamURL error: %v", err)
	}
	if url != "https://cdn.example.com/audio.m4a" {
		t.Errorf("url = %q", url)
	}
}

func TestDownloadUsesPrintedPath(t *testing.T) {
	f := newTestFetcher(t, nil)
	t.Setenv("PATH", t.TempDir())
	installFake(t, f.VenvBin)

	appDir := filepath.Join(f.DownloadsDir, "440")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		t.Fatal(err)
	}
	final := filepath.Join(appDir, "Main_Theme [abc123].mp3")
	if err := os.WriteFile(final, []byte("audio"), 0644); err != nil {
		t.Fatal(err)
	}

	f.runner = &fakeRunner{stdout: "[download] progress noise\n" + final + "\n"}

	path, err := f.Download(context.Background(), 440, "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if path != final {
		t.Errorf("path = %q, want %q", path, final)
	}
}

func TestDownloadFallsBackToNewestAudioFile(t *testing.T) {
	f := newTestFetcher(t, nil)
	t.Setenv("PATH", t.TempDir())
	installFake(t, f.VenvBin)

	appDir := filepath.Join(f.DownloadsDir, "440")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		t.Fatal(err)
	}
	older := filepath.Join(appDir, "old.mp3")
	newer := filepath.Join(appDir, "new.mp3")
	if err := os.WriteFile(older, []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newer, []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(older, past, past); err != nil {
		t.Fatal(err)
	}

	f.runner = &fakeRunner{stdout: "no usable path here\n"}

	path, err := f.Download(context.Background(), 440, "https://youtu.be/abc123")
	if err != nil {
		t.Fatalf("Download error: %v", err)
	}
	if path != newer {
		t.Errorf("path = %q, want newest file %q", path, newer)
	}
}

func TestDownloadRejectsInvalidAppID(t *testing.T) {
	f := newTestFetcher(t, &fakeRunner{})
	if _, err := f.Download(context.Background(), 0, "https://youtu.be/abc"); err == nil {
		t.Error("Expected error for app id 0")
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"full watch url", "https://www.youtube.com/watch?v=abc123", "https://www.youtube.com/watch?v=abc123", false},
		{"short url", "https://youtu.be/abc123", "https://youtu.be/abc123", false},
		{"bare domain", "youtube.com/watch?v=abc123", "https://youtube.com/watch?v=abc123", false},
		{"music domain", "music.youtube.com/watch?v=abc123", "https://music.youtube.com/watch?v=abc123", false},
		{"bare video id", "dQw4w9WgXcQ", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"other site", "https://vimeo.com/12345", "", true},
		{"empty", "   ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeURL(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCommandError(t *testing.T) {
	err := commandError("download failed", "ERROR: blocked\n", "progress 50%\nprogress 100%\n", errors.New("exit status 1"))
	msg := err.Error()
	if !strings.Contains(msg, "ERROR: blocked") || !strings.Contains(msg, "progress 100%") {
		t.Errorf("message = %q, want last stderr and stdout lines", msg)
	}
}
