// Package fetch acquires new media through yt-dlp: searching, preview
// stream resolution, and audio downloads. It also manages a self-contained
// yt-dlp binary so the feature works on hosts without one installed.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Source says where the yt-dlp executable came from.
type Source string

const (
	SourceNone    Source = "none"
	SourceVenv    Source = "venv"
	SourceSystem  Source = "system"
	SourceManaged Source = "managed"
)

const (
	versionTimeout  = 20 * time.Second
	commandTimeout  = 90 * time.Second
	downloadTimeout = 15 * time.Minute
	httpTimeout     = 3 * time.Minute
)

// releaseURLs are tried in order when installing the managed binary.
var releaseURLs = []string{
	"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp",
	"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux",
}

// Runner executes an external command and returns its combined streams.
// Abstracted so command handling is testable without yt-dlp present.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (stdout, stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Str("command", name).Strs("args", args).Msg("Executing command")

	cmd := exec.CommandContext(ctx, name, args...)
	// The host can inject loader library paths that break Python tools.
	cmd.Env = sanitizedEnviron()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

func sanitizedEnviron() []string {
	env := os.Environ()
	cleaned := env[:0]
	for _, kv := range env {
		switch {
		case strings.HasPrefix(kv, "LD_LIBRARY_PATH="),
			strings.HasPrefix(kv, "PYTHONHOME="),
			strings.HasPrefix(kv, "PYTHONPATH="):
			continue
		}
		cleaned = append(cleaned, kv)
	}
	return cleaned
}

// Invocation is a resolved way to run yt-dlp.
type Invocation struct {
	Path   string
	Source Source
}

// Status reports whether and how yt-dlp is available.
type Status struct {
	Installed bool
	Path      string
	Source    Source
	Version   string
}

// Fetcher resolves and runs yt-dlp.
type Fetcher struct {
	// VenvBin is an optional virtualenv yt-dlp checked first.
	VenvBin string
	// UserBin is the per-user install location checked after PATH.
	UserBin string
	// BinDir holds the managed binary installed by Update.
	BinDir string
	// DownloadsDir is where downloaded audio lands, one subdir per app.
	DownloadsDir string

	runner Runner
	http   *resty.Client

	// releases overrides releaseURLs in tests.
	releases []string
}

// New creates a fetcher rooted under the given config directory.
func New(configDir string) *Fetcher {
	home, _ := os.UserHomeDir()
	return &Fetcher{
		VenvBin:      filepath.Join(configDir, "venv", "bin", "yt-dlp"),
		UserBin:      filepath.Join(home, ".local", "bin", "yt-dlp"),
		BinDir:       filepath.Join(configDir, "bin"),
		DownloadsDir: filepath.Join(configDir, "downloads"),
		runner:       execRunner{},
		http: resty.New().
			SetTimeout(httpTimeout).
			SetHeader("User-Agent", "themedeckd/1.0"),
	}
}

func (f *Fetcher) managedBin() string {
	return filepath.Join(f.BinDir, "yt-dlp")
}

// resolveInvocation finds a usable yt-dlp: the venv copy, then the system
// PATH, then the per-user install, then the managed copy.
func (f *Fetcher) resolveInvocation() (Invocation, bool) {
	if isExecutable(f.VenvBin) {
		return Invocation{Path: f.VenvBin, Source: SourceVenv}, true
	}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		return Invocation{Path: path, Source: SourceSystem}, true
	}
	if isExecutable(f.UserBin) {
		return Invocation{Path: f.UserBin, Source: SourceSystem}, true
	}
	if managed := f.managedBin(); isExecutable(managed) {
		return Invocation{Path: managed, Source: SourceManaged}, true
	}
	return Invocation{Source: SourceNone}, false
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}

// Status reports the current yt-dlp availability, including its version
// when it responds.
func (f *Fetcher) Status(ctx context.Context) Status {
	inv, ok := f.resolveInvocation()
	if !ok {
		return Status{Source: SourceNone}
	}

	status := Status{Installed: true, Path: inv.Path, Source: inv.Source}
	if version, err := f.version(ctx, inv.Path); err == nil {
		status.Version = version
	}
	return status
}

func (f *Fetcher) version(ctx context.Context, bin string) (string, error) {
	stdout, _, err := f.runner.Run(ctx, versionTimeout, bin, "--version")
	if err != nil {
		return "", fmt.Errorf("failed to query yt-dlp version: %w", err)
	}
	version := strings.TrimSpace(stdout)
	if version == "" {
		return "", fmt.Errorf("yt-dlp printed no version")
	}
	if idx := strings.IndexByte(version, '\n'); idx >= 0 {
		version = version[:idx]
	}
	return version, nil
}

// Update installs or refreshes the managed yt-dlp binary, unless a venv or
// system copy is already available. The binary is downloaded to a temp
// file, validated, made executable and renamed into place.
func (f *Fetcher) Update(ctx context.Context) (Status, error) {
	status := f.Status(ctx)
	if status.Installed && (status.Source == SourceVenv || status.Source == SourceSystem) {
		log.Debug().Str("source", string(status.Source)).Str("version", status.Version).
			Msg("yt-dlp already available")
		return status, nil
	}

	if err := os.MkdirAll(f.BinDir, 0755); err != nil {
		return status, fmt.Errorf("failed to create bin directory: %w", err)
	}

	if err := f.downloadBinary(ctx); err != nil {
		return f.Status(ctx), fmt.Errorf("failed to update yt-dlp: %w", err)
	}

	if _, err := f.version(ctx, f.managedBin()); err != nil {
		return f.Status(ctx), fmt.Errorf("installed yt-dlp is not runnable: %w", err)
	}

	status = f.Status(ctx)
	log.Debug().Str("version", status.Version).Msg("yt-dlp updated")
	return status, nil
}

func (f *Fetcher) downloadBinary(ctx context.Context) error {
	var lastErr error
	for _, url := range f.releaseSources() {
		resp, err := f.http.R().SetContext(ctx).Get(url)
		if err != nil {
			lastErr = err
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("release download returned status %d", resp.StatusCode())
			continue
		}

		data := resp.Body()
		if !validBinary(data) {
			lastErr = fmt.Errorf("downloaded file from %s is not a yt-dlp binary", url)
			continue
		}

		tmp, err := os.CreateTemp(f.BinDir, "yt-dlp-")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpName := tmp.Name()
		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return fmt.Errorf("failed to write binary: %w", err)
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to close binary: %w", err)
		}
		if err := os.Chmod(tmpName, 0755); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to mark binary executable: %w", err)
		}
		if err := os.Rename(tmpName, f.managedBin()); err != nil {
			os.Remove(tmpName)
			return fmt.Errorf("failed to install binary: %w", err)
		}
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no release sources configured")
	}
	return lastErr
}

func (f *Fetcher) releaseSources() []string {
	if len(f.releases) > 0 {
		return f.releases
	}
	return releaseURLs
}

// validBinary rejects downloads that are obviously not a yt-dlp
// executable: error pages served with status 200, truncated bodies.
func validBinary(data []byte) bool {
	if len(data) < 64 {
		return false
	}
	head := bytes.ToLower(data[:min(len(data), 4096)])
	if bytes.Contains(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html")) {
		return false
	}
	switch {
	case bytes.HasPrefix(data, []byte("\x7fELF")),
		bytes.HasPrefix(data, []byte("#!")),
		bytes.HasPrefix(data, []byte("MZ")):
		return true
	}
	return len(data) > 1024*1024
}
