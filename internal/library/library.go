// Package library persists context-to-track assignments in a single JSON
// registry. Every mutation rewrites the registry atomically and returns the
// full updated snapshot, so consumers never merge partial state.
package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/themedeck/themedeckd/internal/track"
)

const (
	TracksFileName = "tracks.json"

	globalKey = "__global__"
	storeKey  = "__store__"
)

// record is the on-disk form of one assignment.
type record struct {
	AppID       int     `json:"app_id,omitempty"`
	Scope       string  `json:"scope,omitempty"`
	Path        string  `json:"path"`
	Filename    string  `json:"filename"`
	Volume      float64 `json:"volume"`
	StartOffset float64 `json:"start_offset"`
	Loop        bool    `json:"loop"`
}

// Library owns the track registry file.
type Library struct {
	mu        sync.RWMutex
	path      string
	records   map[string]record
	listeners map[int]func()
	nextID    int
}

// DefaultPath returns the registry location under the user config dir.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config/themedeck", TracksFileName), nil
}

// New loads the registry at path, backfilling the loop flag for entries
// written before it existed. A missing or unreadable file yields an empty
// registry rather than an error.
func New(path string) (*Library, error) {
	l := &Library{
		path:      path,
		records:   make(map[string]record),
		listeners: make(map[int]func()),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Str("file", path).Msg("Failed to read track registry, starting empty")
		}
		return l, nil
	}

	var records map[string]record
	if err := json.Unmarshal(data, &records); err != nil {
		log.Error().Err(err).Str("file", path).Msg("Failed to parse track registry, starting empty")
		return l, nil
	}

	var raw map[string]map[string]json.RawMessage
	_ = json.Unmarshal(data, &raw)

	changed := false
	for key, rec := range records {
		// Entries predating the loop flag default to looping.
		if _, ok := raw[key]["loop"]; !ok && !rec.Loop {
			rec.Loop = true
			records[key] = rec
			changed = true
		}
	}
	l.records = records

	if changed {
		if err := l.save(); err != nil {
			log.Warn().Err(err).Msg("Failed to persist loop backfill")
		}
	}

	return l, nil
}

func contextKey(ctx track.ContextID) (string, error) {
	switch {
	case ctx.IsGame():
		return strconv.Itoa(int(ctx)), nil
	case ctx == track.AmbientContext:
		return globalKey, nil
	case ctx == track.StoreContext:
		return storeKey, nil
	}
	return "", fmt.Errorf("invalid track context: %s", ctx)
}

func keyContext(key string) (track.ContextID, bool) {
	switch key {
	case globalKey:
		return track.AmbientContext, true
	case storeKey:
		return track.StoreContext, true
	}
	id, err := strconv.Atoi(key)
	if err != nil || id <= 0 {
		return track.NoContext, false
	}
	return track.ContextID(id), true
}

func (r record) toTrack(ctx track.ContextID) track.Track {
	return track.Track{
		Context:     ctx,
		Path:        r.Path,
		Name:        r.Filename,
		Volume:      r.Volume,
		StartOffset: r.StartOffset,
		Loop:        r.Loop,
	}
}

// Tracks returns the full registry snapshot, singletons included.
func (l *Library) Tracks() map[track.ContextID]track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Library) snapshotLocked() map[track.ContextID]track.Track {
	out := make(map[track.ContextID]track.Track, len(l.records))
	for key, rec := range l.records {
		ctx, ok := keyContext(key)
		if !ok {
			continue
		}
		out[ctx] = rec.toTrack(ctx)
	}
	return out
}

// Track returns the assignment for one context, or nil.
func (l *Library) Track(ctx track.ContextID) *track.Track {
	key, err := contextKey(ctx)
	if err != nil {
		return nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[key]
	if !ok {
		return nil
	}
	t := rec.toTrack(ctx)
	return &t
}

// AmbientTrack returns the ambient singleton assignment, or nil.
func (l *Library) AmbientTrack() *track.Track {
	return l.Track(track.AmbientContext)
}

// StoreTrack returns the storefront singleton assignment, or nil.
func (l *Library) StoreTrack() *track.Track {
	return l.Track(track.StoreContext)
}

// SetTrack assigns a media file to a context, preserving the previous
// volume, start offset and loop flag for that context.
func (l *Library) SetTrack(ctx track.ContextID, path, filename string) (map[track.ContextID]track.Track, error) {
	key, err := contextKey(ctx)
	if err != nil {
		return nil, err
	}

	resolved, err := validateMediaFile(path)
	if err != nil {
		log.Error().Err(err).Str("context", ctx.String()).Str("path", path).Msg("set track failed")
		return nil, err
	}

	l.mu.Lock()
	prev, had := l.records[key]
	rec := record{
		Path:     resolved,
		Filename: filename,
		Volume:   1.0,
		Loop:     true,
	}
	if ctx.IsGame() {
		rec.AppID = int(ctx)
	} else if ctx == track.AmbientContext {
		rec.Scope = "global"
	} else {
		rec.Scope = "store"
	}
	if had {
		rec.Volume = prev.Volume
		rec.StartOffset = prev.StartOffset
		rec.Loop = prev.Loop
	}
	l.records[key] = rec
	return l.commitLocked()
}

// SetVolume updates the per-track volume for an assigned context.
func (l *Library) SetVolume(ctx track.ContextID, volume float64) (map[track.ContextID]track.Track, error) {
	return l.mutate(ctx, func(rec *record) {
		rec.Volume = track.ClampVolume(volume)
	})
}

// SetStartOffset updates the intro skip for an assigned context.
func (l *Library) SetStartOffset(ctx track.ContextID, offset float64) (map[track.ContextID]track.Track, error) {
	return l.mutate(ctx, func(rec *record) {
		rec.StartOffset = track.ClampStartOffset(offset)
	})
}

// SetLoop updates the loop flag for an assigned context.
func (l *Library) SetLoop(ctx track.ContextID, loop bool) (map[track.ContextID]track.Track, error) {
	return l.mutate(ctx, func(rec *record) {
		rec.Loop = loop
	})
}

// Remove deletes the assignment for a context. Removing an absent context
// is not an error.
func (l *Library) Remove(ctx track.ContextID) (map[track.ContextID]track.Track, error) {
	key, err := contextKey(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	delete(l.records, key)
	return l.commitLocked()
}

func (l *Library) mutate(ctx track.ContextID, apply func(*record)) (map[track.ContextID]track.Track, error) {
	key, err := contextKey(ctx)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	rec, ok := l.records[key]
	if !ok {
		l.mu.Unlock()
		return nil, fmt.Errorf("no track found for context %s", ctx)
	}
	apply(&rec)
	l.records[key] = rec
	return l.commitLocked()
}

// commitLocked saves, snapshots, releases the lock and notifies listeners.
func (l *Library) commitLocked() (map[track.ContextID]track.Track, error) {
	err := l.save()
	snapshot := l.snapshotLocked()
	listeners := make([]func(), 0, len(l.listeners))
	for _, fn := range l.listeners {
		listeners = append(listeners, fn)
	}
	l.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return snapshot, err
}

// Subscribe registers a change listener and returns an unsubscribe func.
func (l *Library) Subscribe(listener func()) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = listener
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// save writes the registry atomically using temp file + rename.
// Must be called with the lock held.
func (l *Library) save() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal track registry: %w", err)
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write track registry: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename track registry: %w", err)
	}
	return nil
}

// validateMediaFile resolves the path and checks it is a readable file.
func validateMediaFile(path string) (string, error) {
	resolved, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("file not found or inaccessible: %s", resolved)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", fmt.Errorf("permission denied: %s", resolved)
	}
	f.Close()

	return resolved, nil
}

func expandHome(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
