package audio

import (
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/rs/zerolog/log"
)

// Cache holds decoded audio keyed by media path. An entry is reused only
// while the source file's modification time is unchanged.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	buffer  *beep.Buffer
	format  beep.Format
	modTime time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the decoded buffer for a media path, decoding on a miss or
// when the source file changed since it was cached.
func (c *Cache) Get(path string) (*beep.Buffer, beep.Format, error) {
	info, err := os.Stat(path)
	var modTime time.Time
	if err == nil {
		modTime = info.ModTime()
	}

	c.mu.Lock()
	entry, ok := c.entries[path]
	if ok && err == nil && entry.modTime.Equal(modTime) {
		c.mu.Unlock()
		log.Debug().Str("path", path).Msg("Decoded audio served from cache")
		return entry.buffer, entry.format, nil
	}
	c.mu.Unlock()

	buffer, format, err := DecodeFile(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	c.mu.Lock()
	c.entries[path] = &cacheEntry{
		buffer:  buffer,
		format:  format,
		modTime: modTime,
	}
	c.mu.Unlock()

	log.Debug().Str("path", path).Int("samples", buffer.Len()).Msg("Decoded audio cached")
	return buffer, format, nil
}

// Invalidate drops the entry for one media path.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Retain drops every entry whose path is not in keep. Called when the
// track registry changes so removed tracks release their decoded audio.
func (c *Cache) Retain(keep map[string]bool) {
	c.mu.Lock()
	for path := range c.entries {
		if !keep[path] {
			delete(c.entries, path)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries. Called on shutdown.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
