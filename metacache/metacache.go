/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package metacache is the on-disk persistent metadata cache: the most
// recent successful transform or docblock-extraction result per
// (absolute path, field, transformOptions hash), validated against the
// source file's mtime on load and flushed to disk on a debounced
// timer rather than on every write.
package metacache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"hastegraph.dev/hastegraph/fs"
	"hastegraph.dev/hastegraph/transform"
)

// Key identifies one cached field: the absolute source path, the field
// name ("transform" or "docblock", for example), and a stable hash of
// the transformOptions the value was produced under.
type Key struct {
	Path                 string
	Field                string
	TransformOptionsHash string
}

// HashOptions produces a stable hash of opts, built from transform.Options'
// own Key method (already stable: its Extra map is sorted before
// serializing) rather than re-deriving one from scratch.
func HashOptions(opts transform.Options) string {
	sum := sha256.Sum256([]byte(opts.Key()))
	return hex.EncodeToString(sum[:])
}

type entry struct {
	Key     Key
	Value   json.RawMessage
	ModTime int64 // Unix nanoseconds, the source file's mtime at write time
}

// Cache is a debounced, mtime-validated on-disk key/value store.
type Cache struct {
	fsys     fs.FileSystem
	filePath string
	debounce time.Duration

	mu      sync.Mutex
	entries map[string]entry
	timer   *time.Timer
	dirty   bool
}

// New loads filePath (if it exists) into memory and returns a Cache
// that persists writes to it, debounced by debounce.
func New(fsys fs.FileSystem, filePath string, debounce time.Duration) (*Cache, error) {
	c := &Cache{
		fsys:     fsys,
		filePath: filePath,
		debounce: debounce,
		entries:  make(map[string]entry),
	}

	if !fsys.Exists(filePath) {
		return c, nil
	}
	data, err := fsys.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var stored []entry
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	for _, e := range stored {
		c.entries[keyString(e.Key)] = e
	}
	return c, nil
}

func keyString(k Key) string {
	return k.Path + "\x00" + k.Field + "\x00" + k.TransformOptionsHash
}

// Get returns the cached raw value for k if present and currentModTime
// (the source file's current mtime, in Unix nanoseconds, as observed by
// the caller) matches the value recorded when it was written; a stale
// or missing entry reports ok=false.
func (c *Cache) Get(k Key, currentModTime int64) (json.RawMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[keyString(k)]
	if !ok || e.ModTime != currentModTime {
		return nil, false
	}
	return e.Value, true
}

// Set records value under k, stamped with modTime, and schedules a
// debounced flush to disk.
func (c *Cache) Set(k Key, modTime int64, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.entries[keyString(k)] = entry{Key: k, Value: data, ModTime: modTime}
	c.dirty = true
	c.scheduleFlushLocked()
	c.mu.Unlock()
	return nil
}

// Invalidate drops k's entry, typically called when its source file
// changes before a new value has been produced for it.
func (c *Cache) Invalidate(k Key) {
	c.mu.Lock()
	delete(c.entries, keyString(k))
	c.dirty = true
	c.scheduleFlushLocked()
	c.mu.Unlock()
}

// scheduleFlushLocked starts (or leaves running) a debounce timer that
// calls flush once it fires. Must be called with c.mu held.
func (c *Cache) scheduleFlushLocked() {
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.debounce, c.flush)
}

func (c *Cache) flush() {
	c.mu.Lock()
	if !c.dirty {
		c.timer = nil
		c.mu.Unlock()
		return
	}
	stored := make([]entry, 0, len(c.entries))
	for _, e := range c.entries {
		stored = append(stored, e)
	}
	sort.Slice(stored, func(i, j int) bool { return keyString(stored[i].Key) < keyString(stored[j].Key) })
	c.dirty = false
	c.timer = nil
	c.mu.Unlock()

	data, err := json.Marshal(stored)
	if err != nil {
		return
	}
	// Best-effort: a failed flush leaves the in-memory cache authoritative
	// and is retried on the next Set/Invalidate.
	_ = c.fsys.WriteFile(c.filePath, data, 0644)
}

// Flush forces any pending debounced write to happen immediately,
// blocking until it completes. Used by callers shutting down cleanly.
func (c *Cache) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()
	c.flush()
}
