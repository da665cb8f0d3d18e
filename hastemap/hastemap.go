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
// Package hastemap indexes declared module/package names ("haste"
// names, after the convention of declaring a module's global name via
// an @providesModule docblock tag) to concrete files, keyed by
// platform, with a fatal collision rule and incremental update on
// filesystem change.
package hastemap

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/modulecache"
)

// Generic is the reserved platform key for unqualified files.
const Generic = "generic"

// Native is the reserved platform key for ".native.ext" files.
const Native = "native"

// HasteCollisionError reports two files declaring the same name at the
// same platform.
type HasteCollisionError struct {
	Name             string
	Platform         string
	ExistingPath     string
	ConflictingPath  string
}

func (e *HasteCollisionError) Error() string {
	return fmt.Sprintf("hastemap: %q (%s) declared by both %s and %s", e.Name, e.Platform, e.ExistingPath, e.ConflictingPath)
}

// Entry identifies the file backing a haste name at some platform.
type Entry struct {
	Path      string
	IsPackage bool
}

// HasteMap maps name -> platform -> Entry.
type HasteMap struct {
	fs                   *fastfs.Fastfs
	modules              *modulecache.Cache
	platforms            []string
	preferNativePlatform bool

	mu        sync.RWMutex
	byName    map[string]map[string]Entry
	nameByPath map[string]nameEntry // reverse index for processFileChange
}

type nameEntry struct {
	name     string
	platform string
}

// Build scans every source file (by projectExts) and every package.json
// under fsys, indexing haste-eligible ones into a new HasteMap. Whether
// a node_modules file is haste-eligible at all is decided upstream by
// modulecache's hasteWhitelisted (threaded into the Module it hands
// back from GetModule); this package only asks m.IsHaste().
func Build(fsys *fastfs.Fastfs, modules *modulecache.Cache, projectExts []string, platforms []string, preferNativePlatform bool) (*HasteMap, error) {
	hm := &HasteMap{
		fs:                   fsys,
		modules:              modules,
		platforms:            platforms,
		preferNativePlatform: preferNativePlatform,
		byName:               make(map[string]map[string]Entry),
		nameByPath:           make(map[string]nameEntry),
	}

	for _, path := range fsys.FindFilesByExts(projectExts) {
		if err := hm.indexModule(path); err != nil {
			return nil, err
		}
	}

	pkgRe := regexp.MustCompile(`/package\.json$`)
	for _, path := range fsys.MatchFilesByPattern(pkgRe) {
		if err := hm.indexPackage(path); err != nil {
			return nil, err
		}
	}

	return hm, nil
}

func (hm *HasteMap) indexModule(path string) error {
	m := hm.modules.GetModule(path)
	if !m.IsHaste() {
		return nil
	}
	name, err := m.Name()
	if err != nil || name == "" {
		return nil
	}
	platform := hm.platformOf(path)
	return hm.insert(name, platform, Entry{Path: path}, false)
}

func (hm *HasteMap) indexPackage(pkgJSONPath string) error {
	dir := filepath.Dir(pkgJSONPath)
	pkg, err := hm.modules.GetPackage(dir)
	if err != nil || pkg == nil || !pkg.IsHaste() {
		return nil
	}
	return hm.insert(pkg.Name(), Generic, Entry{Path: dir, IsPackage: true}, true)
}

// platformOf determines the platform tag of a file from its basename,
// recognizing the reserved "native" tag and any configured platform.
func (hm *HasteMap) platformOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	if strings.HasSuffix(stem, ".native") {
		return Native
	}
	for _, p := range hm.platforms {
		if strings.HasSuffix(stem, "."+p) {
			return p
		}
	}
	return Generic
}

// insert applies the collision rule: a Module overrides an existing
// Package at the same (name, platform); any other same-slot collision
// at a different path is fatal.
func (hm *HasteMap) insert(name, platform string, e Entry, isPackage bool) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	platforms, ok := hm.byName[name]
	if !ok {
		platforms = make(map[string]Entry)
		hm.byName[name] = platforms
	}

	existing, exists := platforms[platform]
	if exists && existing.Path != e.Path {
		overridable := existing.IsPackage && !isPackage
		if !overridable {
			return &HasteCollisionError{Name: name, Platform: platform, ExistingPath: existing.Path, ConflictingPath: e.Path}
		}
	}

	platforms[platform] = e
	hm.nameByPath[e.Path] = nameEntry{name: name, platform: platform}
	return nil
}

// GetModule looks up name at platform, falling back to native (if
// preferNativePlatform) then generic. Returns the zero Entry and false
// on a miss.
func (hm *HasteMap) GetModule(name, platform string) (Entry, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	platforms, ok := hm.byName[name]
	if !ok {
		return Entry{}, false
	}

	if platform != "" {
		if e, ok := platforms[platform]; ok {
			return e, true
		}
	}
	if hm.preferNativePlatform {
		if e, ok := platforms[Native]; ok {
			return e, true
		}
	}
	if e, ok := platforms[Generic]; ok {
		return e, true
	}
	return Entry{}, false
}

// ProcessFileChange removes any existing entry pointing at absPath,
// then re-indexes the file if it still exists (kind != delete).
func (hm *HasteMap) ProcessFileChange(kind fastfs.ChangeKind, absPath string) error {
	hm.mu.Lock()
	if ne, ok := hm.nameByPath[absPath]; ok {
		if platforms, ok := hm.byName[ne.name]; ok {
			if cur, ok := platforms[ne.platform]; ok && cur.Path == absPath {
				delete(platforms, ne.platform)
			}
		}
		delete(hm.nameByPath, absPath)
	}
	hm.mu.Unlock()

	if kind == fastfs.Delete {
		return nil
	}

	if strings.HasSuffix(absPath, "/package.json") {
		return hm.indexPackage(absPath)
	}
	return hm.indexModule(absPath)
}
