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
// Package modulecache is the deduplicating registry of Module and
// Package instances, keyed by canonical path. It is the ownership root
// for every Module handle held elsewhere in the graph (ResolutionCache,
// HasteMap): nothing outside this package constructs a Module directly.
package modulecache

import (
	"strings"
	"sync"

	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/metacache"
	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/pkgjson"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/transform"
)

// IDEntry records a (kind, path) pair registered under a lower-cased
// identifier, for the case-insensitivity collision guard.
type IDEntry struct {
	Kind string
	Path string
}

// Cache is the registry of Module/Package instances by canonical path.
type Cache struct {
	fs          *fastfs.Fastfs
	extractor   requireextract.Extractor
	transformFn transform.Func
	hasteWhitelisted func(path string) bool
	meta        *metacache.Cache

	mu       sync.Mutex
	modules  map[string]module.Module
	packages map[string]*pkgjson.Package

	// packageForModule caches Fastfs.Closest(path, "package.json")
	// results, keyed by module path; the spec's "weak map" becomes a
	// plain map cleared on eviction, since Go has no ergonomic weak-ref
	// primitive and the cache is already bounded by file-delete eviction.
	packageForModule map[string]string

	moduleIDs map[string]IDEntry
}

// New constructs an empty Cache. extractor and transformFn configure how
// Source modules read their bodies; hasteWhitelisted reports whether a
// given path's package root is in the haste eager-root whitelist (used
// to determine node_modules haste eligibility).
func New(fs *fastfs.Fastfs, extractor requireextract.Extractor, transformFn transform.Func, hasteWhitelisted func(path string) bool) *Cache {
	if hasteWhitelisted == nil {
		hasteWhitelisted = func(string) bool { return false }
	}
	return &Cache{
		fs:               fs,
		extractor:        extractor,
		transformFn:      transformFn,
		hasteWhitelisted: hasteWhitelisted,
		modules:          make(map[string]module.Module),
		packages:         make(map[string]*pkgjson.Package),
		packageForModule: make(map[string]string),
		moduleIDs:        make(map[string]IDEntry),
	}
}

// SetMetaCache attaches an on-disk metadata cache; every Source module
// created by GetModule from this point on consults it for memoized
// transform/extraction results, validated by the source file's mtime.
func (c *Cache) SetMetaCache(mc *metacache.Cache) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta = mc
}

// GetModule returns the Source module for path, creating it on first
// access and returning the same instance on every subsequent call until
// path is deleted (invariant 5).
func (c *Cache) GetModule(path string) module.Module {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[path]; ok {
		return m
	}

	m := module.NewSource(path, c.fs, c, c.extractor, c.transformFn, c.hasteWhitelisted(path))
	if c.meta != nil {
		m.SetMetaCache(c.meta)
	}
	c.modules[path] = m
	c.registerID("source", path)
	return m
}

// GetAssetModule returns the Asset module for path under logical name,
// creating it on first access.
func (c *Cache) GetAssetModule(path, name string) module.Module {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[path]; ok {
		return m
	}
	m := module.NewAsset(path, name)
	c.modules[path] = m
	c.registerID("asset", path)
	return m
}

// GetNullModule returns the Null module standing in for the given
// original specifier, creating it on first access.
func (c *Cache) GetNullModule(specifier string) module.Module {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.modules[specifier]; ok {
		return m
	}
	m := module.NewNull(specifier)
	c.modules[specifier] = m
	return m
}

// GetPackage returns the parsed package.json at dir, creating it on
// first access.
func (c *Cache) GetPackage(dir string) (*pkgjson.Package, error) {
	c.mu.Lock()
	if pkg, ok := c.packages[dir]; ok {
		c.mu.Unlock()
		return pkg, nil
	}
	c.mu.Unlock()

	data, err := c.fs.ReadFile(dir + "/package.json")
	if err != nil {
		return nil, err
	}
	pkg, err := pkgjson.Parse(dir, data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.packages[dir] = pkg
	c.mu.Unlock()
	return pkg, nil
}

// GetPackageForModule finds and returns the package.json owning m's
// path, via Fastfs.Closest, caching the (modulePath -> package.json
// path) mapping for subsequent calls.
func (c *Cache) GetPackageForModule(path string) (*pkgjson.Package, error) {
	c.mu.Lock()
	if dir, ok := c.packageForModule[path]; ok {
		c.mu.Unlock()
		return c.GetPackage(dirOf(dir))
	}
	c.mu.Unlock()

	pkgJSONPath, ok := c.fs.Closest(path, "package.json")
	if !ok {
		return nil, nil
	}
	dir := dirOf(pkgJSONPath)

	c.mu.Lock()
	c.packageForModule[path] = pkgJSONPath
	c.mu.Unlock()

	return c.GetPackage(dir)
}

func dirOf(packageJSONPath string) string {
	idx := strings.LastIndexByte(packageJSONPath, '/')
	if idx < 0 {
		return "."
	}
	return packageJSONPath[:idx]
}

// registerID updates the case-insensitivity collision table. Caller
// must hold c.mu.
func (c *Cache) registerID(kind, path string) {
	key := strings.ToLower(path)
	c.moduleIDs[key] = IDEntry{Kind: kind, Path: path}
}

// HasConflict reports whether path collides, case-insensitively, with a
// different canonical path already registered in the cache.
func (c *Cache) HasConflict(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.moduleIDs[strings.ToLower(path)]
	return ok && entry.Path != path
}

// OnFileChange applies a Fastfs change event to the registry: on change,
// the module and any package.json cache entry for p are evicted so the
// next GetModule/GetPackage call re-reads the new content; on delete the
// module/package record for p is evicted entirely.
func (c *Cache) OnFileChange(kind fastfs.ChangeKind, p string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// c.packages is keyed by owning directory, not by the package.json
	// file path itself, so a package.json edit/delete must evict by
	// dirOf(p) rather than by p.
	if strings.HasSuffix(p, "/package.json") {
		delete(c.packages, dirOf(p))
	}

	switch kind {
	case fastfs.Change:
		delete(c.modules, p)
		delete(c.moduleIDs, strings.ToLower(p))
	case fastfs.Delete:
		delete(c.modules, p)
		delete(c.moduleIDs, strings.ToLower(p))
		for modPath, pkgPath := range c.packageForModule {
			if pkgPath == p || modPath == p {
				delete(c.packageForModule, modPath)
			}
		}
	}
}
