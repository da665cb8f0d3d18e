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
// Package module defines the tagged-variant Module record: a source
// file, an asset, a placeholder null module, or a synthetic polyfill.
// Behaviors that differ per kind (read, readDependencies, isHaste,
// getPackage) are methods on the concrete kind rather than a dispatch
// table, following the fixed, closed set the resolver works against.
package module

import (
	"encoding/json"
	"regexp"
	"sync"

	"hastegraph.dev/hastegraph/metacache"
	"hastegraph.dev/hastegraph/pkgjson"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/transform"
)

// Kind identifies which of the fixed module variants a Module is.
type Kind int

const (
	Source Kind = iota
	Asset
	Null
	Polyfill
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Asset:
		return "asset"
	case Null:
		return "null"
	case Polyfill:
		return "polyfill"
	default:
		return "unknown"
	}
}

// ReadResult is the outcome of reading a module's body.
type ReadResult struct {
	Code         []byte
	Dependencies []string
	ID           string
}

// Module is implemented by every variant. Equality between two Modules
// is path equality; callers compare Path() rather than pointer identity
// since ModuleCache is the sole owner guaranteeing one instance per path.
type Module interface {
	Path() string
	Kind() Kind
	Name() (string, error)
	IsHaste() bool
	GetPackage() (*pkgjson.Package, error)
	ReadDependencies(opts transform.Options) ([]string, error)
	Read() (ReadResult, error)
}

// Equal reports whether two modules refer to the same canonical path.
func Equal(a, b Module) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Path() == b.Path()
}

// providesModuleRe matches the @providesModule/@provides haste
// declaration inside a leading docblock.
var providesModuleRe = regexp.MustCompile(`@provides(?:Module)?\s+(\S+)`)

// HasteNameFromDocblock extracts a declared haste name from a docblock,
// if present.
func HasteNameFromDocblock(docblock []byte) (string, bool) {
	m := providesModuleRe.FindSubmatch(docblock)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// FileReader abstracts the filesystem index a Source module reads from;
// satisfied by *fastfs.Fastfs.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
	ReadWhile(path string, predicate func(chunk []byte, i int, accumulated []byte) bool) ([]byte, error)
	ModTime(path string) (int64, error)
}

// PackageResolver resolves the package.json owning a given module path;
// satisfied by modulecache.Cache.
type PackageResolver interface {
	GetPackageForModule(path string) (*pkgjson.Package, error)
}

// transformCacheEntry memoizes one (Module, transform.Options) read,
// guaranteeing at most one transform per key regardless of concurrent
// callers.
type transformCacheEntry struct {
	once   sync.Once
	result ReadResult
	err    error
}

// SourceModule is an ordinary JavaScript/TypeScript source file.
type SourceModule struct {
	path       string
	fs         FileReader
	packages   PackageResolver
	extractor  requireextract.Extractor
	transform  transform.Func
	hasteWhitelisted bool
	meta       *metacache.Cache

	mu     sync.Mutex
	cache  map[string]*transformCacheEntry
	docblockOnce sync.Once
	docblock     []byte
	docblockErr  error
}

// NewSource constructs a Source-kind module for path. hasteWhitelisted
// should be true when the module's node_modules package root (if any)
// appears in the haste eager-root whitelist, per the haste
// node_modules exclusion rule.
func NewSource(path string, fs FileReader, packages PackageResolver, extractor requireextract.Extractor, tf transform.Func, hasteWhitelisted bool) *SourceModule {
	return &SourceModule{
		path:             path,
		fs:               fs,
		packages:         packages,
		extractor:        extractor,
		transform:        tf,
		hasteWhitelisted: hasteWhitelisted,
		cache:            make(map[string]*transformCacheEntry),
	}
}

// SetMetaCache attaches an on-disk metadata cache that read() consults
// before transforming and extracting, and populates afterward. Optional:
// a module with no metacache simply always does the work in-process,
// memoized per (Module, Options) for the process lifetime by its own
// transformCacheEntry regardless.
func (m *SourceModule) SetMetaCache(mc *metacache.Cache) {
	m.meta = mc
}

func (m *SourceModule) Path() string { return m.path }
func (m *SourceModule) Kind() Kind   { return Source }

// Name returns the module's haste name if declared, else its path.
func (m *SourceModule) Name() (string, error) {
	if name, ok := m.hasteName(); ok {
		return name, nil
	}
	return m.path, nil
}

func (m *SourceModule) hasteName() (string, bool) {
	docblock, err := m.readDocblock()
	if err != nil {
		return "", false
	}
	return HasteNameFromDocblock(docblock)
}

func (m *SourceModule) readDocblock() ([]byte, error) {
	m.docblockOnce.Do(func() {
		docblockEnd := regexp.MustCompile(`\*/`)
		m.docblock, m.docblockErr = m.fs.ReadWhile(m.path, func(chunk []byte, i int, accumulated []byte) bool {
			return i == 0 || !docblockEnd.Match(accumulated)
		})
	})
	return m.docblock, m.docblockErr
}

// IsHaste reports whether this module declares a haste name, or is the
// main entry point of a haste-compatible package, per the resolver's
// node_modules whitelist rule.
func (m *SourceModule) IsHaste() bool {
	if _, ok := m.hasteName(); ok {
		return true
	}
	if !m.hasteWhitelisted {
		return false
	}
	pkg, err := m.GetPackage()
	if err != nil || pkg == nil || !pkg.IsHaste() {
		return false
	}
	return pkg.GetMain() == m.path
}

// GetPackage returns the package.json owning this module, if any.
func (m *SourceModule) GetPackage() (*pkgjson.Package, error) {
	if m.packages == nil {
		return nil, nil
	}
	return m.packages.GetPackageForModule(m.path)
}

// ReadDependencies returns the dependency specifiers extracted from the
// transformed body, reusing the cached transform for opts if present.
func (m *SourceModule) ReadDependencies(opts transform.Options) ([]string, error) {
	result, err := m.read(opts)
	if err != nil {
		return nil, err
	}
	return result.Dependencies, nil
}

// Read transforms and extracts the module's body using zero-value
// transform.Options (the common case of an untransformed read).
func (m *SourceModule) Read() (ReadResult, error) {
	return m.read(transform.Options{})
}

// ReadWithOptions is the full form of Read, accepting explicit
// transform.Options, memoized per-options via the module's own cache.
func (m *SourceModule) ReadWithOptions(opts transform.Options) (ReadResult, error) {
	return m.read(opts)
}

func (m *SourceModule) read(opts transform.Options) (ReadResult, error) {
	key := opts.Key()

	m.mu.Lock()
	entry, ok := m.cache[key]
	if !ok {
		entry = &transformCacheEntry{}
		m.cache[key] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.result, entry.err = m.readUncached(opts)
	})

	return entry.result, entry.err
}

// metaKey identifies this module's cached read result for opts in the
// on-disk metacache, if one is attached.
func (m *SourceModule) metaKey(opts transform.Options) metacache.Key {
	return metacache.Key{Path: m.path, Field: "read", TransformOptionsHash: metacache.HashOptions(opts)}
}

// readUncached performs the actual read: a metacache hit (its mtime
// still matching the file's current mtime) skips the transform and
// extraction work entirely; a miss runs it and, on success, populates
// the metacache for next time.
func (m *SourceModule) readUncached(opts transform.Options) (ReadResult, error) {
	if m.meta != nil {
		if modTime, err := m.fs.ModTime(m.path); err == nil {
			if cached, ok := m.meta.Get(m.metaKey(opts), modTime); ok {
				var result ReadResult
				if err := json.Unmarshal(cached, &result); err == nil {
					return result, nil
				}
			}
		}
	}

	source, err := m.fs.ReadFile(m.path)
	if err != nil {
		return ReadResult{}, err
	}

	tf := m.transform
	if tf == nil {
		tf = transform.Identity
	}
	transformed, err := tf(m.path, source, opts)
	if err != nil {
		return ReadResult{}, err
	}

	deps := transformed.Dependencies
	if m.extractor != nil {
		extracted, err := m.extractor.ExtractRequires(transformed.Code)
		if err != nil {
			return ReadResult{}, err
		}
		deps = append(deps, extracted.Sync...)
	}

	name, _ := m.Name()
	result := ReadResult{Code: transformed.Code, Dependencies: deps, ID: name}

	if m.meta != nil {
		if modTime, mtErr := m.fs.ModTime(m.path); mtErr == nil {
			_ = m.meta.Set(m.metaKey(opts), modTime, result)
		}
	}

	return result, nil
}

// AssetModule is a binary resource file: no dependencies, no code body.
type AssetModule struct {
	path string
	name string
}

// NewAsset constructs an Asset-kind module.
func NewAsset(path, name string) *AssetModule {
	return &AssetModule{path: path, name: name}
}

func (m *AssetModule) Path() string                  { return m.path }
func (m *AssetModule) Kind() Kind                     { return Asset }
func (m *AssetModule) Name() (string, error)          { return m.name, nil }
func (m *AssetModule) IsHaste() bool                  { return false }
func (m *AssetModule) GetPackage() (*pkgjson.Package, error) { return nil, nil }
func (m *AssetModule) ReadDependencies(transform.Options) ([]string, error) {
	return nil, nil
}
func (m *AssetModule) Read() (ReadResult, error) {
	return ReadResult{ID: m.name}, nil
}

// NullModule placeholds a disabled or platform-absent dependency. Its
// path is the original specifier so error messages and the resolver's
// edge bookkeeping can still refer to it meaningfully.
type NullModule struct {
	path string
}

// NewNull constructs a Null-kind module for the given original specifier.
func NewNull(path string) *NullModule { return &NullModule{path: path} }

func (m *NullModule) Path() string                  { return m.path }
func (m *NullModule) Kind() Kind                     { return Null }
func (m *NullModule) Name() (string, error)          { return m.path, nil }
func (m *NullModule) IsHaste() bool                  { return false }
func (m *NullModule) GetPackage() (*pkgjson.Package, error) { return nil, nil }
func (m *NullModule) ReadDependencies(transform.Options) ([]string, error) {
	return nil, nil
}
func (m *NullModule) Read() (ReadResult, error) {
	return ReadResult{Code: []byte("module.exports = null;"), ID: m.path}, nil
}

// Polyfill is a synthetic module with a caller-supplied id and a fixed
// dependency list, injected ahead of the real module graph (see
// response.Response.Copy).
type Polyfill struct {
	path string
	id   string
	deps []string
	code []byte
}

// NewPolyfill constructs a Polyfill-kind module.
func NewPolyfill(path, id string, deps []string, code []byte) *Polyfill {
	return &Polyfill{path: path, id: id, deps: deps, code: code}
}

func (m *Polyfill) Path() string                  { return m.path }
func (m *Polyfill) Kind() Kind                     { return Polyfill }
func (m *Polyfill) Name() (string, error)          { return m.id, nil }
func (m *Polyfill) IsHaste() bool                  { return false }
func (m *Polyfill) GetPackage() (*pkgjson.Package, error) { return nil, nil }
func (m *Polyfill) ReadDependencies(transform.Options) ([]string, error) {
	return m.deps, nil
}
func (m *Polyfill) Read() (ReadResult, error) {
	return ReadResult{Code: m.code, Dependencies: m.deps, ID: m.id}, nil
}
