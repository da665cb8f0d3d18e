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
// Package depgraph is the top-level facade: it wires Fastfs, AssetMap,
// HasteMap, ModuleCache, Resolver, and ResolutionCache together behind
// the primary operations a bundler driver calls (getDependencies,
// getShallowDependencies, getModuleForPath, matchFilesByPattern,
// createPolyfill), and fans a filesystem watcher's change events out to
// every index that needs to hear them.
package depgraph

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"hastegraph.dev/hastegraph/assetmap"
	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/fs"
	"hastegraph.dev/hastegraph/hastemap"
	"hastegraph.dev/hastegraph/metacache"
	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/modulecache"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/rescache"
	"hastegraph.dev/hastegraph/resolver"
	"hastegraph.dev/hastegraph/response"
	"hastegraph.dev/hastegraph/transform"
	"hastegraph.dev/hastegraph/watcher"
)

// metaCacheDebounce is how long metacache batches writes before flushing
// to disk, matching the default used by the teacher's on-disk caches.
const metaCacheDebounce = 2 * time.Second

// Options configures a DependencyGraph.
type Options struct {
	ProjectRoots []string
	AssetRoots   []string
	LazyRoots    []string

	ProjectExts []string
	AssetExts   []string

	Platforms            []string
	PreferNativePlatform bool

	// Blacklist patterns are doublestar globs matched against absolute
	// paths; matching files are excluded from crawling and from haste
	// indexing.
	Blacklist []string

	ExtraNodeModules map[string]string
	// Redirect is the global redirect table: an absolute path maps to a
	// redirect target (string) or false to disable it.
	Redirect map[string]any

	Builtins  map[string]bool
	Polyfills map[string]module.Module

	// HasteEagerWhitelist names node_modules package roots that remain
	// haste-eligible despite living under node_modules.
	HasteEagerWhitelist []string

	TransformCode   transform.Func
	ExtractRequires requireextract.Extractor

	// MetaCachePath, if set, persists transform/extraction results to
	// disk across process restarts, validated against each source
	// file's mtime. Empty disables the on-disk cache; modules still get
	// the in-process per-Options memoization SourceModule always does.
	MetaCachePath string
}

// DependencyGraph is the process-wide shared state for one bundler
// instance: exactly one of each index, built once from Options and kept
// live by OnFileChange.
type DependencyGraph struct {
	fs      *fastfs.Fastfs
	modules *modulecache.Cache
	assets  *assetmap.AssetMap
	haste   *hastemap.HasteMap
	cache   *rescache.ResolutionCache
	opts    Options
}

// New crawls every configured root and builds the asset and haste
// indices, returning a ready-to-query DependencyGraph.
func New(fsys fs.FileSystem, opts Options) (*DependencyGraph, error) {
	var roots []fastfs.Root
	for _, p := range opts.ProjectRoots {
		roots = append(roots, fastfs.Root{Path: p})
	}
	for _, p := range opts.AssetRoots {
		roots = append(roots, fastfs.Root{Path: p})
	}
	for _, p := range opts.LazyRoots {
		roots = append(roots, fastfs.Root{Path: p, Lazy: true})
	}

	var blacklist *fastfs.Blacklist
	if len(opts.Blacklist) > 0 {
		blacklist = fastfs.NewBlacklist(opts.Blacklist...)
	}

	ffs, err := fastfs.New(fsys, roots, blacklist)
	if err != nil {
		return nil, fmt.Errorf("depgraph: building fastfs: %w", err)
	}

	whitelistSet := make(map[string]bool, len(opts.HasteEagerWhitelist))
	for _, p := range opts.HasteEagerWhitelist {
		whitelistSet[filepath.Clean(p)] = true
	}
	hasteWhitelisted := func(path string) bool {
		dir := filepath.Dir(path)
		for dir != "." && dir != string(filepath.Separator) {
			if whitelistSet[dir] {
				return true
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
		return false
	}

	extractor := opts.ExtractRequires
	if extractor == nil {
		extractor = requireextract.Regex{}
	}
	transformFn := opts.TransformCode
	if transformFn == nil {
		transformFn = transform.Identity
	}

	modules := modulecache.New(ffs, extractor, transformFn, hasteWhitelisted)

	if opts.MetaCachePath != "" {
		meta, err := metacache.New(fsys, opts.MetaCachePath, metaCacheDebounce)
		if err != nil {
			return nil, fmt.Errorf("depgraph: loading meta cache: %w", err)
		}
		modules.SetMetaCache(meta)
	}

	assetExts := opts.AssetExts
	if assetExts == nil {
		assetExts = []string{}
	}
	am, err := assetmap.Build(ffs, assetExts, opts.Platforms)
	if err != nil {
		return nil, fmt.Errorf("depgraph: building asset map: %w", err)
	}

	hm, err := hastemap.Build(ffs, modules, opts.ProjectExts, opts.Platforms, opts.PreferNativePlatform)
	if err != nil {
		return nil, fmt.Errorf("depgraph: building haste map: %w", err)
	}

	return &DependencyGraph{
		fs:      ffs,
		modules: modules,
		assets:  am,
		haste:   hm,
		cache:   rescache.New(),
		opts:    opts,
	}, nil
}

// resolverFor builds a Resolver scoped to one platform. Resolvers are
// stateless views over the graph's shared indices, so building one per
// request is cheap.
func (g *DependencyGraph) resolverFor(platform string) *resolver.Resolver {
	return resolver.New(g.fs, g.assets, g.haste, g.modules, resolver.Options{
		ProjectExts:          g.opts.ProjectExts,
		Platform:             platform,
		PreferNativePlatform: g.opts.PreferNativePlatform,
		ExtraNodeModules:     g.opts.ExtraNodeModules,
		GlobalRedirect:       g.opts.Redirect,
		Builtins:             g.opts.Builtins,
		Polyfills:            g.opts.Polyfills,
	})
}

// GetDependenciesRequest configures one getDependencies call.
type GetDependenciesRequest struct {
	EntryFile        string
	Platform         string
	Recursive        bool
	TransformOptions transform.Options
	OnError          func(m module.Module, specifier string, err error)
	OnProgress       func(res *rescache.Resolution, resolved []module.Module)
}

// GetDependencies resolves req.EntryFile's full reachable module set,
// returning the discovery-ordered Response once every resolution (and,
// if req.Recursive, every resolution it discovers) has settled.
func (g *DependencyGraph) GetDependencies(req GetDependenciesRequest) (*response.Response, error) {
	entry := g.modules.GetModule(req.EntryFile)
	r := g.resolverFor(req.Platform)

	resp, entryRes := response.New(g.cache, entry)

	reloadOpts := rescache.ReloadOptions{
		Recursive:        req.Recursive,
		TransformOptions: req.TransformOptions,
		OnError:          req.OnError,
		OnProgress:       req.OnProgress,
	}
	<-entryRes.ReloadRequires(r, reloadOpts)

	if err := resp.AllResolved(r, reloadOpts); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetShallowDependencies returns the specifier strings entryFile
// requires, without resolving any of them to a Module.
func (g *DependencyGraph) GetShallowDependencies(entryFile string, opts transform.Options) ([]string, error) {
	return g.modules.GetModule(entryFile).ReadDependencies(opts)
}

// GetModuleForPath returns the Module registered at path, creating a
// Source module on first access.
func (g *DependencyGraph) GetModuleForPath(path string) module.Module {
	return g.modules.GetModule(path)
}

// MatchFilesByPattern returns every indexed path matching re.
func (g *DependencyGraph) MatchFilesByPattern(re *regexp.Regexp) []string {
	return g.fs.MatchFilesByPattern(re)
}

// CreatePolyfillRequest names a synthetic module to prepend ahead of
// the real module graph.
type CreatePolyfillRequest struct {
	File         string
	ID           string
	Dependencies []string
}

// CreatePolyfill reads req.File's contents and wraps them in a
// Polyfill module with the given id and fixed dependency list.
func (g *DependencyGraph) CreatePolyfill(req CreatePolyfillRequest) (*module.Polyfill, error) {
	code, err := g.fs.ReadFile(req.File)
	if err != nil {
		return nil, fmt.Errorf("depgraph: reading polyfill %s: %w", req.File, err)
	}
	return module.NewPolyfill(req.File, req.ID, req.Dependencies, code), nil
}

// OnFileChange applies one filesystem change event to every index that
// tracks it: Fastfs first (so downstream lookups see the new state),
// then ModuleCache and HasteMap, then the resolution cache's dirty
// propagation.
func (g *DependencyGraph) OnFileChange(kind fastfs.ChangeKind, relPath, rootPath string) error {
	if err := g.fs.OnChange(kind, relPath, rootPath); err != nil {
		return err
	}

	absPath := filepath.Join(rootPath, relPath)
	g.modules.OnFileChange(kind, absPath)
	if err := g.haste.ProcessFileChange(kind, absPath); err != nil {
		return err
	}
	g.cache.OnFileChange(absPath)
	return nil
}

// Watch drains w's Events until it closes or stop is signaled, applying
// each one via OnFileChange. Errors from both OnFileChange and w.Errors
// are reported through onErr; Watch itself never returns until w.Events
// closes or stop fires.
func (g *DependencyGraph) Watch(w watcher.FileWatcher, stop <-chan struct{}, onErr func(error)) {
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return
			}
			if err := g.OnFileChange(ev.Kind, ev.RelPath, ev.RootPath); err != nil && onErr != nil {
				onErr(err)
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			if onErr != nil {
				onErr(err)
			}
		case <-stop:
			return
		}
	}
}
