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
// Package resolver implements the per-module specifier resolution
// algorithm: redirect, asset, haste, project-path, installed-package,
// and built-in fallback, each attempted in turn until one succeeds or
// every strategy raises UnableToResolveError.
package resolver

import (
	"fmt"
	"path/filepath"
	"strings"

	"hastegraph.dev/hastegraph/assetmap"
	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/hastemap"
	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/modulecache"
)

// UnableToResolveError is raised when every resolution strategy fails.
type UnableToResolveError struct {
	FromPath  string
	Specifier string
	Message   string
}

func (e *UnableToResolveError) Error() string {
	return fmt.Sprintf("unable to resolve %q from %q: %s", e.Specifier, e.FromPath, e.Message)
}

// Options configures a Resolver's search strategy.
type Options struct {
	// ProjectExts is the source-extension fallback list, in order,
	// without leading dots (e.g. ["js", "json"]).
	ProjectExts []string
	// Platform is the active platform tag (e.g. "ios"); "" if none.
	Platform string
	// PreferNativePlatform enables the ".native.ext" fallback tier.
	PreferNativePlatform bool
	// ExtraNodeModules maps a specifier's first path segment to a
	// fallback base directory to search when ordinary node_modules
	// walking fails.
	ExtraNodeModules map[string]string
	// GlobalRedirect maps an absolute path to a redirect target (string)
	// or disables it (false), applied after package-level redirection.
	GlobalRedirect map[string]any
	// Builtins names specifiers resolved to a NullModule (unless
	// Polyfills overrides them) rather than failing outright.
	Builtins map[string]bool
	// Polyfills overrides a builtin name with a concrete module.
	Polyfills map[string]module.Module
}

// Resolver resolves specifier strings to Modules for a single platform.
type Resolver struct {
	fs      *fastfs.Fastfs
	assets  *assetmap.AssetMap
	haste   *hastemap.HasteMap
	modules *modulecache.Cache
	opts    Options
}

// New constructs a Resolver over the given shared indices.
func New(fs *fastfs.Fastfs, assets *assetmap.AssetMap, haste *hastemap.HasteMap, modules *modulecache.Cache, opts Options) *Resolver {
	return &Resolver{fs: fs, assets: assets, haste: haste, modules: modules, opts: opts}
}

// Resolve resolves specifier, as required from fromPath, to a Module.
func (r *Resolver) Resolve(fromPath, specifier string) (module.Module, error) {
	if m, handled, err := r.tryOwnPackageRedirect(fromPath, specifier); handled {
		return m, err
	}

	if path, ok := r.assets.Resolve(specifier, r.opts.Platform); ok {
		return r.modules.GetAssetModule(path, specifier), nil
	}

	if !isRelativeOrAbsolute(specifier) {
		m, err := r.tryHaste(specifier)
		if err == nil {
			return m, nil
		}
		if !isUnableToResolve(err) {
			return nil, err
		}
	}

	if isRelativeOrAbsolute(specifier) {
		m, err := r.tryProjectPath(fromPath, specifier)
		if err == nil {
			return m, nil
		}
		if !isUnableToResolve(err) {
			return nil, err
		}
	}

	if !isRelativeOrAbsolute(specifier) {
		m, err := r.tryInstalledPackage(fromPath, specifier)
		if err == nil {
			return m, nil
		}
		if !isUnableToResolve(err) {
			return nil, err
		}
	}

	if m, ok := r.tryBuiltin(specifier); ok {
		return m, nil
	}

	return nil, &UnableToResolveError{FromPath: fromPath, Specifier: specifier, Message: "exhausted every resolution strategy"}
}

func isUnableToResolve(err error) bool {
	_, ok := err.(*UnableToResolveError)
	return ok
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

func isRelativeOrAbsolute(specifier string) bool {
	return isRelative(specifier) || strings.HasPrefix(specifier, "/")
}

// tryOwnPackageRedirect applies the requesting module's own package
// redirect table (and the global redirect table) to a relative
// specifier, before any existence-based lookup runs. handled is false
// when no redirect rule applies, in which case the normal pipeline
// below should continue.
func (r *Resolver) tryOwnPackageRedirect(fromPath, specifier string) (module.Module, bool, error) {
	if !isRelative(specifier) {
		return nil, false, nil
	}
	pkg, err := r.modules.GetPackageForModule(fromPath)
	if err != nil || pkg == nil {
		return nil, false, nil
	}

	candidate := filepath.Join(filepath.Dir(fromPath), specifier)
	target, disabled, ok, rerr := pkg.RedirectRequire(candidate)
	if rerr != nil {
		return nil, true, rerr
	}
	if !ok {
		if val, has := r.opts.GlobalRedirect[candidate]; has {
			if b, isBool := val.(bool); isBool {
				if !b {
					return r.modules.GetNullModule(specifier), true, nil
				}
			} else if s, isStr := val.(string); isStr {
				target, ok = s, true
			}
		}
	}
	if !ok {
		return nil, false, nil
	}
	if disabled {
		return r.modules.GetNullModule(specifier), true, nil
	}

	resolved, found, err := r.loadAsFileOrDir(target)
	if err != nil {
		return nil, true, err
	}
	if !found {
		return nil, true, &UnableToResolveError{FromPath: fromPath, Specifier: specifier, Message: "redirect target not found"}
	}
	final, finalDisabled, err := r.applyRedirectChain(resolved)
	if err != nil {
		return nil, true, err
	}
	if finalDisabled {
		return r.modules.GetNullModule(specifier), true, nil
	}
	return r.modules.GetModule(final), true, nil
}

// applyRedirectChain repeatedly applies the owning package's redirect
// table, then the global redirect table, to path, following
// redirect-to-redirect chains up to a fixed bound.
func (r *Resolver) applyRedirectChain(path string) (final string, disabled bool, err error) {
	cur := path
	for i := 0; i < 10; i++ {
		pkg, perr := r.modules.GetPackageForModule(cur)
		if perr == nil && pkg != nil {
			target, dis, ok, rerr := pkg.RedirectRequire(cur)
			if rerr != nil {
				return "", false, rerr
			}
			if ok {
				if dis {
					return "", true, nil
				}
				cur = target
				continue
			}
		}
		if val, ok := r.opts.GlobalRedirect[cur]; ok {
			if b, isBool := val.(bool); isBool {
				if !b {
					return "", true, nil
				}
				break
			}
			if s, isStr := val.(string); isStr {
				cur = s
				continue
			}
		}
		break
	}
	return cur, false, nil
}

func (r *Resolver) tryHaste(specifier string) (module.Module, error) {
	parts := strings.SplitN(specifier, "/", 2)
	entry, ok := r.haste.GetModule(parts[0], r.opts.Platform)
	if !ok {
		return nil, &UnableToResolveError{Specifier: specifier, Message: "no haste entry"}
	}

	if !entry.IsPackage {
		if len(parts) > 1 {
			return nil, &UnableToResolveError{Specifier: specifier, Message: "haste module has no subpath"}
		}
		return r.finishResolve(specifier, entry.Path)
	}

	target := entry.Path
	if len(parts) > 1 {
		target = filepath.Join(entry.Path, parts[1])
	}
	resolved, found, err := r.loadAsFileOrDir(target)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &UnableToResolveError{Specifier: specifier, Message: "haste package subpath not found"}
	}
	return r.finishResolve(specifier, resolved)
}

func (r *Resolver) tryProjectPath(fromPath, specifier string) (module.Module, error) {
	var target string
	switch {
	case isRelative(specifier):
		target = filepath.Join(filepath.Dir(fromPath), specifier)
	case strings.HasPrefix(specifier, "/"):
		target = specifier
	default:
		return nil, &UnableToResolveError{FromPath: fromPath, Specifier: specifier, Message: "not a relative or absolute path"}
	}

	resolved, ok, err := r.loadAsFileOrDir(target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &UnableToResolveError{FromPath: fromPath, Specifier: specifier, Message: "project-path file not found"}
	}
	return r.finishResolve(specifier, resolved)
}

func (r *Resolver) tryInstalledPackage(fromPath, specifier string) (module.Module, error) {
	dir := filepath.Dir(fromPath)
	for {
		if !strings.HasSuffix(filepath.Base(dir), "node_modules") {
			candidate := filepath.Join(dir, "node_modules", specifier)
			if resolved, ok, err := r.loadAsFileOrDir(candidate); err != nil {
				return nil, err
			} else if ok {
				return r.finishResolve(specifier, resolved)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	first, _, _ := strings.Cut(specifier, "/")
	if base, ok := r.opts.ExtraNodeModules[first]; ok {
		rest := strings.TrimPrefix(specifier, first)
		candidate := filepath.Join(base, rest)
		if resolved, ok, err := r.loadAsFileOrDir(candidate); err != nil {
			return nil, err
		} else if ok {
			return r.finishResolve(specifier, resolved)
		}
	}

	return nil, &UnableToResolveError{FromPath: fromPath, Specifier: specifier, Message: "not found in any node_modules"}
}

func (r *Resolver) tryBuiltin(specifier string) (module.Module, bool) {
	if !r.opts.Builtins[specifier] {
		return nil, false
	}
	if poly, ok := r.opts.Polyfills[specifier]; ok {
		return poly, true
	}
	return r.modules.GetNullModule(specifier), true
}

// finishResolve applies the redirect chain to a resolved candidate path
// and returns the final Module.
func (r *Resolver) finishResolve(specifier, resolved string) (module.Module, error) {
	final, disabled, err := r.applyRedirectChain(resolved)
	if err != nil {
		return nil, err
	}
	if disabled {
		return r.modules.GetNullModule(specifier), nil
	}
	return r.modules.GetModule(final), nil
}

// loadAsFile tries path as-is via the extension/platform fallback.
func (r *Resolver) loadAsFile(base string) (string, bool) {
	if ext := filepath.Ext(base); ext != "" {
		if r.fs.FileExists(base) {
			return base, true
		}
		return "", false
	}

	for _, ext := range r.opts.ProjectExts {
		if r.opts.Platform != "" {
			candidate := fmt.Sprintf("%s.%s.%s", base, r.opts.Platform, ext)
			if r.fs.FileExists(candidate) {
				return candidate, true
			}
		}
		if r.opts.PreferNativePlatform {
			candidate := fmt.Sprintf("%s.native.%s", base, ext)
			if r.fs.FileExists(candidate) {
				return candidate, true
			}
		}
		plain := fmt.Sprintf("%s.%s", base, ext)
		if r.fs.FileExists(plain) {
			return plain, true
		}
	}
	return "", false
}

// loadAsDir requires dir to exist; reads package.json -> main (or index
// if no package.json), then loads that as a file.
func (r *Resolver) loadAsDir(dir string) (string, bool, error) {
	if !r.fs.DirExists(dir) {
		return "", false, nil
	}

	if r.fs.FileExists(dir + "/package.json") {
		pkg, err := r.modules.GetPackage(dir)
		if err != nil {
			return "", false, err
		}
		main := pkg.GetMain()
		if r.fs.FileExists(main) {
			return main, true, nil
		}
		return "", false, nil
	}

	if path, ok := r.loadAsFile(dir + "/index"); ok {
		return path, true, nil
	}
	return "", false, nil
}

func (r *Resolver) loadAsFileOrDir(path string) (string, bool, error) {
	if r.fs.DirExists(path) {
		return r.loadAsDir(path)
	}
	if resolved, ok := r.loadAsFile(path); ok {
		return resolved, true, nil
	}
	return "", false, nil
}
