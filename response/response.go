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
// Package response holds the per-request Response: the ordered,
// deduplicated module list discovered for one getDependencies call, and
// the entry module's id. It subscribes to its ResolutionCache's
// didCreate/didDelete events for its own lifetime only.
package response

import (
	"errors"
	"sync"

	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/rescache"
	"hastegraph.dev/hastegraph/resolver"
)

// ErrNotFinalized is returned by Copy when called before AllResolved
// has fulfilled once.
var ErrNotFinalized = errors.New("response: not yet finalized")

// ErrNoDependencies is returned by AllResolved when the discovered
// dependency list is empty, which should be impossible for any request
// whose entry module itself resolved.
var ErrNoDependencies = errors.New("response: no dependencies discovered")

// Response accumulates the discovery-order module list for one request
// against a shared ResolutionCache, starting from a single entry
// module.
type Response struct {
	cache      *rescache.ResolutionCache
	unsubCreate func()
	unsubDelete func()

	mu           sync.Mutex
	dependencies []module.Module
	seen         map[string]bool
	mainModule   module.Module
	mainModuleID string
	finalized    bool
}

// New creates a Response observing cache for its entire lifetime,
// subscribing before entry's own Resolution is created so that the
// entry's didCreate event is never missed, then registers entry as the
// request's entry point, exempting it from dependency-edge garbage
// collection. It returns the entry's Resolution for the caller to
// reload.
func New(cache *rescache.ResolutionCache, entry module.Module) (*Response, *rescache.Resolution) {
	r := &Response{
		cache: cache,
		seen:  make(map[string]bool),
	}
	r.unsubCreate = cache.OnDidCreate(r.onDidCreate)
	r.unsubDelete = cache.OnDidDelete(r.onDidDelete)

	entryRes, _ := cache.GetResolution(entry)
	cache.MarkEntry(entry)
	return r, entryRes
}

func (r *Response) onDidCreate(m module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized || r.seen[m.Path()] {
		return
	}
	r.seen[m.Path()] = true
	r.dependencies = append(r.dependencies, m)
	if r.mainModule == nil {
		r.mainModule = m
	}
}

func (r *Response) onDidDelete(m module.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return
	}
	delete(r.seen, m.Path())
	for i, dep := range r.dependencies {
		if dep.Path() == m.Path() {
			r.dependencies = append(r.dependencies[:i], r.dependencies[i+1:]...)
			break
		}
	}
	// mainModule is stable: it is never cleared even if its Resolution
	// is later deleted, per spec §4.8.
}

// Dependencies returns the discovery-order module list so far.
func (r *Response) Dependencies() []module.Module {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]module.Module(nil), r.dependencies...)
}

// AllResolved awaits the cache-wide barrier (after flushing dirty
// resolutions via res), then resolves the entry module's id and
// finalizes the Response: after this call returns successfully, the
// Response is read-only and its subscriptions are torn down.
func (r *Response) AllResolved(res *resolver.Resolver, opts rescache.ReloadOptions) error {
	<-r.cache.AllResolved(res, opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalized {
		return nil
	}
	if len(r.dependencies) == 0 {
		return ErrNoDependencies
	}

	id, err := r.mainModule.Name()
	if err != nil {
		return err
	}
	r.mainModuleID = id
	r.finalized = true

	r.unsubCreate()
	r.unsubDelete()
	return nil
}

// MainModuleID returns the entry module's haste name (or path, absent
// one), valid only after AllResolved has finalized the Response.
func (r *Response) MainModuleID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mainModuleID
}

// Copy produces an immutable snapshot of the dependency list with count
// prepended modules inserted ahead of the real modules — used to inject
// polyfills into the final bundle order without touching discovery
// bookkeeping.
type Copy struct {
	Dependencies []module.Module
	NumPrepended int
}

// Copy builds a Copy prepending prepend ahead of the current, finalized
// dependency list.
func (r *Response) Copy(prepend []module.Module) (Copy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finalized {
		return Copy{}, ErrNotFinalized
	}
	deps := make([]module.Module, 0, len(prepend)+len(r.dependencies))
	deps = append(deps, prepend...)
	deps = append(deps, r.dependencies...)
	return Copy{Dependencies: deps, NumPrepended: len(prepend)}, nil
}
