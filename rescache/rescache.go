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
// Package rescache holds the incremental resolution cache: one
// Resolution per source module, tracking its resolved dependency
// edges, and a ResolutionCache coordinating forward/inverse edges, a
// dirty set for file-change invalidation, a resolving set, and the
// cache-wide "all resolved" barrier that a request awaits before
// reading out its module list.
package rescache

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/resolver"
	"hastegraph.dev/hastegraph/transform"
)

// maxConcurrentResolves bounds the number of specifiers resolved (each
// of which may stat or read the filesystem) at once across the whole
// cache, mirroring the teacher's hand-rolled 10-slot channel semaphore
// with the ecosystem's weighted semaphore instead.
const maxConcurrentResolves = 10

// ReloadOptions configures a single Resolution.ReloadRequires call.
type ReloadOptions struct {
	Force            bool
	Recursive        bool
	TransformOptions transform.Options
	OnError          func(m module.Module, specifier string, err error)
	OnProgress       func(res *Resolution, resolved []module.Module)
}

// inFlightTask is the at-most-one-per-(Resolution, specifier) unit of
// work. aborted is set when the owning slot is marked dirty mid-flight,
// suppressing its edge bookkeeping once it settles.
type inFlightTask struct {
	done     chan struct{}
	resolved module.Module
	err      error
	aborted  bool
}

// Resolution is the per-module record of resolved dependency edges.
type Resolution struct {
	module module.Module
	cache  *ResolutionCache

	mu            sync.Mutex
	requires      []string
	resolvedPaths []module.Module
	inFlight      map[string]*inFlightTask

	// resolving and ownBarrier implement this Resolution's own
	// at-most-one-reload-in-flight barrier; distinct from the
	// cache-wide ResolutionCache.barrier, which aggregates every
	// concurrently resolving Resolution.
	resolving  bool
	ownBarrier chan struct{}
}

// Module returns the source module this Resolution belongs to.
func (res *Resolution) Module() module.Module { return res.module }

// Requires returns the last extracted specifier list, in source order.
func (res *Resolution) Requires() []string {
	res.mu.Lock()
	defer res.mu.Unlock()
	return append([]string(nil), res.requires...)
}

// ResolvedPaths returns the parallel resolved-module slice; an entry is
// nil while its specifier is dirty, in flight, or unresolvable.
func (res *Resolution) ResolvedPaths() []module.Module {
	res.mu.Lock()
	defer res.mu.Unlock()
	return append([]module.Module(nil), res.resolvedPaths...)
}

// ReloadRequires re-extracts the module's dependency specifiers and
// resolves each one, recording forward/inverse edges. At most one
// reload is ever in flight per Resolution: a concurrent call while one
// is already running returns the same barrier rather than starting a
// second one. The returned channel closes when this reload (and, if
// Recursive, every resolution it discovered) has settled.
func (res *Resolution) ReloadRequires(r *resolver.Resolver, opts ReloadOptions) <-chan struct{} {
	res.mu.Lock()
	if res.inFlight == nil {
		res.inFlight = make(map[string]*inFlightTask)
	}
	if res.resolving {
		b := res.ownBarrier
		res.mu.Unlock()
		return b
	}
	res.resolving = true
	res.ownBarrier = make(chan struct{})
	barrier := res.ownBarrier
	res.mu.Unlock()

	res.cache.markResolving(res)
	go res.reload(r, opts, barrier)
	return barrier
}

func (res *Resolution) reload(r *resolver.Resolver, opts ReloadOptions, barrier chan struct{}) {
	defer func() {
		res.mu.Lock()
		res.resolving = false
		res.mu.Unlock()
		res.cache.markResolved(res)
		close(barrier)
	}()

	moduleRequires, err := res.module.ReadDependencies(opts.TransformOptions)
	if err != nil {
		if opts.OnError != nil {
			opts.OnError(res.module, "", err)
		}
		return
	}

	res.mu.Lock()
	if !opts.Force && sameSpecifiers(moduleRequires, res.requires) && allSettled(res.resolvedPaths) {
		res.mu.Unlock()
		return
	}

	oldRequires := res.requires
	oldResolved := res.resolvedPaths
	oldIndex := make(map[string]int, len(oldRequires))
	for i, s := range oldRequires {
		oldIndex[s] = i
	}
	stale := diffStale(oldRequires, moduleRequires)

	res.requires = moduleRequires
	res.resolvedPaths = make([]module.Module, len(moduleRequires))
	inFlight := res.inFlight
	res.mu.Unlock()

	// Drop stale in-flight tasks (aborting their edge bookkeeping) and
	// remove the edges of specifiers that settled before this reload.
	for _, spec := range stale {
		if task, ok := inFlight[spec]; ok {
			task.aborted = true
			res.mu.Lock()
			delete(res.inFlight, spec)
			res.mu.Unlock()
			continue
		}
		if idx, ok := oldIndex[spec]; ok && idx < len(oldResolved) && oldResolved[idx] != nil {
			res.cache.deleteDepender(oldResolved[idx], res.module)
		}
	}

	var grp errgroup.Group

	for i, spec := range moduleRequires {
		i, spec := i, spec

		res.mu.Lock()
		task, reuse := res.inFlight[spec]
		res.mu.Unlock()

		if reuse {
			grp.Go(func() error {
				<-task.done
				if task.aborted || task.err != nil || task.resolved == nil {
					return nil
				}
				res.mu.Lock()
				if i < len(res.resolvedPaths) {
					res.resolvedPaths[i] = task.resolved
				}
				res.mu.Unlock()
				return nil
			})
			continue
		}

		task = &inFlightTask{done: make(chan struct{})}
		res.mu.Lock()
		res.inFlight[spec] = task
		res.mu.Unlock()

		grp.Go(func() error {
			if err := res.cache.sem.Acquire(context.Background(), 1); err != nil {
				return nil
			}
			resolved, rerr := r.Resolve(res.module.Path(), spec)
			res.cache.sem.Release(1)
			task.resolved, task.err = resolved, rerr
			close(task.done)

			if task.aborted {
				return nil
			}
			if rerr != nil {
				res.mu.Lock()
				if res.inFlight[spec] == task {
					delete(res.inFlight, spec)
				}
				res.mu.Unlock()
				if opts.OnError != nil {
					opts.OnError(res.module, spec, rerr)
				}
				if _, unresolvable := rerr.(*resolver.UnableToResolveError); unresolvable {
					res.markDirty(spec)
				}
				return nil
			}

			res.mu.Lock()
			if i < len(res.resolvedPaths) {
				res.resolvedPaths[i] = resolved
			}
			delete(res.inFlight, spec)
			res.mu.Unlock()

			res.cache.addDepender(resolved, res.module)
			return nil
		})
	}

	// errgroup.Group.Wait's error is always nil here: every Go func
	// above returns nil and reports failures via OnError instead, since
	// UnableToResolve at a single specifier must not abort its siblings.
	_ = grp.Wait()

	// resolvedPaths is indexed by source order (slot i is moduleRequires[i]),
	// set under res.mu above; read it back in that order rather than in
	// whatever order the goroutines above happened to finish in, so
	// downstream discovery and progress reporting preserve source order.
	res.mu.Lock()
	orderedResolved := make([]module.Module, 0, len(res.resolvedPaths))
	for _, rm := range res.resolvedPaths {
		if rm != nil {
			orderedResolved = append(orderedResolved, rm)
		}
	}
	res.mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(res, orderedResolved)
	}

	if opts.Recursive {
		var rgrp errgroup.Group
		for _, rm := range orderedResolved {
			rm := rm
			child, created := res.cache.GetResolution(rm)
			if !created {
				continue
			}
			rgrp.Go(func() error {
				<-child.ReloadRequires(r, opts)
				return nil
			})
		}
		_ = rgrp.Wait()
	}
}

// markDirty locates the specifier whose resolved path matches path,
// drops its in-flight entry, clears the slot, and queues this
// Resolution for retry on the next ResolutionCache.AllResolved flush.
func (res *Resolution) markDirty(path string) {
	res.mu.Lock()
	for i, rm := range res.resolvedPaths {
		if rm != nil && rm.Path() == path {
			res.resolvedPaths[i] = nil
			if i < len(res.requires) {
				delete(res.inFlight, res.requires[i])
			}
		}
	}
	res.mu.Unlock()
	res.cache.addDirty(res)
}

func sameSpecifiers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func diffStale(old, cur []string) []string {
	curSet := make(map[string]bool, len(cur))
	for _, s := range cur {
		curSet[s] = true
	}
	var stale []string
	for _, s := range old {
		if !curSet[s] {
			stale = append(stale, s)
		}
	}
	return stale
}

func allSettled(paths []module.Module) bool {
	for _, m := range paths {
		if m == nil {
			return false
		}
	}
	return true
}

// ResolutionCache owns every Resolution, their forward dependency
// edges (resolvedPaths, held by each Resolution) and inverse edges
// (dependers, held here), the dirty and resolving sets, and the
// cache-wide allResolved barrier.
type ResolutionCache struct {
	mu          sync.Mutex
	resolutions map[string]*Resolution
	dependers   map[string]map[string]module.Module
	entries     map[string]bool
	resolving   map[string]*Resolution
	dirty       map[string]*Resolution
	barrier     chan struct{}
	sem         *semaphore.Weighted

	nextSubID int
	onCreate  map[int]func(module.Module)
	onDelete  map[int]func(module.Module)
}

// New constructs an empty ResolutionCache.
func New() *ResolutionCache {
	return &ResolutionCache{
		resolutions: make(map[string]*Resolution),
		dependers:   make(map[string]map[string]module.Module),
		entries:     make(map[string]bool),
		resolving:   make(map[string]*Resolution),
		dirty:       make(map[string]*Resolution),
		sem:         semaphore.NewWeighted(maxConcurrentResolves),
		onCreate:    make(map[int]func(module.Module)),
		onDelete:    make(map[int]func(module.Module)),
	}
}

// OnDidCreate registers a callback invoked whenever a Resolution is
// created, returning an unsubscribe func. Subscriptions are expected to
// be scoped to a Response's lifetime by the caller.
func (c *ResolutionCache) OnDidCreate(cb func(module.Module)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.onCreate[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.onCreate, id)
		c.mu.Unlock()
	}
}

// OnDidDelete registers a callback invoked whenever a Resolution is
// destroyed, returning an unsubscribe func.
func (c *ResolutionCache) OnDidDelete(cb func(module.Module)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.onDelete[id] = cb
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.onDelete, id)
		c.mu.Unlock()
	}
}

// MarkEntry exempts m's Resolution from the "no dependers" garbage
// rule: it survives even once its last depender is removed, since it
// is a request entry point rather than a discovered dependency.
func (c *ResolutionCache) MarkEntry(m module.Module) {
	c.mu.Lock()
	c.entries[m.Path()] = true
	c.mu.Unlock()
}

// GetResolution returns m's existing Resolution, or creates one and
// fires didCreate. created reports which happened.
func (c *ResolutionCache) GetResolution(m module.Module) (res *Resolution, created bool) {
	c.mu.Lock()
	if r, ok := c.resolutions[m.Path()]; ok {
		c.mu.Unlock()
		return r, false
	}
	r := &Resolution{module: m, cache: c, inFlight: make(map[string]*inFlightTask)}
	c.resolutions[m.Path()] = r
	c.mu.Unlock()

	for _, cb := range c.onCreate {
		cb(m)
	}
	return r, true
}

// DeleteResolution removes m's Resolution, clears its forward edges'
// inverse bookkeeping, and fires didDelete.
func (c *ResolutionCache) DeleteResolution(m module.Module) {
	c.mu.Lock()
	r, ok := c.resolutions[m.Path()]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.resolutions, m.Path())
	delete(c.dependers, m.Path())
	delete(c.entries, m.Path())
	delete(c.dirty, m.Path())
	c.mu.Unlock()

	for _, rm := range r.ResolvedPaths() {
		if rm != nil {
			c.deleteDepender(rm, m)
		}
	}

	for _, cb := range c.onDelete {
		cb(m)
	}
}

func (c *ResolutionCache) addDepender(dependency, depender module.Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.dependers[dependency.Path()]
	if !ok {
		set = make(map[string]module.Module)
		c.dependers[dependency.Path()] = set
	}
	set[depender.Path()] = depender
}

// deleteDepender removes the depender -> dependency edge and, per
// invariant 2, garbage-collects dependency's Resolution once it has no
// remaining dependers and is not a request entry.
func (c *ResolutionCache) deleteDepender(dependency, depender module.Module) {
	c.mu.Lock()
	set, ok := c.dependers[dependency.Path()]
	if ok {
		delete(set, depender.Path())
		if len(set) == 0 {
			delete(c.dependers, dependency.Path())
		}
	}
	isEntry := c.entries[dependency.Path()]
	empty := len(set) == 0
	c.mu.Unlock()

	if empty && !isEntry {
		c.DeleteResolution(dependency)
	}
}

// addDirty queues res for a forced reload on the next AllResolved call.
func (c *ResolutionCache) addDirty(res *Resolution) {
	c.mu.Lock()
	c.dirty[res.module.Path()] = res
	c.mu.Unlock()
}

// markResolving adds res to the cache-wide resolving set, opening a
// fresh cache-wide barrier if one wasn't already pending (invariant 4:
// allResolved is unfulfilled iff resolving is non-empty).
func (c *ResolutionCache) markResolving(res *Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.resolving) == 0 {
		c.barrier = make(chan struct{})
	}
	c.resolving[res.module.Path()] = res
}

// markResolved removes res from the cache-wide resolving set, closing
// and clearing the cache-wide barrier once the set is empty.
func (c *ResolutionCache) markResolved(res *Resolution) {
	c.mu.Lock()
	delete(c.resolving, res.module.Path())
	if len(c.resolving) > 0 {
		c.mu.Unlock()
		return
	}
	ch := c.barrier
	c.barrier = nil
	c.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (c *ResolutionCache) currentBarrierLocked() chan struct{} {
	if c.barrier == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.barrier
}

// OnFileChange marks dirty every Resolution that depends on path,
// called when Fastfs reports a change or delete event for it.
func (c *ResolutionCache) OnFileChange(path string) {
	c.mu.Lock()
	var affected []*Resolution
	if set, ok := c.dependers[path]; ok {
		for depPath := range set {
			if r, ok := c.resolutions[depPath]; ok {
				affected = append(affected, r)
			}
		}
	}
	c.mu.Unlock()

	for _, r := range affected {
		r.markDirty(path)
	}
}

// AllResolved flushes the dirty set (scheduling a forced, non-recursive
// reload on each) and returns the cache-wide barrier: a channel that
// closes once no Resolution is resolving and the just-scheduled dirty
// reloads have themselves settled. Call with the Resolver and
// transform options a request wants dirty resolutions re-read with.
func (c *ResolutionCache) AllResolved(r *resolver.Resolver, opts ReloadOptions) <-chan struct{} {
	c.mu.Lock()
	toFlush := make([]*Resolution, 0, len(c.dirty))
	for _, res := range c.dirty {
		toFlush = append(toFlush, res)
	}
	c.dirty = make(map[string]*Resolution)
	c.mu.Unlock()

	flushOpts := opts
	flushOpts.Force = true
	flushOpts.Recursive = false
	for _, res := range toFlush {
		res.ReloadRequires(r, flushOpts)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBarrierLocked()
}
