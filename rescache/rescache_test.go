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
package rescache_test

import (
	"testing"
	"time"

	"hastegraph.dev/hastegraph/assetmap"
	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/hastemap"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/module"
	"hastegraph.dev/hastegraph/modulecache"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/rescache"
	"hastegraph.dev/hastegraph/resolver"
	"hastegraph.dev/hastegraph/transform"
)

type harness struct {
	ffs      *fastfs.Fastfs
	modules  *modulecache.Cache
	resolver *resolver.Resolver
	cache    *rescache.ResolutionCache
}

func setup(t *testing.T, mfs *mapfs.MapFileSystem) *harness {
	t.Helper()
	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)
	am, err := assetmap.Build(ffs, []string{"png"}, nil)
	if err != nil {
		t.Fatalf("assetmap.Build failed: %v", err)
	}
	hm, err := hastemap.Build(ffs, modules, []string{"js"}, nil, false)
	if err != nil {
		t.Fatalf("hastemap.Build failed: %v", err)
	}
	res := resolver.New(ffs, am, hm, modules, resolver.Options{ProjectExts: []string{"js"}})
	return &harness{ffs: ffs, modules: modules, resolver: res, cache: rescache.New()}
}

func await(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("barrier never fulfilled")
	}
}

// S1 plus recursion: a.js requires ./b, b.js has no further requires.
func TestReloadRequiresRecursiveDAG(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	h := setup(t, mfs)
	entry := h.modules.GetModule("/r/a.js")
	entryRes, _ := h.cache.GetResolution(entry)
	h.cache.MarkEntry(entry)

	var seen []module.Module
	opts := rescache.ReloadOptions{
		Recursive: true,
		OnProgress: func(_ *rescache.Resolution, resolved []module.Module) {
			seen = append(seen, resolved...)
		},
	}
	await(t, entryRes.ReloadRequires(h.resolver, opts))

	paths := entryRes.ResolvedPaths()
	if len(paths) != 1 || paths[0] == nil || paths[0].Path() != "/r/b.js" {
		t.Fatalf("expected a single resolved edge to /r/b.js, got %v", paths)
	}
	if len(seen) != 1 || seen[0].Path() != "/r/b.js" {
		t.Errorf("expected onProgress to report b.js, got %v", seen)
	}
}

// S7 - Cycle: a requires b, b requires a. No infinite recursion.
func TestReloadRequiresCycle(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", `require("./a")`, 0644)

	h := setup(t, mfs)
	entry := h.modules.GetModule("/r/a.js")
	entryRes, _ := h.cache.GetResolution(entry)
	h.cache.MarkEntry(entry)

	done := make(chan struct{})
	go func() {
		await(t, entryRes.ReloadRequires(h.resolver, rescache.ReloadOptions{Recursive: true}))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("cyclic reload did not terminate")
	}

	bMod := h.modules.GetModule("/r/b.js")
	bRes, created := h.cache.GetResolution(bMod)
	if created {
		t.Fatal("b's Resolution should already exist after the recursive reload")
	}
	bPaths := bRes.ResolvedPaths()
	if len(bPaths) != 1 || bPaths[0] == nil || bPaths[0].Path() != "/r/a.js" {
		t.Errorf("expected b's edge back to /r/a.js, got %v", bPaths)
	}
}

// S6 - Incremental invalidation: delete the resolved dependency, mark
// dirty, and confirm the error is reported and the edge is cleared.
func TestOnFileChangeMarksDirtyAndReloadReportsError(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	h := setup(t, mfs)
	entry := h.modules.GetModule("/r/a.js")
	entryRes, _ := h.cache.GetResolution(entry)
	h.cache.MarkEntry(entry)

	await(t, entryRes.ReloadRequires(h.resolver, rescache.ReloadOptions{}))
	if p := entryRes.ResolvedPaths(); len(p) != 1 || p[0] == nil {
		t.Fatalf("expected b.js resolved before deletion, got %v", p)
	}

	if err := mfs.Remove("/r/b.js"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := h.ffs.OnChange(fastfs.Delete, "b.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}
	h.cache.OnFileChange("/r/b.js")

	var gotErr error
	await(t, entryRes.ReloadRequires(h.resolver, rescache.ReloadOptions{
		Force: true,
		OnError: func(_ module.Module, specifier string, err error) {
			if specifier == "./b" {
				gotErr = err
			}
		},
	}))

	if gotErr == nil {
		t.Fatal("expected an UnableToResolve error for ./b after deletion")
	}
	if p := entryRes.ResolvedPaths(); len(p) != 1 || p[0] != nil {
		t.Errorf("expected b's slot cleared after deletion, got %v", p)
	}
}

// DeleteResolution should garbage-collect a non-entry dependency once
// its last depender edge is removed (invariant 2).
func TestDeleteResolutionGarbageCollectsOrphanedDependency(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	h := setup(t, mfs)
	entry := h.modules.GetModule("/r/a.js")
	entryRes, _ := h.cache.GetResolution(entry)
	h.cache.MarkEntry(entry)

	var deleted []module.Module
	h.cache.OnDidDelete(func(m module.Module) { deleted = append(deleted, m) })

	await(t, entryRes.ReloadRequires(h.resolver, rescache.ReloadOptions{}))

	// Rewrite a.js with no requires and force a reload: ./b becomes
	// stale, its edge is dropped, and b's Resolution should be
	// collected since a was its only depender.
	mfs.AddFile("/r/a.js", ``, 0644)
	if err := h.ffs.OnChange(fastfs.Change, "a.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}

	await(t, entryRes.ReloadRequires(h.resolver, rescache.ReloadOptions{Force: true}))

	if len(deleted) != 1 || deleted[0].Path() != "/r/b.js" {
		t.Errorf("expected b.js's Resolution to be garbage-collected, got %v", deleted)
	}
}
