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
package modulecache_test

import (
	"testing"

	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/modulecache"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/transform"
)

func newTestCache(t *testing.T) (*mapfs.MapFileSystem, *fastfs.Fastfs, *modulecache.Cache) {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/package.json", `{"name":"root"}`, 0644)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cache := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)
	return mfs, ffs, cache
}

func TestGetModuleIdentity(t *testing.T) {
	_, _, cache := newTestCache(t)
	a1 := cache.GetModule("/r/a.js")
	a2 := cache.GetModule("/r/a.js")
	if a1 != a2 {
		t.Error("expected same Module instance for the same path")
	}
}

func TestGetPackageForModule(t *testing.T) {
	_, _, cache := newTestCache(t)
	pkg, err := cache.GetPackageForModule("/r/a.js")
	if err != nil {
		t.Fatalf("GetPackageForModule failed: %v", err)
	}
	if pkg == nil {
		t.Fatal("expected a package")
	}
	if pkg.Name() != "root" {
		t.Errorf("expected name root, got %q", pkg.Name())
	}
}

func TestHasConflict(t *testing.T) {
	_, _, cache := newTestCache(t)
	cache.GetModule("/r/a.js")
	if cache.HasConflict("/r/a.js") {
		t.Error("expected no conflict for the same path")
	}
	if !cache.HasConflict("/r/A.js") {
		t.Error("expected conflict for a case-differing path")
	}
}

func TestOnFileChangeEvictsOnDelete(t *testing.T) {
	_, _, cache := newTestCache(t)
	orig := cache.GetModule("/r/a.js")

	cache.OnFileChange(fastfs.Delete, "/r/a.js")

	a1 := cache.GetModule("/r/a.js")
	a2 := cache.GetModule("/r/a.js")
	if a1 == orig {
		t.Error("expected a fresh instance after delete evicted the old one")
	}
	if a1 != a2 {
		t.Error("expected a fresh, but still stable, instance after re-creation")
	}
}

func TestOnFileChangeEvictsPackageByDirectory(t *testing.T) {
	mfs, _, cache := newTestCache(t)

	pkg, err := cache.GetPackage("/r")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	if pkg.Name() != "root" {
		t.Fatalf("expected name root, got %q", pkg.Name())
	}

	mfs.AddFile("/r/package.json", `{"name":"renamed"}`, 0644)
	cache.OnFileChange(fastfs.Change, "/r/package.json")

	pkg, err = cache.GetPackage("/r")
	if err != nil {
		t.Fatalf("GetPackage failed: %v", err)
	}
	if pkg.Name() != "renamed" {
		t.Errorf("expected re-read name renamed, got %q (stale cache entry keyed by file path, not directory)", pkg.Name())
	}
}
