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
package hastemap_test

import (
	"testing"

	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/hastemap"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/modulecache"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/transform"
)

func TestBuildAndLookup(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/Foo.js", "/**\n * @providesModule Foo\n */\nmodule.exports = {};\n", 0644)
	mfs.AddFile("/r/Foo.ios.js", "/**\n * @providesModule Foo\n */\nmodule.exports = {ios:true};\n", 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)

	hm, err := hastemap.Build(ffs, modules, []string{"js"}, []string{"ios", "android"}, false)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	entry, ok := hm.GetModule("Foo", "ios")
	if !ok {
		t.Fatal("expected ios match")
	}
	if entry.Path != "/r/Foo.ios.js" {
		t.Errorf("expected /r/Foo.ios.js, got %s", entry.Path)
	}

	entry, ok = hm.GetModule("Foo", "android")
	if !ok {
		t.Fatal("expected generic fallback for android")
	}
	if entry.Path != "/r/Foo.js" {
		t.Errorf("expected generic /r/Foo.js, got %s", entry.Path)
	}
}

func TestCollision(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/A.js", "/**\n * @providesModule Foo\n */\nmodule.exports = {};\n", 0644)
	mfs.AddFile("/r/B.js", "/**\n * @providesModule Foo\n */\nmodule.exports = {};\n", 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)

	_, err = hastemap.Build(ffs, modules, []string{"js"}, nil, false)
	if err == nil {
		t.Fatal("expected a collision error")
	}
	if _, ok := err.(*hastemap.HasteCollisionError); !ok {
		t.Errorf("expected HasteCollisionError, got %T", err)
	}
}

func TestProcessFileChangeDelete(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/Foo.js", "/**\n * @providesModule Foo\n */\nmodule.exports = {};\n", 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)

	hm, err := hastemap.Build(ffs, modules, []string{"js"}, nil, false)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if err := ffs.OnChange(fastfs.Delete, "Foo.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}
	if err := hm.ProcessFileChange(fastfs.Delete, "/r/Foo.js"); err != nil {
		t.Fatalf("ProcessFileChange failed: %v", err)
	}

	if _, ok := hm.GetModule("Foo", ""); ok {
		t.Error("expected Foo to be removed from the haste map")
	}
}
