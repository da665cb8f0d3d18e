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
package resolver_test

import (
	"testing"

	"hastegraph.dev/hastegraph/assetmap"
	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/hastemap"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/modulecache"
	"hastegraph.dev/hastegraph/requireextract"
	"hastegraph.dev/hastegraph/resolver"
	"hastegraph.dev/hastegraph/transform"
)

func setup(t *testing.T, mfs *mapfs.MapFileSystem, platform string) (*fastfs.Fastfs, *resolver.Resolver, *modulecache.Cache) {
	t.Helper()
	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)
	am, err := assetmap.Build(ffs, []string{"png"}, []string{"ios", "android"})
	if err != nil {
		t.Fatalf("assetmap.Build failed: %v", err)
	}
	hm, err := hastemap.Build(ffs, modules, []string{"js"}, []string{"ios", "android"}, false)
	if err != nil {
		t.Fatalf("hastemap.Build failed: %v", err)
	}

	opts := resolver.Options{
		ProjectExts:          []string{"js"},
		Platform:             platform,
		PreferNativePlatform: false,
	}
	res := resolver.New(ffs, am, hm, modules, opts)
	return ffs, res, modules
}

// S1 - Relative import, extension fallback.
func TestRelativeImportExtensionFallback(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	_, res, _ := setup(t, mfs, "ios")
	m, err := res.Resolve("/r/a.js", "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/b.js" {
		t.Errorf("expected /r/b.js, got %s", m.Path())
	}
}

// S2 - Platform override.
func TestPlatformOverride(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)
	mfs.AddFile("/r/b.ios.js", ``, 0644)

	_, resIOS, _ := setup(t, mfs, "ios")
	m, err := resIOS.Resolve("/r/a.js", "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/b.ios.js" {
		t.Errorf("expected /r/b.ios.js, got %s", m.Path())
	}

	_, resAndroid, _ := setup(t, mfs, "android")
	m, err = resAndroid.Resolve("/r/a.js", "./b")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/b.js" {
		t.Errorf("expected /r/b.js, got %s", m.Path())
	}
}

// S4 - Browser/react-native redirect.
func TestReactNativeRedirect(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddDir("/r/pkg", 0755)
	mfs.AddFile("/r/pkg/package.json", `{"name":"pkg","main":"a.js","react-native":{"./a.js":"./b.js"}}`, 0644)
	mfs.AddFile("/r/pkg/a.js", ``, 0644)
	mfs.AddFile("/r/pkg/b.js", ``, 0644)
	mfs.AddFile("/r/x.js", `require("pkg/a")`, 0644)

	_, res, _ := setup(t, mfs, "ios")
	m, err := res.Resolve("/r/x.js", "pkg/a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/pkg/b.js" {
		t.Errorf("expected /r/pkg/b.js, got %s", m.Path())
	}
}

// S5 - Disabled module.
func TestDisabledModule(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddDir("/r/pkg", 0755)
	mfs.AddFile("/r/pkg/package.json", `{"name":"pkg","main":"a.js","react-native":{"./a.js":false}}`, 0644)
	mfs.AddFile("/r/pkg/a.js", ``, 0644)
	mfs.AddFile("/r/x.js", `require("pkg/a")`, 0644)

	_, res, _ := setup(t, mfs, "ios")
	m, err := res.Resolve("/r/x.js", "pkg/a")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "pkg/a" {
		t.Errorf("expected null module with original specifier path, got %s", m.Path())
	}
}

func TestUnableToResolve(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("missing-pkg")`, 0644)

	_, res, _ := setup(t, mfs, "ios")
	_, err := res.Resolve("/r/a.js", "missing-pkg")
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, ok := err.(*resolver.UnableToResolveError); !ok {
		t.Errorf("expected UnableToResolveError, got %T", err)
	}
}

func TestInstalledPackageLookup(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddDir("/r/node_modules", 0755)
	mfs.AddDir("/r/node_modules/lit", 0755)
	mfs.AddFile("/r/node_modules/lit/package.json", `{"name":"lit","main":"index.js"}`, 0644)
	mfs.AddFile("/r/node_modules/lit/index.js", ``, 0644)
	mfs.AddFile("/r/a.js", `require("lit")`, 0644)

	_, res, _ := setup(t, mfs, "ios")
	m, err := res.Resolve("/r/a.js", "lit")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Path() != "/r/node_modules/lit/index.js" {
		t.Errorf("expected lit's index.js, got %s", m.Path())
	}
}

func TestBuiltinFallback(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("fs")`, 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("fastfs.New failed: %v", err)
	}
	modules := modulecache.New(ffs, requireextract.Regex{}, transform.Identity, nil)
	am, _ := assetmap.Build(ffs, []string{"png"}, nil)
	hm, err := hastemap.Build(ffs, modules, []string{"js"}, nil, false)
	if err != nil {
		t.Fatalf("hastemap.Build failed: %v", err)
	}
	opts := resolver.Options{
		ProjectExts: []string{"js"},
		Builtins:    map[string]bool{"fs": true},
	}
	res := resolver.New(ffs, am, hm, modules, opts)

	m, err := res.Resolve("/r/a.js", "fs")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if m.Kind().String() != "null" {
		t.Errorf("expected a null module for unpolyfilled builtin, got %s", m.Kind())
	}
}
