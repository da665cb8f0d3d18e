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
package fastfs_test

import (
	"regexp"
	"testing"

	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/internal/mapfs"
)

func newTestFs(t *testing.T) (*mapfs.MapFileSystem, *fastfs.Fastfs) {
	t.Helper()
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)
	mfs.AddDir("/r/node_modules", 0755)
	mfs.AddDir("/r/node_modules/lit", 0755)
	mfs.AddFile("/r/node_modules/lit/index.js", `export {}`, 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return mfs, ffs
}

func TestFileExists(t *testing.T) {
	_, ffs := newTestFs(t)

	if !ffs.FileExists("/r/a.js") {
		t.Error("expected /r/a.js to exist")
	}
	if ffs.FileExists("/r/missing.js") {
		t.Error("expected /r/missing.js to not exist")
	}
	if !ffs.DirExists("/r/node_modules") {
		t.Error("expected /r/node_modules to exist")
	}
}

func TestReadFileCaches(t *testing.T) {
	mfs, ffs := newTestFs(t)

	content, err := ffs.ReadFile("/r/a.js")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(content) != `require("./b")` {
		t.Errorf("unexpected content: %s", content)
	}

	// Mutate underlying fs directly; cached read should not see it until invalidated.
	mfs.AddFile("/r/a.js", `require("./c")`, 0644)
	cached, err := ffs.ReadFile("/r/a.js")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(cached) != `require("./b")` {
		t.Errorf("expected cached content, got %s", cached)
	}

	if err := ffs.OnChange(fastfs.Change, "a.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}
	fresh, err := ffs.ReadFile("/r/a.js")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(fresh) != `require("./c")` {
		t.Errorf("expected invalidated content, got %s", fresh)
	}
}

func TestClosestFindsPackageJSON(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/package.json", `{"name":"root"}`, 0644)
	mfs.AddDir("/r/src", 0755)
	mfs.AddFile("/r/src/index.js", ``, 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	got, ok := ffs.Closest("/r/src/index.js", "package.json")
	if !ok {
		t.Fatal("expected to find package.json")
	}
	if got != "/r/package.json" {
		t.Errorf("expected /r/package.json, got %s", got)
	}
}

func TestOnDeleteRemovesNode(t *testing.T) {
	_, ffs := newTestFs(t)

	if err := ffs.OnChange(fastfs.Delete, "b.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}
	if ffs.FileExists("/r/b.js") {
		t.Error("expected /r/b.js to be removed")
	}
}

func TestOnAddCreatesNode(t *testing.T) {
	mfs, ffs := newTestFs(t)
	mfs.AddFile("/r/c.js", `module.exports = {}`, 0644)

	if err := ffs.OnChange(fastfs.Add, "c.js", "/r"); err != nil {
		t.Fatalf("OnChange failed: %v", err)
	}
	if !ffs.FileExists("/r/c.js") {
		t.Error("expected /r/c.js to exist after add")
	}
}

func TestAddOutsideRootsIgnored(t *testing.T) {
	_, ffs := newTestFs(t)
	if err := ffs.OnChange(fastfs.Add, "d.js", "/other"); err != nil {
		t.Errorf("expected an add outside every root to be ignored, got %v", err)
	}
	if ffs.FileExists("/other/d.js") {
		t.Error("expected no node for a path outside every root")
	}
}

func TestBlacklistExcludesFiles(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/keep.js", ``, 0644)
	mfs.AddFile("/r/skip.test.js", ``, 0644)

	bl := fastfs.NewBlacklist("**/*.test.js")
	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, bl)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if !ffs.FileExists("/r/keep.js") {
		t.Error("expected keep.js to be indexed")
	}
	if ffs.FileExists("/r/skip.test.js") {
		t.Error("expected skip.test.js to be excluded by blacklist")
	}
}

func TestReadWhileStopsAtPredicate(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/doc.js", "/**\n * @providesModule Foo\n */\nconsole.log('hi')\n", 0644)

	ffs, err := fastfs.New(mfs, []fastfs.Root{{Path: "/r"}}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	docblockEnd := regexp.MustCompile(`\*/`)
	got, err := ffs.ReadWhile("/r/doc.js", func(chunk []byte, i int, accumulated []byte) bool {
		return !docblockEnd.Match(accumulated)
	})
	if err != nil {
		t.Fatalf("ReadWhile failed: %v", err)
	}
	if !regexp.MustCompile(`@providesModule Foo`).Match(got) {
		t.Errorf("expected docblock content, got %q", got)
	}
	if regexp.MustCompile(`console\.log`).Match(got) {
		t.Errorf("expected to stop before body, got %q", got)
	}
}

func TestMatchFilesByPattern(t *testing.T) {
	_, ffs := newTestFs(t)
	matches := ffs.MatchFilesByPattern(regexp.MustCompile(`\.js$`))
	if len(matches) != 3 {
		t.Errorf("expected 3 matches, got %d: %v", len(matches), matches)
	}
}
