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
package depgraph_test

import (
	"regexp"
	"testing"
	"time"

	"hastegraph.dev/hastegraph/depgraph"
	"hastegraph.dev/hastegraph/fastfs"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/watcher"
)

// mockFileWatcher is a hand-rolled stand-in for a real fsnotify-backed
// FileWatcher, following the teacher's mock-collaborator convention
// (resolve/local/local_test.go's mockLogger) rather than driving real
// filesystem events in a unit test.
type mockFileWatcher struct {
	events chan watcher.Event
	errs   chan error
}

func newMockFileWatcher() *mockFileWatcher {
	return &mockFileWatcher{
		events: make(chan watcher.Event, 4),
		errs:   make(chan error, 1),
	}
}

func (m *mockFileWatcher) Events() <-chan watcher.Event { return m.events }
func (m *mockFileWatcher) Errors() <-chan error          { return m.errs }
func (m *mockFileWatcher) Close() error {
	close(m.events)
	return nil
}

// S1 - a full DependencyGraph, built from scratch, resolves an entry's
// one require and reports it as the sole dependency besides the entry
// itself.
func TestGetDependenciesS1(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	resp, err := g.GetDependencies(depgraph.GetDependenciesRequest{
		EntryFile: "/r/a.js",
		Recursive: true,
	})
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}

	deps := resp.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d: %v", len(deps), deps)
	}
	if resp.MainModuleID() != "/r/a.js" {
		t.Errorf("expected mainModuleId /r/a.js, got %s", resp.MainModuleID())
	}
}

func TestGetShallowDependencies(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", "require(\"./b\")\nrequire(\"./c\")", 0644)
	mfs.AddFile("/r/b.js", ``, 0644)
	mfs.AddFile("/r/c.js", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	specifiers, err := g.GetShallowDependencies("/r/a.js", depgraph.GetDependenciesRequest{}.TransformOptions)
	if err != nil {
		t.Fatalf("GetShallowDependencies failed: %v", err)
	}
	if len(specifiers) != 2 || specifiers[0] != "./b" || specifiers[1] != "./c" {
		t.Errorf("expected [./b ./c] in source order, got %v", specifiers)
	}
}

func TestMatchFilesByPattern(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", ``, 0644)
	mfs.AddFile("/r/a.test.js", ``, 0644)
	mfs.AddFile("/r/readme.md", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js", "md"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	matches := g.MatchFilesByPattern(regexp.MustCompile(`\.test\.js$`))
	if len(matches) != 1 || matches[0] != "/r/a.test.js" {
		t.Errorf("expected exactly /r/a.test.js, got %v", matches)
	}
}

func TestCreatePolyfill(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/polyfill.js", `global.Promise = require("promise");`, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	p, err := g.CreatePolyfill(depgraph.CreatePolyfillRequest{
		File:         "/r/polyfill.js",
		ID:           "polyfill-promise",
		Dependencies: []string{"promise"},
	})
	if err != nil {
		t.Fatalf("CreatePolyfill failed: %v", err)
	}
	name, _ := p.Name()
	if name != "polyfill-promise" {
		t.Errorf("expected id polyfill-promise, got %s", name)
	}
	result, err := p.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(result.Code) == "" {
		t.Error("expected polyfill code to be non-empty")
	}
}

// S6 - when the entry drops its require (and the dependency is deleted
// from disk), the next getDependencies call reflects it once the graph
// is told the entry changed.
func TestOnFileChangeInvalidatesDependencies(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	if _, err := g.GetDependencies(depgraph.GetDependenciesRequest{EntryFile: "/r/a.js", Recursive: true}); err != nil {
		t.Fatalf("first GetDependencies failed: %v", err)
	}

	mfs.Remove("/r/b.js")
	mfs.AddFile("/r/a.js", ``, 0644)
	if err := g.OnFileChange(fastfs.Change, "a.js", "/r"); err != nil {
		t.Fatalf("OnFileChange failed: %v", err)
	}

	resp, err := g.GetDependencies(depgraph.GetDependenciesRequest{EntryFile: "/r/a.js", Recursive: true})
	if err != nil {
		t.Fatalf("second GetDependencies failed: %v", err)
	}
	deps := resp.Dependencies()
	if len(deps) != 1 {
		t.Fatalf("expected only the entry after dropping its require, got %d: %v", len(deps), deps)
	}
}

// Watch drains a FileWatcher's events into OnFileChange until it stops.
func TestWatchDrainsEventsIntoOnFileChange(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	if _, err := g.GetDependencies(depgraph.GetDependenciesRequest{EntryFile: "/r/a.js", Recursive: true}); err != nil {
		t.Fatalf("first GetDependencies failed: %v", err)
	}

	mfs.Remove("/r/b.js")
	mfs.AddFile("/r/a.js", ``, 0644)

	mw := newMockFileWatcher()
	stop := make(chan struct{})
	watched := make(chan struct{})
	var watchErr error
	go func() {
		g.Watch(mw, stop, func(err error) { watchErr = err })
		close(watched)
	}()

	mw.events <- watcher.Event{Kind: fastfs.Change, RootPath: "/r", RelPath: "a.js"}
	mw.Close()

	select {
	case <-watched:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop after signal")
	}
	if watchErr != nil {
		t.Fatalf("unexpected watch error: %v", watchErr)
	}

	resp, err := g.GetDependencies(depgraph.GetDependenciesRequest{EntryFile: "/r/a.js", Recursive: true})
	if err != nil {
		t.Fatalf("GetDependencies after watched change failed: %v", err)
	}
	if len(resp.Dependencies()) != 1 {
		t.Fatalf("expected only the entry after the watched change dropped its require, got %v", resp.Dependencies())
	}
}
