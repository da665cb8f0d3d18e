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
// Package watcher implements the fileWatcher external contract: a
// producer of (kind, relPath, rootPath) change events for the roots a
// DependencyGraph was built from. FSNotify wraps fsnotify.Watcher;
// callers needing deterministic tests should implement FileWatcher
// themselves rather than driving a real fsnotify.Watcher.
package watcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"hastegraph.dev/hastegraph/fastfs"
)

// Event is one filesystem change, already classified and split into
// the (rootPath, relPath) pair Fastfs.OnChange expects.
type Event struct {
	Kind     fastfs.ChangeKind
	RootPath string
	RelPath  string
}

// FileWatcher is the fileWatcher external contract: Events delivers
// classified change events for every watched root until Close is
// called, at which point Events is closed. Errors delivers watcher-
// internal failures (e.g. a root becoming unreadable) that do not
// terminate watching.
type FileWatcher interface {
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// FSNotify adapts an fsnotify.Watcher into a FileWatcher, classifying
// raw fsnotify.Op bitmasks into the three-way Add/Change/Delete kind the
// core understands and resolving each event's path against whichever
// configured root contains it.
type FSNotify struct {
	watcher *fsnotify.Watcher
	roots   []string
	events  chan Event
	errors  chan error
	done    chan struct{}
}

// NewFSNotify starts watching every directory in roots (non-
// recursively; callers must AddRoot each directory that should be watched,
// matching fsnotify's own non-recursive semantics) and returns a
// FileWatcher streaming classified events.
func NewFSNotify(roots []string) (*FSNotify, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &FSNotify{
		watcher: w,
		roots:   append([]string(nil), roots...),
		events:  make(chan Event),
		errors:  make(chan error),
		done:    make(chan struct{}),
	}

	for _, root := range roots {
		if err := w.Add(root); err != nil {
			w.Close()
			return nil, err
		}
	}

	go fw.run()
	return fw, nil
}

// AddRoot begins watching an additional directory and adds it to the
// roots that events are resolved against.
func (fw *FSNotify) AddRoot(root string) error {
	fw.roots = append(fw.roots, root)
	return fw.watcher.Add(root)
}

func (fw *FSNotify) run() {
	defer close(fw.events)
	for {
		select {
		case ev, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.dispatch(ev)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			select {
			case fw.errors <- err:
			case <-fw.done:
			}
		case <-fw.done:
			return
		}
	}
}

func (fw *FSNotify) dispatch(ev fsnotify.Event) {
	var kind fastfs.ChangeKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = fastfs.Add
	case ev.Op&fsnotify.Write != 0, ev.Op&fsnotify.Chmod != 0:
		kind = fastfs.Change
	case ev.Op&fsnotify.Remove != 0, ev.Op&fsnotify.Rename != 0:
		kind = fastfs.Delete
	default:
		return
	}

	root := fw.rootOf(ev.Name)
	if root == "" {
		return
	}
	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return
	}

	select {
	case fw.events <- Event{Kind: kind, RootPath: root, RelPath: rel}:
	case <-fw.done:
	}
}

// rootOf returns the longest configured root containing path, or "" if
// none does.
func (fw *FSNotify) rootOf(path string) string {
	best := ""
	for _, root := range fw.roots {
		if root == path || (len(path) > len(root) && path[:len(root)] == root && path[len(root)] == filepath.Separator) {
			if len(root) > len(best) {
				best = root
			}
		}
	}
	return best
}

// Events implements FileWatcher.
func (fw *FSNotify) Events() <-chan Event { return fw.events }

// Errors implements FileWatcher.
func (fw *FSNotify) Errors() <-chan error { return fw.errors }

// Close stops the underlying fsnotify.Watcher and its dispatch
// goroutine, closing Events.
func (fw *FSNotify) Close() error {
	close(fw.done)
	return fw.watcher.Close()
}
