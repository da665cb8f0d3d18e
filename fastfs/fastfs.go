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
// Package fastfs provides an in-memory index over a tree of watched
// filesystem roots: fast existence checks, cached reads, and
// closest-ancestor lookups, kept live by filesystem change events.
package fastfs

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"hastegraph.dev/hastegraph/fs"
)

// ChangeKind identifies the kind of filesystem change event.
type ChangeKind int

const (
	Add ChangeKind = iota
	Change
	Delete
)

func (k ChangeKind) String() string {
	switch k {
	case Add:
		return "add"
	case Change:
		return "change"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// NotFoundInRootsError reports that a path lies outside every configured root.
type NotFoundInRootsError struct {
	Path string
}

func (e *NotFoundInRootsError) Error() string {
	return fmt.Sprintf("fastfs: %s is not under any configured root", e.Path)
}

// FileNotFoundError reports a read against a path with no indexed node.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("fastfs: file not found: %s", e.Path)
}

// Blacklist reports whether a path should be excluded from crawling and
// haste indexing. Patterns are doublestar globs matched against the
// absolute, slash-normalized path.
type Blacklist struct {
	patterns []string
}

// NewBlacklist compiles a Blacklist from glob patterns.
func NewBlacklist(patterns ...string) *Blacklist {
	return &Blacklist{patterns: patterns}
}

// Match reports whether path matches any configured pattern.
func (b *Blacklist) Match(path string) bool {
	if b == nil {
		return false
	}
	slashPath := filepath.ToSlash(path)
	for _, pattern := range b.patterns {
		if ok, _ := doublestar.Match(pattern, slashPath); ok {
			return true
		}
	}
	return false
}

// node is a single entry in the indexed tree.
type node struct {
	path     string
	isDir    bool
	isLazy   bool
	parent   *node
	children map[string]*node
	content  []byte
	hasRead  bool
}

// Root describes a directory ingested into the tree.
type Root struct {
	Path string
	Lazy bool
}

// Fastfs is an in-memory index over a set of watched roots.
type Fastfs struct {
	mu        sync.RWMutex
	fs        fs.FileSystem
	roots     []*node
	nodes     map[string]*node
	blacklist *Blacklist
}

// New builds a Fastfs by crawling eager roots and registering lazy roots.
// Files matching blacklist are excluded from both the crawl and any later
// index scan.
func New(fsys fs.FileSystem, roots []Root, blacklist *Blacklist) (*Fastfs, error) {
	ffs := &Fastfs{
		fs:        fsys,
		nodes:     make(map[string]*node),
		blacklist: blacklist,
	}

	for _, r := range roots {
		rootPath := filepath.Clean(r.Path)
		n := &node{path: rootPath, isDir: true, isLazy: r.Lazy, children: make(map[string]*node)}
		ffs.roots = append(ffs.roots, n)
		ffs.nodes[rootPath] = n

		if r.Lazy {
			continue
		}
		if err := ffs.crawl(n); err != nil {
			return nil, err
		}
	}

	return ffs, nil
}

// crawl recursively ingests an eager root's contents into the tree.
func (f *Fastfs) crawl(dir *node) error {
	entries, err := f.fs.ReadDir(dir.path)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		childPath := filepath.Join(dir.path, entry.Name())
		if f.blacklist.Match(childPath) {
			continue
		}
		child := &node{path: childPath, isDir: entry.IsDir(), parent: dir}
		if child.isDir {
			child.children = make(map[string]*node)
		}
		dir.children[entry.Name()] = child
		f.nodes[childPath] = child
		if child.isDir {
			if err := f.crawl(child); err != nil {
				return err
			}
		}
	}
	return nil
}

// findRoot returns the root node that is an ancestor of path, if any.
func (f *Fastfs) findRoot(path string) *node {
	path = filepath.Clean(path)
	for _, r := range f.roots {
		if r.path == path || strings.HasPrefix(path, r.path+string(filepath.Separator)) {
			return r
		}
	}
	return nil
}

// lookup returns the indexed node for path. For nodes under a lazy root
// with no tree entry yet, it falls back to a synchronous stat against the
// host filesystem and materializes the node on success.
func (f *Fastfs) lookup(path string) (*node, bool) {
	path = filepath.Clean(path)

	f.mu.RLock()
	n, ok := f.nodes[path]
	f.mu.RUnlock()
	if ok {
		return n, true
	}

	root := f.findRoot(path)
	if root == nil {
		return nil, false
	}
	if !root.isLazy {
		return nil, false
	}

	stat, err := f.fs.Stat(path)
	if err != nil {
		return nil, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[path]; ok {
		return n, true
	}
	n = &node{path: path, isDir: stat.IsDir(), isLazy: true}
	if n.isDir {
		n.children = make(map[string]*node)
	}
	f.nodes[path] = n
	return n, true
}

// FileExists reports whether path is an indexed (or lazily discoverable) file.
func (f *Fastfs) FileExists(path string) bool {
	n, ok := f.lookup(path)
	return ok && !n.isDir
}

// DirExists reports whether path is an indexed (or lazily discoverable) directory.
func (f *Fastfs) DirExists(path string) bool {
	n, ok := f.lookup(path)
	return ok && n.isDir
}

// ModTime returns path's last-modified time, in Unix nanoseconds, as
// reported by the underlying filesystem at call time. Unlike ReadFile,
// this is never cached: it must reflect the live mtime for metacache's
// validate-on-read freshness check to mean anything.
func (f *Fastfs) ModTime(path string) (int64, error) {
	n, ok := f.lookup(path)
	if !ok || n.isDir {
		return 0, &FileNotFoundError{Path: path}
	}
	stat, err := f.fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return stat.ModTime().UnixNano(), nil
}

// ReadFile returns a file's contents, caching the result after first read.
func (f *Fastfs) ReadFile(path string) ([]byte, error) {
	n, ok := f.lookup(path)
	if !ok || n.isDir {
		return nil, &FileNotFoundError{Path: path}
	}

	f.mu.RLock()
	if n.hasRead {
		content := n.content
		f.mu.RUnlock()
		return content, nil
	}
	f.mu.RUnlock()

	content, err := f.fs.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	n.content = content
	n.hasRead = true
	f.mu.Unlock()

	return content, nil
}

// ReadWhile streams newline-delimited chunks from path, invoking predicate
// with each chunk, its index, and the content accumulated so far. Reading
// stops as soon as predicate returns false. Used to read only a file's
// leading docblock without loading the whole file into the parser.
func (f *Fastfs) ReadWhile(path string, predicate func(chunk []byte, i int, accumulated []byte) bool) ([]byte, error) {
	content, err := f.ReadFile(path)
	if err != nil {
		return nil, err
	}

	lines := strings.SplitAfter(string(content), "\n")
	var accumulated []byte
	for i, line := range lines {
		if line == "" {
			continue
		}
		chunk := []byte(line)
		if !predicate(chunk, i, accumulated) {
			break
		}
		accumulated = append(accumulated, chunk...)
	}
	return accumulated, nil
}

// Closest walks the ancestors of path looking for the nearest directory
// that contains a child named name; returns that child's path.
func (f *Fastfs) Closest(path, name string) (string, bool) {
	n, ok := f.lookup(filepath.Dir(path))
	if !ok {
		root := f.findRoot(path)
		if root == nil {
			return "", false
		}
		n = root
	}

	for dir := n; dir != nil; dir = dir.parent {
		f.mu.RLock()
		child, exists := dir.children[name]
		f.mu.RUnlock()
		if exists {
			return child.path, true
		}
		candidate := filepath.Join(dir.path, name)
		if f.FileExists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Matches returns the paths of files directly inside dir whose basename
// matches re.
func (f *Fastfs) Matches(dir string, re *regexp.Regexp) []string {
	n, ok := f.lookup(dir)
	if !ok || !n.isDir {
		return nil
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for name, child := range n.children {
		if !child.isDir && re.MatchString(name) {
			out = append(out, child.path)
		}
	}
	sort.Strings(out)
	return out
}

// MatchFilesByPattern returns every indexed file path matching re.
func (f *Fastfs) MatchFilesByPattern(re *regexp.Regexp) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for path, n := range f.nodes {
		if !n.isDir && re.MatchString(path) {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// FindFilesByExts returns every indexed file path whose extension (without
// the leading dot) is in exts.
func (f *Fastfs) FindFilesByExts(exts []string) []string {
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[ext] = true
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for path, n := range f.nodes {
		if n.isDir {
			continue
		}
		ext := strings.TrimPrefix(filepath.Ext(path), ".")
		if allowed[ext] {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// OnChange applies a filesystem change event to the tree. add creates a
// new node (ignored if path is outside every root); change/delete
// invalidate the existing node's cached read; delete additionally removes
// the node from its parent.
func (f *Fastfs) OnChange(kind ChangeKind, relPath, rootPath string) error {
	absPath := filepath.Join(rootPath, relPath)
	if f.blacklist.Match(absPath) {
		return nil
	}

	switch kind {
	case Add:
		return f.onAdd(absPath)
	case Change:
		f.invalidate(absPath)
		return nil
	case Delete:
		return f.onDelete(absPath)
	default:
		return fmt.Errorf("fastfs: unknown change kind %v", kind)
	}
}

func (f *Fastfs) onAdd(absPath string) error {
	root := f.findRoot(absPath)
	if root == nil {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.nodes[absPath]; exists {
		return nil
	}

	parentPath := filepath.Dir(absPath)
	parent, ok := f.nodes[parentPath]
	if !ok {
		return nil
	}

	stat, err := f.fs.Stat(absPath)
	if err != nil {
		return err
	}

	n := &node{path: absPath, isDir: stat.IsDir(), parent: parent}
	if n.isDir {
		n.children = make(map[string]*node)
		return nil
	}

	f.nodes[absPath] = n
	parent.children[filepath.Base(absPath)] = n
	return nil
}

func (f *Fastfs) invalidate(absPath string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.nodes[absPath]; ok {
		n.hasRead = false
		n.content = nil
	}
}

func (f *Fastfs) onDelete(absPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, ok := f.nodes[absPath]
	if !ok {
		return nil
	}
	if n.isDir {
		return nil
	}
	delete(f.nodes, absPath)
	if n.parent != nil {
		delete(n.parent.children, filepath.Base(absPath))
	}
	return nil
}

// Roots returns the configured root paths, in the order they were configured.
func (f *Fastfs) Roots() []Root {
	out := make([]Root, 0, len(f.roots))
	for _, r := range f.roots {
		out = append(out, Root{Path: r.path, Lazy: r.isLazy})
	}
	return out
}
