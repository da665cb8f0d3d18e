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
// Package assetmap indexes binary asset files (images, fonts) by
// logical name, platform, and pixel-density scale, and resolves a
// require specifier or legacy "image!name" form to a concrete file.
package assetmap

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"hastegraph.dev/hastegraph/fastfs"
)

// entry holds every scale variant discovered for one (name, platform) pair.
type entry struct {
	scales []float64
	files  []string // parallel to scales, ascending
}

func (e *entry) add(scale float64, file string) {
	i := sort.SearchFloat64s(e.scales, scale)
	e.scales = append(e.scales, 0)
	copy(e.scales[i+1:], e.scales[i:])
	e.scales[i] = scale

	e.files = append(e.files, "")
	copy(e.files[i+1:], e.files[i:])
	e.files[i] = file
}

// key identifies one asset's (logicalName, platform) slot. platform is
// "" for platform-less assets.
type key struct {
	name     string
	platform string
}

// dirKey identifies one asset's (directory, logicalName, platform) slot,
// used for the absolute-path resolution form, which must only match
// siblings in the specifier's own directory rather than any
// same-named asset anywhere in the tree.
type dirKey struct {
	dir      string
	name     string
	platform string
}

// AssetMap is a built index of asset files by logical name, platform,
// and scale. entries is the global index used by the "image!name"
// legacy form; byDir additionally scopes each entry to its owning
// directory, used by the absolute-path form.
type AssetMap struct {
	fs        *fastfs.Fastfs
	exts      map[string]bool
	platforms map[string]bool
	entries   map[key]*entry
	byDir     map[dirKey]*entry
}

// nameRe matches "name@2x.png", "name@2x.ios.png", "name.ios.png", "name.png".
var nameRe = regexp.MustCompile(`^(.*?)(?:@([\d.]+)x)?(?:\.([a-zA-Z0-9]+))?\.([a-zA-Z0-9]+)$`)

// Build scans every file under fsys whose extension is in exts,
// producing an AssetMap. platforms names the recognized platform tags;
// any other dotted segment is treated as part of the basename.
func Build(fsys *fastfs.Fastfs, exts []string, platforms []string) (*AssetMap, error) {
	extSet := make(map[string]bool, len(exts))
	for _, e := range exts {
		extSet[strings.TrimPrefix(e, ".")] = true
	}
	platformSet := make(map[string]bool, len(platforms))
	for _, p := range platforms {
		platformSet[p] = true
	}

	am := &AssetMap{
		fs:        fsys,
		exts:      extSet,
		platforms: platformSet,
		entries:   make(map[key]*entry),
		byDir:     make(map[dirKey]*entry),
	}

	files := fsys.FindFilesByExts(exts)
	for _, path := range files {
		am.indexFile(path)
	}
	return am, nil
}

func (am *AssetMap) indexFile(path string) {
	base := filepath.Base(path)
	m := nameRe.FindStringSubmatch(base)
	if m == nil {
		return
	}
	name, scaleStr, maybePlatform, ext := m[1], m[2], m[3], m[4]
	if !am.exts[ext] {
		return
	}

	platform := ""
	if am.platforms[maybePlatform] {
		platform = maybePlatform
	} else if maybePlatform != "" {
		// Not a recognized platform tag: it's part of the basename
		// (e.g. "icon.small.png"); re-fold it in.
		name = name + "." + maybePlatform
	}

	scale := 1.0
	if scaleStr != "" {
		if parsed, err := strconv.ParseFloat(scaleStr, 64); err == nil {
			scale = parsed
		}
	}

	k := key{name: name, platform: platform}
	e, ok := am.entries[k]
	if !ok {
		e = &entry{}
		am.entries[k] = e
	}
	e.add(scale, path)

	dk := dirKey{dir: filepath.Dir(path), name: name, platform: platform}
	de, ok := am.byDir[dk]
	if !ok {
		de = &entry{}
		am.byDir[dk] = de
	}
	de.add(scale, path)
}

// Resolve resolves a specifier to an asset file path. Three forms are
// recognized: the legacy "image!logicalName" form looked up directly by
// name, an absolute path whose sibling directory is searched for a
// scale/platform-qualified match, and any other specifier, which is
// also looked up directly by name. Returns ("", false) on a miss.
func (am *AssetMap) Resolve(specifier, platform string) (string, bool) {
	if strings.Contains(specifier, "!") {
		parts := strings.SplitN(specifier, "!", 2)
		return am.resolveByName(parts[1], platform)
	}
	if filepath.IsAbs(specifier) {
		return am.resolveAbsolute(specifier, platform)
	}
	return am.resolveByName(specifier, platform)
}

func (am *AssetMap) resolveByName(name, platform string) (string, bool) {
	if e, ok := am.entries[key{name: name, platform: platform}]; ok && len(e.files) > 0 {
		return e.files[0], true
	}
	if e, ok := am.entries[key{name: name, platform: ""}]; ok && len(e.files) > 0 {
		return e.files[0], true
	}
	return "", false
}

// resolveAbsolute matches the specifier's basename against only the
// sibling files in its own directory (per dirKey), so two directories
// that each hold a same-named asset never collide.
func (am *AssetMap) resolveAbsolute(path, platform string) (string, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !am.exts[ext] {
		return "", false
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dir := filepath.Dir(path)

	if e, ok := am.byDir[dirKey{dir: dir, name: name, platform: platform}]; ok && len(e.files) > 0 {
		return e.files[0], true
	}
	if e, ok := am.byDir[dirKey{dir: dir, name: name, platform: ""}]; ok && len(e.files) > 0 {
		return e.files[0], true
	}
	return "", false
}

// String implements fmt.Stringer for debugging.
func (am *AssetMap) String() string {
	return fmt.Sprintf("AssetMap{%d entries}", len(am.entries))
}
