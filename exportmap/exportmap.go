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
// Package exportmap bridges a resolved dependency graph (response.Response)
// to the teacher's browser-native import-map output: for every dependency
// that resolves into an installed node_modules package, it emits an entry
// built with resolve.Template, the same URL templating cmd/generate already
// uses for package.json-driven import maps.
package exportmap

import (
	"path/filepath"
	"strings"

	"hastegraph.dev/hastegraph/importmap"
	"hastegraph.dev/hastegraph/resolve"
	"hastegraph.dev/hastegraph/response"
)

// FromResponse builds an import map from every dependency in resp whose
// package.json reports an installed-package name, using tmpl to expand
// each entry's URL. Project-local files (no package, or a package with
// no name) and synthetic modules (Null, Polyfill) are skipped: they have
// no specifier stable enough to publish in an import map.
//
// Entries are keyed "<packageName>/<relativePath>" (or bare packageName
// for a package's own main entry point); Response does not retain the
// original require() specifier per dependency, so subpath-export
// notation from the requesting code is not reproduced here.
func FromResponse(resp *response.Response, tmpl *resolve.Template) (*importmap.ImportMap, error) {
	im := &importmap.ImportMap{Imports: make(map[string]string)}

	for _, m := range resp.Dependencies() {
		pkg, err := m.GetPackage()
		if err != nil {
			return nil, err
		}
		if pkg == nil || pkg.Name() == "" || !isInstalled(pkg.Root()) {
			continue
		}

		rel, err := filepath.Rel(pkg.Root(), m.Path())
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		specifier := pkg.Name()
		if m.Path() != pkg.GetMain() {
			specifier = pkg.Name() + "/" + rel
		}

		im.Imports[specifier] = tmpl.Expand(pkg.Name(), "", rel)
	}

	return im, nil
}

// isInstalled reports whether root sits under a node_modules directory,
// the teacher's own convention for distinguishing installed packages
// from project-local package.json files (workspace roots, monorepo
// packages resolved by path rather than by name).
func isInstalled(root string) bool {
	slash := filepath.ToSlash(root)
	return strings.Contains(slash, "/node_modules/") || strings.HasPrefix(slash, "node_modules/")
}
