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
// Package pkgjson reads package.json for the bundler's CJS-style module
// resolution: the "main" field and "browser"/"react-native" redirect
// tables. This is distinct from the packagejson package, which resolves
// ESM "exports" conditions for import-map generation.
package pkgjson

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"hastegraph.dev/hastegraph/fs"
)

// MalformedPackageError wraps a JSON syntax error encountered while
// parsing a package.json file.
type MalformedPackageError struct {
	Path string
	Err  error
}

func (e *MalformedPackageError) Error() string {
	return fmt.Sprintf("malformed package.json at %s: %v", e.Path, e.Err)
}

func (e *MalformedPackageError) Unwrap() error { return e.Err }

// AbsoluteRedirectError is returned by RedirectRequire when a
// browser/react-native redirect entry's value is an absolute path.
// Redirections must be relative (§4.4); an absolute value is a
// malformed package.json, not a key miss.
type AbsoluteRedirectError struct {
	Root  string
	Key   string
	Value string
}

func (e *AbsoluteRedirectError) Error() string {
	return fmt.Sprintf("package.json at %s: redirect %q has absolute value %q, want relative", e.Root, e.Key, e.Value)
}

// raw mirrors the subset of package.json fields this resolver cares
// about. Exports/Imports are deliberately absent: CJS resolution here
// never consults them.
type raw struct {
	Name        string          `json:"name"`
	Main        string          `json:"main"`
	Browser     json.RawMessage `json:"browser"`
	ReactNative json.RawMessage `json:"react-native"`
}

// Package is a parsed package.json, offering the CJS main/browser/
// react-native redirect rules described in the resolver's component
// design.
type Package struct {
	root      string
	name      string
	main      string
	redirects map[string]any // value is string (redirect target) or false (disabled)
}

// Load parses the package.json file in dir.
func Load(fsys fs.FileSystem, dir string) (*Package, error) {
	path := filepath.Join(dir, "package.json")
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(dir, data)
}

// Parse parses package.json data for a package rooted at dir.
func Parse(dir string, data []byte) (*Package, error) {
	var r raw
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, &MalformedPackageError{Path: filepath.Join(dir, "package.json"), Err: err}
	}

	pkg := &Package{
		root: dir,
		name: r.Name,
		main: r.Main,
	}

	redirects, err := mergeRedirects(r.Browser, r.ReactNative)
	if err != nil {
		return nil, &MalformedPackageError{Path: filepath.Join(dir, "package.json"), Err: err}
	}
	pkg.redirects = redirects

	// A string react-native field replaces main outright (§4 Package).
	if len(r.ReactNative) > 0 {
		var rnMain string
		if err := json.Unmarshal(r.ReactNative, &rnMain); err == nil {
			pkg.main = rnMain
		}
	}

	return pkg, nil
}

// mergeRedirects merges browser and react-native object-form fields into
// a single key->value redirect table, with react-native entries
// overriding browser entries for the same key. String-typed fields are
// not object redirects and contribute nothing here.
func mergeRedirects(browser, reactNative json.RawMessage) (map[string]any, error) {
	merged := make(map[string]any)

	if len(browser) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(browser, &obj); err == nil {
			for k, v := range obj {
				merged[k] = v
			}
		}
	}

	if len(reactNative) > 0 {
		var obj map[string]any
		if err := json.Unmarshal(reactNative, &obj); err == nil {
			for k, v := range obj {
				merged[k] = v
			}
		}
	}

	return merged, nil
}

// Root returns the package's directory.
func (p *Package) Root() string { return p.root }

// Name returns the package's declared name, or "" if absent.
func (p *Package) Name() string { return p.name }

// IsHaste reports whether this package.json is haste-compatible: it
// simply needs a name field.
func (p *Package) IsHaste() bool { return p.name != "" }

// GetMain computes the package's main entry point as an absolute path.
// main is normalized by stripping a leading "./" and a trailing
// ".js"/".json", then re-extended with ".js" if no extension survives,
// then joined against the package root.
func (p *Package) GetMain() string {
	main := p.main
	if main == "" {
		main = "index"
	}
	main = strings.TrimPrefix(main, "./")
	main = strings.TrimSuffix(main, ".js")
	main = strings.TrimSuffix(main, ".json")
	if filepath.Ext(main) == "" {
		main += ".js"
	}
	return filepath.Join(p.root, main)
}

// RedirectRequire applies this package's browser/react-native redirect
// table to an absolute request path.
//
// Returns (target, disabled, ok, err): ok is false on a key miss (caller
// should use the original path unchanged); disabled is true when the
// redirect value is false (caller should resolve to a null module). An
// absolute redirect value is malformed (§4.4: "redirections must be
// relative") and is reported via err, distinct from a plain key miss.
func (p *Package) RedirectRequire(absPath string) (target string, disabled bool, ok bool, err error) {
	rel, relErr := filepath.Rel(p.root, absPath)
	if relErr != nil {
		return "", false, false, nil
	}
	key := "./" + filepath.ToSlash(rel)

	value, found := p.redirects[key]
	if !found {
		// Also try without an extension, since redirect keys are commonly
		// written without one (e.g. "./a.js" requested as "./a").
		ext := filepath.Ext(key)
		if ext != "" {
			value, found = p.redirects[strings.TrimSuffix(key, ext)]
		}
	}
	if !found {
		return "", false, false, nil
	}

	switch v := value.(type) {
	case bool:
		if !v {
			return "", true, true, nil
		}
		// true is not a meaningful redirect value; treat as a miss.
		return "", false, false, nil
	case string:
		if filepath.IsAbs(v) {
			return "", false, false, &AbsoluteRedirectError{Root: p.root, Key: key, Value: v}
		}
		return filepath.Join(p.root, v), false, true, nil
	default:
		return "", false, false, nil
	}
}
