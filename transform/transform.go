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
// Package transform defines the code-transform contract consulted by a
// Module when it reads its own body. The transform pipeline itself
// (minification, JSX, TypeScript stripping, and so on) lives outside
// this module's scope; callers plug in whatever Func fits their build.
package transform

import "sort"

// Options carries the parameters a transform needs to decide how to
// rewrite a module's source: target platform, dev/prod mode, and any
// caller-defined extras.
type Options struct {
	Platform string
	Dev      bool
	Extra    map[string]string
}

// Key returns a string uniquely identifying this Options value, suitable
// for use as a cache key alongside a module path. Extra's keys are
// sorted first so the result is stable across calls regardless of Go's
// randomized map iteration order.
func (o Options) Key() string {
	key := o.Platform
	if o.Dev {
		key += ";dev"
	}
	extraKeys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		key += ";" + k + "=" + o.Extra[k]
	}
	return key
}

// Result is the output of a transform: rewritten code plus any
// dependency specifiers the transform itself discovered (e.g. a JSX
// runtime import), which are prepended to whatever extractRequires
// finds in the rewritten code.
type Result struct {
	Code         []byte
	Dependencies []string
	Map          []byte
}

// Func transforms a module's raw source into executable code.
type Func func(path string, source []byte, opts Options) (Result, error)

// Identity is the default Func: it returns source unchanged. Useful for
// plain CommonJS trees with no build step, and for tests.
func Identity(_ string, source []byte, _ Options) (Result, error) {
	return Result{Code: source}, nil
}
