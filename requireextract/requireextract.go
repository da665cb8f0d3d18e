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
// Package requireextract parses transformed module source into an
// ordered list of dependency specifiers. Two implementations are
// provided: a fast regex-based scanner and a tree-sitter grammar-aware
// one; callers pick whichever fits their accuracy/latency tradeoff.
package requireextract

// Deps is the result of extracting dependency specifiers from source.
// Sync holds the specifiers in source order; a Resolution's requires
// list is built directly from it.
type Deps struct {
	Sync []string
}

// Extractor parses a module's transformed code into its dependency
// specifiers.
type Extractor interface {
	ExtractRequires(code []byte) (Deps, error)
}
