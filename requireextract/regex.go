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
package requireextract

import "regexp"

// reSpecifier matches require()/import/export-from forms in a single
// alternation so a whole-source scan yields specifiers in true source
// order, rather than one bucket per form.
var reSpecifier = regexp.MustCompile(
	`require\(\s*['"]([^'"]+)['"]\s*\)` +
		`|import(?:\s+[\w*{}\s,]+\s+from)?\s*['"]([^'"]+)['"]` +
		`|export\s+[\w*{}\s,]+\s+from\s*['"]([^'"]+)['"]`,
)

// Regex extracts require()/import/export-from specifiers with a single
// line-oblivious scan of the whole source. It does not understand
// comments or string-literal context, so a specifier-looking substring
// inside a comment or unrelated string is indistinguishable from a real
// one; callers favoring speed over parse-correctness use this over
// TreeSitter.
type Regex struct{}

// ExtractRequires implements Extractor.
func (Regex) ExtractRequires(code []byte) (Deps, error) {
	var specs []string
	for _, m := range reSpecifier.FindAllSubmatch(code, -1) {
		for _, group := range m[1:] {
			if len(group) > 0 {
				specs = append(specs, string(group))
				break
			}
		}
	}
	return Deps{Sync: specs}, nil
}
