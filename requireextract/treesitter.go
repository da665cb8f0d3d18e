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

import (
	"embed"
	"fmt"
	"sync"

	ts "github.com/tree-sitter/go-tree-sitter"
	tsTypescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

//go:embed queries/requires.scm
var queryFiles embed.FS

var tsLanguage = ts.NewLanguage(tsTypescript.LanguageTypescript())

var parserPool = sync.Pool{
	New: func() any {
		parser := ts.NewParser()
		if err := parser.SetLanguage(tsLanguage); err != nil {
			panic("requireextract: failed to set typescript language: " + err.Error())
		}
		return parser
	},
}

func getParser() *ts.Parser { return parserPool.Get().(*ts.Parser) }

func putParser(p *ts.Parser) {
	p.Reset()
	parserPool.Put(p)
}

var (
	requiresQuery     *ts.Query
	requiresQueryOnce sync.Once
	requiresQueryErr  error
)

func getRequiresQuery() (*ts.Query, error) {
	requiresQueryOnce.Do(func() {
		data, err := queryFiles.ReadFile("queries/requires.scm")
		if err != nil {
			requiresQueryErr = fmt.Errorf("requireextract: reading query: %w", err)
			return
		}
		requiresQuery, requiresQueryErr = ts.NewQuery(tsLanguage, string(data))
	})
	return requiresQuery, requiresQueryErr
}

// TreeSitter extracts dependency specifiers by parsing source with the
// TypeScript grammar (a syntactic superset of JavaScript), matching
// require() calls, static imports, re-exports, and dynamic import()
// against a compiled query. It is immune to false positives from
// comments and unrelated string literals, at higher cost than Regex.
type TreeSitter struct{}

// ExtractRequires implements Extractor.
func (TreeSitter) ExtractRequires(code []byte) (Deps, error) {
	query, err := getRequiresQuery()
	if err != nil {
		return Deps{}, err
	}

	parser := getParser()
	defer putParser(parser)

	tree := parser.Parse(code, nil)
	if tree == nil {
		return Deps{}, fmt.Errorf("requireextract: failed to parse source")
	}
	defer tree.Close()

	cursor := ts.NewQueryCursor()
	defer cursor.Close()

	captureNames := query.CaptureNames()
	matches := cursor.Matches(query, tree.RootNode(), code)

	var specs []string
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, capture := range match.Captures {
			name := captureNames[capture.Index]
			switch name {
			case "require.spec", "import.spec", "reexport.spec", "dynamicImport.spec":
				specs = append(specs, capture.Node.Utf8Text(code))
			}
		}
	}

	return Deps{Sync: specs}, nil
}
