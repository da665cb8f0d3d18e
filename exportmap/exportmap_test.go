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
package exportmap_test

import (
	"testing"

	"hastegraph.dev/hastegraph/depgraph"
	"hastegraph.dev/hastegraph/exportmap"
	"hastegraph.dev/hastegraph/internal/mapfs"
	"hastegraph.dev/hastegraph/resolve"
)

func TestFromResponseEmitsInstalledPackageOnly(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/a.js", `require("./b"); require("left-pad")`, 0644)
	mfs.AddFile("/r/b.js", ``, 0644)
	mfs.AddDir("/r/node_modules/left-pad", 0755)
	mfs.AddFile("/r/node_modules/left-pad/package.json", `{"name":"left-pad","main":"index.js"}`, 0644)
	mfs.AddFile("/r/node_modules/left-pad/index.js", ``, 0644)

	g, err := depgraph.New(mfs, depgraph.Options{
		ProjectRoots: []string{"/r"},
		ProjectExts:  []string{"js"},
	})
	if err != nil {
		t.Fatalf("depgraph.New failed: %v", err)
	}

	resp, err := g.GetDependencies(depgraph.GetDependenciesRequest{EntryFile: "/r/a.js", Recursive: true})
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}

	tmpl, err := resolve.ParseTemplate(resolve.DefaultLocalTemplate)
	if err != nil {
		t.Fatalf("ParseTemplate failed: %v", err)
	}

	im, err := exportmap.FromResponse(resp, tmpl)
	if err != nil {
		t.Fatalf("FromResponse failed: %v", err)
	}

	url, ok := im.Imports["left-pad"]
	if !ok {
		t.Fatalf("expected an import entry for left-pad, got %v", im.Imports)
	}
	if url != "/node_modules/left-pad/index.js" {
		t.Errorf("expected /node_modules/left-pad/index.js, got %s", url)
	}

	if len(im.Imports) != 1 {
		t.Errorf("expected only the installed package to be exported, got %v", im.Imports)
	}
}
