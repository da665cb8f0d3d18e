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
package deps

import (
	"sort"
	"testing"

	"github.com/spf13/viper"

	"hastegraph.dev/hastegraph/internal/mapfs"
)

func TestProjectRootsWithoutWorkspacesFlag(t *testing.T) {
	viper.Set("workspaces", false)
	defer viper.Set("workspaces", nil)

	mfs := mapfs.New()
	roots, err := projectRoots(mfs, "/r")
	if err != nil {
		t.Fatalf("projectRoots failed: %v", err)
	}
	if len(roots) != 1 || roots[0] != "/r" {
		t.Errorf("expected just the root itself, got %v", roots)
	}
}

func TestProjectRootsDiscoversWorkspacePackages(t *testing.T) {
	viper.Set("workspaces", true)
	defer viper.Set("workspaces", nil)

	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/package.json", `{"name":"root","workspaces":["packages/*"]}`, 0644)
	mfs.AddDir("/r/packages/a", 0755)
	mfs.AddFile("/r/packages/a/package.json", `{"name":"a"}`, 0644)
	mfs.AddDir("/r/packages/b", 0755)
	mfs.AddFile("/r/packages/b/package.json", `{"name":"b"}`, 0644)

	roots, err := projectRoots(mfs, "/r")
	if err != nil {
		t.Fatalf("projectRoots failed: %v", err)
	}
	sort.Strings(roots)
	want := []string{"/r", "/r/packages/a", "/r/packages/b"}
	if len(roots) != len(want) {
		t.Fatalf("expected %v, got %v", want, roots)
	}
	for i, w := range want {
		if roots[i] != w {
			t.Errorf("expected root %q at index %d, got %q", w, i, roots[i])
		}
	}
}

func TestProjectRootsNoWorkspacesFieldStillReturnsRoot(t *testing.T) {
	viper.Set("workspaces", true)
	defer viper.Set("workspaces", nil)

	mfs := mapfs.New()
	mfs.AddDir("/r", 0755)
	mfs.AddFile("/r/package.json", `{"name":"root"}`, 0644)

	roots, err := projectRoots(mfs, "/r")
	if err != nil {
		t.Fatalf("projectRoots failed: %v", err)
	}
	if len(roots) != 1 || roots[0] != "/r" {
		t.Errorf("expected just the root itself when no workspaces are declared, got %v", roots)
	}
}
