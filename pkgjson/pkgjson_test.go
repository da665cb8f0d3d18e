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
package pkgjson_test

import (
	"errors"
	"testing"

	"hastegraph.dev/hastegraph/pkgjson"
)

func TestGetMain(t *testing.T) {
	pkg, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg","main":"./lib/index"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := pkg.GetMain(); got != "/r/pkg/lib/index.js" {
		t.Errorf("expected /r/pkg/lib/index.js, got %s", got)
	}
}

func TestRedirectRequireRelative(t *testing.T) {
	pkg, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg","browser":{"./a.js":"./b.js"}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	target, disabled, ok, err := pkg.RedirectRequire("/r/pkg/a.js")
	if err != nil {
		t.Fatalf("RedirectRequire failed: %v", err)
	}
	if !ok || disabled {
		t.Fatalf("expected an enabled redirect, got ok=%v disabled=%v", ok, disabled)
	}
	if target != "/r/pkg/b.js" {
		t.Errorf("expected /r/pkg/b.js, got %s", target)
	}
}

func TestRedirectRequireDisabled(t *testing.T) {
	pkg, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg","browser":{"./a.js":false}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	_, disabled, ok, err := pkg.RedirectRequire("/r/pkg/a.js")
	if err != nil {
		t.Fatalf("RedirectRequire failed: %v", err)
	}
	if !ok || !disabled {
		t.Fatalf("expected a disabled redirect, got ok=%v disabled=%v", ok, disabled)
	}
}

func TestRedirectRequireMiss(t *testing.T) {
	pkg, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	_, _, ok, err := pkg.RedirectRequire("/r/pkg/a.js")
	if err != nil {
		t.Fatalf("RedirectRequire failed: %v", err)
	}
	if ok {
		t.Error("expected a key miss")
	}
}

// §4.4 - redirections must be relative; an absolute value is a malformed
// package.json, reported as an error rather than treated as a key miss.
func TestRedirectRequireAbsoluteValueIsError(t *testing.T) {
	pkg, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg","browser":{"./a.js":"/etc/passwd"}}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	_, _, ok, err := pkg.RedirectRequire("/r/pkg/a.js")
	if err == nil {
		t.Fatal("expected an error for an absolute redirect value")
	}
	if ok {
		t.Error("expected ok=false alongside the error")
	}
	var absErr *pkgjson.AbsoluteRedirectError
	if !errors.As(err, &absErr) {
		t.Errorf("expected an *AbsoluteRedirectError, got %T", err)
	}
}

func TestIsHaste(t *testing.T) {
	named, err := pkgjson.Parse("/r/pkg", []byte(`{"name":"pkg"}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if !named.IsHaste() {
		t.Error("expected a named package to be haste-compatible")
	}

	unnamed, err := pkgjson.Parse("/r/pkg", []byte(`{}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if unnamed.IsHaste() {
		t.Error("expected an unnamed package to not be haste-compatible")
	}
}

func TestParseMalformed(t *testing.T) {
	_, err := pkgjson.Parse("/r/pkg", []byte(`{not json`))
	if err == nil {
		t.Fatal("expected a malformed-package error")
	}
	var malformed *pkgjson.MalformedPackageError
	if !errors.As(err, &malformed) {
		t.Errorf("expected a *MalformedPackageError, got %T", err)
	}
}
