// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package msvcutil

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func isSource(arg string) bool {
	switch filepath.Ext(arg) {
	case ".c", ".cc", ".cpp":
		return true
	}
	return false
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		name string
		args []string
		want Args
	}{
		{
			name: "clang-cl",
			args: []string{
				"/nologo",
				"/showIncludes:user",
				"-DUSE_AURA=1",
				"-I../..",
				"/c",
				"../../base/base64.cc",
				"/Foobj/base/base/base64.obj",
				"/Fdobj/base/base_cc.pdb",
			},
			want: Args{
				Flags: []string{
					"/nologo",
					"/showIncludes:user",
					"-DUSE_AURA=1",
					"-I../..",
					"/c",
					"/Fdobj/base/base_cc.pdb",
				},
				Sources: []string{"../../base/base64.cc"},
				Output:  "obj/base/base/base64.obj",
				Compile: true,
			},
		},
		{
			name: "preprocess",
			args: []string{"/E", "/c", "foo.c"},
			want: Args{
				Flags:      []string{"/E", "/c"},
				Sources:    []string{"foo.c"},
				Preprocess: true,
				Compile:    true,
			},
		},
		{
			name: "absolute_unix_source",
			args: []string{"/c", "/src/foo.cc", "/Fo:/out/foo.obj"},
			want: Args{
				Flags:   []string{"/c"},
				Sources: []string{"/src/foo.cc"},
				Output:  "/out/foo.obj",
				Compile: true,
			},
		},
		{
			name: "separate_values",
			args: []string{"/D", "FOO", "/FI", "pch.c", "-c", "a.c", "b.c", "-o", "out.obj"},
			want: Args{
				Flags:   []string{"/D", "FOO", "/FI", "pch.c", "-c"},
				Sources: []string{"a.c", "b.c"},
				Output:  "out.obj",
				Compile: true,
			},
		},
		{
			name: "forced_language",
			args: []string{"/c", "/Tpfoo.c"},
			want: Args{
				Flags:   []string{"/c"},
				Sources: []string{"foo.c"},
				Compile: true,
			},
		},
		{
			name: "link",
			args: []string{"main.cc", "/Femain.exe", "/link", "/DEBUG", "user32.lib"},
			want: Args{
				Flags:   []string{"/link", "/DEBUG", "user32.lib"},
				Sources: []string{"main.cc"},
				Output:  "main.exe",
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.args, isSource)
			if err != nil {
				t.Fatalf("Parse(%q)=%v; want nil error", tc.args, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Parse(%q): diff -want +got:\n%s", tc.args, diff)
			}
		})
	}
}

func TestParseMissingArg(t *testing.T) {
	for _, args := range [][]string{
		{"/c", "foo.c", "/D"},
		{"/c", "foo.c", "-o"},
	} {
		_, err := Parse(args, isSource)
		if !errors.Is(err, ErrMissingArg) {
			t.Errorf("Parse(%q)=%v; want %v", args, err, ErrMissingArg)
		}
	}
}
