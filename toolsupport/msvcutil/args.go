// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package msvcutil provides utilities of msvc-style command lines,
// as used by cl.exe and clang-cl.
package msvcutil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingArg is returned when a flag that takes a value is the last arg.
var ErrMissingArg = errors.New("missing flag argument")

// Args is a msvc-style command line split into parts.
type Args struct {
	// Flags are args other than sources and the output flag,
	// in the original order.
	Flags []string

	// Sources are args recognized as input source files.
	Sources []string

	// Output is the value of /Fo, /Fe or -o, or empty.
	Output string

	// Preprocess is set by /E, /P or /EP.
	Preprocess bool

	// Compile is set by /c.
	Compile bool
}

// flags that take the next arg as their value. Options are accepted
// with either '/' or '-' prefix; keys here use '/'.
// https://learn.microsoft.com/en-us/cpp/build/reference/compiler-options-listed-by-category?view=msvc-170
var separateValueFlags = map[string]bool{
	"/D":      true,
	"/U":      true,
	"/I":      true,
	"/FI":     true,
	"/imsvc":  true,
	"/Xclang": true,
	"/o":      true,
}

// Parse splits args, not including the program name.
// isSource reports whether a non-flag arg names a source file.
func Parse(args []string, isSource func(string) bool) (Args, error) {
	var r Args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		opt, isOpt := option(arg, isSource)
		if !isOpt {
			if isSource(arg) {
				r.Sources = append(r.Sources, arg)
				continue
			}
			r.Flags = append(r.Flags, arg)
			continue
		}
		switch opt {
		case "/link":
			// the rest are passed to the linker.
			r.Flags = append(r.Flags, args[i:]...)
			return r, nil
		case "/E", "/P", "/EP":
			r.Preprocess = true
		case "/c":
			r.Compile = true
		}
		if separateValueFlags[opt] {
			if i+1 >= len(args) {
				return Args{}, fmt.Errorf("%s: %w", arg, ErrMissingArg)
			}
			if opt == "/o" {
				// clang-cl -o <path>
				r.Output = args[i+1]
				i++
				continue
			}
			r.Flags = append(r.Flags, arg, args[i+1])
			i++
			continue
		}
		switch {
		case strings.HasPrefix(opt, "/Fo"), strings.HasPrefix(opt, "/Fe"):
			// /Fo<path> or /Fo:<path>
			r.Output = strings.TrimPrefix(opt[3:], ":")
			continue
		case strings.HasPrefix(opt, "/Tc"), strings.HasPrefix(opt, "/Tp"):
			// /Tc<source>, /Tp<source>
			r.Sources = append(r.Sources, opt[3:])
			continue
		}
		r.Flags = append(r.Flags, arg)
	}
	return r, nil
}

// option reports whether arg is an option, and returns it with '/' prefix.
// An absolute unix path to a source, such as /src/foo.cc, is not an option.
func option(arg string, isSource func(string) bool) (string, bool) {
	switch {
	case strings.HasPrefix(arg, "-"):
		return "/" + arg[1:], true
	case strings.HasPrefix(arg, "/Tc"), strings.HasPrefix(arg, "/Tp"):
		return arg, true
	case strings.HasPrefix(arg, "/"):
		if isSource(arg) {
			return "", false
		}
		return arg, true
	}
	return "", false
}

// OutputArgs returns the args to specify object output.
func OutputArgs(output string) []string {
	return []string{"/Fo" + output}
}
