// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gccutil provides utilities of gcc-style command lines,
// as used by gcc, clang, and the GNU binutils.
package gccutil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingArg is returned when a flag that takes a value is the last arg.
var ErrMissingArg = errors.New("missing flag argument")

// Args is a gcc-style command line split into parts.
type Args struct {
	// Flags are args other than sources and the output pair,
	// in the original order.
	Flags []string

	// Sources are args recognized as input source files.
	Sources []string

	// Output is the value of -o or --output, or empty.
	Output string

	// Preprocess is set by a preprocess-only flag (-E, -M, -MM).
	Preprocess bool

	// Compile is set by -c.
	Compile bool

	// Assemble is set by -S.
	Assemble bool
}

// flags that take the next arg as their value.
// https://gcc.gnu.org/onlinedocs/gcc/Option-Summary.html
// https://clang.llvm.org/docs/ClangCommandLineReference.html
var separateValueFlags = map[string]bool{
	"-D":                 true,
	"-U":                 true,
	"-I":                 true,
	"-L":                 true,
	"-l":                 true,
	"-MF":                true,
	"-MT":                true,
	"-MQ":                true,
	"-T":                 true,
	"-x":                 true,
	"-e":                 true,
	"-u":                 true,
	"-z":                 true,
	"-arch":              true,
	"-target":            true,
	"-include":           true,
	"-include-pch":       true,
	"-imacros":           true,
	"-isystem":           true,
	"-iquote":            true,
	"-idirafter":         true,
	"-iprefix":           true,
	"-iwithprefix":       true,
	"-iwithprefixbefore": true,
	"-isysroot":          true,
	"-imultilib":         true,
	"-aux-info":          true,
	"-dumpbase":          true,
	"-dumpdir":           true,
	"-Xclang":            true,
	"-Xlinker":           true,
	"-Xassembler":        true,
	"-Xpreprocessor":     true,
	"--param":            true,
	"--sysroot":          true,
	"-install_name":      true,
	"-framework":         true,
	"-resource-dir":      true,
	"-ivfsoverlay":       true,
}

// Parse splits args, not including the program name.
// isSource reports whether a non-flag arg names a source file.
func Parse(args []string, isSource func(string) bool) (Args, error) {
	var r Args
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-o", "--output":
			if i+1 >= len(args) {
				return Args{}, fmt.Errorf("%s: %w", arg, ErrMissingArg)
			}
			i++
			r.Output = args[i]
			continue
		case "-E", "-M", "-MM":
			r.Preprocess = true
		case "-c":
			r.Compile = true
		case "-S":
			r.Assemble = true
		}
		if separateValueFlags[arg] {
			if i+1 >= len(args) {
				return Args{}, fmt.Errorf("%s: %w", arg, ErrMissingArg)
			}
			r.Flags = append(r.Flags, arg, args[i+1])
			i++
			continue
		}
		switch {
		case strings.HasPrefix(arg, "--output="):
			r.Output = strings.TrimPrefix(arg, "--output=")
			continue
		case strings.HasPrefix(arg, "-o") && !strings.HasPrefix(arg, "-objc"):
			// -o<path>
			r.Output = strings.TrimPrefix(arg, "-o")
			continue
		case !strings.HasPrefix(arg, "-") && !strings.HasPrefix(arg, "@") && isSource(arg):
			r.Sources = append(r.Sources, arg)
			continue
		}
		r.Flags = append(r.Flags, arg)
	}
	return r, nil
}

// OutputArgs returns the args to specify output.
func OutputArgs(output string) []string {
	return []string{"-o", output}
}
