// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compilation

import (
	"path"

	"go.chromium.org/infra/build/bear/toolsupport/gccutil"
	"go.chromium.org/infra/build/bear/toolsupport/msvcutil"
)

// Invocation is a command line split by a Dialect.
type Invocation struct {
	Phase   Phase
	Flags   []string
	Sources []string
	Output  string
}

// Dialect is the flag syntax of a family of tools.
type Dialect interface {
	// Name returns the name of the dialect, used in config.
	Name() string

	// Parse splits args, not including the program name.
	// isSource reports whether a non-flag arg names a source file.
	Parse(args []string, isSource func(string) bool) (Invocation, error)

	// OutputArgs returns the args to specify output for the phase.
	OutputArgs(phase Phase, output string) []string
}

// Dialects.
var (
	// GCC is gcc, clang and compatible compiler drivers.
	GCC Dialect = gccDialect{}

	// MSVC is cl.exe and clang-cl.
	MSVC Dialect = msvcDialect{}

	// Assembler is the GNU assembler.
	Assembler Dialect = assemblerDialect{}

	// Linker is ld and compatible linkers. It never has sources.
	Linker Dialect = linkerDialect{}
)

var dialects = []Dialect{GCC, MSVC, Assembler, Linker}

// DialectByName returns the dialect for the name.
func DialectByName(name string) (Dialect, bool) {
	for _, d := range dialects {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

type gccDialect struct{}

func (gccDialect) Name() string { return "gcc" }

func (gccDialect) Parse(args []string, isSource func(string) bool) (Invocation, error) {
	a, err := gccutil.Parse(args, isSource)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Phase:   phaseOf(a.Preprocess, a.Compile, a.Assemble),
		Flags:   a.Flags,
		Sources: a.Sources,
		Output:  a.Output,
	}, nil
}

func (gccDialect) OutputArgs(phase Phase, output string) []string {
	return gccutil.OutputArgs(output)
}

type msvcDialect struct{}

func (msvcDialect) Name() string { return "msvc" }

func (msvcDialect) Parse(args []string, isSource func(string) bool) (Invocation, error) {
	a, err := msvcutil.Parse(args, isSource)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Phase:   phaseOf(a.Preprocess, a.Compile, false),
		Flags:   a.Flags,
		Sources: a.Sources,
		Output:  a.Output,
	}, nil
}

func (msvcDialect) OutputArgs(phase Phase, output string) []string {
	if phase == Linking {
		return []string{"/Fe" + output}
	}
	return msvcutil.OutputArgs(output)
}

type assemblerDialect struct{}

func (assemblerDialect) Name() string { return "as" }

func (assemblerDialect) Parse(args []string, isSource func(string) bool) (Invocation, error) {
	a, err := gccutil.Parse(args, isSource)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Phase:   Assembly,
		Flags:   a.Flags,
		Sources: a.Sources,
		Output:  a.Output,
	}, nil
}

func (assemblerDialect) OutputArgs(phase Phase, output string) []string {
	return gccutil.OutputArgs(output)
}

type linkerDialect struct{}

func (linkerDialect) Name() string { return "ld" }

func (linkerDialect) Parse(args []string, _ func(string) bool) (Invocation, error) {
	a, err := gccutil.Parse(args, func(string) bool { return false })
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Phase:  Linking,
		Flags:  a.Flags,
		Output: a.Output,
	}, nil
}

func (linkerDialect) OutputArgs(phase Phase, output string) []string {
	return gccutil.OutputArgs(output)
}

// Pattern selects a dialect for programs whose base name, without
// ".exe", matches Glob (path.Match syntax).
type Pattern struct {
	Glob    string
	Dialect Dialect
}

// Match reports whether name matches the pattern.
func (p Pattern) Match(name string) bool {
	ok, err := path.Match(p.Glob, name)
	return err == nil && ok
}

// DefaultCompilers are the programs recognized without config,
// in match order.
var DefaultCompilers = []Pattern{
	{"cl", MSVC},
	{"clang-cl", MSVC},
	{"clang-cl-[0-9]*", MSVC},

	{"cc", GCC},
	{"c++", GCC},
	{"c89", GCC},
	{"c99", GCC},
	{"gcc", GCC},
	{"g++", GCC},
	{"clang", GCC},
	{"clang++", GCC},
	{"gcc-[0-9]*", GCC},
	{"g++-[0-9]*", GCC},
	{"clang-[0-9]*", GCC},
	{"clang++-[0-9]*", GCC},
	{"*-cc", GCC},
	{"*-c++", GCC},
	{"*-gcc", GCC},
	{"*-g++", GCC},
	{"*-gcc-[0-9]*", GCC},
	{"*-g++-[0-9]*", GCC},
	{"*-clang", GCC},
	{"*-clang++", GCC},
	{"icc", GCC},
	{"icpc", GCC},
	{"icx", GCC},
	{"icpx", GCC},
	{"nvcc", GCC},

	{"as", Assembler},
	{"*-as", Assembler},

	{"ld", Linker},
	{"ld.*", Linker},
	{"*-ld", Linker},
	{"*-ld.*", Linker},
	{"lld", Linker},
	{"ld64.lld", Linker},
}

// DefaultSourceSuffixes are the file extensions recognized as sources
// without config. Matching is case insensitive.
var DefaultSourceSuffixes = []string{
	".c", ".cc", ".cp", ".cpp", ".cxx", ".c++",
	".m", ".mm",
	".s", ".sx", ".asm",
	".i", ".ii",
	".cu",
}
