// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compilation classifies traced process invocations into
// compilation entries.
package compilation

import (
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.chromium.org/infra/build/bear/trace"
)

// Entry is a single compile step derived from a trace record.
type Entry struct {
	// Compiler is the program as invoked, i.e. cmd[0] of the record.
	Compiler string

	Phase Phase

	// Flags are the args needed to replay the step, excluding the
	// compiler, the source and the output flag.
	Flags []string

	// Source is the input source file, or empty for a step without
	// sources, e.g. a link.
	Source string

	// Output is the explicit output, or empty when the invocation
	// uses the default output location.
	Output string

	// Cwd is the working directory of the originating record.
	Cwd string

	Dialect Dialect
}

// Arguments returns the command line to replay the step.
func (e Entry) Arguments() []string {
	args := make([]string, 0, len(e.Flags)+4)
	args = append(args, e.Compiler)
	args = append(args, e.Flags...)
	if e.Output != "" && e.Dialect != nil {
		args = append(args, e.Dialect.OutputArgs(e.Phase, e.Output)...)
	}
	if e.Source != "" {
		args = append(args, e.Source)
	}
	return args
}

// Classifier recognizes compiler invocations.
type Classifier struct {
	compilers []Pattern
	suffixes  map[string]bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithCompilers adds patterns, matched before the default ones.
func WithCompilers(patterns ...Pattern) Option {
	return func(c *Classifier) {
		c.compilers = append(slices.Clone(patterns), c.compilers...)
	}
}

// WithSourceSuffixes replaces the source file extensions.
func WithSourceSuffixes(suffixes ...string) Option {
	return func(c *Classifier) {
		c.suffixes = suffixSet(suffixes)
	}
}

// NewClassifier returns a classifier with the default compilers and
// source suffixes, modified by opts.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		compilers: slices.Clone(DefaultCompilers),
		suffixes:  suffixSet(DefaultSourceSuffixes),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func suffixSet(suffixes []string) map[string]bool {
	m := make(map[string]bool, len(suffixes))
	for _, s := range suffixes {
		if !strings.HasPrefix(s, ".") {
			s = "." + s
		}
		m[strings.ToLower(s)] = true
	}
	return m
}

// Recognize returns the dialect of the program, if it is a known one.
func (c *Classifier) Recognize(prog string) (Dialect, bool) {
	name := programName(prog)
	if name == "" {
		return nil, false
	}
	for _, p := range c.compilers {
		if p.Match(name) {
			return p.Dialect, true
		}
	}
	return nil, false
}

// programName returns the base name of prog without ".exe".
func programName(prog string) string {
	name := path.Base(strings.ReplaceAll(prog, `\`, "/"))
	if strings.EqualFold(path.Ext(name), ".exe") {
		name = name[:len(name)-len(".exe")]
	}
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// IsSource reports whether arg names a source file by its extension.
// It does not check the file system.
func (c *Classifier) IsSource(arg string) bool {
	ext := filepath.Ext(arg)
	if ext == "" || ext == arg {
		return false
	}
	return c.suffixes[strings.ToLower(ext)]
}

// Classify returns the compilation entries of the record: none when it is
// not a recognized compiler invocation or cannot be parsed, otherwise one
// per source file. An invocation without sources yields a single Linking
// entry with empty Source.
func (c *Classifier) Classify(r trace.Record) []Entry {
	if len(r.Cmd) == 0 {
		return nil
	}
	d, ok := c.Recognize(r.Cmd[0])
	if !ok {
		return nil
	}
	inv, err := d.Parse(r.Cmd[1:], c.IsSource)
	if err != nil {
		return nil
	}
	if len(inv.Sources) == 0 {
		return []Entry{{
			Compiler: r.Cmd[0],
			Phase:    Linking,
			Flags:    inv.Flags,
			Output:   inv.Output,
			Cwd:      r.Cwd,
			Dialect:  d,
		}}
	}
	entries := make([]Entry, 0, len(inv.Sources))
	for _, src := range inv.Sources {
		entries = append(entries, Entry{
			Compiler: r.Cmd[0],
			Phase:    inv.Phase,
			Flags:    slices.Clone(inv.Flags),
			Source:   src,
			Output:   inv.Output,
			Cwd:      r.Cwd,
			Dialect:  d,
		})
	}
	return entries
}
