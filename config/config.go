// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config provides the optional Starlark config of bear.
//
// The config file sets global variables:
//
//	compilers = [
//	    "mycc",                             # gcc dialect
//	    compiler("*-xcc", dialect = "gcc"),
//	    compiler("mycl", dialect = "msvc"),
//	]
//	source_extensions = [".c", ".cc"]       # replaces the defaults
//	include_phases = ["compilation"]
//	dedup = "all"                           # or "last"
//	command_format = True
//
// Unknown globals are ignored.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/charmbracelet/log"
	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"go.chromium.org/infra/build/bear/compdb"
	"go.chromium.org/infra/build/bear/compilation"
)

// DefaultFile is the config file read when no config is specified.
const DefaultFile = ".bear.star"

// Config is a bear config.
type Config struct {
	// Compilers are patterns matched before the default ones.
	Compilers []compilation.Pattern

	// SourceExtensions replace the default source extensions, if set.
	SourceExtensions []string

	// Phases to include in the database, if set.
	Phases []compilation.Phase

	Dedup compdb.DedupMode

	// CommandFormat writes "command" instead of "arguments".
	CommandFormat bool
}

// Default returns the config used without config file.
func Default() *Config {
	return &Config{}
}

// Load loads the config file fname.
func Load(ctx context.Context, fname string) (*Config, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	thread := &starlark.Thread{
		Name: "config",
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, errors.New("load is not allowed in config")
		},
	}
	thread.SetLocal("context", ctx)
	globals, err := starlark.ExecFile(thread, fname, buf, predeclared())
	if err != nil {
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		}
		return nil, fmt.Errorf("failed to exec %s: %w", fname, err)
	}
	cfg, err := fromGlobals(globals)
	if err != nil {
		return nil, fmt.Errorf("bad config %s: %w", fname, err)
	}
	log.Debugf("config %s: %+v", fname, cfg)
	return cfg, nil
}

func predeclared() starlark.StringDict {
	runtimeModule := &starlarkstruct.Module{
		Name: "runtime",
		Members: starlark.StringDict{
			"os":   starlark.String(runtime.GOOS),
			"arch": starlark.String(runtime.GOARCH),
		},
	}
	runtimeModule.Freeze()
	return starlark.StringDict{
		"compiler": starlark.NewBuiltin("compiler", starCompiler),
		"runtime":  runtimeModule,
		"json":     starjson.Module,
	}
}

// starCompiler returns a struct of glob and dialect.
func starCompiler(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var glob string
	dialect := compilation.GCC.Name()
	err := starlark.UnpackArgs("compiler", args, kwargs, "glob", &glob, "dialect?", &dialect)
	if err != nil {
		return starlark.None, err
	}
	if _, ok := compilation.DialectByName(dialect); !ok {
		return starlark.None, fmt.Errorf("compiler: unknown dialect %q", dialect)
	}
	return starlarkstruct.FromStringDict(starlark.String("compiler"), starlark.StringDict{
		"glob":    starlark.String(glob),
		"dialect": starlark.String(dialect),
	}), nil
}

func fromGlobals(globals starlark.StringDict) (*Config, error) {
	cfg := Default()
	var err error
	if v, ok := globals["compilers"]; ok {
		cfg.Compilers, err = parseCompilers(v)
		if err != nil {
			return nil, fmt.Errorf("compilers: %w", err)
		}
	}
	if v, ok := globals["source_extensions"]; ok {
		cfg.SourceExtensions, err = stringList(v)
		if err != nil {
			return nil, fmt.Errorf("source_extensions: %w", err)
		}
	}
	if v, ok := globals["include_phases"]; ok {
		names, err := stringList(v)
		if err != nil {
			return nil, fmt.Errorf("include_phases: %w", err)
		}
		cfg.Phases = []compilation.Phase{}
		for _, name := range names {
			p, err := compilation.ParsePhase(name)
			if err != nil {
				return nil, fmt.Errorf("include_phases: %w", err)
			}
			cfg.Phases = append(cfg.Phases, p)
		}
	}
	if v, ok := globals["dedup"]; ok {
		s, ok := starlark.AsString(v)
		if !ok {
			return nil, fmt.Errorf("dedup: %s, want string", v.Type())
		}
		cfg.Dedup, err = compdb.ParseDedupMode(s)
		if err != nil {
			return nil, fmt.Errorf("dedup: %w", err)
		}
	}
	if v, ok := globals["command_format"]; ok {
		b, ok := v.(starlark.Bool)
		if !ok {
			return nil, fmt.Errorf("command_format: %s, want bool", v.Type())
		}
		cfg.CommandFormat = bool(b)
	}
	return cfg, nil
}

func parseCompilers(v starlark.Value) ([]compilation.Pattern, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s, want list", v.Type())
	}
	var patterns []compilation.Pattern
	for i := range list.Len() {
		elem := list.Index(i)
		if s, ok := starlark.AsString(elem); ok {
			patterns = append(patterns, compilation.Pattern{Glob: s, Dialect: compilation.GCC})
			continue
		}
		st, ok := elem.(*starlarkstruct.Struct)
		if !ok {
			return nil, fmt.Errorf("[%d]: %s, want string or compiler()", i, elem.Type())
		}
		glob, err := structString(st, "glob")
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		name, err := structString(st, "dialect")
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		dialect, ok := compilation.DialectByName(name)
		if !ok {
			return nil, fmt.Errorf("[%d]: unknown dialect %q", i, name)
		}
		patterns = append(patterns, compilation.Pattern{Glob: glob, Dialect: dialect})
	}
	return patterns, nil
}

func structString(st *starlarkstruct.Struct, name string) (string, error) {
	v, err := st.Attr(name)
	if err != nil {
		return "", err
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return "", fmt.Errorf("%s: %s, want string", name, v.Type())
	}
	return s, nil
}

func stringList(v starlark.Value) ([]string, error) {
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("%s, want list", v.Type())
	}
	r := make([]string, 0, list.Len())
	for i := range list.Len() {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("[%d]: %s, want string", i, list.Index(i).Type())
		}
		r = append(r, s)
	}
	return r, nil
}

// Classifier returns the classifier configured by cfg.
func (cfg *Config) Classifier() *compilation.Classifier {
	var opts []compilation.Option
	if len(cfg.Compilers) > 0 {
		opts = append(opts, compilation.WithCompilers(cfg.Compilers...))
	}
	if cfg.SourceExtensions != nil {
		opts = append(opts, compilation.WithSourceSuffixes(cfg.SourceExtensions...))
	}
	return compilation.NewClassifier(opts...)
}

// Policy returns the database policy configured by cfg.
func (cfg *Config) Policy() compdb.Policy {
	p := compdb.DefaultPolicy()
	if cfg.Phases != nil {
		p.Phases = cfg.Phases
	}
	p.Dedup = cfg.Dedup
	return p
}

// Format returns the database format configured by cfg.
func (cfg *Config) Format() compdb.Format {
	return compdb.Format{Command: cfg.CommandFormat}
}
