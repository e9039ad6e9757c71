// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package intercept captures the commands run by a build.
//
// In wrapper mode, a directory of shims (symlinks to the bear executable)
// is put first on PATH. Each shim reports its invocation to the trace
// store named by the environment, then execs the real program.
// In strace mode, the build runs under strace and every successful execve
// is reported after the build finishes.
package intercept

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.chromium.org/infra/build/bear/trace"
)

// Environment variables that carry the capture configuration to
// intercepted processes.
const (
	// EnvTarget is the trace store directory.
	EnvTarget = "BEAR_TARGET"

	// EnvShimDir is the directory of shims, which is skipped when
	// looking up the real program.
	EnvShimDir = "BEAR_WRAPPER_DIR"

	// EnvCompress is set to "1" to store compressed records.
	EnvCompress = "BEAR_COMPRESS"
)

// Config is the capture configuration shared by all intercepted processes.
type Config struct {
	// Target is the trace store directory.
	Target string

	// ShimDir is the directory of shims, if any.
	ShimDir string

	// Compress stores records zstd compressed.
	Compress bool
}

// FromEnv reads a Config from the environment.
// It returns false when no capture is configured.
func FromEnv(lookup func(string) (string, bool)) (Config, bool) {
	target, ok := lookup(EnvTarget)
	if !ok || target == "" {
		return Config{}, false
	}
	cfg := Config{Target: target}
	cfg.ShimDir, _ = lookup(EnvShimDir)
	if v, ok := lookup(EnvCompress); ok {
		cfg.Compress, _ = strconv.ParseBool(v)
	}
	return cfg, true
}

// Environ returns base with the capture configuration set.
// When ShimDir is set, it is put first on PATH.
func (c Config) Environ(base []string) []string {
	env := make([]string, 0, len(base)+4)
	pathEnv, hasPath := "", false
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		switch k {
		case EnvTarget, EnvShimDir, EnvCompress:
			continue
		case "PATH":
			pathEnv, hasPath = v, true
			continue
		}
		env = append(env, kv)
	}
	env = append(env, EnvTarget+"="+c.Target)
	if c.ShimDir != "" {
		env = append(env, EnvShimDir+"="+c.ShimDir)
	}
	if c.Compress {
		env = append(env, EnvCompress+"=1")
	}
	switch {
	case c.ShimDir != "" && hasPath && pathEnv != "":
		env = append(env, "PATH="+c.ShimDir+string(os.PathListSeparator)+pathEnv)
	case c.ShimDir != "":
		env = append(env, "PATH="+c.ShimDir)
	case hasPath:
		env = append(env, "PATH="+pathEnv)
	}
	return env
}

// ProgramEnviron returns base for the real program run by a shim: the
// shim dir is removed from PATH, so processes the program spawns
// itself, such as the assembler run by a compiler driver, are not
// recorded.
func (c Config) ProgramEnviron(base []string) []string {
	if c.ShimDir == "" {
		return base
	}
	shimDir := filepath.Clean(c.ShimDir)
	env := make([]string, 0, len(base))
	for _, kv := range base {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.EqualFold(k, "PATH") {
			env = append(env, kv)
			continue
		}
		var dirs []string
		for _, dir := range filepath.SplitList(v) {
			if dir != "" && filepath.Clean(dir) == shimDir {
				continue
			}
			dirs = append(dirs, dir)
		}
		env = append(env, k+"="+strings.Join(dirs, string(os.PathListSeparator)))
	}
	return env
}

// Store returns the trace store of the config.
func (c Config) Store() *trace.Store {
	var opts []trace.Option
	if c.Compress {
		opts = append(opts, trace.WithCompression())
	}
	return trace.New(c.Target, opts...)
}
