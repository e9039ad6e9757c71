// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package intercept

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/bear/compilation"
)

// ErrNotFound is returned by LookPath when no program is found.
var ErrNotFound = errors.New("executable not found in PATH")

// ShimNames returns the program names to install shims for.
// Patterns with glob metacharacters can not be shimmed and are skipped.
func ShimNames(patterns []compilation.Pattern) []string {
	var names []string
	for _, p := range patterns {
		if strings.ContainsAny(p.Glob, `*?[\`) {
			continue
		}
		names = append(names, p.Glob)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// InstallShims creates a shim for each name in dir, linked to executable.
// Existing files of the same names are replaced.
func InstallShims(dir, executable string, names []string) error {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}
	for _, name := range names {
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		dst := filepath.Join(dir, name)
		err := os.Remove(dst)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if runtime.GOOS == "windows" {
			// symlinks need privilege on windows.
			err = os.Link(executable, dst)
		} else {
			err = os.Symlink(executable, dst)
		}
		if err != nil {
			return fmt.Errorf("install shim %s: %w", name, err)
		}
	}
	return nil
}

// LookPath finds the executable name in the directories of pathEnv,
// skipping skipDir.
func LookPath(name, pathEnv, skipDir string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("%s: not a program name", name)
	}
	if skipDir != "" {
		skipDir = filepath.Clean(skipDir)
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		if dir == "" {
			dir = "."
		}
		dir = filepath.Clean(dir)
		if dir == skipDir {
			continue
		}
		if found, ok := findExecutable(dir, name); ok {
			return found, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNotFound)
}

// RunShim runs as the shim invoked with args: it reports the invocation,
// then runs the real program in place of the current process.
// A program name in args[0] is looked up on PATH, skipping the shims.
// It returns the exit code when the process is not replaced.
func RunShim(ctx context.Context, cfg Config, args []string) int {
	if len(args) == 0 {
		log.Errorf("shim: no args")
		return 127
	}
	err := Report(ctx, cfg, args)
	if err != nil {
		log.Warnf("shim: %v", err)
	}
	prog, err := resolveProgram(args[0], cfg.ShimDir)
	if err != nil {
		log.Errorf("shim: %v", err)
		return 127
	}
	return execProgram(prog, args, cfg.ProgramEnviron(os.Environ()))
}

// resolveProgram returns the program to run for argv0. A path outside
// shimDir is used as is; a name or a shim is looked up on PATH.
func resolveProgram(argv0, shimDir string) (string, error) {
	dir, name := filepath.Split(argv0)
	if dir != "" && (shimDir == "" || filepath.Clean(dir) != filepath.Clean(shimDir)) {
		return argv0, nil
	}
	if runtime.GOOS == "windows" {
		name = strings.TrimSuffix(strings.ToLower(name), ".exe")
	}
	return LookPath(name, os.Getenv("PATH"), shimDir)
}
