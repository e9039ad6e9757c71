// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package intercept

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	"golang.org/x/sys/unix"
)

// execProgram replaces the current process, so the program keeps the
// pid and the parent's view of it.
func execProgram(path string, args, env []string) int {
	err := unix.Exec(path, args, env)
	// Exec returns only on failure.
	log.Errorf("shim: exec %s: %v", path, err)
	return 126
}

func findExecutable(dir, name string) (string, bool) {
	path := filepath.Join(dir, name)
	st, err := os.Stat(path)
	if err == nil && !st.IsDir() && st.Mode()&0o111 != 0 {
		return path, true
	}
	return "", false
}

// exitCode returns the exit code as a shell reports it.
func exitCode(ps *os.ProcessState) int {
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
