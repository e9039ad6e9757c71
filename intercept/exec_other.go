// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build !unix

package intercept

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
)

// execProgram runs the program to completion and returns its exit code.
func execProgram(path string, args, env []string) int {
	cmd := exec.Command(path, args[1:]...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		return eerr.ExitCode()
	}
	if err != nil {
		log.Errorf("shim: run %s: %v", path, err)
		return 126
	}
	return 0
}

func findExecutable(dir, name string) (string, bool) {
	exts := []string{""}
	if filepath.Ext(name) == "" {
		exts = filepath.SplitList(strings.ToLower(os.Getenv("PATHEXT")))
		if len(exts) == 0 {
			exts = []string{".exe", ".bat", ".cmd"}
		}
	}
	for _, ext := range exts {
		path := filepath.Join(dir, name+ext)
		st, err := os.Stat(path)
		if err == nil && !st.IsDir() {
			return path, true
		}
	}
	return "", false
}

func exitCode(ps *os.ProcessState) int {
	return ps.ExitCode()
}
