// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package shutil provides POSIX shell command line utilities.
package shutil

import (
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Split splits a command line with POSIX shell quoting rules.
// It does not expand variables or globs.
func Split(cmdline string) ([]string, error) {
	args, err := shellquote.Split(cmdline)
	if err != nil {
		return nil, fmt.Errorf("failed to split %q: %w", cmdline, err)
	}
	if len(args) >= 1 && strings.Contains(args[0], "=") {
		// if initial args contains =, it would set env var and need to invoke via sh
		return nil, fmt.Errorf("argv[0] is env set %q", args[0])
	}
	return args, nil
}
