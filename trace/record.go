// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package trace records process invocations observed during a build.
//
// Each intercepted process produces one Record, persisted as its own file
// in a shared directory by Store. Records are read back only after the
// observed build has finished.
package trace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"unicode/utf8"
)

var (
	// ErrInvalid is returned for a record that breaks a Record invariant.
	ErrInvalid = errors.New("invalid trace record")

	// ErrDecode is returned when stored content is not a complete record.
	ErrDecode = errors.New("malformed trace record")
)

// Record is a snapshot of one observed process invocation.
type Record struct {
	// Pid is the process id at capture time. It is not unique across
	// a build, so it never identifies a record.
	Pid int `json:"pid"`

	// Cwd is the absolute working directory of the process.
	Cwd string `json:"cwd"`

	// Cmd is the argument vector. Cmd[0] is the program as invoked.
	Cmd []string `json:"cmd"`
}

// Validate checks the record invariants.
// Cwd and Cmd must be valid UTF-8, as JSON can not store other bytes
// losslessly.
func (r Record) Validate() error {
	switch {
	case len(r.Cmd) == 0:
		return fmt.Errorf("empty cmd: %w", ErrInvalid)
	case !filepath.IsAbs(r.Cwd):
		return fmt.Errorf("cwd %q is not absolute: %w", r.Cwd, ErrInvalid)
	case r.Pid < 0:
		return fmt.Errorf("negative pid %d: %w", r.Pid, ErrInvalid)
	case !utf8.ValidString(r.Cwd):
		return fmt.Errorf("cwd %q is not valid UTF-8: %w", r.Cwd, ErrInvalid)
	}
	for i, arg := range r.Cmd {
		if !utf8.ValidString(arg) {
			return fmt.Errorf("cmd[%d] %q is not valid UTF-8: %w", i, arg, ErrInvalid)
		}
	}
	return nil
}

// Capture returns a record of the current process running args.
func Capture(args []string) (Record, error) {
	if len(args) == 0 {
		return Record{}, fmt.Errorf("no args: %w", ErrInvalid)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Record{}, fmt.Errorf("getwd: %w", err)
	}
	return Record{
		Pid: os.Getpid(),
		Cwd: cwd,
		Cmd: slices.Clone(args),
	}, nil
}
