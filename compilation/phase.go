// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compilation

import (
	"fmt"
	"strings"
)

// Phase is the furthest pipeline stage an invocation performs.
type Phase int

// Phases in pipeline order.
const (
	Preprocessing Phase = iota
	Compilation
	Assembly
	Linking
)

var phaseNames = [...]string{
	Preprocessing: "preprocessing",
	Compilation:   "compilation",
	Assembly:      "assembly",
	Linking:       "linking",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", int(p))
	}
	return phaseNames[p]
}

// ParsePhase parses a phase name, case insensitively.
func ParsePhase(s string) (Phase, error) {
	for p, name := range phaseNames {
		if strings.EqualFold(s, name) {
			return Phase(p), nil
		}
	}
	return 0, fmt.Errorf("unknown phase %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	if p < 0 || int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("unknown phase %d", int(p))
	}
	return []byte(phaseNames[p]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	v, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// phaseOf returns the phase for the phase-limiting markers found.
// The most restrictive marker wins.
func phaseOf(preprocess, compile, assemble bool) Phase {
	switch {
	case preprocess:
		return Preprocessing
	case compile:
		return Compilation
	case assemble:
		return Assembly
	}
	return Linking
}
