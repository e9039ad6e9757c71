// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compdb

import (
	"fmt"
	"slices"

	"go.chromium.org/infra/build/bear/compilation"
)

// DedupMode is how entries for the same source are merged.
type DedupMode int

const (
	// DedupLastWins keeps only the entry from the latest trace for
	// each (source, directory).
	DedupLastWins DedupMode = iota

	// DedupKeepAll keeps every entry.
	DedupKeepAll
)

func (m DedupMode) String() string {
	switch m {
	case DedupLastWins:
		return "last"
	case DedupKeepAll:
		return "all"
	}
	return fmt.Sprintf("DedupMode(%d)", int(m))
}

// ParseDedupMode parses "last" or "all".
func ParseDedupMode(s string) (DedupMode, error) {
	switch s {
	case "last":
		return DedupLastWins, nil
	case "all":
		return DedupKeepAll, nil
	}
	return 0, fmt.Errorf("unknown dedup mode %q; want \"last\" or \"all\"", s)
}

// Policy selects which entries go into a database.
type Policy struct {
	// Phases are the phases to include.
	Phases []compilation.Phase

	Dedup DedupMode
}

// DefaultPolicy includes compilation and assembly steps, and keeps the
// latest entry for each source.
func DefaultPolicy() Policy {
	return Policy{
		Phases: []compilation.Phase{compilation.Compilation, compilation.Assembly},
		Dedup:  DedupLastWins,
	}
}

// Includes reports whether entries of the phase are included.
func (p Policy) Includes(phase compilation.Phase) bool {
	return slices.Contains(p.Phases, phase)
}

type dedupKey struct {
	source string
	cwd    string

	// output for entries without source, so that distinct links in
	// the same directory are not merged.
	output string
}

func keyOf(e compilation.Entry) dedupKey {
	k := dedupKey{source: e.Source, cwd: e.Cwd}
	if e.Source == "" {
		k.output = e.Output
	}
	return k
}

// Apply filters entries, given in trace order, by phase and
// deduplicates them. The result keeps trace order.
func (p Policy) Apply(entries []compilation.Entry) []compilation.Entry {
	var included []compilation.Entry
	for _, e := range entries {
		if p.Includes(e.Phase) {
			included = append(included, e)
		}
	}
	if p.Dedup == DedupKeepAll {
		return included
	}
	last := make(map[dedupKey]int)
	for i, e := range included {
		last[keyOf(e)] = i
	}
	result := make([]compilation.Entry, 0, len(last))
	for i, e := range included {
		if last[keyOf(e)] == i {
			result = append(result, e)
		}
	}
	return result
}
