// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package compdb builds compilation databases from trace records.
package compdb

import (
	"cmp"
	"context"
	"slices"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/bear/compilation"
	"go.chromium.org/infra/build/bear/trace"
)

// Aggregator turns the records of a trace store into database entries.
type Aggregator struct {
	Classifier *compilation.Classifier
	Policy     Policy

	// Base are entries of an existing database. They are treated as
	// older than any trace, so traced entries supersede them under
	// DedupLastWins.
	Base []compilation.Entry
}

// Aggregate reads all records in store and returns the entries of the
// database in trace order.
//
// It fails only when the store can not be listed or ctx is done.
// Records that can not be read are logged and skipped.
func (a Aggregator) Aggregate(ctx context.Context, store *trace.Store) ([]compilation.Entry, error) {
	records, err := a.collect(ctx, store)
	if err != nil {
		return nil, err
	}
	classifier := a.Classifier
	if classifier == nil {
		classifier = compilation.NewClassifier()
	}
	entries := slices.Clone(a.Base)
	for _, ent := range records {
		entries = append(entries, classifier.Classify(ent.Record)...)
	}
	result := a.Policy.Apply(entries)
	log.Infof("%d records, %d entries -> %d in database", len(records), len(entries)-len(a.Base), len(result))
	return result, nil
}

func (a Aggregator) collect(ctx context.Context, store *trace.Store) ([]trace.Entry, error) {
	seq, err := store.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	var records []trace.Entry
	for ent, err := range seq {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err != nil {
			log.Warnf("skip %s: %v", ent.Location, err)
			continue
		}
		records = append(records, ent)
	}
	slices.SortFunc(records, func(x, y trace.Entry) int {
		return cmp.Or(
			cmp.Compare(x.Seq, y.Seq),
			cmp.Compare(x.Location, y.Location))
	})
	return records, nil
}
