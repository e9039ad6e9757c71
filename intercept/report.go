// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package intercept

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/bear/trace"
)

// Report records the invocation of the current process with args in
// the store of cfg.
// An error is never fatal to the intercepted process; callers log it
// and continue.
func Report(ctx context.Context, cfg Config, args []string) error {
	r, err := trace.Capture(args)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}
	loc, err := cfg.Store().Write(ctx, r)
	if err != nil {
		return fmt.Errorf("report %q: %w", args, err)
	}
	log.Debugf("reported %q to %s", args, loc)
	return nil
}
