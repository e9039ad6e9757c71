// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package shutil

import "github.com/kballard/go-shellquote"

// Join joins a command line args to a single string, quoting args
// as needed so that Split returns args.
func Join(args []string) string {
	return shellquote.Join(args...)
}
