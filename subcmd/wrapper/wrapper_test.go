// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package wrapper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/bear/intercept"
)

func TestConfig(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}
	for _, tc := range []struct {
		name   string
		flags  []string
		env    map[string]string
		want   intercept.Config
		wantOK bool
	}{
		{
			name: "none",
		},
		{
			name:   "flag",
			flags:  []string{"-t", "/tmp/traces", "-compress"},
			want:   intercept.Config{Target: "/tmp/traces", Compress: true},
			wantOK: true,
		},
		{
			name: "env",
			env: map[string]string{
				intercept.EnvTarget:  "/tmp/env",
				intercept.EnvShimDir: "/tmp/shims",
			},
			want:   intercept.Config{Target: "/tmp/env", ShimDir: "/tmp/shims"},
			wantOK: true,
		},
		{
			name:  "flag_overrides_env",
			flags: []string{"-t", "/tmp/traces"},
			env: map[string]string{
				intercept.EnvTarget:   "/tmp/env",
				intercept.EnvShimDir:  "/tmp/shims",
				intercept.EnvCompress: "1",
			},
			want:   intercept.Config{Target: "/tmp/traces", ShimDir: "/tmp/shims", Compress: true},
			wantOK: true,
		},
		{
			name:  "compress_flag_with_env",
			flags: []string{"-compress"},
			env: map[string]string{
				intercept.EnvTarget: "/tmp/env",
			},
			want:   intercept.Config{Target: "/tmp/env", Compress: true},
			wantOK: true,
		},
		{
			name:   "relative_target",
			flags:  []string{"-t", "traces"},
			want:   intercept.Config{Target: filepath.Join(wd, "traces")},
			wantOK: true,
		},
		{
			name:  "compress_flag_only",
			flags: []string{"-compress"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := &run{}
			c.init()
			err := c.Flags.Parse(tc.flags)
			if err != nil {
				t.Fatal(err)
			}
			got, ok, err := c.config(env(tc.env))
			if err != nil {
				t.Fatalf("config()=_, _, %v; want nil error", err)
			}
			if ok != tc.wantOK {
				t.Errorf("config()=_, %t; want %t", ok, tc.wantOK)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("config(): diff -want +got:\n%s", diff)
			}
		})
	}
}
