// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package intercept

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"go.chromium.org/infra/build/bear/toolsupport/straceutil"
)

func TestRunWrapper(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	ctx := context.Background()
	cfg := Config{Target: t.TempDir(), ShimDir: t.TempDir()}
	var stdout bytes.Buffer
	code, err := Run(ctx, Options{
		Mode:   ModeWrapper,
		Config: cfg,
		Args:   []string{"sh", "-c", `echo "$BEAR_TARGET"; echo "$PATH"; exit 3`},
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: io.Discard,
	})
	if err != nil {
		t.Fatalf("Run=_, %v; want nil error", err)
	}
	if code != 3 {
		t.Errorf("Run=%d; want 3", code)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("stdout=%q; want 2 lines", stdout.String())
	}
	if lines[0] != cfg.Target {
		t.Errorf("BEAR_TARGET=%q; want %q", lines[0], cfg.Target)
	}
	if !strings.HasPrefix(lines[1], cfg.ShimDir+string(os.PathListSeparator)) {
		t.Errorf("PATH=%q; want prefix %q", lines[1], cfg.ShimDir)
	}
}

func TestRunWrapperSignaled(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no sh")
	}
	code, err := Run(context.Background(), Options{
		Config: Config{Target: t.TempDir(), ShimDir: t.TempDir()},
		Args:   []string{"sh", "-c", "kill -TERM $$"},
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil {
		t.Fatalf("Run=_, %v; want nil error", err)
	}
	if code != 128+15 {
		t.Errorf("Run=%d; want %d", code, 128+15)
	}
}

func TestRunStrace(t *testing.T) {
	if !straceutil.Available() {
		t.Skip("strace is not available")
	}
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("no true")
	}
	ctx := context.Background()
	dir := t.TempDir()
	err = os.Mkdir(filepath.Join(dir, "sub"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	target := t.TempDir()
	code, err := Run(ctx, Options{
		Mode:   ModeStrace,
		Config: Config{Target: target},
		Args:   []string{"sh", "-c", "cd sub && exec " + truePath + " -c foo.c"},
		Dir:    dir,
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil || code != 0 {
		t.Skipf("strace run failed; ptrace may be unavailable: code=%d err=%v", code, err)
	}
	var found bool
	for _, r := range readRecords(ctx, t, target) {
		if len(r.Cmd) == 3 && r.Cmd[0] == truePath && r.Cmd[2] == "foo.c" {
			found = true
			if want := filepath.Join(dir, "sub"); r.Cwd != want {
				t.Errorf("cwd of %q=%q; want %q", r.Cmd, r.Cwd, want)
			}
		}
	}
	if !found {
		t.Errorf("exec of %s not recorded", truePath)
	}
}

func writeScript(t *testing.T, path, content string) {
	t.Helper()
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+content), 0755)
	if err != nil {
		t.Fatal(err)
	}
}

func readMarker(t *testing.T, path string) string {
	t.Helper()
	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(buf)
}

func TestRunWrapperCompilerCommand(t *testing.T) {
	ctx := context.Background()
	shimDir := t.TempDir()
	realDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	writeScript(t, filepath.Join(shimDir, "cc"), `echo shim "$@" > '`+marker+"'\n")
	writeScript(t, filepath.Join(realDir, "cc"), `echo real > '`+marker+"'\n")
	t.Setenv("PATH", realDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	code, err := Run(ctx, Options{
		Config: Config{Target: t.TempDir(), ShimDir: shimDir},
		Args:   []string{"cc", "-c", "foo.c"},
		Stdout: io.Discard,
		Stderr: io.Discard,
	})
	if err != nil || code != 0 {
		t.Fatalf("Run(cc -c foo.c)=%d, %v; want 0, nil", code, err)
	}
	if got, want := readMarker(t, marker), "shim -c foo.c\n"; got != want {
		t.Errorf("ran %q; want %q", got, want)
	}
}

func TestProgramEnvironDriver(t *testing.T) {
	shimDir := t.TempDir()
	realDir := t.TempDir()
	marker := filepath.Join(t.TempDir(), "ran")
	writeScript(t, filepath.Join(shimDir, "as"), `echo shim > '`+marker+"'\n")
	writeScript(t, filepath.Join(realDir, "as"), `echo real > '`+marker+"'\n")
	// a compiler driver runs the assembler found on PATH.
	driver := filepath.Join(realDir, "cc")
	writeScript(t, driver, `as "$@"`+"\n")
	sep := string(os.PathListSeparator)
	t.Setenv("PATH", shimDir+sep+realDir+sep+os.Getenv("PATH"))
	cfg := Config{Target: t.TempDir(), ShimDir: shimDir}

	for _, tc := range []struct {
		name string
		env  []string
		want string
	}{
		{name: "build_env", env: os.Environ(), want: "shim\n"},
		{name: "program_env", env: cfg.ProgramEnviron(os.Environ()), want: "real\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cmd := exec.Command(driver, "-c", "x.s")
			cmd.Env = tc.env
			err := cmd.Run()
			if err != nil {
				t.Fatalf("run %s: %v", driver, err)
			}
			if got := readMarker(t, marker); got != tc.want {
				t.Errorf("assembler ran %q; want %q", got, tc.want)
			}
		})
	}
}
