// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package intercept

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"go.chromium.org/infra/build/bear/compilation"
	"go.chromium.org/infra/build/bear/toolsupport/straceutil"
	"go.chromium.org/infra/build/bear/trace"
)

// Mode is the capture mechanism.
type Mode int

const (
	// ModeWrapper captures through shims on PATH.
	ModeWrapper Mode = iota

	// ModeStrace captures with strace.
	ModeStrace
)

func (m Mode) String() string {
	switch m {
	case ModeWrapper:
		return "wrapper"
	case ModeStrace:
		return "strace"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Set implements flag.Value.
func (m *Mode) Set(s string) error {
	switch s {
	case "wrapper":
		*m = ModeWrapper
	case "strace":
		*m = ModeStrace
	default:
		return fmt.Errorf("unknown mode %q; want \"wrapper\" or \"strace\"", s)
	}
	return nil
}

// Options are options to Run.
type Options struct {
	Mode   Mode
	Config Config

	// Args is the build command.
	Args []string

	// Classifier recognizes compilers in strace mode; nil means the
	// default one. Processes spawned by a compiler are not recorded.
	Classifier *compilation.Classifier

	// Dir is the working directory of the build. Empty means the
	// current directory.
	Dir string

	// Stdin, Stdout and Stderr of the build. nil means those of the
	// current process.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// waitDelay is how long the build has to exit after interrupt.
const waitDelay = 10 * time.Second

// Run runs the build under capture, and returns its exit code.
// The trace store directory must exist, as must the shims for wrapper
// mode. Canceling ctx interrupts the build.
func Run(ctx context.Context, opts Options) (int, error) {
	if len(opts.Args) == 0 {
		return 1, errors.New("no build command")
	}
	switch opts.Mode {
	case ModeWrapper:
		if opts.Config.ShimDir == "" {
			return 1, errors.New("wrapper mode needs a shim dir")
		}
		env := opts.Config.Environ(os.Environ())
		prog, err := lookPathEnv(opts.Args[0], env)
		if err != nil {
			return 127, err
		}
		return runBuild(ctx, opts, prog, opts.Args, env)
	case ModeStrace:
		return runStrace(ctx, opts)
	}
	return 1, fmt.Errorf("unknown mode %v", opts.Mode)
}

// lookPathEnv finds the program name on PATH of env, so a build
// command naming a compiler runs its shim.
func lookPathEnv(name string, env []string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		return name, nil
	}
	var pathEnv string
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(k, "PATH") {
			pathEnv = v
		}
	}
	return LookPath(name, pathEnv, "")
}

func runBuild(ctx context.Context, opts Options, prog string, args, env []string) (int, error) {
	c := exec.CommandContext(ctx, prog, args[1:]...)
	// keep argv[0] as given, as a shell does.
	c.Args[0] = args[0]
	c.Env = env
	c.Dir = opts.Dir
	c.Stdin = opts.Stdin
	c.Stdout = opts.Stdout
	c.Stderr = opts.Stderr
	if c.Stdin == nil {
		c.Stdin = os.Stdin
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = os.Stderr
	}
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = waitDelay
	log.Infof("run %q mode=%s", args, opts.Mode)
	err := c.Run()
	var eerr *exec.ExitError
	if errors.As(err, &eerr) {
		code := exitCode(eerr.ProcessState)
		log.Infof("build exited with %d", code)
		return code, nil
	}
	if err != nil {
		return 1, fmt.Errorf("run %q: %w", args, err)
	}
	return 0, nil
}

func runStrace(ctx context.Context, opts Options) (int, error) {
	if !straceutil.Available() {
		return 1, errors.New("strace is not available")
	}
	dir := opts.Dir
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return 1, err
		}
	}
	st := straceutil.New(ctx, "bear-"+uuid.NewString(), opts.Args, dir)
	defer st.Close()
	args := st.Args(ctx)
	code, err := runBuild(ctx, opts, args[0], args, os.Environ())
	if err != nil {
		return code, err
	}
	execs, err := st.PostProcess()
	if err != nil {
		return code, fmt.Errorf("failed to postprocess strace: %w", err)
	}
	n, err := recordExecs(ctx, opts.Config.Store(), opts.Classifier, execs)
	if err != nil {
		return code, err
	}
	log.Infof("strace: %d execs recorded", n)
	return code, nil
}

// recordExecs writes execs to store in exec order, so their sequence
// numbers keep that order. Execs spawned by a compiler, directly or
// not, are skipped. It returns the number of records written.
func recordExecs(ctx context.Context, store *trace.Store, classifier *compilation.Classifier, execs []straceutil.Exec) (int, error) {
	if classifier == nil {
		classifier = compilation.NewClassifier()
	}
	n := 0
	// pids of compilers and the processes they spawned.
	underCompiler := make(map[int]bool)
	for _, e := range execs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if e.Ppid > 0 && underCompiler[e.Ppid] {
			log.Debugf("skip exec of pid %d %q spawned by a compiler", e.Pid, e.Args)
			underCompiler[e.Pid] = true
			continue
		}
		if len(e.Args) > 0 {
			_, ok := classifier.Recognize(e.Args[0])
			underCompiler[e.Pid] = ok
		}
		_, err := store.Write(ctx, trace.Record{Pid: e.Pid, Cwd: e.Cwd, Cmd: e.Args})
		if errors.Is(err, trace.ErrInvalid) {
			log.Warnf("skip exec of pid %d %q: %v", e.Pid, e.Args, err)
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
