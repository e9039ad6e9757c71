// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package interceptcmd is intercept subcommand to run a build and record
// the commands it runs.
package interceptcmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/bear/compilation"
	"go.chromium.org/infra/build/bear/intercept"
	"go.chromium.org/infra/build/bear/subcmd/citnames"
	"go.chromium.org/infra/build/bear/trace"
)

const usage = `run build and record commands.

 $ bear intercept [-mode wrapper|strace] [-traces <dir>] [-o compile_commands.json] \
	    -- <build command>...

Runs the build command, records every compiler it runs in the trace
store <dir>, and writes the compilation database to -o.
Without -traces, records are kept in a temporary directory.
With -o "", no database is written; run "bear citnames" later.

In wrapper mode, compilers are intercepted by shims put first on PATH.
Only compilers named literally in the compiler list are intercepted.
In strace mode, every exec of the build is traced (linux only).
`

// Cmd returns the Command for the `intercept` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "intercept [-mode wrapper|strace] -- <build command>...",
		ShortDesc: "run build and record compiler commands",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	traces   string
	mode     intercept.Mode
	compress bool
	db       citnames.DatabaseFlags
}

func (c *run) init() {
	c.Flags.StringVar(&c.traces, "traces", "", "trace store directory. records in it are cleared. default: temporary directory")
	c.Flags.Var(&c.mode, "mode", `capture mode. "wrapper" or "strace"`)
	c.Flags.BoolVar(&c.compress, "compress", false, "store records zstd compressed")
	c.db.Register(&c.Flags, citnames.DefaultOutput)
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	code, err := c.run(ctx, args)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(os.Stderr, "%s\n", usage)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		if code == 0 {
			code = 1
		}
	}
	return code
}

// run runs the build in args and returns its exit code.
func (c *run) run(ctx context.Context, args []string) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(cancel)()

	if len(args) == 0 {
		return 1, flag.ErrHelp
	}
	cfg, err := c.db.LoadConfig(ctx)
	if err != nil {
		return 1, err
	}
	store, cleanup, err := c.openStore(ctx)
	if err != nil {
		return 1, err
	}
	defer cleanup()

	icfg := intercept.Config{
		Target:   store.Dir(),
		Compress: c.compress,
	}
	if c.mode == intercept.ModeWrapper {
		shimDir, err := os.MkdirTemp("", "bear-shims-")
		if err != nil {
			return 1, err
		}
		defer os.RemoveAll(shimDir)
		exe, err := os.Executable()
		if err != nil {
			return 1, err
		}
		names := intercept.ShimNames(slices.Concat(cfg.Compilers, compilation.DefaultCompilers))
		err = intercept.InstallShims(shimDir, exe, names)
		if err != nil {
			return 1, err
		}
		log.Infof("%d shims in %s", len(names), shimDir)
		icfg.ShimDir = shimDir
	}

	code, err := intercept.Run(ctx, intercept.Options{
		Mode:       c.mode,
		Config:     icfg,
		Args:       args,
		Classifier: cfg.Classifier(),
	})
	if err != nil {
		return code, err
	}
	if c.db.Output == "" {
		return code, nil
	}
	err = c.db.Generate(ctx, cfg, store)
	if err != nil {
		return 1, err
	}
	return code, nil
}

// openStore returns the trace store, and func to clean it up.
func (c *run) openStore(ctx context.Context) (*trace.Store, func(), error) {
	if c.traces == "" {
		dir, err := os.MkdirTemp("", "bear-traces-")
		if err != nil {
			return nil, nil, err
		}
		return trace.New(dir), func() { os.RemoveAll(dir) }, nil
	}
	// intercepted processes may run in any directory.
	dir, err := filepath.Abs(c.traces)
	if err != nil {
		return nil, nil, err
	}
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, nil, err
	}
	var opts []trace.Option
	if c.compress {
		opts = append(opts, trace.WithCompression())
	}
	store := trace.New(dir, opts...)
	err = store.Clear(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to clear %s: %w", dir, err)
	}
	return store, func() {}, nil
}
