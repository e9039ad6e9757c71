// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package wrapper is wrapper subcommand to record a command and run it.
package wrapper

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/bear/intercept"
)

const usage = `record a command and run it.

 $ bear wrapper [-t <dir>] -- <command>...

Records the command in the trace store <dir>, then runs it in place
of bear. Without -t, the store is taken from $BEAR_TARGET.
Use it as a compiler launcher, e.g. CMAKE_C_COMPILER_LAUNCHER.
`

// Cmd returns the Command for the `wrapper` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "wrapper [-t <dir>] -- <command>...",
		ShortDesc: "record a command and run it",
		LongDesc:  usage,
		Advanced:  true,
		CommandRun: func() subcommands.CommandRun {
			c := &run{}
			c.init()
			return c
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	target   string
	compress bool
}

func (c *run) init() {
	c.Flags.StringVar(&c.target, "t", "", "trace store directory. default: $"+intercept.EnvTarget)
	c.Flags.BoolVar(&c.compress, "compress", false, "store records zstd compressed")
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	cfg, ok, err := c.config(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !ok || len(args) == 0 {
		fmt.Fprintf(os.Stderr, "%s\n", usage)
		return 1
	}
	return intercept.RunShim(ctx, cfg, args)
}

// config returns the capture config of the flags, falling back to
// the environment. The target is made absolute, as the command may
// change directory.
func (c *run) config(lookup func(string) (string, bool)) (intercept.Config, bool, error) {
	cfg, ok := intercept.FromEnv(lookup)
	if c.target != "" {
		cfg.Target, ok = c.target, true
	}
	if !ok {
		return cfg, false, nil
	}
	cfg.Compress = cfg.Compress || c.compress
	target, err := filepath.Abs(cfg.Target)
	if err != nil {
		return cfg, false, err
	}
	cfg.Target = target
	return cfg, true, nil
}
