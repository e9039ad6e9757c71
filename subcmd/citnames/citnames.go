// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package citnames is citnames subcommand to generate a compilation
// database from a trace store.
package citnames

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/system/signals"

	"go.chromium.org/infra/build/bear/compdb"
	"go.chromium.org/infra/build/bear/config"
	"go.chromium.org/infra/build/bear/trace"
)

const usage = `generate compilation database from traces.

 $ bear citnames -traces <dir> [-o compile_commands.json]

Reads the execution records in <dir>, written by
"bear intercept -traces <dir>", and writes the compilation database.
`

// DefaultOutput is the default compilation database filename.
const DefaultOutput = "compile_commands.json"

// Cmd returns the Command for the `citnames` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "citnames -traces <dir> [-o <file>]",
		ShortDesc: "generate compilation database from traces",
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

	traces string
	db     DatabaseFlags
}

func (c *run) init() {
	c.Flags.StringVar(&c.traces, "traces", "", "trace store directory")
	c.db.Register(&c.Flags, DefaultOutput)
}

func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	err := c.run(ctx)
	if err != nil {
		switch {
		case errors.Is(err, flag.ErrHelp):
			fmt.Fprintf(os.Stderr, "%s\n", usage)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer signals.HandleInterrupt(cancel)()

	if c.traces == "" || c.db.Output == "" || c.Flags.NArg() > 0 {
		return flag.ErrHelp
	}
	cfg, err := c.db.LoadConfig(ctx)
	if err != nil {
		return err
	}
	return c.db.Generate(ctx, cfg, trace.New(c.traces))
}

// DatabaseFlags are flags to generate a compilation database.
type DatabaseFlags struct {
	Output     string
	Append     bool
	ConfigFile string
	KeepAll    bool
	Command    bool
}

// Register registers the flags in flags.
func (f *DatabaseFlags) Register(flags *flag.FlagSet, output string) {
	flags.StringVar(&f.Output, "o", output, "compilation database filename")
	flags.BoolVar(&f.Append, "append", false, "merge entries of the existing database")
	flags.StringVar(&f.ConfigFile, "config", "", "config file. default: "+config.DefaultFile+" if exists")
	flags.BoolVar(&f.KeepAll, "keep_all", false, "keep duplicate entries of the same source")
	flags.BoolVar(&f.Command, "command", false, `write "command" instead of "arguments"`)
}

// LoadConfig loads the config file, and applies the flags to it.
// Without -config, config.DefaultFile is loaded if it exists.
func (f *DatabaseFlags) LoadConfig(ctx context.Context) (*config.Config, error) {
	fname := f.ConfigFile
	if fname == "" {
		fname = config.DefaultFile
	}
	cfg, err := config.Load(ctx, fname)
	switch {
	case errors.Is(err, fs.ErrNotExist) && f.ConfigFile == "":
		cfg = config.Default()
	case err != nil:
		return nil, err
	default:
		log.Infof("config %s loaded", fname)
	}
	if f.KeepAll {
		cfg.Dedup = compdb.DedupKeepAll
	}
	if f.Command {
		cfg.CommandFormat = true
	}
	return cfg, nil
}

// Generate writes the compilation database of the records in store.
func (f *DatabaseFlags) Generate(ctx context.Context, cfg *config.Config, store *trace.Store) error {
	classifier := cfg.Classifier()
	agg := compdb.Aggregator{
		Classifier: classifier,
		Policy:     cfg.Policy(),
	}
	if f.Append {
		base, err := compdb.Load(f.Output, classifier)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			log.Infof("no database %s to append to", f.Output)
		case err != nil:
			return fmt.Errorf("failed to load %s: %w", f.Output, err)
		default:
			agg.Base = base
		}
	}
	entries, err := agg.Aggregate(ctx, store)
	if err != nil {
		return err
	}
	err = compdb.Write(f.Output, entries, cfg.Format())
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Output, err)
	}
	log.Infof("wrote %d entries to %s", len(entries), f.Output)
	return nil
}
