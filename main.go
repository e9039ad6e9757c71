// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Bear generates compilation databases for clang tooling.
//
// When run under a name other than bear with $BEAR_TARGET set, it acts
// as a compiler shim installed by "bear intercept".
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"

	"go.chromium.org/luci/common/cli"

	"go.chromium.org/infra/build/bear/intercept"
	"go.chromium.org/infra/build/bear/subcmd/citnames"
	"go.chromium.org/infra/build/bear/subcmd/interceptcmd"
	"go.chromium.org/infra/build/bear/subcmd/version"
	"go.chromium.org/infra/build/bear/subcmd/wrapper"
)

const bearVersion = "bear v0.1.0"

func main() {
	os.Exit(bearMain(os.Args))
}

func getApplication() *cli.Application {
	return &cli.Application{
		Name:  "bear",
		Title: "Compilation database generator for clang tooling.",
		Context: func(ctx context.Context) context.Context {
			return ctx
		},
		Commands: []*subcommands.Command{
			interceptcmd.Cmd(),
			citnames.Cmd(),
			wrapper.Cmd(),

			subcommands.CmdHelp,
			version.Cmd(bearVersion),
		},
		EnvVars: map[string]subcommands.EnvVarDefinition{
			intercept.EnvTarget: {
				Advanced:  true,
				ShortDesc: "trace store directory of intercepted processes. set by bear intercept",
			},
			intercept.EnvShimDir: {
				Advanced:  true,
				ShortDesc: "directory of compiler shims. set by bear intercept",
			},
			intercept.EnvCompress: {
				Advanced:  true,
				ShortDesc: "store records zstd compressed if true",
			},
		},
	}
}

func bearMain(args []string) int {
	ctx := context.Background()
	if cfg, ok := shimConfig(args[0], os.LookupEnv); ok {
		// shims run inside the build; log only problems.
		log.SetLevel(log.WarnLevel)
		return intercept.RunShim(ctx, cfg, args)
	}

	var verbose bool
	flag.BoolVar(&verbose, "v", false, "verbose logging")
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "Usage of %s:\n", args[0])
		fmt.Fprintf(out, "global flags:\n")
		flag.PrintDefaults()
	}
	// flag.ExitOnError exits with 2 on a bad flag.
	_ = flag.CommandLine.Parse(args[1:])
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	// Print a stack trace when a panic occurs.
	defer func() {
		if r := recover(); r != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			log.Fatalf("panic: %v\n%s", r, buf)
		}
	}()

	// Print build information to the log.
	buildinfo, ok := debug.ReadBuildInfo()
	if ok {
		log.Debugf("main module: %s %s", moduleInfo(&buildinfo.Main), vcsInfo(buildinfo))
		for _, m := range buildinfo.Deps {
			log.Debugf("deps module: %s", moduleInfo(m))
		}
	}
	return subcommands.Run(getApplication(), flag.Args())
}

// shimConfig returns the capture config when bear runs as a shim:
// under a name other than bear, in an intercepted build.
func shimConfig(argv0 string, lookup func(string) (string, bool)) (intercept.Config, bool) {
	name := filepath.Base(argv0)
	if ext := filepath.Ext(name); strings.EqualFold(ext, ".exe") {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "bear" {
		return intercept.Config{}, false
	}
	return intercept.FromEnv(lookup)
}

func moduleInfo(m *debug.Module) string {
	if m == nil {
		return "<nil>"
	}
	return fmt.Sprintf("path:%s version:%s sum:%s replace:%s", m.Path, m.Version, m.Sum, moduleInfo(m.Replace))
}

func vcsInfo(buildinfo *debug.BuildInfo) string {
	m := make(map[string]string)
	for _, bs := range buildinfo.Settings {
		if strings.HasPrefix(bs.Key, "vcs.") {
			m[bs.Key] = bs.Value
		}
	}
	return fmt.Sprintf("vcs[revision=%s time=%s modified=%s]", m["vcs.revision"], m["vcs.time"], m["vcs.modified"])
}
