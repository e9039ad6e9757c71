// Copyright 2026 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package compdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/bear/compilation"
	"go.chromium.org/infra/build/bear/toolsupport/shutil"
	"go.chromium.org/infra/build/bear/trace"
)

// Command is an entry of compile_commands.json.
// https://clang.llvm.org/docs/JSONCompilationDatabase.html
type Command struct {
	Directory string   `json:"directory"`
	File      string   `json:"file"`
	Arguments []string `json:"arguments,omitempty"`
	Command   string   `json:"command,omitempty"`
	Output    string   `json:"output,omitempty"`
}

// Format is the output format of a database.
type Format struct {
	// Command writes the shell quoted "command" field instead of
	// "arguments".
	Command bool
}

// NewCommand returns the database entry for e.
// An entry without source uses its output as file.
func NewCommand(e compilation.Entry, format Format) Command {
	c := Command{
		Directory: e.Cwd,
		File:      e.Source,
		Output:    e.Output,
	}
	if c.File == "" {
		c.File = e.Output
	}
	args := e.Arguments()
	if format.Command {
		c.Command = shutil.Join(args)
	} else {
		c.Arguments = args
	}
	return c
}

// Marshal returns the database of entries as JSON.
// The output depends only on entries and format.
func Marshal(entries []compilation.Entry, format Format) ([]byte, error) {
	cmds := make([]Command, 0, len(entries))
	for _, e := range entries {
		cmds = append(cmds, NewCommand(e, format))
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	err := enc.Encode(cmds)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write writes the database of entries to fname.
// fname is replaced atomically, so readers see either the old or the
// new database.
func Write(fname string, entries []compilation.Entry, format Format) error {
	buf, err := Marshal(entries, format)
	if err != nil {
		return fmt.Errorf("marshal database: %w", err)
	}
	tmp := fname + ".tmp"
	err = os.WriteFile(tmp, buf, 0644)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	err = os.Rename(tmp, fname)
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Load reads the database in fname, and returns its entries as
// classified by classifier. Entries that are not recognized as
// compiler invocations are logged and dropped.
func Load(fname string, classifier *compilation.Classifier) ([]compilation.Entry, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	var cmds []Command
	err = json.Unmarshal(buf, &cmds)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fname, err)
	}
	if classifier == nil {
		classifier = compilation.NewClassifier()
	}
	var entries []compilation.Entry
	for i, c := range cmds {
		e, err := entryOf(c, classifier)
		if err != nil {
			log.Warnf("%s: drop entry %d: %v", fname, i, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func entryOf(c Command, classifier *compilation.Classifier) (compilation.Entry, error) {
	args := c.Arguments
	if len(args) == 0 && c.Command != "" {
		var err error
		args, err = shutil.Split(c.Command)
		if err != nil {
			return compilation.Entry{}, err
		}
	}
	if len(args) == 0 {
		return compilation.Entry{}, fmt.Errorf("no command for %q", c.File)
	}
	if c.Directory == "" || !filepath.IsAbs(c.Directory) {
		return compilation.Entry{}, fmt.Errorf("directory %q of %q is not absolute", c.Directory, c.File)
	}
	entries := classifier.Classify(trace.Record{Cwd: c.Directory, Cmd: args})
	file := resolve(c.Directory, c.File)
	for _, e := range entries {
		if resolve(c.Directory, e.Source) == file {
			return e, nil
		}
		if e.Source == "" && resolve(c.Directory, e.Output) == file {
			return e, nil
		}
	}
	return compilation.Entry{}, fmt.Errorf("%q is not a compile step of %q", args, c.File)
}

func resolve(dir, fname string) string {
	if fname == "" {
		return ""
	}
	if filepath.IsAbs(fname) {
		return filepath.Clean(fname)
	}
	return filepath.Join(dir, fname)
}
