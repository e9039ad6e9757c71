// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package straceutil provides utilities for strace.
package straceutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

var once sync.Once
var path string

// Available returns whether strace is available or not.
func Available() bool {
	once.Do(func() {
		if runtime.GOOS != "linux" {
			// strace exists in msys, but we don't use this
			return
		}
		var err error
		path, err = exec.LookPath("strace")
		if err != nil {
			log.Warnf("strace is not found: %v", err)
			return
		}
	})
	return path != ""
}

// Exec is a successful execve observed by strace.
type Exec struct {
	Pid int

	// Ppid is the pid of the traced process that forked Pid, or 0
	// when it is the traced cmd or its parent was not seen.
	Ppid int

	// Cwd is the working directory of the process at execve.
	Cwd string

	Args []string
}

// Strace represents a cmd traced by strace.
type Strace struct {
	id   string
	args []string
	dir  string

	// fname is filename of strace output file.
	fname string
}

// New creates a new Strace for cmd, which runs in dir.
// It will be fatal error when not available, so check Available before New.
func New(ctx context.Context, id string, args []string, dir string) *Strace {
	if !Available() {
		panic("straceutil.New is called when !Available")
	}
	fname := filepath.Join(os.TempDir(), fmt.Sprintf("%s.trace", id))
	return &Strace{
		id:    id,
		args:  args,
		dir:   dir,
		fname: fname,
	}
}

// Close removes the strace output.
func (s *Strace) Close() {
	err := os.Remove(s.fname)
	if err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to remove %s: %v", s.fname, err)
	}
}

// Args returns args to run under strace.
func (s *Strace) Args(ctx context.Context) []string {
	args := []string{
		path,
		"-f",
		"-qq",
		// print argv in full.
		"-v",
		"-s", "65536",
		"-e", "trace=process,chdir",
		"-o", s.fname,
	}
	args = append(args, s.args...)
	return args
}

// PostProcess processes strace outputs and returns the successful
// execve calls of the cmd and its descendants, in the order they happened.
func (s *Strace) PostProcess() ([]Exec, error) {
	b, err := os.ReadFile(s.fname)
	if err != nil {
		return nil, err
	}
	return scanStraceData(b, s.dir), nil
}

// proc is the state of a traced process.
type proc struct {
	// cwd is the working directory. When known is false, the parent
	// has not been seen yet and cwd is relative to the cwd inherited
	// from it.
	cwd   string
	known bool
	ppid  int

	// pending are indexes of execs whose Cwd is relative to the
	// not yet known inherited cwd.
	pending []int

	// children are pids forked while cwd was not known. Their cwd is
	// relative to the same inherited cwd.
	children []int
}

type scanner struct {
	dir   string
	root  int
	procs map[int]*proc

	// unfinished holds the first half of syscalls interrupted by
	// another process's output.
	unfinished map[int]string

	execs []Exec
}

func scanStraceData(buf []byte, dir string) []Exec {
	s := &scanner{
		dir:        dir,
		root:       -1,
		procs:      make(map[int]*proc),
		unfinished: make(map[int]string),
	}
	for len(buf) > 0 {
		var line []byte
		line, buf = nextLine(buf)
		s.scanLine(string(line))
	}
	// resolve processes whose parent was never seen against dir.
	for pid, p := range s.procs {
		if p.known {
			continue
		}
		log.Debugf("pid %d: unknown parent; assume cwd %s", pid, dir)
		s.inherit(p, dir)
	}
	return s.execs
}

func nextLine(buf []byte) (line, remain []byte) {
	i := bytes.IndexByte(buf, '\n')
	if i < 0 {
		return buf, nil
	}
	return buf[:i], buf[i+1:]
}

func (s *scanner) proc(pid int) *proc {
	p, ok := s.procs[pid]
	if ok {
		return p
	}
	p = &proc{}
	if s.root < 0 {
		// the first process is the traced cmd.
		s.root = pid
		p.cwd = s.dir
		p.known = true
	}
	s.procs[pid] = p
	return p
}

// inherit resolves p's cwd, and those of its children forked before,
// against the cwd of its parent.
func (s *scanner) inherit(p *proc, parentCwd string) {
	for _, i := range p.pending {
		s.execs[i].Cwd = resolve(parentCwd, s.execs[i].Cwd)
	}
	p.pending = nil
	p.cwd = resolve(parentCwd, p.cwd)
	p.known = true
	children := p.children
	p.children = nil
	for _, pid := range children {
		if c := s.procs[pid]; !c.known {
			s.inherit(c, parentCwd)
		}
	}
}

// rebase makes the cwd of c, seen before its parent p forked it,
// relative to the cwd p inherits.
func (s *scanner) rebase(c *proc, p *proc) {
	for _, i := range c.pending {
		s.execs[i].Cwd = resolve(p.cwd, s.execs[i].Cwd)
	}
	c.cwd = resolve(p.cwd, c.cwd)
}

func resolve(dir, fname string) string {
	if filepath.IsAbs(fname) {
		return fname
	}
	return filepath.Join(dir, fname)
}

func (s *scanner) scanLine(line string) {
	// line:
	// <pid> execve(<path>, [<args>...], [<envs>...]) = 0
	// <pid> execveat(<dirfd>, <path>, [<args>...], [<envs>...], <flags>) = 0
	// <pid> chdir(<path>) = 0
	// <pid> clone(child_stack=NULL, flags=...) = <child pid>
	// <pid> clone3({flags=..., ...}, 88) = <child pid>
	// <pid> vfork() = <child pid>
	// <pid> execve(<path>, [<args>...], [<envs>...] <unfinished ...>
	// <pid> <... execve resumed>) = 0
	// <pid> --- SIGCHLD {...} ---
	// <pid> +++ exited with 0 +++
	//
	// return value of syscall
	//  fail
	//   syscall(...) = -1 ENOENT (No such file or directory)
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	pid := 0
	if i := strings.IndexByte(line, ' '); i > 0 {
		if n, err := strconv.Atoi(line[:i]); err == nil {
			pid = n
			line = strings.TrimSpace(line[i+1:])
		}
	}
	if strings.HasPrefix(line, "---") || strings.HasPrefix(line, "+++") {
		return
	}
	if strings.HasPrefix(line, "<... ") {
		i := strings.Index(line, " resumed>")
		if i < 0 {
			return
		}
		head, ok := s.unfinished[pid]
		if !ok {
			log.Debugf("pid %d: resumed without unfinished: %q", pid, line)
			return
		}
		delete(s.unfinished, pid)
		line = head + line[i+len(" resumed>"):]
	}
	if head, ok := strings.CutSuffix(line, "<unfinished ...>"); ok {
		s.unfinished[pid] = strings.TrimSuffix(head, " ")
		return
	}
	name, args, ret, ok := splitCall(line)
	if !ok {
		return
	}
	p := s.proc(pid)
	switch name {
	case "execve", "execveat":
		if ret != "0" {
			return
		}
		argv := splitArgs(args)
		if name == "execveat" {
			// skip dirfd.
			if len(argv) > 0 {
				argv = argv[1:]
			}
		}
		if len(argv) < 2 {
			log.Warnf("pid %d: unexpected %s args: %q", pid, name, args)
			return
		}
		cmd, err := parseStringArray(argv[1])
		if err != nil {
			log.Warnf("pid %d: %s argv: %v", pid, name, err)
			return
		}
		if !p.known {
			p.pending = append(p.pending, len(s.execs))
		}
		s.execs = append(s.execs, Exec{
			Pid:  pid,
			Ppid: p.ppid,
			Cwd:  p.cwd,
			Args: cmd,
		})

	case "chdir":
		if ret != "0" {
			return
		}
		argv := splitArgs(args)
		if len(argv) == 0 {
			return
		}
		dir, err := unquote(argv[0])
		if err != nil {
			log.Warnf("pid %d: chdir: %v", pid, err)
			return
		}
		if filepath.IsAbs(dir) {
			// pending execs stay relative to the inherited cwd.
			p.cwd = filepath.Clean(dir)
			if len(p.pending) == 0 {
				p.known = true
			}
			return
		}
		p.cwd = filepath.Join(p.cwd, dir)

	case "clone", "clone2", "clone3", "fork", "vfork":
		child, err := strconv.Atoi(ret)
		if err != nil || child <= 0 {
			return
		}
		c, ok := s.procs[child]
		if !ok {
			c = &proc{cwd: p.cwd, known: p.known}
			s.procs[child] = c
		} else {
			for _, i := range c.pending {
				s.execs[i].Ppid = pid
			}
			switch {
			case c.known:
			case p.known:
				s.inherit(c, p.cwd)
			default:
				s.rebase(c, p)
			}
		}
		c.ppid = pid
		if !c.known {
			p.children = append(p.children, child)
		}
	}
}

// splitCall splits "name(args) = ret ..." into its parts.
func splitCall(line string) (name, args, ret string, ok bool) {
	i := strings.IndexByte(line, '(')
	if i <= 0 {
		return "", "", "", false
	}
	name = line[:i]
	end := closing(line, i)
	if end < 0 {
		return "", "", "", false
	}
	args = line[i+1 : end]
	rest := strings.TrimSpace(line[end+1:])
	rest, ok = strings.CutPrefix(rest, "=")
	if !ok {
		return "", "", "", false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", "", "", false
	}
	return name, args, fields[0], true
}

// closing returns the index of the bracket closing the one at start,
// skipping quoted strings.
func closing(s string, start int) int {
	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitArgs splits comma separated syscall args at the top level.
func splitArgs(s string) []string {
	var args []string
	depth := 0
	inStr := false
	si := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch c {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(s[si:i]))
				si = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(s[si:]); rest != "" {
		args = append(args, rest)
	}
	return args
}

// parseStringArray parses `["a", "b"]`.
func parseStringArray(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("not an array: %q", s)
	}
	elems := splitArgs(s[1 : len(s)-1])
	r := make([]string, 0, len(elems))
	for _, e := range elems {
		if e == "..." {
			log.Debugf("truncated array: %q", s)
			break
		}
		v, err := unquote(e)
		if err != nil {
			return nil, err
		}
		r = append(r, v)
	}
	return r, nil
}

// unquote unquotes a string printed by strace, which uses C escapes.
func unquote(s string) (string, error) {
	if t, ok := strings.CutSuffix(s, "..."); ok {
		log.Debugf("truncated string: %q", s)
		s = t
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("not a string: %q", s)
	}
	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("trailing backslash in %q", s)
		}
		switch c = s[i]; c {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r':
			sb.WriteByte('\r')
		case 'v':
			sb.WriteByte('\v')
		case 'f':
			sb.WriteByte('\f')
		case 'a':
			sb.WriteByte('\a')
		case 'b':
			sb.WriteByte('\b')
		case 'x':
			if i+2 >= len(s) {
				return "", fmt.Errorf("bad hex escape in %q", s)
			}
			v, err := strconv.ParseUint(s[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad hex escape in %q: %w", s, err)
			}
			sb.WriteByte(byte(v))
			i += 2
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// up to 3 octal digits.
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			v, err := strconv.ParseUint(s[i:j], 8, 8)
			if err != nil {
				return "", fmt.Errorf("bad octal escape in %q: %w", s, err)
			}
			sb.WriteByte(byte(v))
			i = j - 1
		default:
			// \" \\ and others.
			sb.WriteByte(c)
		}
	}
	return sb.String(), nil
}
