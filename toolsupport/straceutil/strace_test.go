// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package straceutil

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScanStraceData(t *testing.T) {
	for _, tc := range []struct {
		name string
		data string
		want []Exec
	}{
		{
			name: "make",
			data: makeTraceTestData,
			want: []Exec{
				{
					Pid:  100,
					Cwd:  "/build",
					Args: []string{"make", "-C", "src"},
				},
				{
					Pid:  101,
					Ppid: 100,
					Cwd:  "/build/src",
					Args: []string{"cc", "-c", `-DMSG="hi there"`, "foo.c"},
				},
				{
					Pid:  102,
					Ppid: 100,
					Cwd:  "/build/src/sub",
					Args: []string{"sh", "-c", "cc -c bar.c"},
				},
				{
					Pid:  103,
					Ppid: 102,
					Cwd:  "/build/src/sub",
					Args: []string{"cc", "-c", "bar.c", "-o", "’.o\n"},
				},
				{
					Pid:  100,
					Cwd:  "/abs/dir",
					Args: []string{"ld", "-o", "a.out"},
				},
			},
		},
		{
			name: "no_pid_prefix",
			data: `execve("/usr/bin/cc", ["cc", "-c", "foo.c"], []) = 0
`,
			want: []Exec{
				{
					Cwd:  "/build",
					Args: []string{"cc", "-c", "foo.c"},
				},
			},
		},
		{
			name: "orphan",
			data: `200 execve("/usr/bin/make", ["make"], []) = 0
300 chdir("out") = 0
300 execve("/usr/bin/cc", ["cc", "-c", "x.c"], []) = 0
`,
			want: []Exec{
				{
					Pid:  200,
					Cwd:  "/build",
					Args: []string{"make"},
				},
				{
					Pid:  300,
					Cwd:  "/build/out",
					Args: []string{"cc", "-c", "x.c"},
				},
			},
		},
		{
			name: "child_before_parent_clone",
			data: `100 chdir("/work") = 0
200 chdir("sub") = 0
200 vfork() = 201
201 execve("/usr/bin/cc", ["cc", "-c", "a.c"], []) = 0
100 clone(child_stack=NULL, flags=SIGCHLD) = 200
300 execve("/usr/bin/cc", ["cc", "-c", "b.c"], []) = 0
200 clone(child_stack=NULL, flags=SIGCHLD) = 300
`,
			want: []Exec{
				{
					Pid:  201,
					Ppid: 200,
					Cwd:  "/work/sub",
					Args: []string{"cc", "-c", "a.c"},
				},
				{
					Pid:  300,
					Ppid: 200,
					Cwd:  "/work/sub",
					Args: []string{"cc", "-c", "b.c"},
				},
			},
		},
		{
			name: "failed_only",
			data: `100 execve("/usr/local/bin/cc", ["cc"], []) = -1 ENOENT (No such file or directory)
`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := scanStraceData([]byte(tc.data), "/build")
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("scanStraceData: -want +got\n%s", diff)
			}
		})
	}
}

func TestUnquote(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{in: `""`, want: ""},
		{in: `"foo.c"`, want: "foo.c"},
		{in: `"-DX=\"y\""`, want: `-DX="y"`},
		{in: `"a\\b"`, want: `a\b`},
		{in: `"tab\there\n"`, want: "tab\there\n"},
		{in: `"\0"`, want: "\x00"},
		{in: `"\1772"`, want: "\x7f2"},
		{in: `"\x41B"`, want: "AB"},
		{in: `"trunc"...`, want: "trunc"},
	} {
		got, err := unquote(tc.in)
		if err != nil {
			t.Errorf("unquote(%q)=_, %v; want nil error", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("unquote(%q)=%q; want %q", tc.in, got, tc.want)
		}
	}
	for _, in := range []string{`foo`, `"foo`, `"foo\"`, `"\x4"`} {
		got, err := unquote(in)
		if err == nil {
			t.Errorf("unquote(%q)=%q, nil; want error", in, got)
		}
	}
}

func TestSplitCall(t *testing.T) {
	for _, tc := range []struct {
		line string
		name string
		args string
		ret  string
	}{
		{
			line: `chdir("a(b") = 0`,
			name: "chdir",
			args: `"a(b"`,
			ret:  "0",
		},
		{
			line: `clone3({flags=CLONE_VM|CLONE_VFORK, exit_signal=SIGCHLD}, 88) = 42`,
			name: "clone3",
			args: `{flags=CLONE_VM|CLONE_VFORK, exit_signal=SIGCHLD}, 88`,
			ret:  "42",
		},
		{
			line: `execve("/x", ["x", ") = 0"], []) = -1 ENOENT (No such file or directory)`,
			name: "execve",
			args: `"/x", ["x", ") = 0"], []`,
			ret:  "-1",
		},
	} {
		name, args, ret, ok := splitCall(tc.line)
		if !ok || name != tc.name || args != tc.args || ret != tc.ret {
			t.Errorf("splitCall(%q)=%q, %q, %q, %t; want %q, %q, %q, true", tc.line, name, args, ret, ok, tc.name, tc.args, tc.ret)
		}
	}
	for _, line := range []string{`exit_group(0) = ?`, `execve("/x"`, `+++ exited with 0 +++`} {
		name, _, ret, ok := splitCall(line)
		if ok && ret != "?" {
			t.Errorf("splitCall(%q)=%q, _, %q, true; want not ok", line, name, ret)
		}
	}
}

const (
	makeTraceTestData = `100 execve("/usr/bin/make", ["make", "-C", "src"], ["PATH=/usr/bin", "HOME=/root"]) = 0
100 chdir("src") = 0
100 clone(child_stack=NULL, flags=CLONE_CHILD_CLEARTID|CLONE_CHILD_SETTID|SIGCHLD, child_tidptr=0x7f3c9a1b2a10) = 101
101 execve("/usr/local/bin/cc", ["cc", "-c", "-DMSG=\"hi there\"", "foo.c"], ["PATH=/usr/local/bin:/usr/bin"]) = -1 ENOENT (No such file or directory)
101 execve("/usr/bin/cc", ["cc", "-c", "-DMSG=\"hi there\"", "foo.c"], ["PATH=/usr/local/bin:/usr/bin"] <unfinished ...>
100 wait4(-1,  <unfinished ...>
101 <... execve resumed>) = 0
101 +++ exited with 0 +++
100 <... wait4 resumed>[{WIFEXITED(s) && WEXITSTATUS(s) == 0}], 0, NULL) = 101
100 --- SIGCHLD {si_signo=SIGCHLD, si_code=CLD_EXITED, si_pid=101, si_uid=0, si_status=0, si_utime=0, si_stime=0} ---
100 vfork( <unfinished ...>
102 chdir("sub") = 0
102 execve("/bin/sh", ["sh", "-c", "cc -c bar.c"], ["A=1"]) = 0
100 <... vfork resumed>) = 102
102 clone3({flags=CLONE_VM|CLONE_VFORK, exit_signal=SIGCHLD, stack=0x7f3c9a000000, stack_size=0x9000}, 88) = 103
103 execve("/usr/bin/cc", ["cc", "-c", "bar.c", "-o", "\342\200\231.o\n"], []) = 0
103 exit_group(0) = ?
100 chdir("/abs/dir") = 0
100 chdir("/nonexistent") = -1 ENOENT (No such file or directory)
100 execveat(AT_FDCWD, "/usr/bin/ld", ["ld", "-o", "a.out"], [], 0) = 0
`
)
