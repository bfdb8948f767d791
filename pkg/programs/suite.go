package programs

import (
	"errors"
	"fmt"
	"strings"

	"kernos/pkg/config"
	"kernos/pkg/filesys"
)

// ErrMismatch is wrapped by every failed check.
var ErrMismatch = errors.New("programs: check failed")

// Case is one check: a command line run on a fresh machine and what it
// must produce.
type Case struct {
	// Name identifies the case.
	Name string
	// CmdLine is the task to run.
	CmdLine string
	// Files are preloaded on the disk.
	Files []config.FileConfig
	// Input feeds the keyboard.
	Input string
	// Output is the exact expected console output.
	Output string
	// Status is the expected exit status of the task.
	Status int
	// Halts is set when the task powers the machine off.
	Halts bool
	// Disk lists files that must hold the given contents afterwards.
	Disk map[string]string
}

// Verify compares a run against the case.
func (c Case) Verify(output string, status int, halted bool, fs filesys.FileSystem) error {
	if output != c.Output {
		return fmt.Errorf("%w: %s: output differs\n--- expected\n%s--- actual\n%s", ErrMismatch, c.Name, c.Output, output)
	}
	if halted != c.Halts {
		return fmt.Errorf("%w: %s: halted = %t, expected %t", ErrMismatch, c.Name, halted, c.Halts)
	}
	if !c.Halts && status != c.Status {
		return fmt.Errorf("%w: %s: exit status %d, expected %d", ErrMismatch, c.Name, status, c.Status)
	}
	for name, want := range c.Disk {
		got, err := filesys.ReadFile(fs, name)
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %w", ErrMismatch, c.Name, name, err)
		}
		if string(got) != want {
			return fmt.Errorf("%w: %s: %s holds %q, expected %q", ErrMismatch, c.Name, name, got, want)
		}
	}
	return nil
}

var sample = config.FileConfig{Name: "sample.txt", Content: SampleText}

// transcript builds the output of a test program that runs to completion.
func transcript(name string, msgs ...string) string {
	var b strings.Builder
	b.WriteString(msgLine(name, "begin"))
	for _, m := range msgs {
		b.WriteString(msgLine(name, m))
	}
	b.WriteString(msgLine(name, "end"))
	return b.String()
}

// killedTranscript builds the output of a test program killed with -1.
func killedTranscript(name string, msgs ...string) string {
	var b strings.Builder
	b.WriteString(msgLine(name, "begin"))
	for _, m := range msgs {
		b.WriteString(msgLine(name, m))
	}
	b.WriteString(exitLine(name, -1))
	return b.String()
}

func msgLine(name, msg string) string {
	return fmt.Sprintf("(%s) %s\n", name, msg)
}

func exitLine(name string, status int) string {
	return fmt.Sprintf("%s: exit(%d)\n", name, status)
}

// passing is a case for a test program that completes with status 0.
func passing(name string, files []config.FileConfig, msgs ...string) Case {
	return Case{
		Name:    name,
		CmdLine: name,
		Files:   files,
		Output:  transcript(name, msgs...) + exitLine(name, 0),
	}
}

// killed is a case for a test program the kernel must terminate.
func killed(name string, files []config.FileConfig, msgs ...string) Case {
	return Case{
		Name:    name,
		CmdLine: name,
		Files:   files,
		Output:  killedTranscript(name, msgs...),
		Status:  -1,
	}
}

func argsOutput(argv ...string) string {
	msgs := []string{fmt.Sprintf("argc = %d", len(argv))}
	for i, arg := range argv {
		msgs = append(msgs, fmt.Sprintf("argv[%d] = '%s'", i, arg))
	}
	msgs = append(msgs, fmt.Sprintf("argv[%d] = null", len(argv)))
	return transcript("args", msgs...) + exitLine("args", 0)
}

var childSimple = msgLine("child-simple", "run") + exitLine("child-simple", 81)

// Suite returns every check case.
func Suite() []Case {
	withSample := []config.FileConfig{sample}
	openSample := `open "sample.txt"`

	return []Case{
		{Name: "args-none", CmdLine: "args", Output: argsOutput("args")},
		{Name: "args-single", CmdLine: "args onearg", Output: argsOutput("args", "onearg")},
		{Name: "args-multiple", CmdLine: "args some arguments for you!", Output: argsOutput("args", "some", "arguments", "for", "you!")},
		{Name: "args-dbl-space", CmdLine: "args  two  spaces!", Output: argsOutput("args", "two", "spaces!")},
		{Name: "echo", CmdLine: "echo hello world", Output: "hello world\n" + exitLine("echo", 0)},
		{Name: "exit", CmdLine: "exit", Output: msgLine("exit", "begin") + exitLine("exit", 57), Status: 57},
		{Name: "halt", CmdLine: "halt", Output: msgLine("halt", "begin"), Halts: true},
		{
			Name:    "console",
			CmdLine: "console",
			Output: msgLine("console", "begin") + strings.Repeat("0123456789", 45) + "\n" +
				msgLine("console", "end") + exitLine("console", 0),
		},
		{
			Name:    "read-stdin",
			CmdLine: "read-stdin 5",
			Input:   "hello world",
			Output:  "(read-stdin) got 5: 'hello'\n" + exitLine("read-stdin", 0),
		},
		{
			Name:    "recurse",
			CmdLine: "recurse 3",
			Output:  exitLine("recurse", 0) + exitLine("recurse", 1) + exitLine("recurse", 2) + exitLine("recurse", 3),
			Status:  3,
		},

		{
			Name:    "exec-once",
			CmdLine: "exec-once",
			Output:  msgLine("exec-once", "begin") + childSimple + msgLine("exec-once", "end") + exitLine("exec-once", 0),
		},
		{
			Name:    "exec-arg",
			CmdLine: "exec-arg",
			Output:  msgLine("exec-arg", "begin") + argsOutput("args", "childarg") + msgLine("exec-arg", "end") + exitLine("exec-arg", 0),
		},
		{
			Name:    "exec-missing",
			CmdLine: "exec-missing",
			Output: msgLine("exec-missing", "begin") +
				"load: no-such-file: open failed\n" +
				exitLine("no-such-file", -1) +
				transcriptTail("exec-missing", `exec("no-such-file"): -1`),
		},
		killed("exec-bad-ptr", nil),
		{
			Name:    "wait-simple",
			CmdLine: "wait-simple",
			Output:  msgLine("wait-simple", "begin") + childSimple + transcriptTail("wait-simple", "wait(exec()) = 81"),
		},
		{
			Name:    "wait-twice",
			CmdLine: "wait-twice",
			Output:  msgLine("wait-twice", "begin") + childSimple + transcriptTail("wait-twice", "wait(exec()) = 81", "wait(exec()) = -1"),
		},
		passing("wait-bad-pid", nil, "wait(12345) = -1"),
		{
			Name:    "wait-killed",
			CmdLine: "wait-killed",
			Output: msgLine("wait-killed", "begin") + killedTranscript("bad-read") +
				transcriptTail("wait-killed", "wait(exec()) = -1"),
		},

		passing("create-normal", nil, "create quux.dat"),
		passing("create-empty", nil, `create(""): 0`),
		passing("create-long", nil, `create("x..."): 0`),
		passing("create-huge", nil, `create("huge", 0xffffffff): 0`, "create small"),
		passing("create-exists", nil, "create quux.dat", "create warble.dat", "try to re-create quux.dat", "create baffle.dat"),
		passing("create-bound", nil, `create("quux.dat"): 1`),
		killed("create-null", nil),
		killed("create-bad-ptr", nil),

		passing("open-normal", withSample, openSample),
		passing("open-missing", nil, `open "no-such-file"`),
		passing("open-empty", nil, `open("") returned -1`),
		passing("open-boundary", withSample, openSample),
		passing("open-twice", withSample, `open "sample.txt" once`, `open "sample.txt" again`),
		passing("open-many", withSample, "fds = 2 3 4 5 6", "reopened fd = 7"),
		killed("open-null", nil),
		killed("open-bad-ptr", nil),
		killed("open-unterminated", nil),

		passing("close-normal", withSample, openSample, `close "sample.txt"`),
		passing("close-twice", withSample, openSample, `close "sample.txt"`, `close "sample.txt" again`),
		passing("close-stdin", nil),
		passing("close-stdout", nil),
		passing("close-bad-fd", nil),

		passing("read-normal", withSample,
			`open "sample.txt" for verification`, `verified contents of "sample.txt"`, `close "sample.txt"`),
		passing("read-boundary", withSample, openSample),
		passing("read-zero", withSample, openSample),
		passing("read-stdout", nil, "read(STDOUT) = -1"),
		passing("read-bad-fd", nil),
		killed("read-bad-ptr", withSample, openSample),

		withDisk(passing("write-normal", withSample, openSample), "sample.txt", SampleText),
		withDisk(passing("write-boundary", withSample, openSample), "sample.txt", SampleText),
		passing("write-zero", withSample, openSample),
		passing("write-stdin", nil, "write(STDIN) = -1"),
		passing("write-bad-fd", nil),
		killed("write-bad-ptr", withSample, openSample),
		killed("write-bad-stdout", nil),

		passing("bad-fd-benign", nil, "tell(bad) = 0", "filesize(bad) = 0"),
		withDisk(passing("fd-seq", []config.FileConfig{{Name: "x", Size: 2}},
			`open("x") = 2`, `write(2, "hi", 2) = 2`, `read(2, buf, 2) = 2, buf = "hi"`, "tell(2) = 0"), "x", "hi"),
		passing("seek-tell", withSample, openSample,
			fmt.Sprintf("filesize = %d", len(SampleText)), "tell after seek 10 = 10", "read past end = 0 (0 bytes)"),
		{
			Name:    "multi-child-fd",
			CmdLine: "multi-child-fd",
			Files:   withSample,
			Output: msgLine("multi-child-fd", "begin") + msgLine("multi-child-fd", openSample) +
				transcript("child-close") + exitLine("child-close", 0) +
				transcriptTail("multi-child-fd", "wait(exec()) = 0", `verified contents of "sample.txt"`),
		},
		passing("remove-open", withSample, openSample, `remove "sample.txt"`,
			`open removed "sample.txt" fails`, "read removed file through open descriptor"),

		{Name: "cat", CmdLine: "cat sample.txt", Files: withSample, Output: SampleText + exitLine("cat", 0)},
		{
			Name:    "cp",
			CmdLine: "cp sample.txt copy.txt",
			Files:   withSample,
			Output:  exitLine("cp", 0),
			Disk:    map[string]string{"copy.txt": SampleText},
		},
		{Name: "rm", CmdLine: "rm sample.txt", Files: withSample, Output: exitLine("rm", 0)},
		{Name: "rm-missing", CmdLine: "rm nothing", Output: "rm: nothing: remove failed\n" + exitLine("rm", 1), Status: 1},

		killed("bad-read", nil),
		killed("bad-write", nil),
		killed("bad-kernel-read", nil),
		killed("write-code", nil, "code byte: 0"),
		{
			Name:    "read-code",
			CmdLine: "read-code",
			Input:   "zz",
			Output:  killedTranscript("read-code"),
			Status:  -1,
		},
		killed("sc-bad-sp", nil),
		killed("sc-bad-arg", nil),
		killed("sc-bad-num", nil),
		{Name: "sc-boundary", CmdLine: "sc-boundary", Output: msgLine("sc-boundary", "begin") + exitLine("sc-boundary", 42), Status: 42},
		{Name: "sc-boundary-2", CmdLine: "sc-boundary-2", Output: msgLine("sc-boundary-2", "begin") + exitLine("sc-boundary-2", 67), Status: 67},

		killed("no-write", nil),
		{
			Name:    "pledge-exec",
			CmdLine: "pledge-exec",
			Output: msgLine("pledge-exec", "begin") + killedTranscript("create-normal") +
				transcriptTail("pledge-exec", "wait(exec()) = -1"),
		},
	}
}

// transcriptTail is the rest of a passing transcript after begin.
func transcriptTail(name string, msgs ...string) string {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(msgLine(name, m))
	}
	b.WriteString(msgLine(name, "end"))
	b.WriteString(exitLine(name, 0))
	return b.String()
}

func withDisk(c Case, name, content string) Case {
	if c.Disk == nil {
		c.Disk = make(map[string]string)
	}
	c.Disk[name] = content
	return c
}

// Select returns the cases with the given names, in suite order. No
// names selects every case.
func Select(cases []Case, names []string) ([]Case, error) {
	if len(names) == 0 {
		return cases, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []Case
	for _, c := range cases {
		if want[c.Name] {
			out = append(out, c)
			delete(want, c.Name)
		}
	}
	for n := range want {
		return nil, fmt.Errorf("%w: no case named %q", ErrMismatch, n)
	}
	return out, nil
}
