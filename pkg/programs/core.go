package programs

import (
	"fmt"
	"strconv"
	"strings"

	"kernos/pkg/security"
	"kernos/pkg/ulib"
	"kernos/pkg/vm"
)

func corePrograms() []*ulib.Program {
	return []*ulib.Program{
		{
			Name:        "echo",
			Description: "print the arguments",
			Promises:    security.PromiseStdio,
			Main: func(rt *ulib.Runtime, argv []string) int {
				rt.Print(strings.Join(argv[1:], " ") + "\n")
				return 0
			},
		},
		{
			Name:        "args",
			Description: "print argc and argv",
			Promises:    security.PromiseStdio,
			Main:        args,
		},
		{
			Name:        "recurse",
			Description: "recurse N: start a chain of N children",
			Main:        recurse,
		},
		{
			Name:        "child-simple",
			Description: "print a line and exit 81",
			Promises:    security.PromiseStdio,
			Main: func(rt *ulib.Runtime, argv []string) int {
				rt.Print("(child-simple) run\n")
				return 81
			},
		},
		{
			Name:        "read-stdin",
			Description: "read N keys and print them",
			Promises:    security.PromiseStdio,
			Main:        readStdin,
		},

		test("exit", func(t *T, rt *ulib.Runtime) int {
			rt.Exit(57)
			return t.Fail("should have called exit(57)")
		}),
		pledged(test("halt", func(t *T, rt *ulib.Runtime) int {
			rt.Halt()
			return t.Fail("should have halted")
		}), security.PromiseStdio|security.PromisePower),
		test("console", func(t *T, rt *ulib.Runtime) int {
			line := strings.Repeat("0123456789", 45) + "\n"
			if n := rt.WriteBytes(ulib.Stdout, []byte(line)); n != len(line) {
				return t.Fail("write() returned %d instead of %d", n, len(line))
			}
			return 0
		}),
		test("exec-once", func(t *T, rt *ulib.Runtime) int {
			rt.Wait(rt.Exec("child-simple"))
			return 0
		}),
		test("exec-arg", func(t *T, rt *ulib.Runtime) int {
			rt.Wait(rt.Exec("args childarg"))
			return 0
		}),
		test("exec-missing", func(t *T, rt *ulib.Runtime) int {
			t.Msg("exec(\"no-such-file\"): %d", rt.Exec("no-such-file"))
			return 0
		}),
		test("wait-simple", func(t *T, rt *ulib.Runtime) int {
			t.Msg("wait(exec()) = %d", rt.Wait(rt.Exec("child-simple")))
			return 0
		}),
		test("wait-twice", func(t *T, rt *ulib.Runtime) int {
			pid := rt.Exec("child-simple")
			t.Msg("wait(exec()) = %d", rt.Wait(pid))
			t.Msg("wait(exec()) = %d", rt.Wait(pid))
			return 0
		}),
		test("wait-bad-pid", func(t *T, rt *ulib.Runtime) int {
			t.Msg("wait(12345) = %d", rt.Wait(12345))
			return 0
		}),
		test("wait-killed", func(t *T, rt *ulib.Runtime) int {
			t.Msg("wait(exec()) = %d", rt.Wait(rt.Exec("bad-read")))
			return 0
		}),
	}
}

func args(rt *ulib.Runtime, argv []string) int {
	t := &T{rt: rt, name: "args"}
	t.Msg("begin")
	t.Msg("argc = %d", len(argv))
	for i, arg := range argv {
		t.Msg("argv[%d] = '%s'", i, arg)
	}

	sentinel := rt.PeekWord(rt.ArgvAddr() + vm.Addr(len(argv)*vm.WordSize))
	if sentinel != 0 {
		return t.Fail("argv[%d] = %#x, not null", len(argv), sentinel)
	}
	t.Msg("argv[%d] = null", len(argv))
	t.Msg("end")
	return 0
}

// recurse N starts "recurse N-1" and exits with its status plus one.
func recurse(rt *ulib.Runtime, argv []string) int {
	if len(argv) < 2 {
		return 0
	}
	n, err := strconv.Atoi(argv[1])
	if err != nil || n <= 0 {
		return 0
	}

	pid := rt.Exec(fmt.Sprintf("recurse %d", n-1))
	if pid < 0 {
		return -1
	}
	return rt.Wait(pid) + 1
}

// readStdin reads argv[1] keys (default 5) and prints them.
func readStdin(rt *ulib.Runtime, argv []string) int {
	n := 5
	if len(argv) > 1 {
		if v, err := strconv.Atoi(argv[1]); err == nil && v >= 0 {
			n = v
		}
	}

	keys, got := rt.ReadBytes(ulib.Stdin, n)
	rt.Print(fmt.Sprintf("(read-stdin) got %d: '%s'\n", got, keys))
	return 0
}
