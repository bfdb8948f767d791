// Package programs holds the built-in user programs and the check suite
// that exercises them.
//
// Most programs are small tests in the style of a teaching kernel's test
// suite: they print "(name) begin", do their work, print "(name) end" and
// exit 0. A program the kernel kills never prints "end".
package programs

import (
	"bytes"
	"fmt"

	"kernos/pkg/security"
	"kernos/pkg/ulib"
	"kernos/pkg/vm"
)

// SampleText is the content of sample.txt.
const SampleText = "\"Amazing Electronic Fact: If you scuffed your feet long enough without\n" +
	" touching anything, you would build up so many electrons that your\n" +
	" finger would explode!  But this is nothing to worry about unless you\n" +
	" have carpeting.\" --Dave Barry\n"

// BadPtr is a user address that is never mapped.
const BadPtr = 0x20101234

// T is the context a test program runs with.
type T struct {
	rt   *ulib.Runtime
	name string
}

// Msg prints "(name) message" on the console.
func (t *T) Msg(format string, args ...interface{}) {
	t.rt.Print(fmt.Sprintf("(%s) %s\n", t.name, fmt.Sprintf(format, args...)))
}

// Fail prints a failure message and exits with status 1.
func (t *T) Fail(format string, args ...interface{}) int {
	t.Msg("FAIL: "+format, args...)
	t.rt.Exit(1)
	return 1
}

// Check prints a message and fails unless ok.
func (t *T) Check(ok bool, format string, args ...interface{}) {
	t.Msg(format, args...)
	if !ok {
		t.Fail(format, args...)
	}
}

// test wraps body between begin and end messages.
func test(name string, body func(t *T, rt *ulib.Runtime) int) *ulib.Program {
	return &ulib.Program{
		Name:        name,
		Description: "test program",
		Main: func(rt *ulib.Runtime, argv []string) int {
			t := &T{rt: rt, name: name}
			t.Msg("begin")
			status := body(t, rt)
			t.Msg("end")
			return status
		},
	}
}

// pledged restricts a program's promises.
func pledged(prog *ulib.Program, promises security.Promise) *ulib.Program {
	prog.Promises = promises
	return prog
}

// boundary reserves two heap pages and returns the page boundary between
// them.
func boundary(rt *ulib.Runtime) vm.Addr {
	a := rt.Alloc(2 * vm.PageSize)
	return vm.PageRound(a) + vm.PageSize
}

// storeAcrossBoundary copies data so that it straddles a page boundary.
func storeAcrossBoundary(rt *ulib.Runtime, data []byte) vm.Addr {
	a := boundary(rt) - vm.Addr(len(data)/2)
	rt.Store(a, data)
	return a
}

// checkFile opens name and verifies it holds want.
func checkFile(t *T, rt *ulib.Runtime, name string, want string) {
	fd := rt.Open(name)
	t.Check(fd > 1, "open \"%s\" for verification", name)

	got, n := rt.ReadBytes(fd, len(want))
	if n != len(want) || !bytes.Equal(got, []byte(want)) {
		t.Fail("read %d bytes from \"%s\", contents differ", n, name)
	}
	t.Msg("verified contents of \"%s\"", name)

	t.Msg("close \"%s\"", name)
	rt.Close(fd)
}

// All returns every built-in program.
func All() []*ulib.Program {
	var all []*ulib.Program
	all = append(all, corePrograms()...)
	all = append(all, filePrograms()...)
	all = append(all, faultPrograms()...)
	return all
}

// Registry returns a registry holding every built-in program.
func Registry() *ulib.Registry {
	r := ulib.NewRegistry()
	for _, prog := range All() {
		r.MustRegister(prog)
	}
	return r
}
