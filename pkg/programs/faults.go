package programs

import (
	"kernos/pkg/security"
	"kernos/pkg/ulib"
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

// faultPrograms misbehave on purpose. Every one of them must be killed
// with status -1.
func faultPrograms() []*ulib.Program {
	return []*ulib.Program{
		test("bad-read", func(t *T, rt *ulib.Runtime) int {
			t.Msg("Congratulations - you have successfully dereferenced NULL: %d", rt.Peek(0))
			return t.Fail("should have exited with -1")
		}),
		test("bad-write", func(t *T, rt *ulib.Runtime) int {
			rt.Poke(0, 42)
			return t.Fail("should have exited with -1")
		}),
		test("bad-kernel-read", func(t *T, rt *ulib.Runtime) int {
			t.Msg("read kernel memory: %d", rt.Peek(vm.PhysBase))
			return t.Fail("should have exited with -1")
		}),
		test("write-code", func(t *T, rt *ulib.Runtime) int {
			t.Msg("code byte: %d", rt.Peek(ulib.CodeBase))
			rt.Poke(ulib.CodeBase, 'z')
			return t.Fail("should have exited with -1")
		}),
		test("read-code", func(t *T, rt *ulib.Runtime) int {
			rt.Read(ulib.Stdin, ulib.CodeBase, 2)
			return t.Fail("should have exited with -1")
		}),
		test("create-null", func(t *T, rt *ulib.Runtime) int {
			rt.Syscall(userprog.SysCreate, 0, 0)
			return t.Fail("should have exited with -1")
		}),
		test("create-bad-ptr", func(t *T, rt *ulib.Runtime) int {
			t.Msg("create(%#x): %d", BadPtr, rt.Syscall(userprog.SysCreate, BadPtr, 0))
			return t.Fail("should have exited with -1")
		}),
		test("open-null", func(t *T, rt *ulib.Runtime) int {
			rt.Syscall(userprog.SysOpen, 0)
			return t.Fail("should have exited with -1")
		}),
		test("open-bad-ptr", func(t *T, rt *ulib.Runtime) int {
			t.Msg("open(%#x): %d", BadPtr, rt.Syscall(userprog.SysOpen, BadPtr))
			return t.Fail("should have exited with -1")
		}),
		test("exec-bad-ptr", func(t *T, rt *ulib.Runtime) int {
			rt.Syscall(userprog.SysExec, BadPtr)
			return t.Fail("should have exited with -1")
		}),
		test("read-bad-ptr", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			rt.Read(fd, 0xc0100000, 123)
			return t.Fail("should not have survived read()")
		}),
		test("write-bad-ptr", func(t *T, rt *ulib.Runtime) int {
			fd := rt.Open("sample.txt")
			t.Check(fd > 1, "open \"sample.txt\"")
			rt.Write(fd, BadPtr, 123)
			return t.Fail("should have exited with -1")
		}),
		test("write-bad-stdout", func(t *T, rt *ulib.Runtime) int {
			rt.Write(ulib.Stdout, BadPtr, 10)
			return t.Fail("should have exited with -1")
		}),
		test("open-unterminated", func(t *T, rt *ulib.Runtime) int {
			// The name runs into the unmapped page above the heap.
			name := rt.HeapEnd() - 16
			for a := name; a < rt.HeapEnd(); a++ {
				rt.Poke(a, 'a')
			}
			rt.Syscall(userprog.SysOpen, uint32(name))
			return t.Fail("should have exited with -1")
		}),
		test("sc-bad-sp", func(t *T, rt *ulib.Runtime) int {
			rt.Trap(0x04000000)
			return t.Fail("should have called exit(-1)")
		}),
		test("sc-bad-arg", func(t *T, rt *ulib.Runtime) int {
			esp := vm.PhysBase - vm.WordSize
			rt.PokeWord(esp, uint32(userprog.SysExit))
			rt.Trap(esp)
			return t.Fail("should have called exit(-1)")
		}),
		test("sc-bad-num", func(t *T, rt *ulib.Runtime) int {
			rt.Syscall(userprog.Number(0x7fff), 0)
			return t.Fail("should have called exit(-1)")
		}),
		test("sc-boundary", func(t *T, rt *ulib.Runtime) int {
			b := boundary(rt)
			rt.PokeWord(b-vm.WordSize, uint32(userprog.SysExit))
			rt.PokeWord(b, 42)
			rt.Trap(b - vm.WordSize)
			return t.Fail("should have called exit(42)")
		}),
		test("sc-boundary-2", func(t *T, rt *ulib.Runtime) int {
			b := boundary(rt)
			rt.PokeWord(b-2, uint32(userprog.SysExit))
			rt.PokeWord(b+2, 67)
			rt.Trap(b - 2)
			return t.Fail("should have called exit(67)")
		}),
		pledged(test("no-write", func(t *T, rt *ulib.Runtime) int {
			rt.Create("quux.dat", 0)
			return t.Fail("should have been killed for creating a file")
		}), security.PromiseStdio),
		pledged(test("pledge-exec", func(t *T, rt *ulib.Runtime) int {
			t.Msg("wait(exec()) = %d", rt.Wait(rt.Exec("create-normal")))
			return 0
		}), security.PromiseStdio|security.PromiseProc),
	}
}
