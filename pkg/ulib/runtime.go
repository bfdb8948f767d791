// Package ulib is the user-side runtime: the calling convention programs
// use to enter the kernel, typed system call wrappers and a small heap in
// the data segment.
//
// Everything a program does to its own memory goes through the Runtime, so
// touching an invalid address behaves like a page fault and the kernel
// terminates the program.
package ulib

import (
	"context"
	"runtime"

	"kernos/pkg/process"
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

// Address space layout.
const (
	// CodeBase is where the program image starts.
	CodeBase vm.Addr = 0x08048000
	// StackTop is one past the highest user address.
	StackTop = vm.PhysBase
)

// Kernel is the part of the kernel a running program can reach: the
// system call trap and the page fault handler.
type Kernel interface {
	Dispatch(ctx context.Context, p *process.Process, f *userprog.Frame) error
	PageFault(p *process.Process, addr vm.Addr, write bool)
}

// Runtime is one program's view of the machine.
type Runtime struct {
	ctx    context.Context
	proc   *process.Process
	kernel Kernel
	mem    *vm.PageDir

	entry   vm.Addr
	esp     vm.Addr
	brk     vm.Addr
	dataEnd vm.Addr
}

// Layout describes where the loader put a program's stack and heap.
type Layout struct {
	// ESP is the initial stack pointer.
	ESP vm.Addr
	// DataStart and DataEnd bound the heap.
	DataStart vm.Addr
	DataEnd   vm.Addr
}

// NewRuntime binds a runtime to a loaded process.
func NewRuntime(ctx context.Context, p *process.Process, k Kernel, layout Layout) *Runtime {
	return &Runtime{
		ctx:     ctx,
		proc:    p,
		kernel:  k,
		mem:     p.PageDir,
		entry:   layout.ESP,
		esp:     layout.ESP,
		brk:     layout.DataStart,
		dataEnd: layout.DataEnd,
	}
}

// Process returns the process the runtime belongs to.
func (rt *Runtime) Process() *process.Process {
	return rt.proc
}

// SP returns the current stack pointer.
func (rt *Runtime) SP() vm.Addr {
	return rt.esp
}

// ArgvAddr returns the address of the argv array the loader built.
func (rt *Runtime) ArgvAddr() vm.Addr {
	return vm.Addr(rt.PeekWord(rt.entry + 2*vm.WordSize))
}

// SetSP moves the stack pointer. Nothing is checked until the next push.
func (rt *Runtime) SetSP(esp vm.Addr) {
	rt.esp = esp
}

// Syscall pushes args in reverse order and then n, traps into the kernel
// and returns EAX. The stack pointer is restored afterwards. If the kernel
// ends the program, Syscall does not return.
func (rt *Runtime) Syscall(n userprog.Number, args ...uint32) int32 {
	saved := rt.esp
	for i := len(args) - 1; i >= 0; i-- {
		rt.push(args[i])
	}
	rt.push(uint32(n))

	ret := rt.Trap(rt.esp)
	rt.esp = saved
	return ret
}

// Trap enters the kernel with the stack pointer set to esp, without
// pushing anything.
func (rt *Runtime) Trap(esp vm.Addr) int32 {
	f := &userprog.Frame{ESP: esp}
	if err := rt.kernel.Dispatch(rt.ctx, rt.proc, f); err != nil {
		runtime.Goexit()
	}
	return int32(f.EAX)
}

func (rt *Runtime) push(w uint32) {
	rt.esp -= vm.WordSize
	rt.PokeWord(rt.esp, w)
}

// fault reports a bad access to the kernel. It does not return.
func (rt *Runtime) fault(a vm.Addr, write bool) {
	rt.kernel.PageFault(rt.proc, a, write)
	runtime.Goexit()
}

// Peek reads the byte at a.
func (rt *Runtime) Peek(a vm.Addr) byte {
	c, err := rt.mem.LoadByte(a)
	if err != nil {
		rt.fault(a, false)
	}
	return c
}

// Poke stores c at a.
func (rt *Runtime) Poke(a vm.Addr, c byte) {
	if err := rt.mem.StoreByte(a, c); err != nil {
		rt.fault(a, true)
	}
}

// PeekWord reads the word at a.
func (rt *Runtime) PeekWord(a vm.Addr) uint32 {
	w, err := rt.mem.ReadWord(a)
	if err != nil {
		rt.fault(a, false)
	}
	return w
}

// PokeWord stores w at a.
func (rt *Runtime) PokeWord(a vm.Addr, w uint32) {
	if err := rt.mem.WriteWord(a, w); err != nil {
		rt.fault(a, true)
	}
}

// Load copies n bytes starting at a out of user memory.
func (rt *Runtime) Load(a vm.Addr, n int) []byte {
	buf := make([]byte, n)
	if err := rt.mem.Read(a, buf); err != nil {
		rt.fault(a, false)
	}
	return buf
}

// Store copies p into user memory at a.
func (rt *Runtime) Store(a vm.Addr, p []byte) {
	if err := rt.mem.Write(a, p); err != nil {
		rt.fault(a, true)
	}
}

// LoadString reads the NUL-terminated string at a.
func (rt *Runtime) LoadString(a vm.Addr) string {
	var buf []byte
	for {
		c := rt.Peek(a)
		if c == 0 {
			return string(buf)
		}
		buf = append(buf, c)
		a++
	}
}

// HeapEnd returns one past the last heap address.
func (rt *Runtime) HeapEnd() vm.Addr {
	return rt.dataEnd
}

// Alloc reserves n bytes of word-aligned heap and returns their address,
// or 0 if the data segment is full.
func (rt *Runtime) Alloc(n int) vm.Addr {
	size := vm.Addr((n + vm.WordSize - 1) &^ (vm.WordSize - 1))
	if size == 0 {
		size = vm.WordSize
	}
	if rt.brk+size > rt.dataEnd || rt.brk+size < rt.brk {
		return 0
	}
	a := rt.brk
	rt.brk += size
	return a
}

// Bytes copies p onto the heap and returns its address.
func (rt *Runtime) Bytes(p []byte) vm.Addr {
	a := rt.Alloc(len(p))
	if a == 0 {
		return 0
	}
	rt.Store(a, p)
	return a
}

// PutString copies s onto the heap with a NUL terminator.
func (rt *Runtime) PutString(s string) vm.Addr {
	return rt.Bytes(append([]byte(s), 0))
}

// scratch runs fn and then releases whatever fn allocated.
func (rt *Runtime) scratch(fn func() int32) int32 {
	mark := rt.brk
	defer func() { rt.brk = mark }()
	return fn()
}
