package ulib

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/process"
	"kernos/pkg/security"
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

// recordingKernel captures the stack words of every trap.
type recordingKernel struct {
	traps  [][]uint32
	ret    uint32
	err    error
	faults []vm.Addr
}

func (k *recordingKernel) Dispatch(ctx context.Context, p *process.Process, f *userprog.Frame) error {
	words := make([]uint32, 4)
	for i := range words {
		w, err := p.PageDir.ReadWord(f.ESP + vm.Addr(i*vm.WordSize))
		if err != nil {
			break
		}
		words[i] = w
	}
	k.traps = append(k.traps, words)
	f.EAX = k.ret
	return k.err
}

func (k *recordingKernel) PageFault(p *process.Process, addr vm.Addr, write bool) {
	k.faults = append(k.faults, addr)
}

func newRuntime(t *testing.T, k Kernel) *Runtime {
	t.Helper()

	pd := vm.NewPageDir()
	dataStart := CodeBase + vm.PageSize
	require.NoError(t, pd.MapRange(dataStart, 2*vm.PageSize, true))
	require.NoError(t, pd.Map(vm.PhysBase-vm.PageSize, true))

	p := process.NewProcess(2, 1, "test")
	p.PageDir = pd

	return NewRuntime(context.Background(), p, k, Layout{
		ESP:       vm.PhysBase - 16,
		DataStart: dataStart,
		DataEnd:   dataStart + 2*vm.PageSize,
	})
}

// finishes runs fn on its own goroutine and reports whether fn returned
// normally rather than being stopped by runtime.Goexit.
func finishes(fn func()) bool {
	returned := make(chan bool, 1)
	go func() {
		ok := false
		defer func() { returned <- ok }()
		fn()
		ok = true
	}()
	return <-returned
}

func TestSyscallPushesArgumentsInOrder(t *testing.T) {
	k := &recordingKernel{ret: uint32(0xFFFFFFFF)}
	rt := newRuntime(t, k)
	sp := rt.SP()

	ret := rt.Syscall(userprog.SysRead, 0, 0x1234, 5)
	assert.Equal(t, int32(-1), ret)
	assert.Equal(t, sp, rt.SP())

	require.Len(t, k.traps, 1)
	assert.Equal(t, []uint32{uint32(userprog.SysRead), 0, 0x1234, 5}, k.traps[0])
}

func TestTerminalTrapStopsProgram(t *testing.T) {
	k := &recordingKernel{err: &userprog.ExitError{Status: 3}}
	rt := newRuntime(t, k)

	assert.False(t, finishes(func() { rt.Exit(3) }))
	require.Len(t, k.traps, 1)
	assert.Equal(t, uint32(userprog.SysExit), k.traps[0][0])
	assert.Equal(t, uint32(3), k.traps[0][1])
}

func TestBadAccessFaults(t *testing.T) {
	k := &recordingKernel{}
	rt := newRuntime(t, k)

	assert.False(t, finishes(func() { rt.Peek(0) }))
	assert.False(t, finishes(func() { rt.Poke(vm.PhysBase, 1) }))
	assert.False(t, finishes(func() { rt.Load(rt.HeapEnd()-2, 4) }))
	assert.Equal(t, []vm.Addr{0, vm.PhysBase, rt.HeapEnd() - 2}, k.faults)
}

func TestStoreIntoCodeFaults(t *testing.T) {
	k := &recordingKernel{}
	rt := newRuntime(t, k)
	require.NoError(t, rt.Process().PageDir.Map(CodeBase, false))

	assert.True(t, finishes(func() { rt.Peek(CodeBase) }))
	assert.False(t, finishes(func() { rt.Poke(CodeBase, 'z') }))
	assert.False(t, finishes(func() { rt.Store(CodeBase+vm.PageSize-2, []byte("abcd")) }))
	assert.Equal(t, []vm.Addr{CodeBase, CodeBase + vm.PageSize - 2}, k.faults)
	assert.Zero(t, rt.Peek(CodeBase))
}

func TestStackOverflowFaults(t *testing.T) {
	k := &recordingKernel{}
	rt := newRuntime(t, k)
	rt.SetSP(vm.PhysBase - vm.PageSize)

	assert.False(t, finishes(func() { rt.Syscall(userprog.SysTell, 2) }))
	require.Len(t, k.faults, 1)
	assert.Empty(t, k.traps)
}

func TestHeap(t *testing.T) {
	rt := newRuntime(t, &recordingKernel{})
	start := CodeBase + vm.PageSize

	a := rt.Alloc(3)
	assert.Equal(t, start, a)
	b := rt.Alloc(0)
	assert.Equal(t, start+4, b)
	assert.Zero(t, rt.Alloc(3*vm.PageSize))

	s := rt.PutString("hello")
	assert.Equal(t, "hello", rt.LoadString(s))

	rt.PokeWord(a, 0xcafef00d)
	assert.Equal(t, uint32(0xcafef00d), rt.PeekWord(a))

	mark := rt.brk
	rt.scratch(func() int32 {
		rt.Alloc(100)
		return 0
	})
	assert.Equal(t, mark, rt.brk)
}

func TestWrappersScratchTheirStrings(t *testing.T) {
	k := &recordingKernel{ret: 1}
	rt := newRuntime(t, k)
	mark := rt.brk

	assert.True(t, rt.Create("quux.dat", 10))
	assert.Equal(t, mark, rt.brk)

	require.Len(t, k.traps, 1)
	name := vm.Addr(k.traps[0][1])
	assert.Equal(t, "quux.dat", rt.LoadString(name))
	assert.Equal(t, uint32(10), k.traps[0][2])
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	main := func(rt *Runtime, argv []string) int { return 0 }

	require.NoError(t, r.Register(&Program{Name: "b", Main: main}))
	require.NoError(t, r.Register(&Program{Name: "a", Main: main}))

	assert.ErrorIs(t, r.Register(&Program{Name: "a", Main: main}), ErrDuplicate)
	assert.ErrorIs(t, r.Register(&Program{Main: main}), ErrEmptyName)
	assert.ErrorIs(t, r.Register(&Program{Name: "c"}), ErrNoMainFunc)
	assert.Panics(t, func() { r.MustRegister(&Program{Name: "a", Main: main}) })

	assert.Equal(t, []string{"a", "b"}, r.Names())

	prog, err := r.Lookup("a")
	require.NoError(t, err)
	assert.Equal(t, "a", prog.Name)

	_, err = r.Lookup("missing")
	assert.True(t, errors.Is(err, ErrNoProgram))
}

func TestPledged(t *testing.T) {
	assert.Equal(t, security.PromiseAll, (&Program{}).Pledged())

	p := &Program{Promises: security.PromiseStdio}
	assert.Equal(t, security.PromiseStdio, p.Pledged())
}
