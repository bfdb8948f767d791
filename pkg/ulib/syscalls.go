package ulib

import (
	"kernos/pkg/userprog"
	"kernos/pkg/vm"
)

// Console descriptors.
const (
	Stdin  = 0
	Stdout = 1
)

// Halt powers the machine off.
func (rt *Runtime) Halt() {
	rt.Syscall(userprog.SysHalt)
}

// Exit ends the program with status.
func (rt *Runtime) Exit(status int) {
	rt.Syscall(userprog.SysExit, uint32(int32(status)))
}

// Exec starts cmdline as a child and returns its pid, or -1.
func (rt *Runtime) Exec(cmdline string) int {
	return int(rt.scratch(func() int32 {
		return rt.Syscall(userprog.SysExec, uint32(rt.PutString(cmdline)))
	}))
}

// Wait waits for child pid and returns its exit status.
func (rt *Runtime) Wait(pid int) int {
	return int(rt.Syscall(userprog.SysWait, uint32(int32(pid))))
}

// Create creates a file of initialSize bytes.
func (rt *Runtime) Create(name string, initialSize uint32) bool {
	return rt.scratch(func() int32 {
		return rt.Syscall(userprog.SysCreate, uint32(rt.PutString(name)), initialSize)
	}) != 0
}

// Remove deletes a file.
func (rt *Runtime) Remove(name string) bool {
	return rt.scratch(func() int32 {
		return rt.Syscall(userprog.SysRemove, uint32(rt.PutString(name)))
	}) != 0
}

// Open opens a file and returns its descriptor, or -1.
func (rt *Runtime) Open(name string) int {
	return int(rt.scratch(func() int32 {
		return rt.Syscall(userprog.SysOpen, uint32(rt.PutString(name)))
	}))
}

// Filesize returns the size of the open file fd.
func (rt *Runtime) Filesize(fd int) int {
	return int(rt.Syscall(userprog.SysFilesize, uint32(int32(fd))))
}

// Read reads up to size bytes from fd into user memory at buf.
func (rt *Runtime) Read(fd int, buf vm.Addr, size uint32) int {
	return int(rt.Syscall(userprog.SysRead, uint32(int32(fd)), uint32(buf), size))
}

// Write writes size bytes at buf to fd.
func (rt *Runtime) Write(fd int, buf vm.Addr, size uint32) int {
	return int(rt.Syscall(userprog.SysWrite, uint32(int32(fd)), uint32(buf), size))
}

// Seek moves the position of fd.
func (rt *Runtime) Seek(fd int, pos uint32) {
	rt.Syscall(userprog.SysSeek, uint32(int32(fd)), pos)
}

// Tell returns the position of fd.
func (rt *Runtime) Tell(fd int) int {
	return int(rt.Syscall(userprog.SysTell, uint32(int32(fd))))
}

// Close closes fd.
func (rt *Runtime) Close(fd int) {
	rt.Syscall(userprog.SysClose, uint32(int32(fd)))
}

// ReadBytes reads up to n bytes from fd and returns them.
func (rt *Runtime) ReadBytes(fd int, n int) ([]byte, int) {
	var got int32
	var out []byte
	rt.scratch(func() int32 {
		buf := rt.Alloc(n)
		got = rt.Syscall(userprog.SysRead, uint32(int32(fd)), uint32(buf), uint32(n))
		if got > 0 {
			out = rt.Load(buf, int(got))
		}
		return got
	})
	return out, int(got)
}

// WriteBytes writes p to fd and returns the count the kernel reported.
func (rt *Runtime) WriteBytes(fd int, p []byte) int {
	return int(rt.scratch(func() int32 {
		buf := rt.Bytes(p)
		return rt.Syscall(userprog.SysWrite, uint32(int32(fd)), uint32(buf), uint32(len(p)))
	}))
}

// Print writes s to the console.
func (rt *Runtime) Print(s string) {
	rt.WriteBytes(Stdout, []byte(s))
}
