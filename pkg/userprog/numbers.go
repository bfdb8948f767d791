package userprog

import "fmt"

// Number identifies a system call. The values are part of the user ABI
// and must not change.
type Number uint32

// System call numbers.
const (
	SysHalt Number = iota
	SysExit
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose

	numCalls
)

var callNames = [numCalls]string{
	SysHalt:     "halt",
	SysExit:     "exit",
	SysExec:     "exec",
	SysWait:     "wait",
	SysCreate:   "create",
	SysRemove:   "remove",
	SysOpen:     "open",
	SysFilesize: "filesize",
	SysRead:     "read",
	SysWrite:    "write",
	SysSeek:     "seek",
	SysTell:     "tell",
	SysClose:    "close",
}

// callArgs is the number of argument words each call takes.
var callArgs = [numCalls]int{
	SysHalt:     0,
	SysExit:     1,
	SysExec:     1,
	SysWait:     1,
	SysCreate:   2,
	SysRemove:   1,
	SysOpen:     1,
	SysFilesize: 1,
	SysRead:     3,
	SysWrite:    3,
	SysSeek:     2,
	SysTell:     1,
	SysClose:    1,
}

// Valid reports whether n is a known system call.
func (n Number) Valid() bool {
	return n < numCalls
}

// Args returns the number of argument words n takes.
func (n Number) Args() int {
	if !n.Valid() {
		return 0
	}
	return callArgs[n]
}

func (n Number) String() string {
	if !n.Valid() {
		return fmt.Sprintf("syscall(%d)", uint32(n))
	}
	return callNames[n]
}

// Numbers returns every known system call in numeric order.
func Numbers() []Number {
	out := make([]Number, 0, numCalls)
	for n := Number(0); n < numCalls; n++ {
		out = append(out, n)
	}
	return out
}
