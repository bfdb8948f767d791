package userprog

import (
	"encoding/binary"
	"errors"
	"fmt"

	"kernos/pkg/usermem"
	"kernos/pkg/vm"
)

// ErrUnknownSyscall is the kill cause for a number outside the ABI.
var ErrUnknownSyscall = errors.New("userprog: unknown system call")

// MaxArgs is the largest number of argument words any call takes.
const MaxArgs = 3

// Frame is the part of the trap context the system call layer uses. ESP
// is the user stack pointer at the trap; EAX receives the result.
type Frame struct {
	ESP vm.Addr
	EAX uint32
}

// Request is a decoded system call: its number and raw argument words.
type Request struct {
	Number Number
	Args   [MaxArgs]uint32

	// str is the kernel copy of the call's string argument, if it has one.
	str string
}

// Int returns argument i as a signed integer.
func (r *Request) Int(i int) int {
	return int(int32(r.Args[i]))
}

// Uint returns argument i as an unsigned integer.
func (r *Request) Uint(i int) uint32 {
	return r.Args[i]
}

// Addr returns argument i as a user address.
func (r *Request) Addr(i int) vm.Addr {
	return vm.Addr(r.Args[i])
}

// Text returns the validated string argument.
func (r *Request) Text() string {
	return r.str
}

// decodeFrame reads a system call from the user stack at esp. Word 0 is
// the number and words 1..N are the arguments. Every word is validated
// before it is read, starting with the number and the slot above it.
func decodeFrame(pd usermem.Translator, esp vm.Addr) (*Request, error) {
	head, err := usermem.CopyIn(pd, esp, 2*vm.WordSize)
	if err != nil {
		return nil, err
	}

	req := &Request{Number: Number(binary.LittleEndian.Uint32(head))}
	if !req.Number.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSyscall, uint32(req.Number))
	}

	for i := 0; i < req.Number.Args(); i++ {
		w, err := usermem.CopyIn(pd, argSlot(esp, i), vm.WordSize)
		if err != nil {
			return nil, err
		}
		req.Args[i] = binary.LittleEndian.Uint32(w)
	}
	return req, nil
}

// argSlot is the address of argument i.
func argSlot(esp vm.Addr, i int) vm.Addr {
	return esp + vm.Addr((i+1)*vm.WordSize)
}
