// Package usermem checks user-supplied addresses before the kernel touches
// them. A pointer is usable only if it is non-null, below vm.PhysBase and
// mapped in the current process's page directory.
package usermem

import (
	"errors"
	"fmt"

	"kernos/pkg/vm"
)

// ErrBadAddress is wrapped by every validation failure.
var ErrBadAddress = errors.New("usermem: bad user address")

// Translator resolves a user address to its backing memory.
type Translator interface {
	Translate(a vm.Addr) ([]byte, bool)
	Writable(a vm.Addr) bool
}

// Fault reasons.
const (
	ReasonNull     = "null pointer"
	ReasonKernel   = "kernel address"
	ReasonUnmapped = "unmapped page"
	ReasonWrap     = "range wraps address space"
	ReasonReadOnly = "read-only page"
)

// FaultError describes the first address that failed validation.
type FaultError struct {
	Addr   vm.Addr
	Reason string
}

// Error returns the error message.
func (e *FaultError) Error() string {
	return fmt.Sprintf("usermem: %s at %#08x", e.Reason, uint32(e.Addr))
}

// Unwrap returns ErrBadAddress.
func (e *FaultError) Unwrap() error {
	return ErrBadAddress
}

// IsFault reports whether err came from a failed validation.
func IsFault(err error) bool {
	return errors.Is(err, ErrBadAddress)
}

func fault(a vm.Addr, reason string) error {
	return &FaultError{Addr: a, Reason: reason}
}

// ValidatePointer checks a single address.
func ValidatePointer(pd Translator, a vm.Addr) error {
	if a == 0 {
		return fault(a, ReasonNull)
	}
	if vm.IsKernelAddress(a) {
		return fault(a, ReasonKernel)
	}
	if _, ok := pd.Translate(a); !ok {
		return fault(a, ReasonUnmapped)
	}
	return nil
}

// ValidateBuffer checks every byte of [a, a+n). Mappings are page-sized, so
// it is enough to check the first byte and the first byte of every page the
// range enters. A zero-length buffer still has its start address checked.
func ValidateBuffer(pd Translator, a vm.Addr, n uint32) error {
	if err := ValidatePointer(pd, a); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	last := uint64(a) + uint64(n) - 1
	if last > 0xFFFFFFFF {
		return fault(a, ReasonWrap)
	}

	for page := uint64(vm.PageRound(a)) + vm.PageSize; page <= last; page += vm.PageSize {
		if err := ValidatePointer(pd, vm.Addr(page)); err != nil {
			return err
		}
	}
	return nil
}

// ValidateWritable checks [a, a+n) like ValidateBuffer and also requires
// every page it touches to be writable.
func ValidateWritable(pd Translator, a vm.Addr, n uint32) error {
	if err := ValidateBuffer(pd, a, n); err != nil {
		return err
	}
	if !pd.Writable(a) {
		return fault(a, ReasonReadOnly)
	}
	if n == 0 {
		return nil
	}

	last := uint64(a) + uint64(n) - 1
	for page := uint64(vm.PageRound(a)) + vm.PageSize; page <= last; page += vm.PageSize {
		if !pd.Writable(vm.Addr(page)) {
			return fault(vm.Addr(page), ReasonReadOnly)
		}
	}
	return nil
}

// ValidateString walks a NUL-terminated string starting at a, checking each
// address before reading it. It returns the string length, not counting
// the terminator. A string that runs into an invalid page fails at the
// first invalid byte and nothing past it is read.
func ValidateString(pd Translator, a vm.Addr) (int, error) {
	n := 0
	if err := walkString(pd, a, func(chunk []byte) { n += len(chunk) }); err != nil {
		return 0, err
	}
	return n, nil
}

// CopyInString validates the string at a and returns a kernel copy of it.
func CopyInString(pd Translator, a vm.Addr) (string, error) {
	var buf []byte
	if err := walkString(pd, a, func(chunk []byte) {
		buf = append(buf, chunk...)
	}); err != nil {
		return "", err
	}
	return string(buf), nil
}

// walkString feeds emit the string bytes one page at a time. Each page is
// validated before it is scanned.
func walkString(pd Translator, a vm.Addr, emit func([]byte)) error {
	for {
		if err := ValidatePointer(pd, a); err != nil {
			return err
		}
		b, _ := pd.Translate(a)
		for i, c := range b {
			if c == 0 {
				emit(b[:i])
				return nil
			}
		}
		emit(b)
		a += vm.Addr(len(b))
	}
}

// CopyIn validates [a, a+n) and copies it into a new kernel buffer.
func CopyIn(pd Translator, a vm.Addr, n uint32) ([]byte, error) {
	if err := ValidateBuffer(pd, a, n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	copyPages(pd, a, buf, func(dst, src []byte) int { return copy(dst, src) })
	return buf, nil
}

// CopyOut validates [a, a+len(p)) for writing and copies p into it.
func CopyOut(pd Translator, a vm.Addr, p []byte) error {
	if err := ValidateWritable(pd, a, uint32(len(p))); err != nil {
		return err
	}
	copyPages(pd, a, p, func(src, dst []byte) int { return copy(dst, src) })
	return nil
}

// copyPages applies op to each page-sized piece of p and the user memory at a.
// The range must already be validated.
func copyPages(pd Translator, a vm.Addr, p []byte, op func(kernel, user []byte) int) {
	for len(p) > 0 {
		b, _ := pd.Translate(a)
		n := op(p, b)
		p = p[n:]
		a += vm.Addr(n)
	}
}
