// Package vm models the user half of a 32-bit address space: a per-process
// page directory mapping user pages to 4 KiB frames, and the kernel/user
// split at PhysBase.
package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

// Address space errors.
var (
	ErrUnmapped      = errors.New("vm: address not mapped")
	ErrKernelPage    = errors.New("vm: page lies in kernel space")
	ErrUnaligned     = errors.New("vm: page address not aligned")
	ErrAlreadyMapped = errors.New("vm: page already mapped")
	ErrReadOnly      = errors.New("vm: page is read-only")
)

// Addr is a 32-bit virtual address.
type Addr uint32

const (
	// PageSize is the size of a page and of a frame.
	PageSize = 4096
	// PhysBase is the first kernel virtual address. Everything below it
	// belongs to the user program.
	PhysBase Addr = 0xC0000000
	// WordSize is the size of a machine word.
	WordSize = 4
)

// IsKernelAddress reports whether a lies at or above PhysBase.
func IsKernelAddress(a Addr) bool {
	return a >= PhysBase
}

// IsUserAddress reports whether a lies below PhysBase.
func IsUserAddress(a Addr) bool {
	return a < PhysBase
}

// PageRound rounds a down to the start of its page.
func PageRound(a Addr) Addr {
	return a &^ (PageSize - 1)
}

// PageOffset returns the offset of a within its page.
func PageOffset(a Addr) int {
	return int(a & (PageSize - 1))
}

// frame is the physical memory behind one user page.
type frame struct {
	data     [PageSize]byte
	writable bool
}

// PageDir is a per-process page directory.
type PageDir struct {
	mu    sync.RWMutex
	pages map[Addr]*frame
}

// NewPageDir creates an empty page directory.
func NewPageDir() *PageDir {
	return &PageDir{
		pages: make(map[Addr]*frame),
	}
}

// Map installs a zeroed frame at the user page upage.
func (pd *PageDir) Map(upage Addr, writable bool) error {
	if PageOffset(upage) != 0 {
		return fmt.Errorf("map %#x: %w", uint32(upage), ErrUnaligned)
	}
	if IsKernelAddress(upage) {
		return fmt.Errorf("map %#x: %w", uint32(upage), ErrKernelPage)
	}

	pd.mu.Lock()
	defer pd.mu.Unlock()

	if _, ok := pd.pages[upage]; ok {
		return fmt.Errorf("map %#x: %w", uint32(upage), ErrAlreadyMapped)
	}
	pd.pages[upage] = &frame{writable: writable}
	return nil
}

// MapRange maps every page overlapping [start, start+n).
func (pd *PageDir) MapRange(start Addr, n int, writable bool) error {
	end := uint64(start) + uint64(n)
	for page := uint64(PageRound(start)); page < end; page += PageSize {
		if err := pd.Map(Addr(page), writable); err != nil {
			return err
		}
	}
	return nil
}

// Unmap removes the mapping for upage, if any.
func (pd *PageDir) Unmap(upage Addr) {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	delete(pd.pages, PageRound(upage))
}

// Destroy releases every mapping.
func (pd *PageDir) Destroy() {
	pd.mu.Lock()
	defer pd.mu.Unlock()
	pd.pages = make(map[Addr]*frame)
}

// Mapped returns the number of mapped pages.
func (pd *PageDir) Mapped() int {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return len(pd.pages)
}

// Writable reports whether a is mapped writable.
func (pd *PageDir) Writable(a Addr) bool {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	f, ok := pd.pages[PageRound(a)]
	return ok && f.writable
}

// Translate returns the kernel view of a: the rest of its frame starting
// at a. It reports false for kernel addresses and unmapped pages.
func (pd *PageDir) Translate(a Addr) ([]byte, bool) {
	if IsKernelAddress(a) {
		return nil, false
	}

	pd.mu.RLock()
	f, ok := pd.pages[PageRound(a)]
	pd.mu.RUnlock()

	if !ok {
		return nil, false
	}
	return f.data[PageOffset(a):], true
}

// translateWrite is Translate for stores.
func (pd *PageDir) translateWrite(a Addr) ([]byte, error) {
	if IsKernelAddress(a) {
		return nil, fmt.Errorf("write %#x: %w", uint32(a), ErrUnmapped)
	}

	pd.mu.RLock()
	f, ok := pd.pages[PageRound(a)]
	pd.mu.RUnlock()

	switch {
	case !ok:
		return nil, fmt.Errorf("write %#x: %w", uint32(a), ErrUnmapped)
	case !f.writable:
		return nil, fmt.Errorf("write %#x: %w", uint32(a), ErrReadOnly)
	}
	return f.data[PageOffset(a):], nil
}

// LoadByte reads one byte at a.
func (pd *PageDir) LoadByte(a Addr) (byte, error) {
	b, ok := pd.Translate(a)
	if !ok {
		return 0, fmt.Errorf("read %#x: %w", uint32(a), ErrUnmapped)
	}
	return b[0], nil
}

// StoreByte stores one byte at a. Read-only pages fail with ErrReadOnly.
func (pd *PageDir) StoreByte(a Addr, c byte) error {
	b, err := pd.translateWrite(a)
	if err != nil {
		return err
	}
	b[0] = c
	return nil
}

// Read copies len(p) bytes starting at a into p, page by page.
func (pd *PageDir) Read(a Addr, p []byte) error {
	for len(p) > 0 {
		b, ok := pd.Translate(a)
		if !ok {
			return fmt.Errorf("read %#x: %w", uint32(a), ErrUnmapped)
		}
		n := copy(p, b)
		p = p[n:]
		a += Addr(n)
	}
	return nil
}

// Write copies p into user memory starting at a, page by page. Pages
// before the first unmapped or read-only one are written.
func (pd *PageDir) Write(a Addr, p []byte) error {
	for len(p) > 0 {
		b, err := pd.translateWrite(a)
		if err != nil {
			return err
		}
		n := copy(b, p)
		p = p[n:]
		a += Addr(n)
	}
	return nil
}

// ReadWord reads a little-endian machine word at a.
func (pd *PageDir) ReadWord(a Addr) (uint32, error) {
	var buf [WordSize]byte
	if err := pd.Read(a, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// WriteWord stores a little-endian machine word at a.
func (pd *PageDir) WriteWord(a Addr, w uint32) error {
	var buf [WordSize]byte
	binary.LittleEndian.PutUint32(buf[:], w)
	return pd.Write(a, buf[:])
}
