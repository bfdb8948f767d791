// Package fdtable implements the per-process file descriptor table.
//
// Descriptors 0 and 1 are reserved for the keyboard and the console and
// never appear in a table. Every successful Open gets the next value of a
// counter that starts at 2 and is never rewound, so a closed descriptor is
// not handed out again while the table lives.
//
// A table belongs to one process and is only touched by that process's
// thread, so it has no lock of its own. The lock it is constructed with is
// the global filesystem lock and is held only around filesystem calls.
package fdtable

import (
	"errors"
	"fmt"
	"sync"

	"kernos/pkg/filesys"
)

// Reserved descriptors.
const (
	// Stdin reads from the keyboard.
	Stdin = 0
	// Stdout writes to the console.
	Stdout = 1
	// First is the first descriptor handed out by Open.
	First = 2
)

// Table errors.
var (
	ErrNotFound    = errors.New("fdtable: file not found")
	ErrTooManyOpen = errors.New("fdtable: too many open files")
)

// IsReserved reports whether id is one of the console descriptors.
func IsReserved(id int) bool {
	return id == Stdin || id == Stdout
}

// Handle is one open file.
type Handle struct {
	// ID is the descriptor the process uses.
	ID int
	// Name is the name the file was opened with.
	Name string
	// File is the underlying handle. The Handle owns it.
	File filesys.File
}

// Table maps descriptors to open files for one process.
type Table struct {
	fs      filesys.FileSystem
	lock    sync.Locker
	handles []*Handle
	next    int
	limit   int
}

// New creates an empty table. limit caps the number of open files; zero
// means no cap.
func New(fs filesys.FileSystem, lock sync.Locker, limit int) *Table {
	return &Table{
		fs:      fs,
		lock:    lock,
		handles: make([]*Handle, 0),
		next:    First,
		limit:   limit,
	}
}

// Open opens name and returns its new descriptor. On failure it returns -1
// and no entry is created.
func (t *Table) Open(name string) (int, error) {
	t.lock.Lock()
	f, err := t.fs.Open(name)
	t.lock.Unlock()

	if err != nil {
		return -1, fmt.Errorf("%w: %s: %w", ErrNotFound, name, err)
	}

	if t.limit > 0 && len(t.handles) >= t.limit {
		t.lock.Lock()
		f.Close()
		t.lock.Unlock()
		return -1, ErrTooManyOpen
	}

	h := &Handle{
		ID:   t.next,
		Name: name,
		File: f,
	}
	t.next++
	t.handles = append(t.handles, h)
	return h.ID, nil
}

// Lookup returns the handle for id. Absence is not an error by itself;
// callers decide what an unknown descriptor means.
func (t *Table) Lookup(id int) (*Handle, bool) {
	for _, h := range t.handles {
		if h.ID == id {
			return h, true
		}
	}
	return nil, false
}

// Close closes id and removes it. Closing an unknown descriptor does
// nothing and reports false.
func (t *Table) Close(id int) bool {
	for i, h := range t.handles {
		if h.ID != id {
			continue
		}

		t.lock.Lock()
		h.File.Close()
		t.lock.Unlock()

		t.handles = append(t.handles[:i], t.handles[i+1:]...)
		return true
	}
	return false
}

// CloseAll closes every open file and returns how many were closed.
func (t *Table) CloseAll() int {
	n := len(t.handles)
	for _, h := range t.handles {
		t.lock.Lock()
		h.File.Close()
		t.lock.Unlock()
	}
	t.handles = t.handles[:0]
	return n
}

// Len returns the number of open files.
func (t *Table) Len() int {
	return len(t.handles)
}

// IDs returns the open descriptors in table order.
func (t *Table) IDs() []int {
	ids := make([]int, len(t.handles))
	for i, h := range t.handles {
		ids[i] = h.ID
	}
	return ids
}
