// Package filesys defines the filesystem the system-call layer runs on.
//
// The namespace is flat and every file has a fixed size chosen at creation:
// writes stop at end of file instead of growing it. Removing a file unlinks
// its name, but handles that are already open keep working until closed.
// Implementations live in the memfs and hostfs subpackages.
//
// Implementations are not required to be safe for concurrent use. Callers
// serialize every call through one shared lock.
package filesys

import (
	"errors"
	"fmt"
	"math"
)

// Filesystem errors.
var (
	ErrNotFound    = errors.New("filesys: file not found")
	ErrExists      = errors.New("filesys: file already exists")
	ErrInvalidName = errors.New("filesys: invalid file name")
	ErrClosed      = errors.New("filesys: file is closed")
	ErrNoSpace     = errors.New("filesys: no space left")
	ErrTooLarge    = errors.New("filesys: file too large")
)

// NameMax is the longest allowed file name.
const NameMax = 14

// MaxFileSize is the largest file a 32-bit offset can address.
const MaxFileSize int64 = math.MaxInt32

// FileSystem creates, removes and opens files by name.
type FileSystem interface {
	// Create makes a new file of initialSize zero bytes.
	Create(name string, initialSize int64) error
	// Remove unlinks name. Open handles stay usable.
	Remove(name string) error
	// Open returns a new handle positioned at offset 0.
	Open(name string) (File, error)
}

// File is one open handle. Each handle has its own position.
type File interface {
	// Read reads from the current position and advances it. At or past end
	// of file it returns 0 and no error.
	Read(p []byte) (int, error)
	// Write writes at the current position, stopping at end of file.
	Write(p []byte) (int, error)
	// Seek sets the position. Positions past end of file are allowed.
	Seek(pos int64)
	// Tell returns the position.
	Tell() int64
	// Length returns the file size in bytes.
	Length() int64
	// Close releases the handle.
	Close() error
}

// ValidateName checks a file name against the naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidName)
	}
	if len(name) > NameMax {
		return fmt.Errorf("%w: %q is longer than %d bytes", ErrInvalidName, name, NameMax)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == 0 {
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}

// WriteFile creates name with the size of data and fills it.
func WriteFile(fs FileSystem, name string, data []byte) error {
	if err := fs.Create(name, int64(len(data))); err != nil {
		return err
	}
	f, err := fs.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the whole contents of name.
func ReadFile(fs FileSystem, name string) ([]byte, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, f.Length())
	n, err := f.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return buf[:n], nil
}
