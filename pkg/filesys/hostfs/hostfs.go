// Package hostfs provides a filesystem backed by a directory on the host.
// Each kernel file is one regular host file directly under the root.
package hostfs

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"kernos/pkg/filesys"
)

// FS is a disk-based filesystem rooted at a host directory.
type FS struct {
	root     string
	capacity int64
}

// New creates a filesystem rooted at root. The directory is created if it
// does not exist.
func New(root string) (*FS, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FS{root: root}, nil
}

// NewWithCapacity is New with a bound on the total size of the regular
// files under root.
func NewWithCapacity(root string, capacity int64) (*FS, error) {
	h, err := New(root)
	if err != nil {
		return nil, err
	}
	h.capacity = capacity
	return h, nil
}

// Root returns the host directory.
func (h *FS) Root() string {
	return h.root
}

func (h *FS) fullPath(name string) string {
	return filepath.Join(h.root, name)
}

// Create implements filesys.FileSystem.Create.
func (h *FS) Create(name string, initialSize int64) error {
	if err := filesys.ValidateName(name); err != nil {
		return err
	}
	if initialSize < 0 || initialSize > filesys.MaxFileSize {
		return filesys.ErrNoSpace
	}
	if h.capacity > 0 {
		used, err := h.Used()
		if err != nil {
			return err
		}
		if used+initialSize > h.capacity {
			return filesys.ErrNoSpace
		}
	}

	f, err := os.OpenFile(h.fullPath(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return mapError(err)
	}
	defer f.Close()

	if err := f.Truncate(initialSize); err != nil {
		os.Remove(f.Name())
		return err
	}
	return nil
}

// Remove implements filesys.FileSystem.Remove.
func (h *FS) Remove(name string) error {
	if err := filesys.ValidateName(name); err != nil {
		return err
	}
	return mapError(os.Remove(h.fullPath(name)))
}

// Open implements filesys.FileSystem.Open.
func (h *FS) Open(name string) (filesys.File, error) {
	if err := filesys.ValidateName(name); err != nil {
		return nil, err
	}

	path := h.fullPath(name)
	info, err := os.Lstat(path)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.Mode().IsRegular() {
		return nil, filesys.ErrNotFound
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, mapError(err)
	}

	// The file may have been replaced between Lstat and OpenFile.
	info, err = f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	switch {
	case !info.Mode().IsRegular():
		f.Close()
		return nil, filesys.ErrNotFound
	case info.Size() > filesys.MaxFileSize:
		f.Close()
		return nil, filesys.ErrTooLarge
	}

	return &diskFile{file: f, size: info.Size()}, nil
}

// Used returns the total size of the regular files under the root.
func (h *FS) Used() (int64, error) {
	entries, err := os.ReadDir(h.root)
	if err != nil {
		return 0, err
	}

	var used int64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		used += info.Size()
	}
	return used, nil
}

// mapError translates host errors into filesys errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return filesys.ErrNotFound
	case errors.Is(err, fs.ErrExist):
		return filesys.ErrExists
	default:
		return err
	}
}

// diskFile wraps an *os.File. The size is fixed when the file is opened
// since files never grow.
type diskFile struct {
	file   *os.File
	size   int64
	pos    int64
	closed bool
}

// Read implements filesys.File.Read.
func (f *diskFile) Read(p []byte) (int, error) {
	if f.closed {
		return 0, filesys.ErrClosed
	}
	if f.pos >= f.size {
		return 0, nil
	}
	if rest := f.size - f.pos; int64(len(p)) > rest {
		p = p[:rest]
	}

	n, err := f.file.ReadAt(p, f.pos)
	f.pos += int64(n)
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Write implements filesys.File.Write.
func (f *diskFile) Write(p []byte) (int, error) {
	if f.closed {
		return 0, filesys.ErrClosed
	}
	if f.pos >= f.size {
		return 0, nil
	}
	if rest := f.size - f.pos; int64(len(p)) > rest {
		p = p[:rest]
	}

	n, err := f.file.WriteAt(p, f.pos)
	f.pos += int64(n)
	return n, err
}

// Seek implements filesys.File.Seek.
func (f *diskFile) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	f.pos = pos
}

// Tell implements filesys.File.Tell.
func (f *diskFile) Tell() int64 {
	return f.pos
}

// Length implements filesys.File.Length.
func (f *diskFile) Length() int64 {
	return f.size
}

// Close implements filesys.File.Close.
func (f *diskFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}
