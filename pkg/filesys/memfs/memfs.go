// Package memfs provides an in-memory filesystem. It is the default disk of
// a kernos machine and the backing store for most tests.
package memfs

import (
	"sync"
	"time"

	"kernos/pkg/filesys"
)

// inode holds the contents of one file. It outlives its directory entry
// while handles remain open.
type inode struct {
	mu      sync.RWMutex
	data    []byte
	openCnt int
	removed bool
	mtime   time.Time
}

// FS is an in-memory filesystem with a single flat directory.
type FS struct {
	mu       sync.Mutex
	entries  map[string]*inode
	capacity int64
	used     int64
}

// New creates an empty filesystem with no capacity limit. Single files are
// still bounded by filesys.MaxFileSize.
func New() *FS {
	return &FS{
		entries: make(map[string]*inode),
	}
}

// NewWithCapacity creates an empty filesystem that holds at most capacity
// bytes of file data.
func NewWithCapacity(capacity int64) *FS {
	fs := New()
	fs.capacity = capacity
	return fs
}

// Create implements filesys.FileSystem.Create.
func (fs *FS) Create(name string, initialSize int64) error {
	if err := filesys.ValidateName(name); err != nil {
		return err
	}
	if initialSize < 0 || initialSize > filesys.MaxFileSize {
		return filesys.ErrNoSpace
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, exists := fs.entries[name]; exists {
		return filesys.ErrExists
	}
	if fs.capacity > 0 && fs.used+initialSize > fs.capacity {
		return filesys.ErrNoSpace
	}

	fs.entries[name] = &inode{
		data:  make([]byte, initialSize),
		mtime: time.Now(),
	}
	fs.used += initialSize
	return nil
}

// Remove implements filesys.FileSystem.Remove.
func (fs *FS) Remove(name string) error {
	if err := filesys.ValidateName(name); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, ok := fs.entries[name]
	if !ok {
		return filesys.ErrNotFound
	}
	delete(fs.entries, name)

	node.mu.Lock()
	node.removed = true
	if node.openCnt == 0 {
		fs.used -= int64(len(node.data))
	}
	node.mu.Unlock()
	return nil
}

// Open implements filesys.FileSystem.Open.
func (fs *FS) Open(name string) (filesys.File, error) {
	if err := filesys.ValidateName(name); err != nil {
		return nil, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	node, ok := fs.entries[name]
	if !ok {
		return nil, filesys.ErrNotFound
	}

	node.mu.Lock()
	node.openCnt++
	node.mu.Unlock()

	return &file{fs: fs, node: node}, nil
}

// Names returns the names of all files.
func (fs *FS) Names() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	names := make([]string, 0, len(fs.entries))
	for name := range fs.entries {
		names = append(names, name)
	}
	return names
}

// Used returns the number of bytes held by live inodes.
func (fs *FS) Used() int64 {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.used
}

// release drops one open reference and frees removed inodes.
func (fs *FS) release(node *inode) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	node.mu.Lock()
	defer node.mu.Unlock()

	node.openCnt--
	if node.openCnt == 0 && node.removed {
		fs.used -= int64(len(node.data))
		node.data = nil
	}
}

// file is an open handle on an inode.
type file struct {
	fs     *FS
	node   *inode
	pos    int64
	closed bool
}

// Read implements filesys.File.Read.
func (f *file) Read(p []byte) (int, error) {
	if f.closed {
		return 0, filesys.ErrClosed
	}

	f.node.mu.RLock()
	defer f.node.mu.RUnlock()

	if f.pos >= int64(len(f.node.data)) {
		return 0, nil
	}
	n := copy(p, f.node.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write implements filesys.File.Write.
func (f *file) Write(p []byte) (int, error) {
	if f.closed {
		return 0, filesys.ErrClosed
	}

	f.node.mu.Lock()
	defer f.node.mu.Unlock()

	if f.pos >= int64(len(f.node.data)) {
		return 0, nil
	}
	n := copy(f.node.data[f.pos:], p)
	f.pos += int64(n)
	f.node.mtime = time.Now()
	return n, nil
}

// Seek implements filesys.File.Seek.
func (f *file) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}
	f.pos = pos
}

// Tell implements filesys.File.Tell.
func (f *file) Tell() int64 {
	return f.pos
}

// Length implements filesys.File.Length.
func (f *file) Length() int64 {
	f.node.mu.RLock()
	defer f.node.mu.RUnlock()
	return int64(len(f.node.data))
}

// Close implements filesys.File.Close.
func (f *file) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	f.fs.release(f.node)
	return nil
}
