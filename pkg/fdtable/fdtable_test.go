package fdtable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/filesys"
	"kernos/pkg/filesys/memfs"
)

// countingLock counts how often the filesystem lock is taken.
type countingLock struct {
	mu    sync.Mutex
	count int
}

func (l *countingLock) Lock() {
	l.mu.Lock()
	l.count++
}

func (l *countingLock) Unlock() {
	l.mu.Unlock()
}

func newTable(t *testing.T, limit int) (*Table, *memfs.FS, *countingLock) {
	t.Helper()
	fs := memfs.New()
	require.NoError(t, filesys.WriteFile(fs, "a", []byte("aaaa")))
	require.NoError(t, filesys.WriteFile(fs, "b", []byte("bb")))
	lock := &countingLock{}
	return New(fs, lock, limit), fs, lock
}

func TestReserved(t *testing.T) {
	assert.True(t, IsReserved(Stdin))
	assert.True(t, IsReserved(Stdout))
	assert.False(t, IsReserved(First))
	assert.False(t, IsReserved(-1))
}

func TestOpenStartsAtTwo(t *testing.T) {
	tbl, _, lock := newTable(t, 0)

	fd, err := tbl.Open("a")
	require.NoError(t, err)
	assert.Equal(t, First, fd)
	assert.Equal(t, 1, lock.count)

	fd, err = tbl.Open("a")
	require.NoError(t, err)
	assert.Equal(t, 3, fd)
	assert.Equal(t, []int{2, 3}, tbl.IDs())
}

func TestOpenMissing(t *testing.T) {
	tbl, _, _ := newTable(t, 0)

	fd, err := tbl.Open("missing")
	assert.Equal(t, -1, fd)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, filesys.ErrNotFound)
	assert.Zero(t, tbl.Len())

	fd, err = tbl.Open("a")
	require.NoError(t, err)
	assert.Equal(t, First, fd)
}

func TestDescriptorsAreNotReused(t *testing.T) {
	tbl, _, _ := newTable(t, 0)

	for i := 0; i < 3; i++ {
		_, err := tbl.Open("a")
		require.NoError(t, err)
	}
	assert.True(t, tbl.Close(3))
	assert.False(t, tbl.Close(3))

	fd, err := tbl.Open("b")
	require.NoError(t, err)
	assert.Equal(t, 5, fd)
	assert.Equal(t, []int{2, 4, 5}, tbl.IDs())

	_, ok := tbl.Lookup(3)
	assert.False(t, ok)

	h, ok := tbl.Lookup(5)
	require.True(t, ok)
	assert.Equal(t, "b", h.Name)
	assert.Equal(t, int64(2), h.File.Length())
}

func TestCloseUnknown(t *testing.T) {
	tbl, _, lock := newTable(t, 0)

	assert.False(t, tbl.Close(Stdin))
	assert.False(t, tbl.Close(Stdout))
	assert.False(t, tbl.Close(99))
	assert.Zero(t, lock.count)
}

func TestLimit(t *testing.T) {
	tbl, fs, _ := newTable(t, 2)

	_, err := tbl.Open("a")
	require.NoError(t, err)
	_, err = tbl.Open("b")
	require.NoError(t, err)

	fd, err := tbl.Open("a")
	assert.Equal(t, -1, fd)
	assert.ErrorIs(t, err, ErrTooManyOpen)
	assert.Equal(t, 2, tbl.Len())

	// The rejected handle was closed, so removing "a" frees its space
	// once the remaining handle goes too.
	require.NoError(t, fs.Remove("a"))
	tbl.CloseAll()
	assert.Equal(t, int64(2), fs.Used())
}

func TestCloseAll(t *testing.T) {
	tbl, fs, _ := newTable(t, 0)

	_, err := tbl.Open("a")
	require.NoError(t, err)
	_, err = tbl.Open("b")
	require.NoError(t, err)
	require.NoError(t, fs.Remove("a"))

	assert.Equal(t, 2, tbl.CloseAll())
	assert.Zero(t, tbl.Len())
	assert.Zero(t, tbl.CloseAll())
	assert.Equal(t, int64(2), fs.Used())
}
