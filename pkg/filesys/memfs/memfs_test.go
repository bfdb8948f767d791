package memfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/filesys"
)

func TestCreate(t *testing.T) {
	fs := New()

	require.NoError(t, fs.Create("a", 10))
	assert.ErrorIs(t, fs.Create("a", 10), filesys.ErrExists)
	assert.ErrorIs(t, fs.Create("", 0), filesys.ErrInvalidName)
	assert.ErrorIs(t, fs.Create("a-very-long-file-name", 0), filesys.ErrInvalidName)
	assert.Error(t, fs.Create("neg", -1))

	assert.Equal(t, []string{"a"}, fs.Names())
	assert.Equal(t, int64(10), fs.Used())

	f, err := fs.Open("a")
	require.NoError(t, err)
	assert.Equal(t, int64(10), f.Length())
}

func TestCapacity(t *testing.T) {
	fs := NewWithCapacity(100)

	require.NoError(t, fs.Create("a", 60))
	assert.ErrorIs(t, fs.Create("b", 60), filesys.ErrNoSpace)
	require.NoError(t, fs.Create("c", 40))

	require.NoError(t, fs.Remove("a"))
	require.NoError(t, fs.Create("b", 60))
}

func TestCreateTooLarge(t *testing.T) {
	fs := New()

	assert.ErrorIs(t, fs.Create("big", filesys.MaxFileSize+1), filesys.ErrNoSpace)
	assert.ErrorIs(t, NewWithCapacity(1<<20).Create("big", 0xFFFFFFFF), filesys.ErrNoSpace)
	assert.Empty(t, fs.Names())
	assert.Zero(t, fs.Used())
}

func TestReadWriteFixedSize(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Create("f", 5))

	f, err := fs.Open("f")
	require.NoError(t, err)

	n, err := f.Write([]byte("hello, world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), f.Tell())

	n, err = f.Write([]byte("more"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(5), f.Length())

	f.Seek(1)
	buf := make([]byte, 10)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ello", string(buf[:n]))

	f.Seek(100)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, int64(100), f.Tell())

	f.Seek(-3)
	assert.Zero(t, f.Tell())
}

func TestHandlesHaveOwnPosition(t *testing.T) {
	fs := New()
	require.NoError(t, filesys.WriteFile(fs, "f", []byte("abcdef")))

	a, err := fs.Open("f")
	require.NoError(t, err)
	b, err := fs.Open("f")
	require.NoError(t, err)

	buf := make([]byte, 3)
	_, err = a.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), a.Tell())
	assert.Zero(t, b.Tell())

	_, err = b.Write([]byte("XY"))
	require.NoError(t, err)
	a.Seek(0)
	_, err = a.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "XYc", string(buf))
}

func TestRemoveWhileOpen(t *testing.T) {
	fs := New()
	require.NoError(t, filesys.WriteFile(fs, "f", []byte("data")))

	f, err := fs.Open("f")
	require.NoError(t, err)
	require.NoError(t, fs.Remove("f"))

	_, err = fs.Open("f")
	assert.ErrorIs(t, err, filesys.ErrNotFound)
	assert.ErrorIs(t, fs.Remove("f"), filesys.ErrNotFound)
	assert.Equal(t, int64(4), fs.Used())

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))

	require.NoError(t, f.Close())
	assert.Zero(t, fs.Used())

	require.NoError(t, fs.Create("f", 1))
}

func TestClose(t *testing.T) {
	fs := New()
	require.NoError(t, fs.Create("f", 1))

	f, err := fs.Open("f")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	_, err = f.Read(make([]byte, 1))
	assert.ErrorIs(t, err, filesys.ErrClosed)
	_, err = f.Write([]byte("x"))
	assert.ErrorIs(t, err, filesys.ErrClosed)
}
