package hostfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/filesys"
)

func newFS(t *testing.T) *FS {
	t.Helper()
	fs, err := New(filepath.Join(t.TempDir(), "disk"))
	require.NoError(t, err)
	return fs
}

func TestNewCreatesRoot(t *testing.T) {
	fs := newFS(t)
	info, err := os.Stat(fs.Root())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateOpen(t *testing.T) {
	fs := newFS(t)

	require.NoError(t, fs.Create("a", 8))
	assert.ErrorIs(t, fs.Create("a", 8), filesys.ErrExists)
	assert.ErrorIs(t, fs.Create("../escape", 1), filesys.ErrInvalidName)

	info, err := os.Stat(filepath.Join(fs.Root(), "a"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Size())

	f, err := fs.Open("a")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(8), f.Length())

	_, err = fs.Open("missing")
	assert.ErrorIs(t, err, filesys.ErrNotFound)
}

func TestReadWrite(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, fs.Create("f", 4))

	f, err := fs.Open("f")
	require.NoError(t, err)
	defer f.Close()

	n, err := f.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = f.Write([]byte("x"))
	require.NoError(t, err)
	assert.Zero(t, n)

	f.Seek(1)
	buf := make([]byte, 8)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(buf[:n]))

	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Zero(t, n)

	data, err := os.ReadFile(filepath.Join(fs.Root(), "f"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(data))
}

func TestRemove(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, filesys.WriteFile(fs, "f", []byte("data")))

	f, err := fs.Open("f")
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, fs.Remove("f"))
	assert.ErrorIs(t, fs.Remove("f"), filesys.ErrNotFound)

	buf := make([]byte, 4)
	n, err := f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf[:n]))
}

func TestDirectoryIsNotAFile(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.Root(), "dir"), 0o755))

	_, err := fs.Open("dir")
	assert.ErrorIs(t, err, filesys.ErrNotFound)
}

func TestDirectoryInRoot(t *testing.T) {
	fs := newFS(t)
	require.NoError(t, os.Mkdir(filepath.Join(fs.Root(), "dir"), 0o755))

	assert.ErrorIs(t, fs.Create("dir", 1), filesys.ErrExists)

	used, err := fs.Used()
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestCapacity(t *testing.T) {
	fs, err := NewWithCapacity(filepath.Join(t.TempDir(), "disk"), 100)
	require.NoError(t, err)

	require.NoError(t, fs.Create("a", 60))
	assert.ErrorIs(t, fs.Create("b", 60), filesys.ErrNoSpace)
	require.NoError(t, fs.Create("c", 40))

	used, err := fs.Used()
	require.NoError(t, err)
	assert.Equal(t, int64(100), used)

	require.NoError(t, fs.Remove("a"))
	require.NoError(t, fs.Create("b", 60))
}

func TestCreateTooLarge(t *testing.T) {
	fs := newFS(t)

	assert.ErrorIs(t, fs.Create("big", filesys.MaxFileSize+1), filesys.ErrNoSpace)
	_, err := os.Stat(filepath.Join(fs.Root(), "big"))
	assert.True(t, os.IsNotExist(err))
}
