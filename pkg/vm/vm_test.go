package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressSplit(t *testing.T) {
	assert.True(t, IsUserAddress(0))
	assert.True(t, IsUserAddress(PhysBase-1))
	assert.False(t, IsUserAddress(PhysBase))
	assert.True(t, IsKernelAddress(PhysBase))
	assert.True(t, IsKernelAddress(0xFFFFFFFF))
}

func TestPageRound(t *testing.T) {
	assert.Equal(t, Addr(0x1000), PageRound(0x1fff))
	assert.Equal(t, Addr(0x2000), PageRound(0x2000))
	assert.Equal(t, 0xfff, PageOffset(0x1fff))
	assert.Equal(t, 0, PageOffset(0x2000))
}

func TestMap(t *testing.T) {
	pd := NewPageDir()

	require.NoError(t, pd.Map(0x1000, true))
	assert.Equal(t, 1, pd.Mapped())
	assert.True(t, pd.Writable(0x1abc))

	assert.ErrorIs(t, pd.Map(0x1000, true), ErrAlreadyMapped)
	assert.ErrorIs(t, pd.Map(0x1001, true), ErrUnaligned)
	assert.ErrorIs(t, pd.Map(PhysBase, true), ErrKernelPage)

	require.NoError(t, pd.Map(0x3000, false))
	assert.False(t, pd.Writable(0x3000))
	assert.False(t, pd.Writable(0x5000))
}

func TestMapRange(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.MapRange(0x1ff0, 0x20, true))
	assert.Equal(t, 2, pd.Mapped())

	_, ok := pd.Translate(0x1000)
	assert.True(t, ok)
	_, ok = pd.Translate(0x2fff)
	assert.True(t, ok)
	_, ok = pd.Translate(0x3000)
	assert.False(t, ok)
}

func TestTranslate(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.Map(0x1000, true))

	b, ok := pd.Translate(0x1ff0)
	require.True(t, ok)
	assert.Len(t, b, 0x10)

	_, ok = pd.Translate(0)
	assert.False(t, ok)
	_, ok = pd.Translate(PhysBase)
	assert.False(t, ok)
}

func TestReadWriteAcrossPages(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.MapRange(0x1000, 2*PageSize, true))

	data := []byte("straddles the boundary")
	start := Addr(0x2000 - 8)
	require.NoError(t, pd.Write(start, data))

	got := make([]byte, len(data))
	require.NoError(t, pd.Read(start, got))
	assert.Equal(t, data, got)

	assert.ErrorIs(t, pd.Write(0x3000-4, data), ErrUnmapped)
	assert.ErrorIs(t, pd.Read(0x5000, got), ErrUnmapped)
}

func TestWords(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.MapRange(0x1000, 2*PageSize, true))

	require.NoError(t, pd.WriteWord(0x1ffe, 0xdeadbeef))
	w, err := pd.ReadWord(0x1ffe)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), w)

	c, err := pd.LoadByte(0x1ffe)
	require.NoError(t, err)
	assert.Equal(t, byte(0xef), c)

	require.NoError(t, pd.StoreByte(0x1000, 7))
	c, err = pd.LoadByte(0x1000)
	require.NoError(t, err)
	assert.Equal(t, byte(7), c)

	_, err = pd.ReadWord(0x2ffe + PageSize)
	assert.ErrorIs(t, err, ErrUnmapped)
	assert.ErrorIs(t, pd.StoreByte(0, 1), ErrUnmapped)
}

func TestReadOnlyPages(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.Map(0x1000, false))
	require.NoError(t, pd.Map(0x2000, true))

	c, err := pd.LoadByte(0x1000)
	require.NoError(t, err)
	assert.Zero(t, c)

	assert.ErrorIs(t, pd.StoreByte(0x1000, 'z'), ErrReadOnly)
	assert.ErrorIs(t, pd.WriteWord(0x1ffc, 1), ErrReadOnly)
	assert.ErrorIs(t, pd.StoreByte(PhysBase, 1), ErrUnmapped)

	// A write that starts writable and runs into the read-only page stops there.
	require.NoError(t, pd.Map(0x3000, false))
	assert.ErrorIs(t, pd.Write(0x2ffe, []byte("abcd")), ErrReadOnly)

	buf := make([]byte, 2)
	require.NoError(t, pd.Read(0x1000, buf))
	assert.Equal(t, []byte{0, 0}, buf)
}

func TestUnmapAndDestroy(t *testing.T) {
	pd := NewPageDir()
	require.NoError(t, pd.MapRange(0x1000, 3*PageSize, true))

	pd.Unmap(0x2abc)
	assert.Equal(t, 2, pd.Mapped())
	_, ok := pd.Translate(0x2000)
	assert.False(t, ok)

	pd.Destroy()
	assert.Zero(t, pd.Mapped())
}
