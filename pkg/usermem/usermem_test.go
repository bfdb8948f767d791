package usermem

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kernos/pkg/vm"
)

// countingDir records every address translated.
type countingDir struct {
	*vm.PageDir
	seen []vm.Addr
}

func (c *countingDir) Translate(a vm.Addr) ([]byte, bool) {
	c.seen = append(c.seen, a)
	return c.PageDir.Translate(a)
}

func newDir(t *testing.T) *vm.PageDir {
	t.Helper()
	pd := vm.NewPageDir()
	require.NoError(t, pd.MapRange(0x1000, 2*vm.PageSize, true))
	return pd
}

func TestValidatePointer(t *testing.T) {
	pd := newDir(t)

	tests := []struct {
		name   string
		addr   vm.Addr
		reason string
	}{
		{"null", 0, ReasonNull},
		{"kernel", vm.PhysBase, ReasonKernel},
		{"kernel top", 0xFFFFFFFF, ReasonKernel},
		{"unmapped", 0x5000, ReasonUnmapped},
		{"mapped", 0x1000, ""},
		{"last mapped byte", 0x2fff, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePointer(pd, tt.addr)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsFault(err))

			var fe *FaultError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.addr, fe.Addr)
			assert.Equal(t, tt.reason, fe.Reason)
		})
	}
}

func TestValidateBuffer(t *testing.T) {
	pd := newDir(t)

	assert.NoError(t, ValidateBuffer(pd, 0x1000, 2*vm.PageSize))
	assert.NoError(t, ValidateBuffer(pd, 0x1ff0, 0x20))
	assert.NoError(t, ValidateBuffer(pd, 0x1000, 0))

	err := ValidateBuffer(pd, 0x2ff0, 0x20)
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, vm.Addr(0x3000), fe.Addr)

	assert.True(t, IsFault(ValidateBuffer(pd, 0, 0)))
	assert.True(t, IsFault(ValidateBuffer(pd, 0x1000, 0xFFFFFFFF)))
}

func TestValidateBufferChecksEachPageOnce(t *testing.T) {
	cd := &countingDir{PageDir: newDir(t)}

	require.NoError(t, ValidateBuffer(cd, 0x1800, vm.PageSize))
	assert.Equal(t, []vm.Addr{0x1800, 0x2000}, cd.seen)
}

func TestValidateString(t *testing.T) {
	pd := newDir(t)
	require.NoError(t, pd.Write(0x1000, []byte("hello\x00")))

	n, err := ValidateString(pd, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	s, err := CopyInString(pd, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)
}

func TestStringAcrossPages(t *testing.T) {
	pd := newDir(t)
	start := vm.Addr(0x2000 - 3)
	require.NoError(t, pd.Write(start, []byte("abcdef\x00")))

	s, err := CopyInString(pd, start)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", s)
}

func TestUnterminatedStringStopsAtFirstBadByte(t *testing.T) {
	pd := newDir(t)
	start := vm.Addr(0x3000 - 4)
	require.NoError(t, pd.Write(start, []byte("abcd")))

	_, err := ValidateString(pd, start)
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, vm.Addr(0x3000), fe.Addr)
	assert.Equal(t, ReasonUnmapped, fe.Reason)

	_, err = CopyInString(pd, 0)
	assert.True(t, IsFault(err))
}

func TestStringIntoKernelSpace(t *testing.T) {
	pd := vm.NewPageDir()
	top := vm.PhysBase - vm.PageSize
	require.NoError(t, pd.Map(top, true))
	for a := top; a < vm.PhysBase; a++ {
		require.NoError(t, pd.StoreByte(a, 'x'))
	}

	_, err := ValidateString(pd, top)
	var fe *FaultError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, ReasonKernel, fe.Reason)
}

func TestCopyInOut(t *testing.T) {
	pd := newDir(t)
	data := []byte("0123456789")

	require.NoError(t, CopyOut(pd, 0x1ffb, data))
	got, err := CopyIn(pd, 0x1ffb, uint32(len(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = CopyIn(pd, 0x2ffb, 10)
	assert.True(t, IsFault(err))

	err = CopyOut(pd, 0x2ffb, data)
	assert.True(t, IsFault(err))

	// Nothing is written when the range fails validation.
	b, err := pd.LoadByte(0x2ffb)
	require.NoError(t, err)
	assert.Zero(t, b)
}

func TestCopyOutIntoReadOnlyPage(t *testing.T) {
	pd := newDir(t)
	require.NoError(t, pd.Map(0x3000, false))

	// Reading a read-only page is fine.
	_, err := CopyIn(pd, 0x3000, 4)
	require.NoError(t, err)

	tests := []struct {
		name  string
		addr  vm.Addr
		n     int
		fault vm.Addr
	}{
		{"inside", 0x3010, 2, 0x3010},
		{"empty", 0x3000, 0, 0x3000},
		{"runs into it", 0x2ffe, 4, 0x3000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CopyOut(pd, tt.addr, make([]byte, tt.n))
			var fe *FaultError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.fault, fe.Addr)
			assert.Equal(t, ReasonReadOnly, fe.Reason)
		})
	}

	assert.NoError(t, ValidateWritable(pd, 0x1000, 2*vm.PageSize))
	assert.True(t, IsFault(ValidateWritable(pd, 0x5000, 1)))
}
