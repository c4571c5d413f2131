package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapping(test *testing.T) {
	as := NewAddressSpace()
	require.NoError(test, as.Map(0x8000, PageSize+1))
	assert.Equal(test, 2, as.Pages())

	assert.True(test, as.IsMapped(0x8000))
	assert.True(test, as.IsMapped(0x8000+PageSize))
	assert.True(test, as.IsMapped(0x8000+2*PageSize-1))
	assert.False(test, as.IsMapped(0x8000+2*PageSize))
	assert.False(test, as.IsMapped(0x7fff))

	as.Unmap(0x8000+PageSize, 1)
	assert.False(test, as.IsMapped(0x8000+PageSize))
	assert.Equal(test, 1, as.Pages())
}

func TestInvalidAddresses(test *testing.T) {
	as := NewAddressSpace()
	require.NoError(test, as.Map(0, PageSize))
	assert.False(test, as.IsMapped(0), "null is never valid")
	assert.True(test, as.IsMapped(1))

	assert.ErrorIs(test, as.Map(PhysBase-PageSize, PageSize+1), ErrFault)
	require.NoError(test, as.Map(PhysBase-PageSize, PageSize))
	assert.True(test, as.IsMapped(PhysBase-1))
	assert.False(test, as.IsMapped(PhysBase))
}

func TestCopyAcrossPages(test *testing.T) {
	as := NewAddressSpace()
	require.NoError(test, as.Map(0x10000, 2*PageSize))

	addr := Addr(0x10000 + PageSize - 3)
	require.NoError(test, as.CopyOut(addr, []byte("abcdef")))
	buf, err := as.CopyIn(addr, 6)
	require.NoError(test, err)
	assert.Equal(test, []byte("abcdef"), buf)

	require.NoError(test, as.WriteWord(addr, 0xdeadbeef))
	word, err := as.ReadWord(addr)
	require.NoError(test, err)
	assert.Equal(test, uint32(0xdeadbeef), word)

	_, err = as.CopyIn(0x10000+2*PageSize-2, 4)
	assert.ErrorIs(test, err, ErrFault)
	assert.ErrorIs(test, as.CopyOut(0x20000, []byte("x")), ErrFault)
}

func TestCopyInString(test *testing.T) {
	as := NewAddressSpace()
	require.NoError(test, as.Map(0x4000, PageSize))

	require.NoError(test, as.CopyOut(0x4010, []byte("/a/b\x00")))
	s, err := as.CopyInString(0x4010)
	require.NoError(test, err)
	assert.Equal(test, "/a/b", s)

	// Runs off the end of the mapping before finding a terminator
	end := Addr(0x4000 + PageSize - 3)
	require.NoError(test, as.CopyOut(end, []byte("abc")))
	_, err = as.CopyInString(end)
	assert.ErrorIs(test, err, ErrFault)
}

func TestCheckRange(test *testing.T) {
	as := NewAddressSpace()
	require.NoError(test, as.Map(0x10000, 3*PageSize))

	assert.NoError(test, as.CheckRange(0x10000, 3*PageSize))
	assert.NoError(test, as.CheckRange(0x10000+PageSize-1, 2))
	assert.NoError(test, as.CheckRange(0, 0))
	assert.ErrorIs(test, as.CheckRange(0x10000, 3*PageSize+1), ErrFault)
	assert.ErrorIs(test, as.CheckRange(0x10000-1, 2), ErrFault)
	assert.ErrorIs(test, as.CheckRange(PhysBase-1, 2), ErrFault)

	// A hole in the middle is caught even though both ends are mapped
	as.Unmap(0x10000+PageSize, 1)
	assert.ErrorIs(test, as.CheckRange(0x10000, 3*PageSize), ErrFault)

	buf := make([]byte, 8)
	assert.NoError(test, as.ReadAt(0x10000+2*PageSize, buf))
	assert.ErrorIs(test, as.ReadAt(0x10000+PageSize-4, buf), ErrFault)
}
