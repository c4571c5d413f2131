package file

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/bcache"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/freemap"
	"github.com/jnwhiteh/sectorfs/inode"
)

func openTestFile(test *testing.T) (*inode.Table, *File) {
	fm := freemap.New(256)
	t := inode.NewTable(bcache.NewCache(device.NewRamDisk(256), 16), fm)
	sector, err := fm.Allocate(1)
	require.NoError(test, err)
	require.NoError(test, t.Create(sector, 0, false))
	rip, err := t.Open(sector)
	require.NoError(test, err)
	return t, Open(rip)
}

func TestCursor(test *testing.T) {
	_, fi := openTestFile(test)
	defer fi.Close()

	n, err := fi.Write([]byte("hello, "))
	require.NoError(test, err)
	assert.Equal(test, 7, n)
	_, err = fi.Write([]byte("world"))
	require.NoError(test, err)

	pos, _ := fi.Tell()
	assert.Equal(test, int64(12), pos)

	require.NoError(test, fi.Seek(7))
	buf := make([]byte, 20)
	n, err = fi.Read(buf)
	require.NoError(test, err)
	assert.Equal(test, "world", string(buf[:n]))

	// At EOF a read returns nothing
	n, err = fi.Read(buf)
	require.NoError(test, err)
	assert.Equal(test, 0, n)
}

func TestIndependentCursors(test *testing.T) {
	_, fi := openTestFile(test)
	defer fi.Close()
	other := fi.Reopen()
	defer other.Close()

	_, err := fi.Write([]byte("abcdef"))
	require.NoError(test, err)

	buf := make([]byte, 3)
	_, err = other.Read(buf)
	require.NoError(test, err)
	assert.Equal(test, "abc", string(buf))

	pos, _ := fi.Tell()
	assert.Equal(test, int64(6), pos)
	pos, _ = other.Tell()
	assert.Equal(test, int64(3), pos)
}

func TestSeekPastEnd(test *testing.T) {
	_, fi := openTestFile(test)
	defer fi.Close()

	require.NoError(test, fi.Seek(3*common.SectorSize+5))
	_, err := fi.Write([]byte("x"))
	require.NoError(test, err)

	length, _ := fi.Length()
	assert.Equal(test, int64(3*common.SectorSize+6), length)

	assert.ErrorIs(test, fi.Seek(-1), common.ErrInvalid)
}

func TestDenyWriteUntilClose(test *testing.T) {
	t, fi := openTestFile(test)
	writer := fi.Reopen()
	defer writer.Close()

	fi.DenyWrite()
	fi.DenyWrite()
	n, err := writer.Write([]byte("x"))
	assert.Equal(test, 0, n)
	assert.ErrorIs(test, err, common.ErrWriteDenied)

	require.NoError(test, fi.Close())
	n, err = writer.Write([]byte("x"))
	require.NoError(test, err)
	assert.Equal(test, 1, n)
	assert.Equal(test, 1, t.NumOpen())
}

func TestClosedFile(test *testing.T) {
	_, fi := openTestFile(test)
	require.NoError(test, fi.Close())

	_, err := fi.Read(make([]byte, 1))
	assert.ErrorIs(test, err, common.ErrBadFD)
	_, err = fi.Write([]byte("x"))
	assert.ErrorIs(test, err, common.ErrBadFD)
	assert.ErrorIs(test, fi.Seek(0), common.ErrBadFD)
	assert.ErrorIs(test, fi.Close(), common.ErrBadFD)
}
