package debug

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/common"
)

func TestParseLevel(test *testing.T) {
	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(test, err, in)
		assert.Equal(test, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(test, err)
}

func TestDumpInode(test *testing.T) {
	var rip common.DiskInode
	rip.Magic = common.InodeMagic
	rip.Length = 1000
	rip.IsDir = 1
	rip.Direct[0] = 7
	rip.Direct[1] = 8

	buf := bytes.NewBuffer(nil)
	require.NoError(test, DumpSector(buf, 3, common.Encode(&rip)))
	out := buf.String()
	assert.Contains(test, out, "INODE #")
	assert.Contains(test, out, "dir")
	assert.Contains(test, out, "1000")
	assert.Contains(test, out, "Direct: [7 8]")
}

func TestDumpDirectory(test *testing.T) {
	data := make([]byte, common.SectorSize)
	var e common.DirEntry
	e.Sector = 12
	e.InUse = 1
	e.SetName("notes")
	copy(data[2*common.DirEntrySize:], common.Encode(&e))

	buf := bytes.NewBuffer(nil)
	require.NoError(test, DumpSector(buf, 9, data))
	out := buf.String()
	assert.Contains(test, out, "Sector 9 as directory entries")
	assert.Contains(test, out, `Entry    2: "notes"`)
	assert.Contains(test, out, "at inode       12")
	assert.Equal(test, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestDumpShortSector(test *testing.T) {
	err := DumpSector(bytes.NewBuffer(nil), 0, make([]byte, 10))
	assert.ErrorIs(test, err, common.ErrInvalid)
}
