package fs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/device"
)

// newTestFS formats a fresh ramdisk. The file system must be fully closed
// by the end of the test.
func newTestFS(test *testing.T, sectors uint32) *FileSystem {
	fs, err := Format(device.NewRamDisk(sectors), 32)
	require.NoError(test, err)
	test.Cleanup(func() {
		require.NoError(test, fs.Unmount(), "file system left busy")
	})
	return fs
}
