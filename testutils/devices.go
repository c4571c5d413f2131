package testutils

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/device"
)

// NewTestDevice returns a ramdisk with the given number of sectors. Each
// sector is filled with the low byte of its sector number, so every byte in
// the first sector is 0, the next sector is all 1, etc.
func NewTestDevice(test *testing.T, sectors uint32) *device.RamDisk {
	dev := device.NewRamDisk(sectors)
	buf := make([]byte, common.SectorSize)
	for i := uint32(0); i < sectors; i++ {
		for j := range buf {
			buf[j] = byte(i)
		}
		require.NoError(test, dev.WriteSector(i, buf))
	}
	return dev
}

// CountingDevice wraps a block device and counts the sector transfers that
// reach it.
type CountingDevice struct {
	common.BlockDevice
	Reads  int
	Writes int
}

func NewCountingDevice(dev common.BlockDevice) *CountingDevice {
	return &CountingDevice{BlockDevice: dev}
}

func (dev *CountingDevice) ReadSector(sector uint32, buf []byte) error {
	dev.Reads++
	return dev.BlockDevice.ReadSector(sector, buf)
}

func (dev *CountingDevice) WriteSector(sector uint32, buf []byte) error {
	dev.Writes++
	return dev.BlockDevice.WriteSector(sector, buf)
}
