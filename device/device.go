package device

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jnwhiteh/sectorfs/common"
)

var (
	ErrOutOfRange = errors.New("sector out of range")
	ErrShortBuf   = errors.New("buffer is not one sector long")
	ErrClosed     = errors.New("device is closed")
)

func checkIO(sector, sectors uint32, buf []byte) error {
	if len(buf) != common.SectorSize {
		return ErrShortBuf
	}
	if sector >= sectors {
		return fmt.Errorf("sector %d of %d: %w", sector, sectors, ErrOutOfRange)
	}
	return nil
}

// RamDisk is a block device held entirely in memory.
type RamDisk struct {
	data    []byte
	sectors uint32
	m       sync.RWMutex
}

// NewRamDisk creates a zero-filled device with the given number of sectors.
func NewRamDisk(sectors uint32) *RamDisk {
	return &RamDisk{
		data:    make([]byte, int(sectors)*common.SectorSize),
		sectors: sectors,
	}
}

func (r *RamDisk) ReadSector(sector uint32, buf []byte) error {
	r.m.RLock()
	defer r.m.RUnlock()

	if r.data == nil {
		return ErrClosed
	}
	if err := checkIO(sector, r.sectors, buf); err != nil {
		return err
	}
	off := int(sector) * common.SectorSize
	copy(buf, r.data[off:off+common.SectorSize])
	return nil
}

func (r *RamDisk) WriteSector(sector uint32, buf []byte) error {
	r.m.Lock()
	defer r.m.Unlock()

	if r.data == nil {
		return ErrClosed
	}
	if err := checkIO(sector, r.sectors, buf); err != nil {
		return err
	}
	off := int(sector) * common.SectorSize
	copy(r.data[off:off+common.SectorSize], buf)
	return nil
}

func (r *RamDisk) Sectors() uint32 {
	return r.sectors
}

func (r *RamDisk) Close() error {
	r.m.Lock()
	defer r.m.Unlock()

	r.data = nil
	return nil
}

var _ common.BlockDevice = &RamDisk{}
