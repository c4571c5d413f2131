package device

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/jnwhiteh/sectorfs/common"
)

// ErrLocked is returned when another process already holds the image.
var ErrLocked = errors.New("disk image is locked by another process")

// FileDevice is a block device backed by a disk image on the host. The image
// is locked for the lifetime of the device so two tools never mount it at
// the same time.
type FileDevice struct {
	file     *os.File
	filename string
	lock     *flock.Flock
	sectors  uint32
	m        sync.Mutex
}

// CreateFileDevice creates (or truncates) an image of the given size.
func CreateFileDevice(filename string, sectors uint32) (*FileDevice, error) {
	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	if err := file.Truncate(int64(sectors) * common.SectorSize); err != nil {
		file.Close()
		return nil, fmt.Errorf("sizing %s: %w", filename, err)
	}
	return lockFileDevice(file, filename, sectors)
}

// OpenFileDevice opens an existing image. Its size must be a whole number of
// sectors.
func OpenFileDevice(filename string) (*FileDevice, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.Size()%common.SectorSize != 0 {
		file.Close()
		return nil, fmt.Errorf("%s: size %d is not a multiple of %d", filename, info.Size(), common.SectorSize)
	}
	return lockFileDevice(file, filename, uint32(info.Size()/common.SectorSize))
}

func lockFileDevice(file *os.File, filename string, sectors uint32) (*FileDevice, error) {
	lock := flock.New(filename)
	ok, err := lock.TryLock()
	if err != nil {
		file.Close()
		return nil, err
	}
	if !ok {
		file.Close()
		return nil, fmt.Errorf("%s: %w", filename, ErrLocked)
	}

	return &FileDevice{
		file:     file,
		filename: filename,
		lock:     lock,
		sectors:  sectors,
	}, nil
}

func (dev *FileDevice) ReadSector(sector uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.file == nil {
		return ErrClosed
	}
	if err := checkIO(sector, dev.sectors, buf); err != nil {
		return err
	}
	_, err := dev.file.ReadAt(buf, int64(sector)*common.SectorSize)
	return err
}

func (dev *FileDevice) WriteSector(sector uint32, buf []byte) error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.file == nil {
		return ErrClosed
	}
	if err := checkIO(sector, dev.sectors, buf); err != nil {
		return err
	}
	_, err := dev.file.WriteAt(buf, int64(sector)*common.SectorSize)
	return err
}

func (dev *FileDevice) Sectors() uint32 {
	return dev.sectors
}

// Sync forces written sectors to stable storage on the host.
func (dev *FileDevice) Sync() error {
	dev.m.Lock()
	defer dev.m.Unlock()

	if dev.file == nil {
		return ErrClosed
	}
	return unix.Fsync(int(dev.file.Fd()))
}

func (dev *FileDevice) Close() error {
	if err := dev.Sync(); err != nil {
		return err
	}

	dev.m.Lock()
	defer dev.m.Unlock()

	err := dev.file.Close()
	dev.file = nil
	if uerr := dev.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

var _ common.BlockDevice = &FileDevice{}
