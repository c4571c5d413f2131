package fs

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/jnwhiteh/sectorfs/bcache"
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/freemap"
	"github.com/jnwhiteh/sectorfs/inode"
)

// MinSectors is the smallest device Format accepts.
const MinSectors = 8

// FileSystem is a mounted file system. Every exported method takes the file
// system lock for its whole duration, so operations from different
// processes never interleave.
type FileSystem struct {
	dev    common.BlockDevice
	bcache *bcache.Cache    // write-through cache in front of dev
	fm     *freemap.FreeMap // free sector map, kept open while mounted
	itable *inode.Table     // the shared open inode table
	m      sync.Mutex       // the file system lock
}

func newFileSystem(dev common.BlockDevice, cacheSectors int) *FileSystem {
	if cacheSectors <= 0 {
		cacheSectors = common.DefaultCacheSectors
	}
	fs := &FileSystem{
		dev:    dev,
		bcache: bcache.NewCache(dev, cacheSectors),
		fm:     freemap.New(dev.Sectors()),
	}
	fs.itable = inode.NewTable(fs.bcache, fs.fm)
	return fs
}

// Format writes an empty file system to dev and returns it mounted. The
// free map file goes at common.FreeMapSector and the root directory at
// common.RootDirSector.
func Format(dev common.BlockDevice, cacheSectors int) (*FileSystem, error) {
	if dev.Sectors() < MinSectors {
		return nil, fmt.Errorf("device has %d sectors, need at least %d: %w", dev.Sectors(), MinSectors, common.ErrInvalid)
	}

	fs := newFileSystem(dev, cacheSectors)
	slog.Info("formatting file system", "sectors", dev.Sectors())

	if err := fs.fm.Create(fs.itable); err != nil {
		return nil, err
	}
	if err := dir.Create(fs.itable, common.RootDirSector, common.RootDirEntries, common.RootDirSector); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	if err := fs.fm.Flush(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Mount loads the file system stored on dev.
func Mount(dev common.BlockDevice, cacheSectors int) (*FileSystem, error) {
	fs := newFileSystem(dev, cacheSectors)

	if err := fs.fm.Open(fs.itable); err != nil {
		return nil, err
	}

	// Make sure the root directory is sane before handing out the mount
	root, err := dir.OpenRoot(fs.itable)
	if err != nil {
		fs.fm.Close()
		return nil, fmt.Errorf("opening root directory: %w", err)
	}
	root.Close()

	slog.Info("mounted file system", "sectors", dev.Sectors(), "free", fs.fm.Free())
	return fs, nil
}

// Unmount flushes the free map. It fails with common.ErrBusy while any file
// or directory is still open. The device is left open.
func (fs *FileSystem) Unmount() error {
	fs.m.Lock()
	defer fs.m.Unlock()

	// The free map file itself stays open while mounted
	if n := fs.itable.NumOpen(); n > 1 {
		slog.Debug("unmount with open inodes", "open", n-1)
		return common.ErrBusy
	}
	if err := fs.fm.Close(); err != nil {
		return err
	}
	slog.Info("unmounted file system", "free", fs.fm.Free())
	return nil
}

func (fs *FileSystem) Device() common.BlockDevice {
	return fs.dev
}

// Free returns the number of unallocated sectors.
func (fs *FileSystem) Free() int {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.fm.Free()
}

// DropCache empties the buffer cache, so that what follows reads the
// device rather than memory.
func (fs *FileSystem) DropCache() {
	fs.m.Lock()
	defer fs.m.Unlock()
	fs.bcache.Invalidate()
}

// Inspect runs fn with the file system locked, giving it direct access to
// the inode table and free map. It is meant for consistency checkers.
func (fs *FileSystem) Inspect(fn func(t *inode.Table, fm *freemap.FreeMap) error) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fn(fs.itable, fs.fm)
}
