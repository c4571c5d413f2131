package inode

import (
	"fmt"
	"log/slog"

	"github.com/jnwhiteh/sectorfs/bcache"
	"github.com/jnwhiteh/sectorfs/common"
)

// Table is the registry of open inodes. Opening a sector that is already
// open returns the same *Inode, so every handle on a file shares one copy of
// its on-disk record.
//
// A Table is not safe for concurrent use; the file system serializes all
// access to it.
type Table struct {
	cache *bcache.Cache
	alloc common.Allocator
	open  map[uint32]*Inode
}

func NewTable(cache *bcache.Cache, alloc common.Allocator) *Table {
	return &Table{
		cache: cache,
		alloc: alloc,
		open:  make(map[uint32]*Inode),
	}
}

// Create writes a fresh inode at sector, holding length zero bytes. The
// sector itself must already be allocated by the caller. If the data blocks
// cannot all be allocated, none of them are.
func (t *Table) Create(sector uint32, length int64, isDir bool) error {
	if length < 0 {
		return common.ErrInvalid
	}

	rip := &Inode{table: t, sector: sector}
	rip.disk.Magic = common.InodeMagic
	if isDir {
		rip.disk.IsDir = 1
	}

	if err := rip.grow(length); err != nil {
		return err
	}
	// grow only writes the record when something was allocated
	t.writeDisk(sector, &rip.disk)
	return nil
}

// Open returns the in-memory inode for sector, loading it on first use.
func (t *Table) Open(sector uint32) (*Inode, error) {
	if rip, ok := t.open[sector]; ok {
		rip.openCount++
		return rip, nil
	}

	rip := &Inode{table: t, sector: sector, openCount: 1}
	if err := t.readDisk(sector, &rip.disk); err != nil {
		return nil, err
	}
	t.open[sector] = rip
	return rip, nil
}

// Stat loads the on-disk record at sector without registering it.
func (t *Table) Stat(sector uint32) (common.DiskInode, error) {
	if rip, ok := t.open[sector]; ok {
		return rip.disk, nil
	}
	var d common.DiskInode
	err := t.readDisk(sector, &d)
	return d, err
}

// OpenInodes returns every inode in the registry, in no particular order.
func (t *Table) OpenInodes() []*Inode {
	list := make([]*Inode, 0, len(t.open))
	for _, rip := range t.open {
		list = append(list, rip)
	}
	return list
}

// NumOpen returns the number of inodes in the registry.
func (t *Table) NumOpen() int {
	return len(t.open)
}

func (t *Table) close(rip *Inode) {
	rip.openCount--
	if rip.openCount > 0 {
		return
	}
	delete(t.open, rip.sector)

	if rip.removed {
		for _, s := range Sectors(rip.sector, &rip.disk, t.ReadIndex) {
			t.alloc.Release(s, 1)
		}
	}
}

func (t *Table) readDisk(sector uint32, d *common.DiskInode) error {
	buf := make([]byte, common.SectorSize)
	t.cache.Read(sector, buf)
	if err := common.Decode(buf, d); err != nil {
		return err
	}
	if d.Magic != common.InodeMagic {
		slog.Warn("bad inode magic", "sector", sector, "magic", fmt.Sprintf("%#x", d.Magic))
		return fmt.Errorf("sector %d: %w", sector, common.ErrCorrupt)
	}
	return nil
}

func (t *Table) writeDisk(sector uint32, d *common.DiskInode) {
	t.cache.Write(sector, common.Encode(d))
}

// ReadIndex loads the index block stored at sector.
func (t *Table) ReadIndex(sector uint32) *common.IndexBlock {
	buf := make([]byte, common.SectorSize)
	t.cache.Read(sector, buf)
	index := new(common.IndexBlock)
	if err := common.Decode(buf, index); err != nil {
		panic(fmt.Sprintf("decoding index block %d: %s", sector, err))
	}
	return index
}

func (t *Table) WriteIndex(sector uint32, index *common.IndexBlock) {
	t.cache.Write(sector, common.Encode(index))
}
