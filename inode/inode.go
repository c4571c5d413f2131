package inode

import (
	"github.com/jnwhiteh/sectorfs/common"
)

// State is where an inode is in its deletion lifecycle. An inode that has
// been freed is simply no longer in the Table.
type State int

const (
	Live State = iota
	PendingDeletion
)

func (s State) String() string {
	if s == PendingDeletion {
		return "pending-deletion"
	}
	return "live"
}

// Inode is an open inode, shared by every handle that refers to it.
type Inode struct {
	table     *Table
	sector    uint32
	openCount int
	removed   bool
	denyWrite int
	disk      common.DiskInode
}

// Reopen takes another reference to an already open inode.
func (rip *Inode) Reopen() *Inode {
	rip.openCount++
	return rip
}

// Close drops a reference. When the last reference goes the inode leaves
// the table, and if it was removed its sectors are released.
func (rip *Inode) Close() {
	rip.table.close(rip)
}

// Remove marks the inode for deletion once it is no longer open.
func (rip *Inode) Remove() {
	rip.removed = true
}

func (rip *Inode) Removed() bool {
	return rip.removed
}

func (rip *Inode) State() State {
	if rip.removed {
		return PendingDeletion
	}
	return Live
}

func (rip *Inode) Inumber() uint32 {
	return rip.sector
}

func (rip *Inode) OpenCount() int {
	return rip.openCount
}

func (rip *Inode) Length() int64 {
	return int64(rip.disk.Length)
}

func (rip *Inode) IsDir() bool {
	return rip.disk.IsDir != 0
}

// Disk returns a copy of the on-disk record.
func (rip *Inode) Disk() common.DiskInode {
	return rip.disk
}

// DenyWrite blocks writes until a matching AllowWrite. Each opener may call
// it at most once.
func (rip *Inode) DenyWrite() {
	rip.denyWrite++
}

func (rip *Inode) AllowWrite() {
	if rip.denyWrite > 0 {
		rip.denyWrite--
	}
}

func (rip *Inode) WriteDenied() bool {
	return rip.denyWrite > 0
}

// ReadAt copies bytes starting at offset into buf and returns how many were
// read. Reads stop at the end of the file; reading at or past the end reads
// nothing.
func (rip *Inode) ReadAt(buf []byte, offset int64) int {
	length := rip.Length()
	if offset < 0 || offset >= length {
		return 0
	}
	if int64(len(buf)) > length-offset {
		buf = buf[:length-offset]
	}

	sbuf := make([]byte, common.SectorSize)
	done := 0
	for done < len(buf) {
		pos := offset + int64(done)
		off := int(pos % common.SectorSize)
		chunk := min(common.SectorSize-off, len(buf)-done)

		sector := rip.lookup(int(pos / common.SectorSize))
		if sector == common.NoSector {
			clear(buf[done : done+chunk])
		} else {
			rip.table.cache.Read(sector, sbuf)
			copy(buf[done:done+chunk], sbuf[off:])
		}
		done += chunk
	}
	return done
}

// WriteAt writes buf at offset, first growing the file if the write ends
// past its current length. It writes nothing while writes are denied or if
// the growth fails.
func (rip *Inode) WriteAt(buf []byte, offset int64) (int, error) {
	if rip.denyWrite > 0 {
		return 0, common.ErrWriteDenied
	}
	if offset < 0 {
		return 0, common.ErrInvalid
	}
	if len(buf) == 0 {
		return 0, nil
	}

	end := offset + int64(len(buf))
	if end > rip.Length() {
		if err := rip.grow(end); err != nil {
			return 0, err
		}
	}

	sbuf := make([]byte, common.SectorSize)
	done := 0
	for done < len(buf) {
		pos := offset + int64(done)
		off := int(pos % common.SectorSize)
		chunk := min(common.SectorSize-off, len(buf)-done)
		sector := rip.lookup(int(pos / common.SectorSize))

		if chunk == common.SectorSize {
			rip.table.cache.Write(sector, buf[done:done+chunk])
		} else {
			rip.table.cache.Read(sector, sbuf)
			copy(sbuf[off:], buf[done:done+chunk])
			rip.table.cache.Write(sector, sbuf)
		}
		done += chunk
	}
	return done, nil
}
