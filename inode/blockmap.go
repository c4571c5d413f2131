package inode

import (
	"fmt"

	"github.com/jnwhiteh/sectorfs/common"
)

// Tier says which part of the on-disk inode addresses a logical block.
type Tier int

const (
	TierDirect Tier = iota
	TierIndirect
	TierDoubleIndirect
)

func (t Tier) String() string {
	switch t {
	case TierDirect:
		return "direct"
	case TierIndirect:
		return "indirect"
	case TierDoubleIndirect:
		return "double-indirect"
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// BlockAddr is the position of a logical block's pointer.
//
//	TierDirect:         DiskInode.Direct[Outer]
//	TierIndirect:       entry Inner of the block at DiskInode.Indirect
//	TierDoubleIndirect: entry Inner of the block named by entry Outer of
//	                    the block at DiskInode.DoubleIndirect
type BlockAddr struct {
	Tier  Tier
	Outer int
	Inner int
}

// Locate maps a logical block index onto the pointer that addresses it.
func Locate(index int) (BlockAddr, error) {
	switch {
	case index < 0:
		return BlockAddr{}, common.ErrInvalid
	case index < common.IndirectStart:
		return BlockAddr{Tier: TierDirect, Outer: index}, nil
	case index < common.DoubleIndirectStart:
		return BlockAddr{Tier: TierIndirect, Inner: index - common.IndirectStart}, nil
	case index < common.MaxFileSectors:
		k := index - common.DoubleIndirectStart
		return BlockAddr{
			Tier:  TierDoubleIndirect,
			Outer: k / common.PointersPerSec,
			Inner: k % common.PointersPerSec,
		}, nil
	}
	return BlockAddr{}, common.ErrFileTooBig
}

// blockCount is the number of logical blocks needed to hold length bytes.
func blockCount(length int64) int {
	return int((length + common.SectorSize - 1) / common.SectorSize)
}

// lookup returns the sector holding logical block index, or NoSector if
// none has been allocated.
func (rip *Inode) lookup(index int) uint32 {
	addr, err := Locate(index)
	if err != nil {
		return common.NoSector
	}

	d := &rip.disk
	switch addr.Tier {
	case TierDirect:
		return d.Direct[addr.Outer]
	case TierIndirect:
		if d.Indirect == common.NoSector {
			return common.NoSector
		}
		return rip.table.ReadIndex(d.Indirect)[addr.Inner]
	default:
		if d.DoubleIndirect == common.NoSector {
			return common.NoSector
		}
		second := rip.table.ReadIndex(d.DoubleIndirect)[addr.Outer]
		if second == common.NoSector {
			return common.NoSector
		}
		return rip.table.ReadIndex(second)[addr.Inner]
	}
}

// A growth records every change it makes so that it can be undone if the
// free map runs dry part of the way through.
type growth struct {
	rip       *Inode
	saved     common.DiskInode
	allocated []uint32
	slots     []indexSlot // entries written into index blocks
}

type indexSlot struct {
	block uint32
	entry int
}

func (g *growth) allocate() (uint32, error) {
	sector, err := g.rip.table.alloc.Allocate(1)
	if err != nil {
		return common.NoSector, err
	}
	g.allocated = append(g.allocated, sector)
	g.rip.table.cache.Zero(sector)
	return sector, nil
}

// ensureIndex makes sure *ptr names a zero-filled index block, allocating
// one if it is currently unallocated.
func (g *growth) ensureIndex(ptr *uint32) error {
	if *ptr != common.NoSector {
		return nil
	}
	sector, err := g.allocate()
	if err != nil {
		return err
	}
	*ptr = sector
	return nil
}

// ensureEntry makes sure entry i of the index block at block names a
// zero-filled sector and returns it.
func (g *growth) ensureEntry(block uint32, i int) (uint32, error) {
	t := g.rip.table
	index := t.ReadIndex(block)
	if index[i] != common.NoSector {
		return index[i], nil
	}
	sector, err := g.allocate()
	if err != nil {
		return common.NoSector, err
	}
	index[i] = sector
	t.WriteIndex(block, index)
	g.slots = append(g.slots, indexSlot{block, i})
	return sector, nil
}

// ensureBlock allocates the data sector for logical block index, along with
// any index blocks on the way to it.
func (g *growth) ensureBlock(index int) error {
	addr, err := Locate(index)
	if err != nil {
		return err
	}

	d := &g.rip.disk
	switch addr.Tier {
	case TierDirect:
		if d.Direct[addr.Outer] != common.NoSector {
			return nil
		}
		sector, err := g.allocate()
		if err != nil {
			return err
		}
		d.Direct[addr.Outer] = sector
	case TierIndirect:
		if err := g.ensureIndex(&d.Indirect); err != nil {
			return err
		}
		if _, err := g.ensureEntry(d.Indirect, addr.Inner); err != nil {
			return err
		}
	case TierDoubleIndirect:
		if err := g.ensureIndex(&d.DoubleIndirect); err != nil {
			return err
		}
		second, err := g.ensureEntry(d.DoubleIndirect, addr.Outer)
		if err != nil {
			return err
		}
		if _, err := g.ensureEntry(second, addr.Inner); err != nil {
			return err
		}
	}
	return nil
}

// rollback undoes every change made by the growth, newest first.
func (g *growth) rollback() {
	t := g.rip.table
	for i := len(g.slots) - 1; i >= 0; i-- {
		slot := g.slots[i]
		index := t.ReadIndex(slot.block)
		index[slot.entry] = common.NoSector
		t.WriteIndex(slot.block, index)
	}
	for _, sector := range g.allocated {
		t.alloc.Release(sector, 1)
	}
	g.rip.disk = g.saved
}

// missing counts the sectors (data and index) that growing to cover blocks
// [first, last] would allocate.
func (rip *Inode) missing(first, last int) int {
	d := &rip.disk
	t := rip.table
	n := 0

	var indirect *common.IndexBlock
	if d.Indirect != common.NoSector {
		indirect = t.ReadIndex(d.Indirect)
	}
	var double *common.IndexBlock
	if d.DoubleIndirect != common.NoSector {
		double = t.ReadIndex(d.DoubleIndirect)
	}
	needIndirect := false
	needDouble := false
	seconds := make(map[int]*common.IndexBlock)

	for i := first; i <= last; i++ {
		addr, _ := Locate(i)
		switch addr.Tier {
		case TierDirect:
			if d.Direct[addr.Outer] == common.NoSector {
				n++
			}
		case TierIndirect:
			if indirect == nil {
				needIndirect = true
				n++
			} else if indirect[addr.Inner] == common.NoSector {
				n++
			}
		case TierDoubleIndirect:
			if double == nil {
				needDouble = true
			}
			second, seen := seconds[addr.Outer]
			if !seen {
				if double != nil && double[addr.Outer] != common.NoSector {
					second = t.ReadIndex(double[addr.Outer])
				} else {
					n++
				}
				seconds[addr.Outer] = second
			}
			if second == nil || second[addr.Inner] == common.NoSector {
				n++
			}
		}
	}
	if needIndirect {
		n++
	}
	if needDouble {
		n++
	}
	return n
}

// grow extends the inode to length bytes, allocating and zero filling every
// missing block in between. On failure nothing is changed.
func (rip *Inode) grow(length int64) error {
	if length > common.MaxFileSize {
		return common.ErrFileTooBig
	}
	old := int64(rip.disk.Length)
	if length <= old {
		return nil
	}

	first := int(old / common.SectorSize)
	last := blockCount(length) - 1
	if need := rip.missing(first, last); need > rip.table.alloc.Free() {
		return fmt.Errorf("growing inode %d by %d sectors: %w", rip.sector, need, common.ErrNoSpace)
	}

	g := &growth{rip: rip, saved: rip.disk}
	for i := first; i <= last; i++ {
		if err := g.ensureBlock(i); err != nil {
			g.rollback()
			return err
		}
	}

	rip.disk.Length = int32(length)
	rip.table.writeDisk(rip.sector, &rip.disk)
	return nil
}
