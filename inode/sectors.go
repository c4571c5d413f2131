package inode

import "github.com/jnwhiteh/sectorfs/common"

// IndexReader returns the contents of an index block.
type IndexReader func(sector uint32) *common.IndexBlock

// Sectors lists every sector owned by the inode stored at sector: its data
// blocks, the indirect and double-indirect blocks, the second level index
// blocks and finally the inode sector itself. The inode is not modified.
func Sectors(sector uint32, d *common.DiskInode, read IndexReader) []uint32 {
	var list []uint32

	for _, s := range d.Direct {
		if s != common.NoSector {
			list = append(list, s)
		}
	}

	if d.Indirect != common.NoSector {
		list = appendEntries(list, read(d.Indirect))
		list = append(list, d.Indirect)
	}

	if d.DoubleIndirect != common.NoSector {
		for _, second := range read(d.DoubleIndirect) {
			if second != common.NoSector {
				list = appendEntries(list, read(second))
				list = append(list, second)
			}
		}
		list = append(list, d.DoubleIndirect)
	}

	return append(list, sector)
}

func appendEntries(list []uint32, index *common.IndexBlock) []uint32 {
	for _, s := range index {
		if s != common.NoSector {
			list = append(list, s)
		}
	}
	return list
}
