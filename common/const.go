package common

const (
	SectorSize     = 512 // bytes per device sector
	SectorNumSize  = 4   // bytes per on-disk sector number
	PointersPerSec = SectorSize / SectorNumSize

	DirectCount         = 123 // direct pointers in an on-disk inode
	IndirectCount       = PointersPerSec
	DoubleIndirectCount = PointersPerSec * PointersPerSec

	// Logical block index boundaries between the three addressing tiers.
	IndirectStart       = DirectCount
	DoubleIndirectStart = IndirectStart + IndirectCount
	MaxFileSectors      = DoubleIndirectStart + DoubleIndirectCount
	MaxFileSize         = MaxFileSectors * SectorSize

	InodeMagic = 0x494e4f44 // "INOD"

	NoSector = 0 // an unallocated pointer slot

	FreeMapSector = 0 // inode of the free-map file
	RootDirSector = 1 // inode of the root directory

	NameMax      = 14 // READDIR_MAX_LEN
	DirEntrySize = 24

	RootDirEntries = 16 // initial capacity of the root directory

	ConsoleIn  = 0
	ConsoleOut = 1
	FirstFD    = 2
)

// DefaultCacheSectors is the number of buffer cache slots used when the
// configuration does not say otherwise.
const DefaultCacheSectors = 64
