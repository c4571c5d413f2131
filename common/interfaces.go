package common

// BlockDevice is a sector addressed store. Reads and writes always transfer
// a whole sector.
type BlockDevice interface {
	ReadSector(sector uint32, buf []byte) error
	WriteSector(sector uint32, buf []byte) error
	Sectors() uint32
	Close() error
}

// Allocator hands out runs of free sectors.
type Allocator interface {
	Allocate(n int) (uint32, error)
	Release(start uint32, n int)
	Free() int
}
