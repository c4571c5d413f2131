package freemap

import (
	"fmt"
	"log/slog"

	"github.com/bits-and-blooms/bitset"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
)

// FreeMap tracks which device sectors are in use, one bit per sector. The
// map is itself stored in a file whose inode lives at common.FreeMapSector.
type FreeMap struct {
	bits    *bitset.BitSet
	sectors uint32
	file    *inode.Inode // nil until Create or Open
}

// New returns a map for a device of the given size, with only the reserved
// metadata sectors marked.
func New(sectors uint32) *FreeMap {
	fm := &FreeMap{
		bits:    bitset.New(uint(sectors)),
		sectors: sectors,
	}
	fm.bits.Set(common.FreeMapSector)
	fm.bits.Set(common.RootDirSector)
	return fm
}

// Allocate finds the first run of n free sectors, marks them in use and
// returns the first sector of the run.
func (fm *FreeMap) Allocate(n int) (uint32, error) {
	if n <= 0 {
		return common.NoSector, common.ErrInvalid
	}

	start, ok := fm.bits.NextClear(0)
	for ok && uint64(start)+uint64(n) <= uint64(fm.sectors) {
		end := start + uint(n)
		used := start
		for ; used < end; used++ {
			if fm.bits.Test(used) {
				break
			}
		}
		if used == end {
			for b := start; b < end; b++ {
				fm.bits.Set(b)
			}
			return uint32(start), nil
		}
		start, ok = fm.bits.NextClear(used + 1)
	}

	slog.Debug("free map exhausted", "want", n, "free", fm.Free())
	return common.NoSector, common.ErrNoSpace
}

// Release marks n sectors starting at start as free again. Releasing a
// sector that is already free is a caller bug; it is logged, not prevented.
func (fm *FreeMap) Release(start uint32, n int) {
	for s := start; s < start+uint32(n); s++ {
		if s >= fm.sectors {
			slog.Warn("releasing sector beyond end of device", "sector", s, "sectors", fm.sectors)
			return
		}
		if !fm.bits.Test(uint(s)) {
			slog.Warn("double release of sector", "sector", s)
		}
		fm.bits.Clear(uint(s))
	}
}

// Free returns the number of clear bits.
func (fm *FreeMap) Free() int {
	return int(fm.sectors) - int(fm.bits.Count())
}

func (fm *FreeMap) InUse(sector uint32) bool {
	return sector < fm.sectors && fm.bits.Test(uint(sector))
}

func (fm *FreeMap) Sectors() uint32 {
	return fm.sectors
}

// Used returns every sector currently marked in use, in ascending order.
func (fm *FreeMap) Used() []uint32 {
	var used []uint32
	for i, ok := fm.bits.NextSet(0); ok; i, ok = fm.bits.NextSet(i + 1) {
		used = append(used, uint32(i))
	}
	return used
}

// size is the length in bytes of the free-map file.
func (fm *FreeMap) size() int64 {
	return (int64(fm.sectors) + 7) / 8
}

// MarshalBinary packs the map so that sector i is bit i%8 of byte i/8.
func (fm *FreeMap) MarshalBinary() ([]byte, error) {
	buf := make([]byte, fm.size())
	for i, ok := fm.bits.NextSet(0); ok; i, ok = fm.bits.NextSet(i + 1) {
		buf[i/8] |= 1 << (i % 8)
	}
	return buf, nil
}

func (fm *FreeMap) UnmarshalBinary(buf []byte) error {
	if int64(len(buf)) < fm.size() {
		return fmt.Errorf("free map is %d bytes, want %d: %w", len(buf), fm.size(), common.ErrCorrupt)
	}
	fm.bits.ClearAll()
	for i := uint(0); i < uint(fm.sectors); i++ {
		if buf[i/8]&(1<<(i%8)) != 0 {
			fm.bits.Set(i)
		}
	}
	return nil
}

// Create writes a new free-map file at common.FreeMapSector. The table must
// have been built with fm as its allocator, so the sectors of the file
// itself are recorded in the map before it is written out.
func (fm *FreeMap) Create(t *inode.Table) error {
	if err := t.Create(common.FreeMapSector, fm.size(), false); err != nil {
		return fmt.Errorf("creating free map file: %w", err)
	}
	file, err := t.Open(common.FreeMapSector)
	if err != nil {
		return err
	}
	fm.file = file
	return fm.Flush()
}

// Open loads the map from its file and keeps the file open until Close.
func (fm *FreeMap) Open(t *inode.Table) error {
	file, err := t.Open(common.FreeMapSector)
	if err != nil {
		return fmt.Errorf("opening free map file: %w", err)
	}

	buf := make([]byte, fm.size())
	if n := file.ReadAt(buf, 0); n != len(buf) {
		file.Close()
		return fmt.Errorf("free map file is %d bytes, want %d: %w", n, len(buf), common.ErrCorrupt)
	}
	if err := fm.UnmarshalBinary(buf); err != nil {
		file.Close()
		return err
	}
	fm.file = file
	return nil
}

// Flush writes the current map to its file.
func (fm *FreeMap) Flush() error {
	if fm.file == nil {
		return nil
	}
	buf, _ := fm.MarshalBinary()
	if _, err := fm.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("writing free map: %w", err)
	}
	return nil
}

// Close flushes the map and closes its file.
func (fm *FreeMap) Close() error {
	err := fm.Flush()
	if fm.file != nil {
		fm.file.Close()
		fm.file = nil
	}
	return err
}

var _ common.Allocator = &FreeMap{}
