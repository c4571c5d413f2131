package dir

import (
	"fmt"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
)

const (
	Self   = "."
	Parent = ".."
)

// Dir is an open directory: a directory inode plus a readdir cursor. Two
// handles on the same directory share the inode but not the cursor.
type Dir struct {
	table *inode.Table
	rip   *inode.Inode
	pos   int64
}

// Create makes a directory at sector with room for entries records, seeded
// with "." pointing at itself and ".." pointing at parent. The sector must
// already be allocated.
func Create(t *inode.Table, sector uint32, entries int, parent uint32) error {
	// Room for the two seed entries is allocated up front, so seeding never
	// has to grow the file.
	entries = max(entries, 2)
	if err := t.Create(sector, int64(entries)*common.DirEntrySize, true); err != nil {
		return err
	}
	rip, err := t.Open(sector)
	if err != nil {
		return err
	}
	defer rip.Close()

	dp := &Dir{table: t, rip: rip}
	if err := dp.Add(Self, sector, true); err != nil {
		return fmt.Errorf("seeding directory %d: %w", sector, err)
	}
	if err := dp.Add(Parent, parent, true); err != nil {
		return fmt.Errorf("seeding directory %d: %w", sector, err)
	}
	return nil
}

// Open wraps an open directory inode, taking over the caller's reference.
// If the inode is not a directory the reference is dropped.
func Open(t *inode.Table, rip *inode.Inode) (*Dir, error) {
	if !rip.IsDir() {
		rip.Close()
		return nil, common.ErrNotDir
	}
	return &Dir{table: t, rip: rip}, nil
}

// OpenRoot opens the root directory.
func OpenRoot(t *inode.Table) (*Dir, error) {
	rip, err := t.Open(common.RootDirSector)
	if err != nil {
		return nil, err
	}
	return Open(t, rip)
}

// Reopen returns a new handle on the same directory, with its own cursor.
func (dp *Dir) Reopen() *Dir {
	return &Dir{table: dp.table, rip: dp.rip.Reopen()}
}

func (dp *Dir) Close() {
	dp.rip.Close()
}

func (dp *Dir) Inode() *inode.Inode {
	return dp.rip
}

func (dp *Dir) entryAt(offset int64, entry *common.DirEntry) bool {
	buf := make([]byte, common.DirEntrySize)
	if dp.rip.ReadAt(buf, offset) != common.DirEntrySize {
		return false
	}
	return common.Decode(buf, entry) == nil
}

// search_dir scans the directory for an in-use entry called name and
// returns it along with its offset.
func (dp *Dir) search_dir(name string) (common.DirEntry, int64, bool) {
	var entry common.DirEntry
	for ofs := int64(0); dp.entryAt(ofs, &entry); ofs += common.DirEntrySize {
		if entry.InUse != 0 && entry.HasName(name) {
			return entry, ofs, true
		}
	}
	return common.DirEntry{}, 0, false
}

// Lookup returns the inode sector of the entry called name.
func (dp *Dir) Lookup(name string) (sector uint32, isDir bool, ok bool) {
	entry, _, ok := dp.search_dir(name)
	if !ok {
		return common.NoSector, false, false
	}
	return entry.Sector, entry.IsDir != 0, true
}

// Add inserts a new entry in the first free slot, growing the directory if
// every slot is in use.
func (dp *Dir) Add(name string, sector uint32, isDir bool) error {
	if name == "" {
		return common.ErrInvalid
	}
	if len(name) > common.NameMax {
		return common.ErrNameTooLong
	}
	if dp.rip.Removed() {
		return common.ErrNotFound
	}
	if _, _, ok := dp.search_dir(name); ok {
		return common.ErrExists
	}

	var entry common.DirEntry
	ofs := int64(0)
	for ; dp.entryAt(ofs, &entry); ofs += common.DirEntrySize {
		if entry.InUse == 0 {
			break
		}
	}

	entry = common.DirEntry{Sector: sector, InUse: 1}
	if isDir {
		entry.IsDir = 1
	}
	entry.SetName(name)
	if _, err := dp.rip.WriteAt(common.Encode(&entry), ofs); err != nil {
		return err
	}
	return nil
}

// Remove erases the entry called name and marks its inode removed. The
// inode's storage goes once nothing has it open. A directory must be empty
// to be removed.
func (dp *Dir) Remove(name string) error {
	if name == Self || name == Parent {
		return common.ErrInvalid
	}
	entry, ofs, ok := dp.search_dir(name)
	if !ok {
		return common.ErrNotFound
	}

	rip, err := dp.table.Open(entry.Sector)
	if err != nil {
		return err
	}
	defer rip.Close()

	if rip.IsDir() {
		target := &Dir{table: dp.table, rip: rip}
		if !target.IsEmpty() {
			return common.ErrNotEmpty
		}
	}

	entry.InUse = 0
	if _, err := dp.rip.WriteAt(common.Encode(&entry), ofs); err != nil {
		return err
	}
	rip.Remove()
	return nil
}

// Readdir returns the next in-use name after the handle's cursor, skipping
// "." and "..". It returns false once the directory is exhausted.
func (dp *Dir) Readdir() (string, bool) {
	var entry common.DirEntry
	for dp.entryAt(dp.pos, &entry) {
		dp.pos += common.DirEntrySize
		if entry.InUse == 0 {
			continue
		}
		name := entry.NameString()
		if name == Self || name == Parent {
			continue
		}
		return name, true
	}
	return "", false
}

// IsEmpty reports whether the directory holds nothing but "." and "..".
func (dp *Dir) IsEmpty() bool {
	var entry common.DirEntry
	for ofs := int64(0); dp.entryAt(ofs, &entry); ofs += common.DirEntrySize {
		if entry.InUse == 0 {
			continue
		}
		if name := entry.NameString(); name != Self && name != Parent {
			return false
		}
	}
	return true
}

// Entries returns every in-use entry, including "." and "..", in storage
// order.
func (dp *Dir) Entries() []common.DirEntry {
	var entries []common.DirEntry
	var entry common.DirEntry
	for ofs := int64(0); dp.entryAt(ofs, &entry); ofs += common.DirEntrySize {
		if entry.InUse != 0 {
			entries = append(entries, entry)
		}
	}
	return entries
}
