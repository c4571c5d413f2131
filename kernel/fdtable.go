package kernel

import (
	"sort"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/file"
)

// A Descriptor is one open file or directory of a process. Directories
// carry both a file handle and a directory handle on the same inode.
type Descriptor struct {
	FD     int
	File   *file.File
	Dir    *dir.Dir // nil unless IsDir
	IsDir  bool
	Opened bool
}

// FDTable maps descriptor numbers to open files for one process. Numbers
// start at common.FirstFD and are never handed out twice, so a stale
// descriptor can not silently refer to a later open.
type FDTable struct {
	next    int
	entries map[int]*Descriptor
}

func NewFDTable() *FDTable {
	return &FDTable{
		next:    common.FirstFD,
		entries: make(map[int]*Descriptor),
	}
}

// Add installs a new descriptor and returns its number.
func (t *FDTable) Add(fi *file.File, dp *dir.Dir) int {
	fd := t.next
	t.next++
	t.entries[fd] = &Descriptor{
		FD:     fd,
		File:   fi,
		Dir:    dp,
		IsDir:  dp != nil,
		Opened: true,
	}
	return fd
}

func (t *FDTable) Get(fd int) (*Descriptor, bool) {
	d, ok := t.entries[fd]
	return d, ok
}

func (t *FDTable) Remove(fd int) {
	delete(t.entries, fd)
}

func (t *FDTable) Len() int {
	return len(t.entries)
}

// All returns every open descriptor in ascending order.
func (t *FDTable) All() []*Descriptor {
	list := make([]*Descriptor, 0, len(t.entries))
	for _, d := range t.entries {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].FD < list[j].FD })
	return list
}
