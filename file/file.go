package file

import (
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/inode"
)

// A File is an open inode plus a byte cursor. Each open gets its own File,
// so handles on the same inode share its contents but not their positions.
//
// Operations on a closed File fail with common.ErrBadFD.
type File struct {
	rip    *inode.Inode // nil once closed
	pos    int64
	denied bool // this handle has denied writes to the inode
}

// Open wraps an open inode, taking over the caller's reference.
func Open(rip *inode.Inode) *File {
	return &File{rip: rip}
}

// Reopen returns a new handle on the same inode, positioned at 0.
func (fi *File) Reopen() *File {
	return Open(fi.rip.Reopen())
}

func (fi *File) Close() error {
	if fi.rip == nil {
		return common.ErrBadFD
	}
	fi.AllowWrite()
	fi.rip.Close()
	fi.rip = nil
	return nil
}

func (fi *File) Inode() *inode.Inode {
	return fi.rip
}

// Read reads from the current position and advances it by the number of
// bytes read. Reading at or past the end of the file reads nothing.
func (fi *File) Read(buf []byte) (int, error) {
	n, err := fi.ReadAt(buf, fi.pos)
	fi.pos += int64(n)
	return n, err
}

// Write writes at the current position, growing the file if needed, and
// advances the position by the number of bytes written.
func (fi *File) Write(buf []byte) (int, error) {
	n, err := fi.WriteAt(buf, fi.pos)
	fi.pos += int64(n)
	return n, err
}

// ReadAt reads at an explicit offset and leaves the cursor alone.
func (fi *File) ReadAt(buf []byte, offset int64) (int, error) {
	if fi.rip == nil {
		return 0, common.ErrBadFD
	}
	return fi.rip.ReadAt(buf, offset), nil
}

func (fi *File) WriteAt(buf []byte, offset int64) (int, error) {
	if fi.rip == nil {
		return 0, common.ErrBadFD
	}
	return fi.rip.WriteAt(buf, offset)
}

// Seek moves the cursor. Positions past the end of the file are allowed; a
// later write there grows the file.
func (fi *File) Seek(pos int64) error {
	if fi.rip == nil {
		return common.ErrBadFD
	}
	if pos < 0 {
		return common.ErrInvalid
	}
	fi.pos = pos
	return nil
}

func (fi *File) Tell() (int64, error) {
	if fi.rip == nil {
		return 0, common.ErrBadFD
	}
	return fi.pos, nil
}

func (fi *File) Length() (int64, error) {
	if fi.rip == nil {
		return 0, common.ErrBadFD
	}
	return fi.rip.Length(), nil
}

// DenyWrite prevents any handle from writing the inode until this handle
// calls AllowWrite or is closed.
func (fi *File) DenyWrite() {
	if fi.rip != nil && !fi.denied {
		fi.denied = true
		fi.rip.DenyWrite()
	}
}

func (fi *File) AllowWrite() {
	if fi.rip != nil && fi.denied {
		fi.denied = false
		fi.rip.AllowWrite()
	}
}
