package common

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DiskInode is the on-disk inode. It must be exactly SectorSize bytes long.
type DiskInode struct {
	Direct         [DirectCount]uint32 // first data sectors
	Indirect       uint32              // sector of a block of PointersPerSec data sectors
	DoubleIndirect uint32              // sector of a block of indirect block sectors
	Length         int32               // file size in bytes
	IsDir          int32               // non-zero for directories
	Magic          uint32
}

// DirEntry is a single slot in a directory file.
type DirEntry struct {
	Sector uint32            // inode sector of the entry
	Name   [NameMax + 2]byte // NUL terminated, NUL padded
	InUse  uint8
	IsDir  uint8
	Pad    [2]byte
}

// IndexBlock is the content of an indirect or double-indirect block.
type IndexBlock [PointersPerSec]uint32

func (d *DirEntry) HasName(name string) bool {
	return d.NameString() == name
}

func (d *DirEntry) NameString() string {
	if i := bytes.IndexByte(d.Name[:], 0); i >= 0 {
		return string(d.Name[:i])
	}
	return string(d.Name[:])
}

// SetName stores name in the entry. The caller has already checked it
// against NameMax.
func (d *DirEntry) SetName(name string) {
	d.Name = [NameMax + 2]byte{}
	copy(d.Name[:NameMax], name)
}

// Encode serializes v (a DiskInode, IndexBlock or DirEntry) into a freshly
// allocated byte slice.
func Encode(v interface{}) []byte {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(fmt.Sprintf("encoding %T: %s", v, err))
	}
	return buf.Bytes()
}

// Decode is the inverse of Encode.
func Decode(b []byte, v interface{}) error {
	return binary.Read(bytes.NewReader(b), binary.LittleEndian, v)
}
