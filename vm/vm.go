package vm

import (
	"encoding/binary"
	"errors"

	"github.com/google/btree"
)

// Addr is a user virtual address.
type Addr uint32

const (
	PageSize = 4096

	// PhysBase is the first address above user space.
	PhysBase Addr = 0xC0000000
)

// ErrFault is returned for any access to an address that a user process may
// not touch: null, at or above PhysBase, or not mapped.
var ErrFault = errors.New("invalid user address")

func (a Addr) page() uint32 {
	return uint32(a) / PageSize
}

func (a Addr) offset() int {
	return int(uint32(a) % PageSize)
}

type page struct {
	number uint32
	data   []byte
}

func lessPage(a, b *page) bool {
	return a.number < b.number
}

// AddressSpace is the user memory of one process, kept as a set of mapped
// pages ordered by page number.
type AddressSpace struct {
	pages *btree.BTreeG[*page]
}

func NewAddressSpace() *AddressSpace {
	return &AddressSpace{pages: btree.NewG[*page](8, lessPage)}
}

func (as *AddressSpace) lookup(addr Addr) *page {
	pg, ok := as.pages.Get(&page{number: addr.page()})
	if !ok {
		return nil
	}
	return pg
}

// IsMapped reports whether addr is a valid user address backed by a page.
func (as *AddressSpace) IsMapped(addr Addr) bool {
	if addr == 0 || addr >= PhysBase {
		return false
	}
	return as.lookup(addr) != nil
}

// Map backs every page touching [addr, addr+n) with zeroed memory. Pages
// already mapped keep their contents.
func (as *AddressSpace) Map(addr Addr, n int) error {
	if n <= 0 {
		return nil
	}
	last := uint64(addr) + uint64(n) - 1
	if last >= uint64(PhysBase) {
		return ErrFault
	}
	for p := addr.page(); p <= Addr(last).page(); p++ {
		if _, ok := as.pages.Get(&page{number: p}); !ok {
			as.pages.ReplaceOrInsert(&page{number: p, data: make([]byte, PageSize)})
		}
	}
	return nil
}

// Unmap drops every page touching [addr, addr+n).
func (as *AddressSpace) Unmap(addr Addr, n int) {
	if n <= 0 {
		return
	}
	last := Addr(uint64(addr) + uint64(n) - 1)
	for p := addr.page(); p <= last.page(); p++ {
		as.pages.Delete(&page{number: p})
	}
}

// Pages returns the number of mapped pages.
func (as *AddressSpace) Pages() int {
	return as.pages.Len()
}

// CopyIn reads n bytes starting at addr. Every page is checked as it is
// touched.
func (as *AddressSpace) CopyIn(addr Addr, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := as.ReadAt(addr, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAt fills buf from user memory starting at addr.
func (as *AddressSpace) ReadAt(addr Addr, buf []byte) error {
	done := 0
	for done < len(buf) {
		cur := addr + Addr(done)
		if !as.IsMapped(cur) {
			return ErrFault
		}
		done += copy(buf[done:], as.lookup(cur).data[cur.offset():])
	}
	return nil
}

// CheckRange returns ErrFault unless every byte of [addr, addr+n) is
// mapped. Each page is looked at once and nothing is copied.
func (as *AddressSpace) CheckRange(addr Addr, n int) error {
	if n <= 0 {
		return nil
	}
	last := uint64(addr) + uint64(n) - 1
	if last >= uint64(PhysBase) {
		return ErrFault
	}
	for cur := uint64(addr); cur <= last; cur = (cur/PageSize + 1) * PageSize {
		if !as.IsMapped(Addr(cur)) {
			return ErrFault
		}
	}
	return nil
}

// CopyOut writes data starting at addr.
func (as *AddressSpace) CopyOut(addr Addr, data []byte) error {
	done := 0
	for done < len(data) {
		cur := addr + Addr(done)
		if !as.IsMapped(cur) {
			return ErrFault
		}
		done += copy(as.lookup(cur).data[cur.offset():], data[done:])
	}
	return nil
}

// CopyInString reads a NUL terminated string, checking every byte
// including the terminator.
func (as *AddressSpace) CopyInString(addr Addr) (string, error) {
	var buf []byte
	for cur := addr; ; cur++ {
		if !as.IsMapped(cur) {
			return "", ErrFault
		}
		b := as.lookup(cur).data[cur.offset()]
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
}

// ReadWord reads a little endian 32-bit word.
func (as *AddressSpace) ReadWord(addr Addr) (uint32, error) {
	buf, err := as.CopyIn(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (as *AddressSpace) WriteWord(addr Addr, word uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], word)
	return as.CopyOut(addr, buf[:])
}


