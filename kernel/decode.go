package kernel

import (
	"errors"
	"fmt"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/vm"
)

// ErrBadSyscall is returned by Decode for a number outside the supported
// set.
var ErrBadSyscall = errors.New("unsupported system call")

// A Request is one decoded system call. Every pointer it carries has
// already been checked against the caller's address space.
type Request interface {
	Number() Number
}

type HaltRequest struct{}

type ExitRequest struct {
	Status int32
}

type ExecRequest struct {
	CmdLine string
}

type WaitRequest struct {
	PID int32
}

type CreateRequest struct {
	Path string
	Size uint32
}

type RemoveRequest struct {
	Path string
}

type OpenRequest struct {
	Path string
}

type FilesizeRequest struct {
	FD int32
}

// ReadRequest and WriteRequest carry a user buffer whose first and last
// bytes are mapped. Pages strictly in between are only checked when the
// data is copied.
type ReadRequest struct {
	FD  int32
	Buf vm.Addr
	Len uint32
}

type WriteRequest struct {
	FD  int32
	Buf vm.Addr
	Len uint32
}

type SeekRequest struct {
	FD  int32
	Pos uint32
}

type TellRequest struct {
	FD int32
}

type CloseRequest struct {
	FD int32
}

type ChdirRequest struct {
	Path string
}

type MkdirRequest struct {
	Path string
}

// ReaddirRequest carries a user buffer with room for common.NameMax+1
// bytes.
type ReaddirRequest struct {
	FD   int32
	Name vm.Addr
}

type IsdirRequest struct {
	FD int32
}

type InumberRequest struct {
	FD int32
}

func (HaltRequest) Number() Number     { return SYS_HALT }
func (ExitRequest) Number() Number     { return SYS_EXIT }
func (ExecRequest) Number() Number     { return SYS_EXEC }
func (WaitRequest) Number() Number     { return SYS_WAIT }
func (CreateRequest) Number() Number   { return SYS_CREATE }
func (RemoveRequest) Number() Number   { return SYS_REMOVE }
func (OpenRequest) Number() Number     { return SYS_OPEN }
func (FilesizeRequest) Number() Number { return SYS_FILESIZE }
func (ReadRequest) Number() Number     { return SYS_READ }
func (WriteRequest) Number() Number    { return SYS_WRITE }
func (SeekRequest) Number() Number     { return SYS_SEEK }
func (TellRequest) Number() Number     { return SYS_TELL }
func (CloseRequest) Number() Number    { return SYS_CLOSE }
func (ChdirRequest) Number() Number    { return SYS_CHDIR }
func (MkdirRequest) Number() Number    { return SYS_MKDIR }
func (ReaddirRequest) Number() Number  { return SYS_READDIR }
func (IsdirRequest) Number() Number    { return SYS_ISDIR }
func (InumberRequest) Number() Number  { return SYS_INUMBER }

// checkRange makes sure the first and last bytes of [addr, addr+n) are
// valid user addresses.
func checkRange(as *vm.AddressSpace, addr vm.Addr, n uint32) error {
	if n == 0 {
		n = 1
	}
	last := uint64(addr) + uint64(n) - 1
	if last >= uint64(vm.PhysBase) || !as.IsMapped(addr) || !as.IsMapped(vm.Addr(last)) {
		return vm.ErrFault
	}
	return nil
}

// Decode reads the system call at esp: the call number followed by its
// argument words. The number word and the whole argument block are checked
// before they are read, string arguments are checked byte by byte and
// buffers at both ends.
func Decode(as *vm.AddressSpace, esp vm.Addr) (Request, error) {
	if err := checkRange(as, esp, 4); err != nil {
		return nil, err
	}
	word, err := as.ReadWord(esp)
	if err != nil {
		return nil, err
	}
	num := Number(int32(word))

	n, ok := argc[num]
	if !ok {
		return nil, fmt.Errorf("%v: %w", num, ErrBadSyscall)
	}
	args := make([]uint32, n)
	if n > 0 {
		if err := checkRange(as, esp+4, uint32(4*n)); err != nil {
			return nil, err
		}
		for i := range args {
			if args[i], err = as.ReadWord(esp + 4 + vm.Addr(4*i)); err != nil {
				return nil, err
			}
		}
	}

	str := func(i int) (string, error) {
		return as.CopyInString(vm.Addr(args[i]))
	}
	fd := func(i int) int32 {
		return int32(args[i])
	}

	switch num {
	case SYS_HALT:
		return HaltRequest{}, nil
	case SYS_EXIT:
		return ExitRequest{Status: int32(args[0])}, nil
	case SYS_EXEC:
		s, err := str(0)
		return ExecRequest{CmdLine: s}, err
	case SYS_WAIT:
		return WaitRequest{PID: int32(args[0])}, nil
	case SYS_CREATE:
		s, err := str(0)
		return CreateRequest{Path: s, Size: args[1]}, err
	case SYS_REMOVE:
		s, err := str(0)
		return RemoveRequest{Path: s}, err
	case SYS_OPEN:
		s, err := str(0)
		return OpenRequest{Path: s}, err
	case SYS_FILESIZE:
		return FilesizeRequest{FD: fd(0)}, nil
	case SYS_READ:
		buf, length := vm.Addr(args[1]), args[2]
		if err := checkRange(as, buf, length); err != nil {
			return nil, err
		}
		return ReadRequest{FD: fd(0), Buf: buf, Len: length}, nil
	case SYS_WRITE:
		buf, length := vm.Addr(args[1]), args[2]
		if err := checkRange(as, buf, length); err != nil {
			return nil, err
		}
		return WriteRequest{FD: fd(0), Buf: buf, Len: length}, nil
	case SYS_SEEK:
		return SeekRequest{FD: fd(0), Pos: args[1]}, nil
	case SYS_TELL:
		return TellRequest{FD: fd(0)}, nil
	case SYS_CLOSE:
		return CloseRequest{FD: fd(0)}, nil
	case SYS_CHDIR:
		s, err := str(0)
		return ChdirRequest{Path: s}, err
	case SYS_MKDIR:
		s, err := str(0)
		return MkdirRequest{Path: s}, err
	case SYS_READDIR:
		name := vm.Addr(args[1])
		if err := checkRange(as, name, common.NameMax+1); err != nil {
			return nil, err
		}
		return ReaddirRequest{FD: fd(0), Name: name}, nil
	case SYS_ISDIR:
		return IsdirRequest{FD: fd(0)}, nil
	case SYS_INUMBER:
		return InumberRequest{FD: fd(0)}, nil
	}
	return nil, fmt.Errorf("%v: %w", num, ErrBadSyscall)
}
