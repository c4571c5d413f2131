package kernel

import "fmt"

// Number is a system call number, as pushed by a user program.
type Number int32

const (
	SYS_HALT Number = iota
	SYS_EXIT
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE
	SYS_MMAP   // not supported
	SYS_MUNMAP // not supported
	SYS_CHDIR
	SYS_MKDIR
	SYS_READDIR
	SYS_ISDIR
	SYS_INUMBER
)

var syscallNames = map[Number]string{
	SYS_HALT:     "halt",
	SYS_EXIT:     "exit",
	SYS_EXEC:     "exec",
	SYS_WAIT:     "wait",
	SYS_CREATE:   "create",
	SYS_REMOVE:   "remove",
	SYS_OPEN:     "open",
	SYS_FILESIZE: "filesize",
	SYS_READ:     "read",
	SYS_WRITE:    "write",
	SYS_SEEK:     "seek",
	SYS_TELL:     "tell",
	SYS_CLOSE:    "close",
	SYS_MMAP:     "mmap",
	SYS_MUNMAP:   "munmap",
	SYS_CHDIR:    "chdir",
	SYS_MKDIR:    "mkdir",
	SYS_READDIR:  "readdir",
	SYS_ISDIR:    "isdir",
	SYS_INUMBER:  "inumber",
}

func (n Number) String() string {
	if name, ok := syscallNames[n]; ok {
		return name
	}
	return fmt.Sprintf("syscall(%d)", int32(n))
}

// argc is the number of argument words each supported call takes.
var argc = map[Number]int{
	SYS_HALT:     0,
	SYS_EXIT:     1,
	SYS_EXEC:     1,
	SYS_WAIT:     1,
	SYS_CREATE:   2,
	SYS_REMOVE:   1,
	SYS_OPEN:     1,
	SYS_FILESIZE: 1,
	SYS_READ:     3,
	SYS_WRITE:    3,
	SYS_SEEK:     2,
	SYS_TELL:     1,
	SYS_CLOSE:    1,
	SYS_CHDIR:    1,
	SYS_MKDIR:    1,
	SYS_READDIR:  2,
	SYS_ISDIR:    1,
	SYS_INUMBER:  1,
}
