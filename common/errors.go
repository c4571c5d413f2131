package common

import "errors"

// The lower layers (free map, inode engine, directories) report failure
// exclusively through these values. None of them is fatal to a process; only
// the kernel decides when a user process must die.

var (
	ErrBadFD       = errors.New("bad file descriptor")
	ErrBusy        = errors.New("resource busy")
	ErrCorrupt     = errors.New("inode magic mismatch")
	ErrExists      = errors.New("file exists")
	ErrFileTooBig  = errors.New("file too large")
	ErrInvalid     = errors.New("invalid argument")
	ErrIsDir       = errors.New("is a directory")
	ErrNameTooLong = errors.New("file name too long")
	ErrNoSpace     = errors.New("no space left on device")
	ErrNotDir      = errors.New("not a directory")
	ErrNotEmpty    = errors.New("directory not empty")
	ErrNotFound    = errors.New("no such file or directory")
	ErrWriteDenied = errors.New("writes to this file are denied")
)
