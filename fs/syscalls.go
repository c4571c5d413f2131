package fs

import (
	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/file"
)

// Info describes a file or directory.
type Info struct {
	Inumber     uint32
	Length      int64
	IsDir       bool
	OpenCount   int
	WriteDenied bool // a running executable
}

// Create makes a regular file at path holding size bytes, all zero.
func (fs *FileSystem) Create(cwd *dir.Dir, path string, size int64) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.do_create(cwd, path, size, false)
}

// Mkdir makes an empty directory at path.
func (fs *FileSystem) Mkdir(cwd *dir.Dir, path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.do_create(cwd, path, 0, true)
}

// Remove deletes the file or empty directory at path. Storage is reclaimed
// once nothing has it open.
func (fs *FileSystem) Remove(cwd *dir.Dir, path string) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.do_remove(cwd, path)
}

// Open opens the file or directory at path. For a directory the returned
// *dir.Dir is a second handle on the same inode; for a regular file it is
// nil.
func (fs *FileSystem) Open(cwd *dir.Dir, path string) (*file.File, *dir.Dir, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.do_open(cwd, path)
}

// Chdir resolves path against cwd. On success cwd is closed and the new
// working directory returned; on failure cwd is left untouched.
func (fs *FileSystem) Chdir(cwd *dir.Dir, path string) (*dir.Dir, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	dp, err := fs.openPath(cwd, path)
	if err != nil {
		return nil, err
	}
	if cwd != nil {
		cwd.Close()
	}
	return dp, nil
}

// Stat describes the file or directory at path.
func (fs *FileSystem) Stat(cwd *dir.Dir, path string) (Info, error) {
	fs.m.Lock()
	defer fs.m.Unlock()

	fi, dp, err := fs.do_open(cwd, path)
	if err != nil {
		return Info{}, err
	}
	rip := fi.Inode()
	info := Info{
		Inumber:     rip.Inumber(),
		Length:      rip.Length(),
		IsDir:       rip.IsDir(),
		OpenCount:   rip.OpenCount() - 1,
		WriteDenied: rip.WriteDenied(),
	}
	if dp != nil {
		dp.Close()
		info.OpenCount--
	}
	fi.Close()
	return info, nil
}

// OpenRoot returns a handle on the root directory, to serve as the initial
// working directory of a process.
func (fs *FileSystem) OpenRoot() (*dir.Dir, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return dir.OpenRoot(fs.itable)
}

func (fs *FileSystem) do_create(cwd *dir.Dir, path string, size int64, isDir bool) error {
	dirPath, leaf := Split(path)
	switch {
	case leaf == "" || leaf == dir.Self || leaf == dir.Parent:
		return common.ErrExists
	case len(leaf) > common.NameMax:
		return common.ErrNameTooLong
	}

	dirp, err := fs.openPath(cwd, dirPath)
	if err != nil {
		return err
	}
	defer dirp.Close()

	if _, _, ok := dirp.Lookup(leaf); ok {
		return common.ErrExists
	}

	sector, err := fs.fm.Allocate(1)
	if err != nil {
		return err
	}
	if isDir {
		err = dir.Create(fs.itable, sector, 0, dirp.Inode().Inumber())
	} else {
		err = fs.itable.Create(sector, size, false)
	}
	if err != nil {
		fs.fm.Release(sector, 1)
		return err
	}

	if err := dirp.Add(leaf, sector, isDir); err != nil {
		// The inode owns data blocks by now, so hand it back through the
		// deferred deletion path rather than just releasing its sector.
		rip, oerr := fs.itable.Open(sector)
		if oerr != nil {
			fs.fm.Release(sector, 1)
			return err
		}
		rip.Remove()
		rip.Close()
		return err
	}
	return nil
}

func (fs *FileSystem) do_remove(cwd *dir.Dir, path string) error {
	dirPath, leaf := Split(path)
	if leaf == "" {
		// The root, or a path naming a directory by a trailing slash
		return common.ErrBusy
	}

	dirp, err := fs.openPath(cwd, dirPath)
	if err != nil {
		return err
	}
	defer dirp.Close()

	return dirp.Remove(leaf)
}

func (fs *FileSystem) do_open(cwd *dir.Dir, path string) (*file.File, *dir.Dir, error) {
	if path == "" {
		return nil, nil, common.ErrNotFound
	}

	dirPath, leaf := Split(path)
	dirp, err := fs.openPath(cwd, dirPath)
	if err != nil {
		return nil, nil, err
	}

	var fi *file.File
	if leaf == "" {
		// The directory itself; the file takes over our reference
		fi = file.Open(dirp.Inode())
	} else {
		sector, _, ok := dirp.Lookup(leaf)
		dirp.Close()
		if !ok {
			return nil, nil, common.ErrNotFound
		}
		rip, err := fs.itable.Open(sector)
		if err != nil {
			return nil, nil, err
		}
		fi = file.Open(rip)
	}

	rip := fi.Inode()
	if !rip.IsDir() {
		return fi, nil, nil
	}
	dp, err := dir.Open(fs.itable, rip.Reopen())
	if err != nil {
		fi.Close()
		return nil, nil, err
	}
	return fi, dp, nil
}
