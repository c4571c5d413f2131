package fs

import (
	"strings"

	"github.com/jnwhiteh/sectorfs/common"
	"github.com/jnwhiteh/sectorfs/dir"
)

// Split breaks a path into the directory part and the final component. The
// final component is empty when the path ends in a slash, and the directory
// part is empty when the path has no slash at all (meaning the working
// directory).
//
//	Split("/a/b")  = "/a", "b"
//	Split("/a")    = "/", "a"
//	Split("a")     = "", "a"
//	Split("/a/b/") = "/a/b", ""
func Split(path string) (dirPath, leaf string) {
	i := strings.LastIndexByte(path, '/')
	switch {
	case i < 0:
		return "", path
	case i == 0:
		return "/", path[1:]
	}
	return path[:i], path[i+1:]
}

// openPath walks path one component at a time, starting at the root for an
// absolute path and at cwd otherwise, and returns the directory it names.
// Every component must be a directory. A nil cwd means the root.
func (fs *FileSystem) openPath(cwd *dir.Dir, path string) (*dir.Dir, error) {
	var dp *dir.Dir
	if strings.HasPrefix(path, "/") || cwd == nil {
		var err error
		if dp, err = dir.OpenRoot(fs.itable); err != nil {
			return nil, err
		}
	} else {
		dp = cwd.Reopen()
	}

	// A directory that has been removed can not be walked from
	if dp.Inode().Removed() {
		dp.Close()
		return nil, common.ErrNotFound
	}

	for _, name := range strings.Split(path, "/") {
		if name == "" {
			continue
		}

		sector, isDir, ok := dp.Lookup(name)
		if !ok {
			dp.Close()
			return nil, common.ErrNotFound
		}
		if !isDir {
			dp.Close()
			return nil, common.ErrNotDir
		}
		if sector == dp.Inode().Inumber() {
			// "." or the root's ".."
			continue
		}

		rip, err := fs.itable.Open(sector)
		dp.Close()
		if err != nil {
			return nil, err
		}
		if dp, err = dir.Open(fs.itable, rip); err != nil {
			return nil, err
		}
	}
	return dp, nil
}

// OpenPath returns the directory named by path, resolved against cwd.
func (fs *FileSystem) OpenPath(cwd *dir.Dir, path string) (*dir.Dir, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fs.openPath(cwd, path)
}
