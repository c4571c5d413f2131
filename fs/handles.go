package fs

import (
	"github.com/jnwhiteh/sectorfs/dir"
	"github.com/jnwhiteh/sectorfs/file"
)

// The methods below operate on handles obtained from Open, OpenPath or
// Chdir. They exist so that every touch of shared inode state happens under
// the file system lock.

func (fs *FileSystem) Read(fi *file.File, buf []byte) (int, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Read(buf)
}

func (fs *FileSystem) Write(fi *file.File, buf []byte) (int, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Write(buf)
}

func (fs *FileSystem) Seek(fi *file.File, pos int64) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Seek(pos)
}

func (fs *FileSystem) Tell(fi *file.File) (int64, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Tell()
}

func (fs *FileSystem) Length(fi *file.File) (int64, error) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Length()
}

func (fs *FileSystem) Inumber(fi *file.File) uint32 {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Inode().Inumber()
}

func (fs *FileSystem) DenyWrite(fi *file.File) {
	fs.m.Lock()
	defer fs.m.Unlock()
	fi.DenyWrite()
}

func (fs *FileSystem) CloseFile(fi *file.File) error {
	fs.m.Lock()
	defer fs.m.Unlock()
	return fi.Close()
}

func (fs *FileSystem) Readdir(dp *dir.Dir) (string, bool) {
	fs.m.Lock()
	defer fs.m.Unlock()
	return dp.Readdir()
}

func (fs *FileSystem) ReopenDir(dp *dir.Dir) *dir.Dir {
	fs.m.Lock()
	defer fs.m.Unlock()
	return dp.Reopen()
}

func (fs *FileSystem) CloseDir(dp *dir.Dir) {
	fs.m.Lock()
	defer fs.m.Unlock()
	dp.Close()
}
