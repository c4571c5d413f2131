package fs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/common"
)

func TestSplit(test *testing.T) {
	cases := []struct {
		path, dir, leaf string
	}{
		{"/a/b", "/a", "b"},
		{"/a", "/", "a"},
		{"a", "", "a"},
		{"a/b", "a", "b"},
		{"/a/b/", "/a/b", ""},
		{"/", "/", ""},
		{"", "", ""},
		{"//x", "/", "x"},
	}
	for _, c := range cases {
		dir, leaf := Split(c.path)
		assert.Equal(test, c.dir, dir, "dir of %q", c.path)
		assert.Equal(test, c.leaf, leaf, "leaf of %q", c.path)
	}
}

func TestPathResolution(test *testing.T) {
	fs := newTestFS(test, 512)

	require.NoError(test, fs.Mkdir(nil, "/a"))
	require.NoError(test, fs.Mkdir(nil, "/a/b"))
	require.NoError(test, fs.Create(nil, "/a/f", 10))

	root, err := fs.OpenRoot()
	require.NoError(test, err)
	defer fs.CloseDir(root)

	ab, err := fs.OpenPath(nil, "/a/b")
	require.NoError(test, err)
	defer fs.CloseDir(ab)

	// Relative to a root working directory is the same as absolute
	rel, err := fs.OpenPath(root, "a/b")
	require.NoError(test, err)
	assert.Equal(test, ab.Inode().Inumber(), rel.Inode().Inumber())
	fs.CloseDir(rel)

	a, err := fs.OpenPath(root, "/a")
	require.NoError(test, err)
	defer fs.CloseDir(a)

	cases := map[string]uint32{
		"/a/b/":     ab.Inode().Inumber(),
		"//a//b":    ab.Inode().Inumber(),
		"/a/./b":    ab.Inode().Inumber(),
		"/a/b/../b": ab.Inode().Inumber(),
		"/../a/b":   ab.Inode().Inumber(),
		"a/b/..":    a.Inode().Inumber(),
		"a/..":      common.RootDirSector,
	}
	for path, want := range cases {
		dp, err := fs.OpenPath(root, path)
		require.NoError(test, err, path)
		assert.Equal(test, want, dp.Inode().Inumber(), path)
		fs.CloseDir(dp)
	}

	_, err = fs.OpenPath(nil, "/a/c")
	assert.ErrorIs(test, err, common.ErrNotFound)
	_, err = fs.OpenPath(nil, "/a/f/x")
	assert.ErrorIs(test, err, common.ErrNotDir)

	// An empty path reopens the start directory
	dp, err := fs.OpenPath(ab, "")
	require.NoError(test, err)
	assert.Equal(test, ab.Inode().Inumber(), dp.Inode().Inumber())
	fs.CloseDir(dp)

	// Failed walks leave nothing open behind them
	_, err = fs.OpenPath(nil, "/a/b/nope/deeper")
	assert.ErrorIs(test, err, common.ErrNotFound)
}

func TestDotDotStopsAtRoot(test *testing.T) {
	fs := newTestFS(test, 128)

	dp, err := fs.OpenPath(nil, "/../../..")
	require.NoError(test, err)
	assert.Equal(test, uint32(common.RootDirSector), dp.Inode().Inumber())
	fs.CloseDir(dp)
}

func TestWalkFromRemovedDirectory(test *testing.T) {
	fs := newTestFS(test, 128)
	require.NoError(test, fs.Mkdir(nil, "/gone"))

	cwd, err := fs.OpenPath(nil, "/gone")
	require.NoError(test, err)
	require.NoError(test, fs.Remove(nil, "/gone"))

	_, err = fs.OpenPath(cwd, "")
	assert.ErrorIs(test, err, common.ErrNotFound)
	assert.ErrorIs(test, fs.Create(cwd, "f", 0), common.ErrNotFound)

	// Absolute paths still work
	dp, err := fs.OpenPath(cwd, "/")
	require.NoError(test, err)
	fs.CloseDir(dp)
	fs.CloseDir(cwd)
}
