package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/device"
	"github.com/jnwhiteh/sectorfs/fs"
)

func newTestExplorer(test *testing.T) (*explorer, *bytes.Buffer) {
	fsys, err := fs.Format(device.NewRamDisk(1024), 16)
	require.NoError(test, err)

	out := bytes.NewBuffer(nil)
	ex, err := newExplorer(fsys, out)
	require.NoError(test, err)
	test.Cleanup(func() {
		ex.close()
		require.NoError(test, fsys.Unmount())
	})
	return ex, out
}

// run feeds a script to the explorer and returns what it printed.
func run(ex *explorer, out *bytes.Buffer, script ...string) string {
	out.Reset()
	ex.repl(strings.NewReader(strings.Join(script, "\n")), false)
	return out.String()
}

func TestSession(test *testing.T) {
	ex, out := newTestExplorer(test)

	local := filepath.Join(test.TempDir(), "hello.txt")
	require.NoError(test, os.WriteFile(local, []byte("hello, world\n"), 0o644))

	got := run(ex, out,
		"mkdir docs",
		"cd docs",
		"put "+local+" hello",
		"cat hello",
		"pwd",
	)
	assert.Equal(test, "wrote 13 B to hello\nhello, world\n/docs\n", got)

	got = run(ex, out, "cd ..", "ls")
	assert.Regexp(test, `^d +\d+ +48 docs\n$`, got)

	got = run(ex, out, "ls /docs")
	assert.Regexp(test, `^- +\d+ +13 hello\n$`, got)

	got = run(ex, out, "stat docs/hello")
	assert.Contains(test, got, "Type: regular file")
	assert.Contains(test, got, "Size: 13 (13 B)")
}

func TestErrors(test *testing.T) {
	ex, out := newTestExplorer(test)

	got := run(ex, out,
		"bogus",
		"cd",
		"cd nowhere",
		"mkdir d",
		"cat d",
		"rm /",
	)
	assert.Equal(test, strings.Join([]string{
		"bogus is not a valid command",
		"Usage: cd dir",
		"cd: no such file or directory",
		"cat: is a directory",
		"rm: resource busy",
		"",
	}, "\n"), got)
	assert.Equal(test, "/", ex.pwd)
}

func TestRemoveAndDf(test *testing.T) {
	ex, out := newTestExplorer(test)

	before := run(ex, out, "df")
	run(ex, out, "mkdir a", "mkdir a/b")
	assert.NotEqual(test, before, run(ex, out, "df"))

	assert.Equal(test, "rm: directory not empty\n", run(ex, out, "rm a"))
	assert.Empty(test, run(ex, out, "rm a/b", "rm a", "ls"))
	assert.Equal(test, before, run(ex, out, "df"))
}

func TestDump(test *testing.T) {
	ex, out := newTestExplorer(test)
	got := run(ex, out, "dump 1")
	assert.Contains(test, got, "INODE #")
	assert.Contains(test, got, "dir")

	assert.Contains(test, run(ex, out, "dump 99999"), "dump: ")
}
