package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnwhiteh/sectorfs/common"
)

// chdir moves into a fresh directory so a stray .env cannot leak in.
func chdir(test *testing.T) string {
	dir := test.TempDir()
	old, err := os.Getwd()
	require.NoError(test, err)
	require.NoError(test, os.Chdir(dir))
	test.Cleanup(func() { os.Chdir(old) })
	return dir
}

func TestDefaults(test *testing.T) {
	chdir(test)
	c, err := Load("")
	require.NoError(test, err)
	assert.Equal(test, Default(), *c)
	assert.Equal(test, common.DefaultCacheSectors, c.CacheSectors)
}

func TestPrecedence(test *testing.T) {
	dir := chdir(test)

	path := filepath.Join(dir, "sectorfs.yaml")
	require.NoError(test, os.WriteFile(path, []byte("image: from-yaml.img\nsectors: 1024\ncacheSectors: 16\n"), 0o644))
	require.NoError(test, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECTORFS_SECTORS=2048\nSECTORFS_LOG_LEVEL=debug\n"), 0o644))
	test.Cleanup(func() { os.Unsetenv("SECTORFS_SECTORS") })
	test.Setenv("SECTORFS_CACHE_SECTORS", "48")
	// .env only fills in what the environment leaves unset
	test.Setenv("SECTORFS_LOG_LEVEL", "warn")

	c, err := Load(path)
	require.NoError(test, err)
	assert.Equal(test, Config{
		Image:        "from-yaml.img",
		Sectors:      2048,
		CacheSectors: 48,
		LogLevel:     "warn",
	}, *c)
}

func TestMissingFile(test *testing.T) {
	chdir(test)
	c, err := Load("does-not-exist.yaml")
	require.NoError(test, err)
	assert.Equal(test, Default(), *c)
}

func TestInvalid(test *testing.T) {
	dir := chdir(test)
	path := filepath.Join(dir, "bad.yaml")

	require.NoError(test, os.WriteFile(path, []byte("image: x\nbogus: 1\n"), 0o644))
	_, err := Load(path)
	assert.Error(test, err)

	require.NoError(test, os.WriteFile(path, []byte("cacheSectors: 1\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(test, err, "cacheSectors")

	test.Setenv("SECTORFS_SECTORS", "lots")
	_, err = Load("")
	assert.Error(test, err)
}
