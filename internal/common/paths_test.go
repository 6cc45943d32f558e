package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	abs, err := CleanPath("/tmp/starload/../starload/dwh.cfg")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/starload/dwh.cfg", abs)

	_, err = CleanPath("../../etc/passwd")
	assert.Error(t, err)

	rel, err := CleanPath("starload.yaml")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(rel))
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandHome("~/.starload/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".starload", "config.yaml"), got)

	got, err = ExpandHome("/etc/dwh.cfg")
	require.NoError(t, err)
	assert.Equal(t, "/etc/dwh.cfg", got)
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "dwh.cfg")
	require.NoError(t, os.WriteFile(file, []byte("[S3]\n"), FilePermissionSecure))

	assert.True(t, FileExists(file))
	assert.False(t, FileExists(dir))
	assert.False(t, FileExists(filepath.Join(dir, "missing.cfg")))
}
