package fsys

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemFS(t *testing.T) (*Afero, afero.Fs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/state/skills", 0o700))
	require.NoError(t, afero.WriteFile(mem, "/state/openclaw.json", []byte(`{}`), 0o644))
	require.NoError(t, mem.Chmod("/state/openclaw.json", 0o666))
	return New(mem), mem
}

func TestFileInfo_MissingIsNotAnError(t *testing.T) {
	f, _ := newMemFS(t)

	info, err := f.FileInfo("/state/nope.json")
	require.NoError(t, err)
	assert.False(t, info.Exists)
	assert.Equal(t, "/state/nope.json", info.Path)
}

func TestFileInfo_ReportsPermissionBits(t *testing.T) {
	f, _ := newMemFS(t)

	info, err := f.FileInfo("/state/openclaw.json")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.False(t, info.IsDir)
	assert.Equal(t, fs.FileMode(0o666), info.Permissions)
	assert.Equal(t, int64(2), info.Size)
}

func TestReadFile_MissingMatchesErrNotExist(t *testing.T) {
	f, _ := newMemFS(t)

	_, err := f.ReadFile("/state/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestListDir_Sorted(t *testing.T) {
	f, mem := newMemFS(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, mem.MkdirAll("/state/skills/"+name, 0o700))
	}

	names, err := f.ListDir("/state/skills")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestFilePermissions(t *testing.T) {
	f, _ := newMemFS(t)

	perm, err := f.FilePermissions("/state/openclaw.json")
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0o666), perm)

	_, err = f.FilePermissions("/state/none")
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	ok, err := f.FileExists("/state/skills")
	require.NoError(t, err)
	assert.True(t, ok)
}
