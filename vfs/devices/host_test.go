package devices

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newHostDevice(t *testing.T, readOnly bool) (*HostPathDevice, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "default.xex"), "XEX2")
	writeFile(t, filepath.Join(dir, "media", "Audio", "track.xma"), "xma-data")
	d := NewHostPathDevice(`\Device\Harddisk0\Partition1`, dir, readOnly)
	require.NoError(t, d.Initialize())
	return d, dir
}

func TestHostPathDevice_Initialize(t *testing.T) {
	d, dir := newHostDevice(t, false)

	root := d.Root()
	require.NotNil(t, root)
	assert.True(t, root.IsDirectory())
	assert.Equal(t, dir, root.HostPath())
	assert.Equal(t, vfs.BackingHost, root.Kind())

	xex := d.ResolvePath("DEFAULT.XEX")
	require.NotNil(t, xex)
	assert.Equal(t, int64(4), xex.Size())
	assert.False(t, xex.IsDirectory())

	track := d.ResolvePath(`media\audio\track.xma`)
	require.NotNil(t, track)
	assert.Equal(t, `media\Audio\track.xma`, track.Path())
	assert.Equal(t, `\Device\Harddisk0\Partition1\media\Audio\track.xma`, track.AbsolutePath())
	assert.Equal(t, filepath.Join(dir, "media", "Audio", "track.xma"), track.HostPath())

	assert.Nil(t, d.ResolvePath("missing"))
}

func TestHostPathDevice_InitializeCreatesWritableRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache0")
	d := NewHostPathDevice(`\CACHE0`, dir, false)
	require.NoError(t, d.Initialize())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Empty(t, d.Root().Children())
}

func TestHostPathDevice_InitializeReadOnlyMissing(t *testing.T) {
	d := NewHostPathDevice(`\Device\Cdrom0`, filepath.Join(t.TempDir(), "missing"), true)
	err := d.Initialize()
	require.Error(t, err)
	assert.True(t, types.IsHostError(err))
}

func TestHostPathDevice_CreateAndDelete(t *testing.T) {
	d, dir := newHostDevice(t, false)

	saves, err := d.Root().CreateEntry("saves", types.AttributeDirectory)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "saves"))

	slot, err := saves.CreateEntry("slot0.sav", types.AttributeNormal)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "saves", "slot0.sav"))
	assert.Same(t, slot, d.ResolvePath(`saves\slot0.sav`))

	_, err = saves.CreateEntry("SLOT0.SAV", types.AttributeNormal)
	require.ErrorIs(t, err, vfs.ErrExists)

	require.NoError(t, slot.Remove())
	assert.NoFileExists(t, filepath.Join(dir, "saves", "slot0.sav"))
	assert.Nil(t, d.ResolvePath(`saves\slot0.sav`))

	require.NoError(t, saves.Remove())
	assert.NoDirExists(t, filepath.Join(dir, "saves"))
}

func TestHostPathDevice_DeleteMissingOnHost(t *testing.T) {
	d, dir := newHostDevice(t, false)
	xex := d.ResolvePath("default.xex")
	require.NoError(t, os.Remove(filepath.Join(dir, "default.xex")))

	require.NoError(t, xex.Remove())
	assert.Nil(t, d.ResolvePath("default.xex"))
}

func TestHostPathDevice_ReadOnly(t *testing.T) {
	d, _ := newHostDevice(t, true)

	_, err := d.Root().CreateEntry("new", types.AttributeNormal)
	require.ErrorIs(t, err, vfs.ErrReadOnly)
	require.ErrorIs(t, d.ResolvePath("default.xex").Remove(), vfs.ErrReadOnly)

	_, err = d.ResolvePath("default.xex").Open(types.FileWriteData)
	require.ErrorIs(t, err, types.StatusAccessDenied)
}

func TestHostFile_ReadWrite(t *testing.T) {
	d, dir := newHostDevice(t, false)
	xex := d.ResolvePath("default.xex")

	f, err := xex.Open(types.GenericRead | types.GenericWrite)
	require.NoError(t, err)
	defer f.Close()
	assert.Same(t, xex, f.Entry())
	assert.NotZero(t, f.Access()&types.FileWriteData)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "XEX2", string(buf[:n]))

	_, err = f.WriteAt([]byte("++"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(6), xex.Size())

	require.NoError(t, f.SetLength(2))
	assert.Equal(t, int64(2), xex.Size())

	got, err := os.ReadFile(filepath.Join(dir, "default.xex"))
	require.NoError(t, err)
	assert.Equal(t, "XE", string(got))
}

func TestHostFile_AccessChecks(t *testing.T) {
	d, _ := newHostDevice(t, false)

	f, err := d.ResolvePath("default.xex").Open(types.GenericRead)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("x"), 0)
	require.ErrorIs(t, err, types.StatusAccessDenied)
	require.ErrorIs(t, f.SetLength(0), types.StatusAccessDenied)
	require.NoError(t, f.Close())

	_, err = f.ReadAt(make([]byte, 1), 0)
	require.ErrorIs(t, err, os.ErrClosed)

	dirHandle, err := d.ResolvePath("media").Open(types.GenericRead)
	require.NoError(t, err)
	_, err = dirHandle.ReadAt(make([]byte, 1), 0)
	require.ErrorIs(t, err, types.StatusFileIsADirectory)
}

func TestHostPathDevice_Mapped(t *testing.T) {
	d, _ := newHostDevice(t, false)
	track := d.ResolvePath(`media\Audio\track.xma`)
	require.True(t, track.CanMap())
	assert.False(t, d.ResolvePath("media").CanMap())

	m, err := track.OpenMapped(false)
	require.NoError(t, err)
	assert.Equal(t, "xma-data", string(m.Bytes()))
	require.NoError(t, m.Close())
}

func TestHostPathDevice_Geometry(t *testing.T) {
	d, _ := newHostDevice(t, false)
	assert.Equal(t, vfs.DefaultGeometry, d.Geometry())
}
