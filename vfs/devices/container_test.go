package devices

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/xcontent"
)

// writeZip creates an archive with the given members; names ending in "/"
// become directory members.
func writeZip(t *testing.T, members map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "package.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func newContainer(t *testing.T, opts ContainerOptions) *ContainerDevice {
	t.Helper()
	path := writeZip(t, map[string]string{
		"default.xex":            "XEX2",
		"media/movies/intro.wmv": "movie",
		"empty/":                 "",
	})
	d := NewContainerDevice(`\Device\Content\0`, path, opts)
	require.NoError(t, d.Initialize())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestContainerDevice_Tree(t *testing.T) {
	d := newContainer(t, ContainerOptions{})

	assert.True(t, d.IsReadOnly())
	assert.Equal(t, vfs.BackingContainer, d.Root().Kind())

	media := d.ResolvePath("MEDIA")
	require.NotNil(t, media, "implied directory")
	assert.True(t, media.IsDirectory())

	intro := d.ResolvePath(`media\movies\intro.wmv`)
	require.NotNil(t, intro)
	assert.Equal(t, int64(5), intro.Size())
	assert.True(t, intro.IsReadOnly())

	empty := d.ResolvePath("empty")
	require.NotNil(t, empty)
	assert.True(t, empty.IsDirectory())
	assert.Empty(t, empty.Children())
}

func TestContainerDevice_Read(t *testing.T) {
	d := newContainer(t, ContainerOptions{})
	intro := d.ResolvePath(`media\movies\intro.wmv`)
	assert.False(t, intro.CanMap())

	f, err := intro.Open(types.GenericRead)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 16)
	n, err := f.ReadAt(buf, 1)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "ovie", string(buf[:n]))

	_, err = f.WriteAt([]byte("x"), 0)
	require.ErrorIs(t, err, types.StatusAccessDenied)
}

func TestContainerDevice_ReadOnly(t *testing.T) {
	d := newContainer(t, ContainerOptions{})

	_, err := d.Root().CreateEntry("new", types.AttributeNormal)
	require.ErrorIs(t, err, vfs.ErrReadOnly)
	require.ErrorIs(t, d.ResolvePath("default.xex").Remove(), vfs.ErrReadOnly)

	_, err = d.ResolvePath("default.xex").Open(types.FileWriteData)
	require.ErrorIs(t, err, types.StatusAccessDenied)

	_, err = d.ResolvePath("default.xex").OpenMapped(false)
	require.ErrorIs(t, err, vfs.ErrNotMappable)
}

func packageHeader(t *testing.T) string {
	t.Helper()
	h := xcontent.ContainerHeader{
		Signature:   xcontent.SignaturePIRS,
		ContentType: xcontent.ContentMarketplace,
		TitleID:     0x415607D1,
		XUID:        0xE0000123,
		DisplayName: "Stage Pack",
	}
	h.Licenses[0] = xcontent.License{ID: 0xFFFFFFFFFFFFFFFF, Bits: 0x2, Flags: 1}
	h.Licenses[1] = xcontent.License{Bits: 0x4}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	return string(buf)
}

func TestContainerDevice_PackageHeader(t *testing.T) {
	path := writeZip(t, map[string]string{
		xcontent.ContainerHeaderMember: packageHeader(t),
		"default.xex":                  "XEX2",
	})
	d := NewContainerDevice(`\Device\Content\0`, path, ContainerOptions{})
	require.NoError(t, d.Initialize())
	t.Cleanup(func() { _ = d.Close() })

	h, ok := d.Header()
	require.True(t, ok)
	assert.Equal(t, xcontent.SignaturePIRS, h.Signature)
	assert.Equal(t, uint32(0x415607D1), d.TitleID())
	assert.Equal(t, uint64(0xE0000123), d.XUID())
	assert.Equal(t, xcontent.ContentMarketplace, d.ContentType())
	assert.Equal(t, xcontent.AggregateData{
		DeviceID:    1,
		ContentType: xcontent.ContentMarketplace,
		DisplayName: "Stage Pack",
		XUID:        0xE0000123,
		TitleID:     0x415607D1,
	}, d.ContentHeader())
	assert.Equal(t, uint32(0x2), d.LicenseMask())

	assert.Nil(t, d.ResolvePath(xcontent.ContainerHeaderMember), "header member is not content")
	assert.Len(t, d.Root().Children(), 1)
}

func TestContainerDevice_BadPackageHeader(t *testing.T) {
	path := writeZip(t, map[string]string{
		xcontent.ContainerHeaderMember: "PK" + string(make([]byte, xcontent.ContainerHeaderSize)),
	})
	d := NewContainerDevice(`\Device\Content\0`, path, ContainerOptions{})
	require.ErrorIs(t, d.Initialize(), xcontent.ErrBadSignature)

	path = writeZip(t, map[string]string{xcontent.ContainerHeaderMember: "LIVE"})
	d = NewContainerDevice(`\Device\Content\0`, path, ContainerOptions{})
	require.ErrorIs(t, d.Initialize(), xcontent.ErrShortHeader)
}

func TestContainerDevice_NoPackageHeader(t *testing.T) {
	d := newContainer(t, ContainerOptions{})
	_, ok := d.Header()
	assert.False(t, ok)
	assert.Equal(t, xcontent.AggregateData{DeviceID: 1}, d.ContentHeader())
	assert.Zero(t, d.LicenseMask())
}

func TestContainerDevice_Overrides(t *testing.T) {
	header := xcontent.AggregateData{ContentType: xcontent.ContentMarketplace, DisplayName: "DLC", TitleID: 0x415607D1}
	d := newContainer(t, ContainerOptions{
		Header: &header,
		Licenses: []xcontent.License{
			{ID: 1, Bits: 0x1, Flags: 1},
			{ID: 2, Bits: 0x2, Flags: 0},
			{ID: 3, Bits: 0x8, Flags: 4},
		},
	})
	assert.Equal(t, header, d.ContentHeader())
	assert.Equal(t, uint32(0x9), d.LicenseMask())
}

func TestContainerDevice_Geometry(t *testing.T) {
	d := newContainer(t, ContainerOptions{})
	g := d.Geometry()
	assert.Equal(t, uint32(8), g.SectorsPerAllocationUnit)
	assert.Equal(t, uint32(0x200), g.BytesPerSector)
	assert.Equal(t, uint64(1), g.TotalAllocationUnits)
	assert.Zero(t, g.AvailableAllocationUnits)
}

func TestContainerDevice_OpenAfterClose(t *testing.T) {
	d := newContainer(t, ContainerOptions{})
	require.NoError(t, d.Close())
	_, err := d.ResolvePath("default.xex").Open(types.GenericRead)
	require.Error(t, err)
}

func TestContainerDevice_MissingArchive(t *testing.T) {
	d := NewContainerDevice(`\Device\Content\0`, filepath.Join(t.TempDir(), "none.zip"), ContainerOptions{})
	err := d.Initialize()
	require.Error(t, err)
	assert.True(t, types.IsHostError(err))
}
