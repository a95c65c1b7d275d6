package vfs_test

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/guestkit/pkg/types"
	"github.com/joshuapare/guestkit/vfs"
	"github.com/joshuapare/guestkit/vfs/devices"
	"github.com/joshuapare/guestkit/vfs/xcontent"
)

func newContainer(t *testing.T, opts devices.ContainerOptions) *devices.ContainerDevice {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content.zip")
	out, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	for _, m := range []struct{ name, data string }{
		{"default.xex", "XEX2"},
		{"media/", ""},
		{"media/movies/intro.wmv", "movie"},
	} {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(m.data))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())

	d := devices.NewContainerDevice(`\Device\Content\0`, path, opts)
	require.NoError(t, d.Initialize())
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func readHost(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExtractContentFiles_Host(t *testing.T) {
	f := newFixture(t, false)
	dest := t.TempDir()

	var progress atomic.Uint64
	require.NoError(t, f.fs.ExtractContentFiles(context.Background(), f.dev, dest, &progress))

	assert.Equal(t, "XEX2", readHost(t, filepath.Join(dest, "default.xex")))
	assert.Equal(t, "movie", readHost(t, filepath.Join(dest, "media", "intro.wmv")))
	assert.Equal(t, uint64(len("XEX2")+len("movie")), progress.Load())
}

func TestExtractContentFiles_Container(t *testing.T) {
	d := newContainer(t, devices.ContainerOptions{})
	dest := t.TempDir()

	var progress atomic.Uint64
	require.NoError(t, vfs.New(vfs.Options{}).ExtractContentFiles(context.Background(), d, dest, &progress))

	assert.Equal(t, "XEX2", readHost(t, filepath.Join(dest, "default.xex")))
	assert.Equal(t, "movie", readHost(t, filepath.Join(dest, "media", "movies", "intro.wmv")))
	assert.Equal(t, uint64(9), progress.Load())
}

func TestExtractContentFiles_HostErrorsSkipped(t *testing.T) {
	f := newFixture(t, false)
	dest := t.TempDir()
	// A file where the media directory must go.
	require.NoError(t, os.WriteFile(filepath.Join(dest, "media"), []byte("in the way"), 0o644))

	err := f.fs.ExtractContentFiles(context.Background(), f.dev, dest, nil)
	require.Error(t, err)
	assert.True(t, types.IsHostError(err))
	assert.Equal(t, "XEX2", readHost(t, filepath.Join(dest, "default.xex")), "other entries still extracted")
}

func TestExtractContentFiles_Cancelled(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.fs.ExtractContentFiles(ctx, f.dev, t.TempDir(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtractContentFile_ToRoot(t *testing.T) {
	f := newFixture(t, false)
	intro, err := f.fs.ResolvePath(`d:\media\intro.wmv`)
	require.NoError(t, err)
	dest := t.TempDir()

	var progress atomic.Uint64
	require.NoError(t, f.fs.ExtractContentFile(intro, dest, &progress, true))
	assert.Equal(t, "movie", readHost(t, filepath.Join(dest, "intro.wmv")))
	assert.NoDirExists(t, filepath.Join(dest, "media"))
	assert.Equal(t, uint64(5), progress.Load())
}

func TestExtractContentFile_Empty(t *testing.T) {
	f := newFixture(t, false)
	empty, err := f.fs.CreatePath(`d:\empty.bin`, types.AttributeNormal)
	require.NoError(t, err)
	dest := t.TempDir()

	require.NoError(t, f.fs.ExtractContentFile(empty, dest, nil, false))
	assert.Equal(t, "", readHost(t, filepath.Join(dest, "empty.bin")))
}

func TestExtractContentHeader(t *testing.T) {
	header := xcontent.AggregateData{
		DeviceID:    1,
		ContentType: xcontent.ContentMarketplace,
		DisplayName: "Map Pack",
		FileName:    "ignored",
		TitleID:     0x4D5307E6,
	}
	d := newContainer(t, devices.ContainerOptions{
		Header:   &header,
		Licenses: []xcontent.License{{Bits: 0x3, Flags: 1}, {Bits: 0x4}},
	})
	dest := filepath.Join(t.TempDir(), "content", "0000000000000001")

	require.NoError(t, vfs.ExtractContentHeader(d, dest))

	r, err := os.Open(dest + ".header")
	require.NoError(t, err)
	defer r.Close()
	got, mask, err := xcontent.ReadHeader(r)
	require.NoError(t, err)

	header.FileName = "0000000000000001"
	assert.Equal(t, header, got)
	assert.Equal(t, uint32(0x3), mask)

	info, err := r.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(xcontent.HeaderSize), info.Size())
}

func TestExtractContentHeader_LongFileName(t *testing.T) {
	d := newContainer(t, devices.ContainerOptions{Header: &xcontent.AggregateData{TitleID: 1}})
	name := strings.Repeat("n", xcontent.FileNameBytes+8)
	dest := filepath.Join(t.TempDir(), name)

	require.NoError(t, vfs.ExtractContentHeader(d, dest))

	r, err := os.Open(dest + ".header")
	require.NoError(t, err)
	defer r.Close()
	got, _, err := xcontent.ReadHeader(r)
	require.NoError(t, err)
	assert.Equal(t, name[:xcontent.FileNameBytes], got.FileName)
}

func TestExtractContentHeader_EncodingErrorIsNotHostError(t *testing.T) {
	d := newContainer(t, devices.ContainerOptions{Header: &xcontent.AggregateData{
		DisplayName: strings.Repeat("x", xcontent.DisplayNameUnits+1),
	}})
	dest := filepath.Join(t.TempDir(), "0000000000000001")

	err := vfs.ExtractContentHeader(d, dest)
	require.ErrorIs(t, err, xcontent.ErrNameTooLong)
	assert.False(t, types.IsHostError(err))
	assert.NoFileExists(t, dest+".header")
}

// TestExtractContentFiles_ConcurrentCreate extracts while another goroutine
// keeps adding files to the same tree. Run with -race.
func TestExtractContentFiles_ConcurrentCreate(t *testing.T) {
	f := newFixture(t, false)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 50 {
			file, _, err := f.fs.OpenFile(nil, fmt.Sprintf(`d:\media\clip%02d.bin`, i),
				types.DispositionCreate, types.FileWriteData, false, true)
			if !assert.NoError(t, err) {
				return
			}
			_, err = file.WriteAt([]byte("data"), 0)
			assert.NoError(t, err)
			assert.NoError(t, file.Close())
		}
	}()
	go func() {
		defer wg.Done()
		for range 10 {
			assert.NoError(t, f.fs.ExtractContentFiles(context.Background(), f.dev, t.TempDir(), nil))
		}
	}()
	wg.Wait()

	dest := t.TempDir()
	require.NoError(t, f.fs.ExtractContentFiles(context.Background(), f.dev, dest, nil))
	assert.Equal(t, "data", readHost(t, filepath.Join(dest, "media", "clip49.bin")))
}
