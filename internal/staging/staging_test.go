package staging

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newDir(t *testing.T) *Dir {
	t.Helper()
	d, err := NewDir(filepath.Join(t.TempDir(), "staging"))
	require.NoError(t, err)
	require.NoError(t, d.Ensure())
	return d
}

func TestDir_Locking_SingleInstance(t *testing.T) {
	root := filepath.Join(t.TempDir(), "staging")

	d1, err := NewDir(root)
	require.NoError(t, err)
	d2, err := NewDir(root)
	require.NoError(t, err)

	require.NoError(t, d1.Lock())
	assert.ErrorIs(t, d2.Lock(), ErrLocked)

	require.NoError(t, d1.Unlock())
	assert.NoFileExists(t, root+lockSuffix)

	require.NoError(t, d2.Lock())
	require.NoError(t, d2.Unlock())

	// unlocking without holding the lock is a no-op
	require.NoError(t, d1.Unlock())
}

func TestDir_PreClean(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.Path("a/b.rpm"), "x")
	writeFile(t, d.Path("c.rpm"), "y")

	require.NoError(t, d.PreClean())
	files, err := d.ListFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.DirExists(t, d.Root)

	missing, err := NewDir(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	require.NoError(t, missing.PreClean())
	assert.DirExists(t, missing.Root)
}

func TestDir_ListFiles(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.Path("x86_64/b.rpm"), "b")
	writeFile(t, d.Path("a.rpm"), "a")
	writeFile(t, d.Path("repodata/repomd.xml"), "<repomd/>")
	require.NoError(t, os.MkdirAll(d.Path("empty"), 0o755))

	files, err := d.ListFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rpm", "repodata/repomd.xml", "x86_64/b.rpm"}, files)

	files, err = d.ListFilesUnder("repodata")
	require.NoError(t, err)
	assert.Equal(t, []string{"repodata/repomd.xml"}, files)

	files, err = d.ListFilesUnder("nope")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestDir_RemoveAndRename(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.Path("pkg-SNAPSHOT-2.rpm"), "2")

	require.NoError(t, d.Rename("pkg-SNAPSHOT-2.rpm", "sub/pkg-SNAPSHOT.rpm"))
	assert.True(t, d.HasFile("sub/pkg-SNAPSHOT.rpm"))
	assert.False(t, d.HasFile("pkg-SNAPSHOT-2.rpm"))

	require.NoError(t, d.Remove("sub/pkg-SNAPSHOT.rpm"))
	err := d.Remove("sub/pkg-SNAPSHOT.rpm")
	assert.ErrorIs(t, err, ErrLocalIO)

	require.NoError(t, d.RemoveEmptyDirs())
	assert.NoDirExists(t, d.Path("sub"))
	assert.DirExists(t, d.Root)
}

func TestDir_Download(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)
	backend := blob.NewMemoryBackend("bucket")
	backend.Seed("bucket", "repo/x86_64/a.rpm", []byte("remote"))

	downloaded, err := d.Download(ctx, backend, "bucket", "repo/x86_64/a.rpm", "x86_64/a.rpm", 6)
	require.NoError(t, err)
	assert.True(t, downloaded)
	data, err := os.ReadFile(d.Path("x86_64/a.rpm"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	// existing local files win
	writeFile(t, d.Path("b.rpm"), "local")
	backend.Seed("bucket", "repo/b.rpm", []byte("remote"))
	downloaded, err = d.Download(ctx, backend, "bucket", "repo/b.rpm", "b.rpm", 6)
	require.NoError(t, err)
	assert.False(t, downloaded)

	_, err = d.Download(ctx, backend, "bucket", "repo/missing.rpm", "missing.rpm", -1)
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.False(t, d.HasFile("missing.rpm"))
}

func TestDir_DownloadReplacesEmptyFile(t *testing.T) {
	ctx := context.Background()
	d := newDir(t)
	backend := blob.NewMemoryBackend("bucket")
	backend.Seed("bucket", "repo/a.rpm", []byte("remote"))
	backend.Seed("bucket", "repo/empty.rpm", []byte{})

	// a zero-length file left by an interrupted run
	writeFile(t, d.Path("a.rpm"), "")
	downloaded, err := d.Download(ctx, backend, "bucket", "repo/a.rpm", "a.rpm", 6)
	require.NoError(t, err)
	assert.True(t, downloaded)
	data, err := os.ReadFile(d.Path("a.rpm"))
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	// empty objects and unknown sizes keep the local file
	writeFile(t, d.Path("empty.rpm"), "")
	downloaded, err = d.Download(ctx, backend, "bucket", "repo/empty.rpm", "empty.rpm", 0)
	require.NoError(t, err)
	assert.False(t, downloaded)

	writeFile(t, d.Path("b.rpm"), "")
	downloaded, err = d.Download(ctx, backend, "bucket", "repo/a.rpm", "b.rpm", -1)
	require.NoError(t, err)
	assert.False(t, downloaded)
}

func TestDir_Truncated(t *testing.T) {
	d := newDir(t)
	writeFile(t, d.Path("empty.rpm"), "")
	writeFile(t, d.Path("full.rpm"), "data")

	assert.True(t, d.Truncated("empty.rpm", 4))
	assert.False(t, d.Truncated("empty.rpm", 0))
	assert.False(t, d.Truncated("empty.rpm", -1))
	assert.False(t, d.Truncated("full.rpm", 10))
	assert.False(t, d.Truncated("missing.rpm", 4))
}

func TestDir_AddFiles(t *testing.T) {
	d := newDir(t)
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "pkg-1.0-SNAPSHOT.rpm"), "snap")
	writeFile(t, filepath.Join(src, "tool-2.0.rpm"), "tool")

	taken := mapset.NewSet("x86_64/pkg-1.0-SNAPSHOT.rpm")
	writeFile(t, d.Path("x86_64/pkg-1.0-SNAPSHOT-1.rpm"), "placeholder")

	opts := AddOptions{Numberer: snapshot.Default(), AutoIncrement: true, Taken: taken}
	added, err := d.AddFiles([]Addition{
		{Source: filepath.Join(src, "pkg-1.0-SNAPSHOT.rpm"), Subfolder: "x86_64"},
		{Source: filepath.Join(src, "tool-2.0.rpm"), Subfolder: "noarch"},
	}, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"x86_64/pkg-1.0-SNAPSHOT-2.rpm", "noarch/tool-2.0.rpm"}, added)
	assert.True(t, taken.Contains("noarch/tool-2.0.rpm"))

	data, err := os.ReadFile(d.Path("x86_64/pkg-1.0-SNAPSHOT-2.rpm"))
	require.NoError(t, err)
	assert.Equal(t, "snap", string(data))

	// non-volatile collision is fatal
	_, err = d.AddFiles([]Addition{{Source: filepath.Join(src, "tool-2.0.rpm"), Subfolder: "noarch"}}, opts)
	assert.ErrorIs(t, err, ErrExists)

	// volatile collision without auto increment is fatal too
	opts.AutoIncrement = false
	_, err = d.AddFiles([]Addition{{Source: filepath.Join(src, "pkg-1.0-SNAPSHOT.rpm"), Subfolder: "x86_64"}}, opts)
	assert.ErrorIs(t, err, ErrExists)
}
