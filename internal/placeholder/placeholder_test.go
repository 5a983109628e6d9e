package placeholder

import (
	"os"
	"path/filepath"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/staging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listFiles(t *testing.T, root string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		require.NoError(t, err)
		if d.Type().IsRegular() {
			rel, err := filepath.Rel(root, p)
			require.NoError(t, err)
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestPlan(t *testing.T) {
	declared := []string{"a.rpm", "x86_64/b.rpm", "c.rpm", "a.rpm"}
	local := mapset.NewSet("c.rpm")
	remote := mapset.NewSet("a.rpm", "x86_64/b.rpm", "c.rpm")

	needed, err := Plan(declared, local, remote)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.rpm", "x86_64/b.rpm"}, needed)
}

func TestPlan_IntegrityNamesEveryMissingPath(t *testing.T) {
	declared := []string{"a.rpm", "b.rpm", "c.rpm"}
	local := mapset.NewSet[string]()
	remote := mapset.NewSet("a.rpm")

	_, err := Plan(declared, local, remote)
	require.Error(t, err)
	assert.ErrorIs(t, err, repomd.ErrIntegrity)

	var integrity *repomd.IntegrityError
	require.ErrorAs(t, err, &integrity)
	assert.Equal(t, []string{"b.rpm", "c.rpm"}, integrity.Paths)
	assert.Contains(t, err.Error(), "b.rpm")
}

func TestSynthesize_RoundTrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "new.rpm"), []byte("new"), 0o644))
	before := listFiles(t, root)

	set, err := Synthesize(root, []string{"a.rpm", "x86_64/b.rpm"})
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains("x86_64/b.rpm"))

	info, err := os.Stat(filepath.Join(root, "x86_64", "b.rpm"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	// the indexer adds its output while placeholders exist
	require.NoError(t, os.MkdirAll(filepath.Join(root, "repodata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "repodata", "repomd.xml"), []byte("<repomd/>"), 0o644))

	require.NoError(t, set.Remove())
	assert.Zero(t, set.Len())
	assert.Equal(t, append(before, "repodata/repomd.xml"), listFiles(t, root))
}

func TestSynthesize_CollisionIsFatal(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.rpm"), []byte("real"), 0o644))

	_, err := Synthesize(root, []string{"a.rpm", "b.rpm"})
	require.Error(t, err)
	assert.ErrorIs(t, err, staging.ErrLocalIO)

	// the placeholder created before the collision is gone, the real file kept
	assert.NoFileExists(t, filepath.Join(root, "a.rpm"))
	data, err := os.ReadFile(filepath.Join(root, "b.rpm"))
	require.NoError(t, err)
	assert.Equal(t, "real", string(data))
}
