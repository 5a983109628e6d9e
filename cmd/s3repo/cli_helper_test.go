package main

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/config"
	"github.com/openmined/s3repo/internal/indexer"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/repomd/repomdtest"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command in-process and returns what it printed.
func runCLI(t *testing.T, args ...string) (stdout string, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)

	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// useMemoryBackend makes every command talk to an in-memory store.
func useMemoryBackend(t *testing.T, buckets ...string) *blob.MemoryBackend {
	t.Helper()

	backend := blob.NewMemoryBackend(buckets...)
	orig := newBackend
	newBackend = func(ctx context.Context, cfg *config.Config) (blob.Backend, error) {
		return backend, nil
	}
	t.Cleanup(func() { newBackend = orig })
	return backend
}

// useTreeIndexer replaces createrepo with a generator that declares every
// non-metadata file in the tree.
func useTreeIndexer(t *testing.T) {
	t.Helper()

	orig := newIndexer
	newIndexer = func(cfg *config.Config, flags []string) indexer.Indexer {
		return indexer.Func(func(ctx context.Context, root string, incremental bool, extraArgs []string) error {
			var members []string
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if d.IsDir() {
					if d.Name() == repomd.DefaultLayout.Folder {
						return fs.SkipDir
					}
					return nil
				}
				rel, err := filepath.Rel(root, p)
				if err != nil {
					return err
				}
				members = append(members, filepath.ToSlash(rel))
				return nil
			})
			if err != nil {
				return err
			}
			slices.Sort(members)
			return repomdtest.Write(root, members)
		})
	}
	t.Cleanup(func() { newIndexer = orig })
}

// seedRepo stores files under repo plus an index declaring declared.
func seedRepo(t *testing.T, backend *blob.MemoryBackend, repo repoaddr.Address, files map[string]string, declared []string) {
	t.Helper()

	for p, data := range files {
		backend.Seed(repo.Bucket, repo.Key(p), []byte(data))
	}

	root := t.TempDir()
	require.NoError(t, repomdtest.Write(root, declared))
	for _, name := range []string{"primary.xml.gz", "repomd.xml"} {
		data, err := os.ReadFile(filepath.Join(root, "repodata", name))
		require.NoError(t, err)
		backend.Seed(repo.Bucket, repo.Key("repodata/"+name), data)
	}
}
