package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordsOperationsInOrder(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	runID, err := j.Begin(ctx, "rebuild", "s3://src/repo", "s3://dst/repo", false)
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	j.Record(reconcile.Operation{Kind: reconcile.OpUpload, Bucket: "dst", Key: "repo/a.rpm", From: "a.rpm", Size: 42})
	j.Record(reconcile.Operation{Kind: reconcile.OpDelete, Bucket: "dst", Key: "repo/old.rpm", Reason: "old snapshot"})
	j.Record(reconcile.Operation{Kind: reconcile.OpRename, Bucket: "dst", Key: "repo/b-SNAPSHOT.rpm", From: "repo/b-SNAPSHOT2.rpm"})

	entries, err := j.Operations(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "upload", entries[0].Kind)
	assert.Equal(t, int64(42), entries[0].Size)
	assert.Equal(t, "old snapshot", entries[1].Reason)
	assert.Equal(t, "repo/b-SNAPSHOT2.rpm", entries[2].Source)

	require.NoError(t, j.Finish(ctx, nil))
	runs, err := j.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusSucceeded, runs[0].Status)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Nil(t, runs[0].Error)
}

func TestJournal_FailedRun(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)

	_, err := j.Begin(ctx, "add", "s3://b", "s3://b", true)
	require.NoError(t, err)
	require.NoError(t, j.Finish(ctx, errors.New("indexer returned '1'")))

	runs, err := j.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "indexer")
	assert.True(t, runs[0].DryRun)
}

func TestJournal_FinishWithoutRun(t *testing.T) {
	j := openJournal(t)
	assert.Error(t, j.Finish(context.Background(), nil))

	// recording without a run is dropped
	j.Record(reconcile.Operation{Kind: reconcile.OpUpload})
}
