package reconcile

import (
	"context"
	"fmt"
	"os"

	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/staging"
)

const (
	reasonExcluded   = "excluded file"
	reasonSuperseded = "old snapshot"
)

// Executor applies plans to a backend.
type Executor struct {
	backend blob.Backend
	log     OpLog
	dryRun  bool
}

func NewExecutor(backend blob.Backend, log OpLog, dryRun bool) *Executor {
	if log == nil {
		log = SlogOpLog{}
	}
	return &Executor{backend: backend, log: log, dryRun: dryRun}
}

// Execute applies plan in a fixed order: uploads, source-only uploads,
// excluded deletes, superseded snapshot deletes, then renames. Nothing is
// deleted before every upload succeeded. The first failure stops the run.
func (e *Executor) Execute(ctx context.Context, plan *Plan) error {
	bucket := plan.Target.Bucket

	for _, up := range plan.Uploads {
		if err := e.upload(ctx, bucket, up); err != nil {
			return err
		}
	}
	for _, up := range plan.SourceUploads {
		if err := e.upload(ctx, bucket, up); err != nil {
			return err
		}
	}
	for _, del := range plan.ExcludeDeletes {
		if err := e.delete(ctx, bucket, del, reasonExcluded); err != nil {
			return err
		}
	}
	for _, del := range plan.SnapshotDeletes {
		if err := e.delete(ctx, bucket, del, reasonSuperseded); err != nil {
			return err
		}
	}
	for _, rn := range plan.Renames {
		if err := e.rename(ctx, bucket, rn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) upload(ctx context.Context, bucket string, up Upload) error {
	info, err := os.Stat(up.LocalPath)
	if err != nil {
		return &staging.LocalIOError{Op: "stat", Path: up.LocalPath, Err: err}
	}

	e.log.Record(Operation{Kind: OpUpload, Bucket: bucket, Key: up.Key, From: up.Path, Size: info.Size(), DryRun: e.dryRun})
	if e.dryRun {
		return nil
	}

	file, err := os.Open(up.LocalPath)
	if err != nil {
		return &staging.LocalIOError{Op: "open", Path: up.LocalPath, Err: err}
	}
	defer file.Close()

	_, err = e.backend.PutObject(ctx, &blob.PutObjectParams{
		Bucket: bucket,
		Key:    up.Key,
		Size:   info.Size(),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", up.Path, err)
	}
	return nil
}

func (e *Executor) delete(ctx context.Context, bucket string, del Delete, reason string) error {
	e.log.Record(Operation{Kind: OpDelete, Bucket: bucket, Key: del.Key, Reason: reason, DryRun: e.dryRun})
	if e.dryRun {
		return nil
	}

	if err := e.backend.DeleteObject(ctx, bucket, del.Key); err != nil {
		return fmt.Errorf("delete %s: %w", del.Path, err)
	}
	return nil
}

func (e *Executor) rename(ctx context.Context, bucket string, rn Rename) error {
	e.log.Record(Operation{Kind: OpRename, Bucket: bucket, Key: rn.NewKey, From: rn.SourceKey, DryRun: e.dryRun})
	if e.dryRun {
		return nil
	}

	_, err := e.backend.CopyObject(ctx, &blob.CopyObjectParams{
		SourceBucket:      bucket,
		SourceKey:         rn.SourceKey,
		DestinationBucket: bucket,
		DestinationKey:    rn.NewKey,
	})
	if err != nil {
		return fmt.Errorf("rename %s: %w", rn.SourceKey, err)
	}
	if err := e.backend.DeleteObject(ctx, bucket, rn.SourceKey); err != nil {
		return fmt.Errorf("rename %s: %w", rn.SourceKey, err)
	}
	return nil
}
