// Package rebuild reconciles a repository stored in a bucket with a locally
// regenerated index. A run is a fixed sequence of phases; only the final
// execute phase mutates the store.
package rebuild

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/indexer"
	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/snapshot"
	"github.com/openmined/s3repo/internal/staging"
)

type Engine struct {
	backend    blob.Backend
	dir        *staging.Dir
	indexer    indexer.Indexer
	opts       Options
	source     repoaddr.Address
	target     repoaddr.Address
	layout     repomd.Layout
	classifier staging.Numberer
	repo       *repomd.Repo
}

func NewEngine(backend blob.Backend, dir *staging.Dir, idx indexer.Indexer, opts Options) (*Engine, error) {
	if opts.Target.Bucket == "" {
		return nil, fmt.Errorf("target repository is required")
	}

	e := &Engine{
		backend:    backend,
		dir:        dir,
		indexer:    idx,
		opts:       opts,
		source:     opts.Source,
		target:     opts.Target,
		layout:     opts.Layout,
		classifier: opts.Classifier,
	}
	if e.source.Bucket == "" {
		e.source = e.target
	}
	if e.layout.IndexFile == "" {
		e.layout = repomd.DefaultLayout
	}
	if e.classifier == nil {
		e.classifier = snapshot.Default()
	}
	if e.opts.OpLog == nil {
		e.opts.OpLog = reconcile.SlogOpLog{}
	}
	e.repo = repomd.NewRepoWithLayout(dir.Root, e.layout)
	return e, nil
}

// Run executes one reconciliation. The staging directory is locked for the
// whole run. Nothing in the store changes unless every phase before execute
// succeeded.
func (e *Engine) Run(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	if e.opts.Metrics != nil {
		defer func() { e.opts.Metrics.ObserveRun(start, err) }()
	}

	if err := e.dir.Lock(); err != nil {
		return nil, err
	}
	defer func() {
		if uerr := e.dir.Unlock(); uerr != nil {
			slog.Warn("failed to unlock staging directory", "error", uerr)
		}
	}()

	if e.opts.NoPreClean {
		slog.Warn("not cleaning staging directory", "root", e.dir.Root)
		err = e.dir.Ensure()
	} else {
		err = e.dir.PreClean()
	}
	if err != nil {
		return nil, err
	}

	e.logRepositories()

	if e.opts.RequireBucket {
		if err := e.requireBucket(ctx); err != nil {
			return nil, err
		}
	}

	listing, err := e.list(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.checkExists(listing); err != nil {
		return nil, err
	}

	md, err := e.fetchMetadata(ctx, listing)
	if err != nil {
		return nil, err
	}
	if err := e.validate(listing, md); err != nil {
		return nil, err
	}

	ret := e.retain(listing)
	e.requireFullRebuild(md, ret)
	downloads, err := e.downloadMembers(ctx, listing, md, ret)
	if err != nil {
		return nil, err
	}

	tree, err := e.prepareTree(listing, ret)
	if err != nil {
		return nil, err
	}

	placeholders, err := e.synthesize(listing, md, ret)
	if err != nil {
		return nil, err
	}
	result = &Result{
		Incremental:     md.Incremental,
		Downloaded:      downloads.Files,
		DownloadedBytes: downloads.Bytes,
		Placeholders:    placeholders.Len(),
		Added:           tree.Added,
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObservePlaceholders(placeholders.Len())
	}

	if err := e.generate(ctx, md, placeholders); err != nil {
		return nil, err
	}

	plan, err := e.plan(listing, ret, tree)
	if err != nil {
		return nil, err
	}
	result.Plan = plan
	if e.opts.Metrics != nil {
		e.opts.Metrics.ObservePlan(plan)
	}

	if e.opts.DryRun {
		slog.Info("dry run, no remote operations will be performed")
	}
	if err := reconcile.NewExecutor(e.backend, e.opts.OpLog, e.opts.DryRun).Execute(ctx, plan); err != nil {
		return result, err
	}

	c := plan.Counts()
	slog.Info("run complete", "target", e.target, "uploads", c.Uploads, "deletes", c.Deletes, "renames", c.Renames, "took", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (e *Engine) requireBucket(ctx context.Context) error {
	exists, err := e.backend.BucketExists(ctx, e.target.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		return &RepositoryNotFoundError{Repo: e.target, Reason: "bucket does not exist"}
	}
	return nil
}

func (e *Engine) logRepositories() {
	if e.source == e.target {
		slog.Info("repository", "source", e.source, "target", "same as source", "staging", e.dir.Root)
		return
	}
	slog.Info("repository", "source", e.source, "target", e.target, "staging", e.dir.Root)
}

// IsValidationError reports whether err stopped a run before anything in
// the store was changed because the repository was inconsistent.
func IsValidationError(err error) bool {
	return errors.Is(err, repomd.ErrIntegrity) || errors.Is(err, ErrRepositoryNotFound)
}
