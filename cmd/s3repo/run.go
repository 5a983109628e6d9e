package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/config"
	"github.com/openmined/s3repo/internal/indexer"
	"github.com/openmined/s3repo/internal/journal"
	"github.com/openmined/s3repo/internal/metrics"
	"github.com/openmined/s3repo/internal/rebuild"
	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/staging"
	"github.com/spf13/cobra"
)

// newBackend builds the store client for a run. Tests replace it.
var newBackend = func(ctx context.Context, cfg *config.Config) (blob.Backend, error) {
	return blob.NewS3BackendWithConfig(ctx, &cfg.S3)
}

// newIndexer builds the index generator for a run. Tests replace it.
var newIndexer = func(cfg *config.Config, flags []string) indexer.Indexer {
	return indexer.NewCreaterepo(cfg.Indexer, flags)
}

// job is what distinguishes one pipeline command from another.
type job struct {
	command       string
	additions     []staging.Addition
	autoIncrement bool
	requireBucket bool
}

// runPipeline runs one reconciliation for cfg and prints a summary to the
// command's output.
func runPipeline(cmd *cobra.Command, cfg *config.Config, j job) (err error) {
	ctx := cmd.Context()

	if err := cfg.Validate(); err != nil {
		return err
	}
	source, err := cfg.Source()
	if err != nil {
		return err
	}
	target, err := cfg.Destination()
	if err != nil {
		return err
	}
	excludes, err := config.ParseExcludes(cfg.Excludes)
	if err != nil {
		return err
	}
	flags, err := indexer.ParseFlags(cfg.IndexerFlags)
	if err != nil {
		return err
	}

	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create store client: %w", err)
	}
	runMetrics := metrics.New()
	backend.SetHooks(runMetrics.Hooks())

	dir, cleanup, err := stagingDir(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	var oplog reconcile.OpLog = reconcile.SlogOpLog{}
	if cfg.Journal != "" {
		var jrnl *journal.Journal
		if jrnl, err = journal.Open(ctx, cfg.Journal); err != nil {
			return err
		}
		defer jrnl.Close()

		var runID string
		if runID, err = jrnl.Begin(ctx, j.command, source.String(), target.String(), cfg.DryRun); err != nil {
			return err
		}
		slog.Info("journal run started", "run", runID, "journal", cfg.Journal)
		defer func() {
			// the run outcome is recorded even when the context was cancelled
			if ferr := jrnl.Finish(context.WithoutCancel(ctx), err); ferr != nil {
				slog.Warn("failed to finish journal run", "run", runID, "error", ferr)
			}
		}()
		oplog = reconcile.MultiOpLog{oplog, jrnl}
	}

	engine, err := rebuild.NewEngine(backend, dir, newIndexer(cfg, flags), rebuild.Options{
		Source:             source,
		Target:             target,
		Excludes:           excludes,
		DryRun:             cfg.DryRun,
		AllowCreate:        cfg.AllowCreate,
		RemoveOldSnapshots: cfg.RemoveOldSnapshots,
		UploadMetadataOnly: cfg.UploadMetadataOnly,
		NoPreClean:         cfg.NoPreClean,
		NoValidate:         cfg.NoValidate,
		RequireBucket:      j.requireBucket,
		Additions:          j.additions,
		AutoIncrement:      j.autoIncrement,
		OpLog:              oplog,
		Metrics:            runMetrics,
	})
	if err != nil {
		return err
	}

	result, err := engine.Run(ctx)
	if cfg.MetricsFile != "" {
		if werr := runMetrics.WriteTextfile(cfg.MetricsFile); werr != nil {
			slog.Warn("failed to write metrics", "path", cfg.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), target, result, cfg.DryRun)
	return nil
}

// stagingDir returns the configured staging tree, or a temporary one that the
// returned cleanup removes.
func stagingDir(cfg *config.Config) (*staging.Dir, func(), error) {
	if cfg.StagingDir != "" {
		dir, err := staging.NewDir(cfg.StagingDir)
		if err != nil {
			return nil, nil, err
		}
		return dir, func() {}, nil
	}

	dir, err := staging.NewTempDir()
	if err != nil {
		return nil, nil, err
	}
	return dir, func() {
		if err := os.RemoveAll(dir.Root); err != nil {
			slog.Warn("failed to remove staging directory", "root", dir.Root, "error", err)
		}
	}, nil
}

func printSummary(w io.Writer, target repoaddr.Address, result *rebuild.Result, dryRun bool) {
	counts := result.Plan.Counts()

	status := green("DONE")
	if dryRun {
		status = yellow("DRY RUN")
	}
	fmt.Fprintf(w, "%s %s\n", status, cyan(target.String()))
	fmt.Fprintf(w, "  downloaded   %d (%s)\n", result.Downloaded, humanize.Bytes(uint64(result.DownloadedBytes)))
	fmt.Fprintf(w, "  placeholders %d\n", result.Placeholders)
	if len(result.Added) > 0 {
		fmt.Fprintf(w, "  added        %d\n", len(result.Added))
		for _, rel := range result.Added {
			fmt.Fprintf(w, "    %s\n", rel)
		}
	}
	fmt.Fprintf(w, "  uploads      %d\n", counts.Uploads)
	fmt.Fprintf(w, "  deletes      %d\n", counts.Deletes)
	fmt.Fprintf(w, "  renames      %d\n", counts.Renames)
	if !result.Plan.HasChanges() {
		fmt.Fprintln(w, "  repository is up to date")
	}
}
