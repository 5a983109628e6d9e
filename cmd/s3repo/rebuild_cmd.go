package main

import (
	"github.com/openmined/s3repo/internal/indexer"
	"github.com/spf13/cobra"
)

func newRebuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild [repository]",
		Short: "Regenerate the index of a repository and reconcile the bucket with it",
		Long: `Download the repository metadata and the members it needs, regenerate the
index with createrepo and push the result back to the bucket.

The repository is given as s3://bucket/folder or /bucket/folder.`,
		Example: `  s3repo rebuild s3://yum-bucket/el9 --remove-old-snapshots
  s3repo rebuild s3://staging/el9 --target s3://release/el9 --upload-metadata-only=false`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			return runPipeline(cmd, cfg, job{command: "rebuild"})
		},
	}

	addPipelineFlags(cmd)
	return cmd
}

// addPipelineFlags registers the flags shared by every command that runs the
// reconciliation pipeline.
func addPipelineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("repository", "", "repository to read from (s3://bucket/folder)")
	flags.StringP("target", "t", "", "repository to write to, defaults to the source")
	flags.String("staging-dir", "", "local working copy, defaults to a temporary directory")
	flags.BoolP("dry-run", "n", false, "compute and log every change without mutating the bucket")
	flags.Bool("allow-create", false, "create the repository when it has no index yet")
	flags.Bool("remove-old-snapshots", false, "keep only the newest build of each snapshot")
	flags.Bool("upload-metadata-only", true, "upload only metadata and new members")
	flags.StringP("excludes", "x", "", "comma separated repo-relative paths or globs to drop from the repository")
	flags.Bool("no-pre-clean", false, "reuse the contents of the staging directory")
	flags.Bool("no-validate", false, "skip metadata validation and download every member")
	flags.String("indexer", indexer.DefaultCommand, "index generator executable")
	flags.String("indexer-flags", "", "extra flags passed to the index generator")
	flags.String("journal", "", "sqlite file recording every executed operation")
	flags.String("metrics-file", "", "write run metrics to this prometheus textfile")
	flags.SetNormalizeFunc(aliasFlags)
}
