package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/openmined/s3repo/internal/staging"
	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	var (
		subfolder     string
		autoIncrement bool
	)

	cmd := &cobra.Command{
		Use:   "add <repository> <file>...",
		Short: "Add packages to a repository and rebuild its index",
		Long: `Copy local package files into the repository, regenerate the index and
upload the result. The bucket must already exist.

A file whose name is already taken fails the run, unless it is a snapshot build
and --auto-increment is set, in which case the next free build number is used.`,
		Example: `  s3repo add s3://yum-bucket/el9 build/app-1.0-1.x86_64.rpm --subfolder x86_64
  s3repo add s3://yum-bucket/el9 app-2.0-SNAPSHOT.x86_64.rpm --auto-increment --allow-create`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, args[:1])
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			folder, err := cleanSubfolder(subfolder)
			if err != nil {
				return err
			}
			additions := make([]staging.Addition, 0, len(args)-1)
			for _, file := range args[1:] {
				additions = append(additions, staging.Addition{Source: file, Subfolder: folder})
			}

			return runPipeline(cmd, cfg, job{
				command:       "add",
				additions:     additions,
				autoIncrement: autoIncrement,
				requireBucket: true,
			})
		},
	}

	addPipelineFlags(cmd)
	cmd.Flags().StringVar(&subfolder, "subfolder", "", "repo-relative folder the files are placed in")
	cmd.Flags().BoolVar(&autoIncrement, "auto-increment", false, "number snapshot builds instead of failing on a taken name")
	return cmd
}

// cleanSubfolder normalizes a repo-relative folder and rejects paths that
// escape the repository.
func cleanSubfolder(folder string) (string, error) {
	folder = strings.Trim(strings.ReplaceAll(folder, "\\", "/"), "/")
	if folder == "" {
		return "", nil
	}
	cleaned := path.Clean(folder)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("subfolder %q leaves the repository", folder)
	}
	return cleaned, nil
}
