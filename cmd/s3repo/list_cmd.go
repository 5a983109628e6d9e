package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/staging"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputText   = "text"
	outputPretty = "pretty"
	outputTable  = "table"
	outputJSON   = "json"
	outputYAML   = "yaml"
)

var listOutputs = []string{outputText, outputPretty, outputTable, outputJSON, outputYAML}

// memberEntry is one listed repository member.
type memberEntry struct {
	Path         string    `json:"path" yaml:"path"`
	Size         int64     `json:"size" yaml:"size"`
	LastModified time.Time `json:"lastModified" yaml:"lastModified"`
}

func newListCmd() *cobra.Command {
	var (
		output           string
		filterByMetadata bool
	)

	cmd := &cobra.Command{
		Use:   "list <repository>",
		Short: "List the packages stored in a repository",
		Example: `  s3repo list s3://yum-bucket/el9 -o table
  s3repo list s3://yum-bucket/el9 --filter-by-metadata -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(listOutputs, output) {
				return fmt.Errorf("unknown output %q, expected one of %s", output, strings.Join(listOutputs, ", "))
			}

			cfg, err := loadConfig(cmd, args)
			if err != nil {
				return err
			}
			closeLog, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			repo, err := cfg.Source()
			if err != nil {
				return err
			}
			if err := cfg.S3.Validate(); err != nil {
				return fmt.Errorf("s3: %w", err)
			}
			backend, err := newBackend(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to create store client: %w", err)
			}

			entries, err := listMembers(cmd.Context(), backend, repo, filterByMetadata)
			if err != nil {
				return err
			}
			return renderMembers(cmd.OutOrStdout(), entries, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: "+strings.Join(listOutputs, ", "))
	cmd.Flags().BoolVar(&filterByMetadata, "filter-by-metadata", false, "only list members declared by the repository index")
	return cmd
}

// listMembers returns the members stored under repo sorted by path. Folder
// markers and metadata documents are skipped. With filterByMetadata only the
// members the index declares are returned.
func listMembers(ctx context.Context, backend blob.Backend, repo repoaddr.Address, filterByMetadata bool) ([]memberEntry, error) {
	layout := repomd.DefaultLayout

	var (
		entries  []memberEntry
		metadata []string
	)
	for obj, err := range backend.List(ctx, repo.Bucket, repo.Prefix()) {
		if err != nil {
			return nil, err
		}
		if obj.IsFolder() {
			continue
		}
		rel, ok := repo.RepoRelative(obj.Key)
		if !ok || rel == "" {
			continue
		}
		if layout.IsMetadata(rel) {
			metadata = append(metadata, rel)
			continue
		}
		entries = append(entries, memberEntry{Path: rel, Size: obj.Size, LastModified: obj.LastModified})
	}

	if filterByMetadata {
		declared, err := declaredMembers(ctx, backend, repo, metadata)
		if err != nil {
			return nil, err
		}
		entries = slices.DeleteFunc(entries, func(e memberEntry) bool {
			_, ok := declared[e.Path]
			return !ok
		})
	}

	slices.SortFunc(entries, func(a, b memberEntry) int { return strings.Compare(a.Path, b.Path) })
	return entries, nil
}

// declaredMembers downloads the metadata documents into a scratch tree and
// reads the member list from them.
func declaredMembers(ctx context.Context, backend blob.Backend, repo repoaddr.Address, metadata []string) (map[string]struct{}, error) {
	dir, err := staging.NewTempDir()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir.Root); err != nil {
			slog.Warn("failed to remove scratch directory", "root", dir.Root, "error", err)
		}
	}()

	for _, rel := range metadata {
		if _, err := dir.Download(ctx, backend, repo.Bucket, repo.Key(rel), rel, -1); err != nil {
			return nil, err
		}
	}

	members, err := repomd.NewRepo(dir.Root).Members()
	if err != nil {
		return nil, err
	}
	declared := make(map[string]struct{}, len(members))
	for _, m := range members {
		declared[m] = struct{}{}
	}
	return declared, nil
}

func renderMembers(w io.Writer, entries []memberEntry, output string) error {
	switch output {
	case outputPretty:
		for _, e := range entries {
			fmt.Fprintln(w, e.Path)
		}
	case outputTable:
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.AppendHeader(table.Row{"PATH", "SIZE", "LAST MODIFIED"})
		var total int64
		for _, e := range entries {
			t.AppendRow(table.Row{e.Path, humanize.Bytes(uint64(e.Size)), e.LastModified.UTC().Format(time.RFC3339)})
			total += e.Size
		}
		t.AppendFooter(table.Row{fmt.Sprintf("%d members", len(entries)), humanize.Bytes(uint64(total)), ""})
		t.Render()
	case outputJSON:
		if entries == nil {
			entries = []memberEntry{}
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	default:
		paths := make([]string, 0, len(entries))
		for _, e := range entries {
			paths = append(paths, e.Path)
		}
		fmt.Fprintln(w, strings.Join(paths, ","))
	}
	return nil
}
