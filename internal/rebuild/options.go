package rebuild

import (
	"github.com/openmined/s3repo/internal/metrics"
	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/staging"
)

// Matcher decides whether a repo-relative path is excluded.
type Matcher interface {
	Match(repoRelative string) bool
}

type Options struct {
	// Source is read from; it defaults to Target
	Source repoaddr.Address
	Target repoaddr.Address

	// Layout defaults to repomd.DefaultLayout
	Layout repomd.Layout
	// Classifier defaults to snapshot.Default()
	Classifier staging.Numberer
	Excludes   Matcher

	DryRun             bool
	AllowCreate        bool
	RemoveOldSnapshots bool
	UploadMetadataOnly bool
	NoPreClean         bool
	NoValidate         bool
	// RequireBucket fails the run early when the target bucket is missing
	RequireBucket bool

	IndexerArgs []string

	// Additions are local files copied into the repository before indexing
	Additions     []staging.Addition
	AutoIncrement bool

	OpLog   reconcile.OpLog
	Metrics *metrics.Metrics
}

// Result summarizes a finished run.
type Result struct {
	Plan            *reconcile.Plan
	Incremental     bool
	Downloaded      int
	DownloadedBytes int64
	Placeholders    int
	Added           []string
}
