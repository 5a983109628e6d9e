package reconcile

import (
	"github.com/openmined/s3repo/internal/repoaddr"
)

// Upload copies a local file to a target key.
type Upload struct {
	Path      string // repo-relative
	LocalPath string
	Key       string
}

// Delete removes a target object.
type Delete struct {
	Path string // repo-relative
	Key  string
}

// Rename is a copy to NewKey followed by a delete of SourceKey, both in the
// target bucket.
type Rename struct {
	SourceKey string
	NewKey    string
}

// Plan is the complete set of remote mutations for one run. It is built once
// by Planner.Build and not changed afterwards.
type Plan struct {
	Source repoaddr.Address
	Target repoaddr.Address

	// LocalDeletes were applied to the staging tree while building the plan
	LocalDeletes []string

	Uploads         []Upload
	SourceUploads   []Upload
	ExcludeDeletes  []Delete
	SnapshotDeletes []Delete
	Renames         []Rename
}

// HasChanges reports whether executing the plan mutates the target.
func (p *Plan) HasChanges() bool {
	return len(p.Uploads) > 0 ||
		len(p.SourceUploads) > 0 ||
		len(p.ExcludeDeletes) > 0 ||
		len(p.SnapshotDeletes) > 0 ||
		len(p.Renames) > 0
}

// Counts summarizes a plan by operation kind.
type Counts struct {
	Uploads      int
	Deletes      int
	Renames      int
	LocalDeletes int
}

func (p *Plan) Counts() Counts {
	return Counts{
		Uploads:      len(p.Uploads) + len(p.SourceUploads),
		Deletes:      len(p.ExcludeDeletes) + len(p.SnapshotDeletes),
		Renames:      len(p.Renames),
		LocalDeletes: len(p.LocalDeletes),
	}
}
