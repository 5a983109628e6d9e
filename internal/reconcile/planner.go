package reconcile

import (
	"fmt"
	"path/filepath"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/snapshot"
)

// Input is the state a plan is computed from.
type Input struct {
	Source repoaddr.Address
	Target repoaddr.Address

	// StagingRoot is the local tree LocalFiles are relative to
	StagingRoot string
	// LocalFiles are the repo-relative files left after placeholder removal
	LocalFiles []string
	// TargetListing holds repo-relative paths present in the target before the run
	TargetListing mapset.Set[string]
	// Additions are files added to the tree during this run
	Additions []string
	// Excluded are excluded repo-relative paths observed in the target
	Excluded []string
	// Decisions are snapshot retention outcomes already applied locally
	Decisions []snapshot.Decision
	// LocalDeletes are repo-relative paths removed from the tree during this run
	LocalDeletes []string

	UploadMetadataOnly bool
}

// Planner computes plans for a repository layout.
type Planner struct {
	layout repomd.Layout
}

func NewPlanner(layout repomd.Layout) *Planner {
	return &Planner{layout: layout}
}

// Build computes the remote operations for in. Excluded paths and superseded
// snapshots are only ever deleted from the target; renames happen only for
// kept snapshots that exist in the target.
func (p *Planner) Build(in Input) (*Plan, error) {
	if in.Target.Bucket == "" {
		return nil, fmt.Errorf("plan: target repository is required")
	}
	if in.TargetListing == nil {
		in.TargetListing = mapset.NewThreadUnsafeSet[string]()
	}
	source := in.Source
	if source.Bucket == "" {
		source = in.Target
	}

	plan := &Plan{
		Source:       source,
		Target:       in.Target,
		LocalDeletes: slices.Clone(in.LocalDeletes),
	}

	var members, metadata []string
	for _, rel := range in.LocalFiles {
		if p.layout.IsMetadata(rel) {
			metadata = append(metadata, rel)
		} else {
			members = append(members, rel)
		}
	}
	slices.Sort(members)
	p.sortMetadata(metadata)

	if !in.UploadMetadataOnly {
		for _, rel := range members {
			plan.Uploads = append(plan.Uploads, p.upload(in, rel))
		}
	} else {
		fresh := mapset.NewThreadUnsafeSet(in.Additions...)
		for _, d := range in.Decisions {
			if d.Renamed() {
				fresh.Add(d.CanonicalPath)
			}
		}

		for _, rel := range members {
			switch {
			case fresh.Contains(rel):
				plan.Uploads = append(plan.Uploads, p.upload(in, rel))
			case source != in.Target && !in.TargetListing.Contains(rel):
				// came from the source and is missing in the target
				plan.SourceUploads = append(plan.SourceUploads, p.upload(in, rel))
			}
		}
	}
	// the index documents go last so they only reference uploaded members
	for _, rel := range metadata {
		plan.Uploads = append(plan.Uploads, p.upload(in, rel))
	}

	for _, rel := range sortedUnique(in.Excluded) {
		if in.TargetListing.Contains(rel) {
			plan.ExcludeDeletes = append(plan.ExcludeDeletes, Delete{Path: rel, Key: in.Target.Key(rel)})
		}
	}

	for _, d := range in.Decisions {
		for _, superseded := range d.Superseded {
			// the canonical key is overwritten by the rename, never deleted
			if superseded.Path == d.CanonicalPath && d.Renamed() {
				continue
			}
			if in.TargetListing.Contains(superseded.Path) {
				plan.SnapshotDeletes = append(plan.SnapshotDeletes, Delete{Path: superseded.Path, Key: in.Target.Key(superseded.Path)})
			}
		}
		if d.Renamed() && in.TargetListing.Contains(d.Keep.Path) {
			plan.Renames = append(plan.Renames, Rename{
				SourceKey: in.Target.Key(d.Keep.Path),
				NewKey:    in.Target.Key(d.CanonicalPath),
			})
		}
	}

	return plan, nil
}

func (p *Planner) upload(in Input, rel string) Upload {
	return Upload{
		Path:      rel,
		LocalPath: filepath.Join(in.StagingRoot, filepath.FromSlash(rel)),
		Key:       in.Target.Key(rel),
	}
}

// sortMetadata orders metadata documents by name with the index file last.
func (p *Planner) sortMetadata(metadata []string) {
	index := p.layout.IndexPath()
	slices.SortFunc(metadata, func(a, b string) int {
		switch {
		case a == index && b != index:
			return 1
		case b == index && a != index:
			return -1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
}

func sortedUnique(paths []string) []string {
	out := slices.Clone(paths)
	slices.Sort(out)
	return slices.Compact(out)
}
