package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"github.com/openmined/s3repo/internal/placeholder"
	"github.com/openmined/s3repo/internal/reconcile"
	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/snapshot"
	"github.com/openmined/s3repo/internal/staging"
)

// listedObject is a file found in the target or source repository.
type listedObject struct {
	Repo     repoaddr.Address
	Path     string
	Key      string
	Size     int64
	InTarget bool
}

// Listing is what the repositories held when the run started.
type Listing struct {
	// Objects holds target files first, then source files the target lacks.
	// Excluded files and source metadata are left out.
	Objects []listedObject
	// Target holds every repo-relative path in the target
	Target mapset.Set[string]
	// Source holds every repo-relative path in the source
	Source mapset.Set[string]
	// Excluded are excluded paths present in the target
	Excluded []string
}

// Metadata is the state of the downloaded target index.
type Metadata struct {
	Index *repomd.Index
	// Declared are the members the index names, in document order
	Declared []string
	// Incremental is set when an existing index is regenerated in place
	Incremental bool
}

// Retention holds the snapshot decisions for the run.
type Retention struct {
	Decisions []snapshot.Decision
	// Superseded are the repo-relative paths of every superseded build
	Superseded mapset.Set[string]
	// Kept are the repo-relative paths of kept builds before renaming
	Kept mapset.Set[string]
}

// Downloads counts the members fetched into the staging tree.
type Downloads struct {
	Files int
	Bytes int64
}

// Tree is the staging tree after retention, excludes and additions applied.
type Tree struct {
	LocalDeletes []string
	Added        []string
}

func (e *Engine) excluded(repoRelative string) bool {
	return e.opts.Excludes != nil && e.opts.Excludes.Match(repoRelative)
}

func (e *Engine) listRepo(ctx context.Context, repo repoaddr.Address, inTarget bool) ([]listedObject, error) {
	var objects []listedObject
	for info, err := range e.backend.List(ctx, repo.Bucket, repo.Prefix()) {
		if err != nil {
			return nil, err
		}
		if info.IsFolder() {
			continue
		}
		rel, ok := repo.RepoRelative(info.Key)
		if !ok || rel == "" {
			continue
		}
		objects = append(objects, listedObject{Repo: repo, Path: rel, Key: info.Key, Size: info.Size, InTarget: inTarget})
	}
	slog.Debug("listed repository", "repo", repo, "objects", len(objects))
	return objects, nil
}

// list reads the target and, when it differs, the source repository.
func (e *Engine) list(ctx context.Context) (*Listing, error) {
	listing := &Listing{
		Target: mapset.NewThreadUnsafeSet[string](),
		Source: mapset.NewThreadUnsafeSet[string](),
	}

	targetObjects, err := e.listRepo(ctx, e.target, true)
	if err != nil {
		return nil, err
	}
	for _, obj := range targetObjects {
		listing.Target.Add(obj.Path)
		if !e.layout.IsMetadata(obj.Path) && e.excluded(obj.Path) {
			slog.Info("excluded, will be removed from target", "path", obj.Path)
			listing.Excluded = append(listing.Excluded, obj.Path)
			continue
		}
		listing.Objects = append(listing.Objects, obj)
	}

	if e.source == e.target {
		listing.Source = listing.Target
		return listing, nil
	}

	sourceObjects, err := e.listRepo(ctx, e.source, false)
	if err != nil {
		return nil, err
	}
	for _, obj := range sourceObjects {
		listing.Source.Add(obj.Path)
		switch {
		case e.layout.IsMetadata(obj.Path):
			slog.Debug("metadata file in source, not downloading", "path", obj.Path)
		case e.excluded(obj.Path):
			slog.Debug("excluded file in source, not downloading", "path", obj.Path)
		case listing.Target.Contains(obj.Path):
			// the target copy wins
		default:
			listing.Objects = append(listing.Objects, obj)
		}
	}
	return listing, nil
}

// checkExists refuses to continue when the target holds no index and
// creating a repository is not allowed.
func (e *Engine) checkExists(listing *Listing) error {
	if listing.Target.Contains(e.layout.IndexPath()) || e.opts.AllowCreate {
		return nil
	}
	return &RepositoryNotFoundError{
		Repo:   e.target,
		Reason: fmt.Sprintf("no %s found, allow repository creation to create it", e.layout.IndexPath()),
	}
}

// fetchMetadata downloads the target's metadata, verifies its digests and
// reads the declared members. With validation disabled no metadata is
// fetched and the index is rebuilt from scratch.
func (e *Engine) fetchMetadata(ctx context.Context, listing *Listing) (*Metadata, error) {
	if e.opts.NoValidate {
		slog.Warn("validation disabled, metadata will be regenerated from scratch")
		return &Metadata{}, nil
	}

	for _, obj := range listing.Objects {
		if !obj.InTarget || !e.layout.IsMetadata(obj.Path) {
			continue
		}
		if _, err := e.download(ctx, obj); err != nil {
			return nil, err
		}
	}

	if !e.repo.Exists() {
		slog.Info("no existing index, creating repository", "repo", e.target)
		return &Metadata{}, nil
	}

	index, err := e.repo.Index()
	if err != nil {
		return nil, err
	}
	// digests are checked before any document is trusted
	if err := repomd.VerifyAll(index, e.repo.Root(), e.layout); err != nil {
		return nil, err
	}
	declared, err := e.repo.Members()
	if err != nil {
		return nil, err
	}
	return &Metadata{Index: index, Declared: declared, Incremental: true}, nil
}

// validate checks that every declared member that is not excluded exists in
// the target or source. All missing members are reported at once.
func (e *Engine) validate(listing *Listing, md *Metadata) error {
	if !md.Incremental {
		return nil
	}

	var declared []string
	for _, p := range md.Declared {
		if !e.excluded(p) {
			declared = append(declared, p)
		}
	}
	remote := listing.Target.Union(listing.Source)
	if _, err := placeholder.Plan(declared, mapset.NewThreadUnsafeSet[string](), remote); err != nil {
		return err
	}

	slog.Info("repository validated", "declared", len(md.Declared))
	return nil
}

// retain decides which snapshot builds survive. Target files are grouped
// before source files.
func (e *Engine) retain(listing *Listing) *Retention {
	ret := &Retention{
		Superseded: mapset.NewThreadUnsafeSet[string](),
		Kept:       mapset.NewThreadUnsafeSet[string](),
	}
	if !e.opts.RemoveOldSnapshots {
		return ret
	}

	groups := snapshot.NewGroups(e.classifier)
	for _, obj := range listing.Objects {
		if !e.layout.IsMetadata(obj.Path) {
			groups.Add(obj.Repo, obj.Path)
		}
	}

	ret.Decisions = snapshot.RetainAll(groups)
	for _, d := range ret.Decisions {
		ret.Kept.Add(d.Keep.Path)
		for _, s := range d.Superseded {
			ret.Superseded.Add(s.Path)
		}
	}
	slog.Info("snapshot retention", "groups", len(ret.Decisions), "superseded", ret.Superseded.Cardinality())
	return ret
}

// requireFullRebuild turns an incremental run into a full one when a kept
// build is renamed onto a name the index already lists. An incremental
// indexer trusts entries it knows by name and would keep the checksum of the
// build that name held before.
func (e *Engine) requireFullRebuild(md *Metadata, ret *Retention) {
	if !md.Incremental {
		return
	}
	declared := mapset.NewThreadUnsafeSet(md.Declared...)
	for _, d := range ret.Decisions {
		if !d.Renamed() || !declared.Contains(d.CanonicalPath) {
			continue
		}
		slog.Warn("kept snapshot replaces a declared member, rebuilding index from scratch",
			"path", d.Keep.Path, "canonical", d.CanonicalPath)
		md.Incremental = false
		return
	}
}

// downloadMembers fetches every member the indexer needs real bytes for:
// everything when the index is rebuilt from scratch, otherwise members the
// index does not declare, members the target lacks and kept snapshots.
// Superseded snapshots are never fetched.
func (e *Engine) downloadMembers(ctx context.Context, listing *Listing, md *Metadata, ret *Retention) (*Downloads, error) {
	declared := mapset.NewThreadUnsafeSet(md.Declared...)
	downloads := &Downloads{}

	for _, obj := range listing.Objects {
		if e.layout.IsMetadata(obj.Path) || ret.Superseded.Contains(obj.Path) {
			continue
		}
		needed := !md.Incremental ||
			!declared.Contains(obj.Path) ||
			!obj.InTarget ||
			ret.Kept.Contains(obj.Path)
		if !needed {
			// synthesize replaces it with a tracked placeholder
			if e.dir.Truncated(obj.Path, obj.Size) {
				slog.Warn("removing empty leftover file", "path", obj.Path)
				if err := e.dir.Remove(obj.Path); err != nil {
					return nil, err
				}
			}
			continue
		}

		downloaded, err := e.download(ctx, obj)
		if err != nil {
			return nil, err
		}
		if downloaded {
			downloads.Files++
			downloads.Bytes += obj.Size
		}
	}

	slog.Info("members downloaded", "files", downloads.Files, "size", humanize.Bytes(uint64(downloads.Bytes)))
	return downloads, nil
}

func (e *Engine) download(ctx context.Context, obj listedObject) (bool, error) {
	downloaded, err := e.dir.Download(ctx, e.backend, obj.Repo.Bucket, obj.Key, obj.Path, obj.Size)
	if err != nil {
		return false, err
	}
	if downloaded && e.opts.Metrics != nil {
		e.opts.Metrics.ObserveDownload(obj.Size)
	}
	return downloaded, nil
}

// prepareTree applies retention locally, drops excluded files left over from
// earlier runs and copies additions in.
func (e *Engine) prepareTree(listing *Listing, ret *Retention) (*Tree, error) {
	tree := &Tree{}

	for _, d := range ret.Decisions {
		for _, s := range d.Superseded {
			if e.dir.HasFile(s.Path) {
				if err := e.dir.Remove(s.Path); err != nil {
					return nil, err
				}
			}
			slog.Info("old snapshot removed locally", "path", s.Path, "ordinal", s.Ordinal)
			tree.LocalDeletes = append(tree.LocalDeletes, s.Path)
		}
		if d.Renamed() {
			slog.Info("renaming snapshot", "from", d.Keep.Path, "to", d.CanonicalPath)
			if err := e.dir.Rename(d.Keep.Path, d.CanonicalPath); err != nil {
				return nil, err
			}
		}
	}

	files, err := e.dir.ListFiles()
	if err != nil {
		return nil, err
	}
	for _, p := range files {
		if e.layout.IsMetadata(p) || !e.excluded(p) {
			continue
		}
		slog.Warn("removing excluded file from staging", "path", p)
		if err := e.dir.Remove(p); err != nil {
			return nil, err
		}
		tree.LocalDeletes = append(tree.LocalDeletes, p)
	}

	if len(e.opts.Additions) > 0 {
		taken := listing.Target.Union(listing.Source)
		for _, d := range ret.Decisions {
			taken.Add(d.CanonicalPath)
		}
		added, err := e.dir.AddFiles(e.opts.Additions, staging.AddOptions{
			Numberer:      e.classifier,
			AutoIncrement: e.opts.AutoIncrement,
			Taken:         taken,
		})
		if err != nil {
			return nil, err
		}
		tree.Added = added
	}

	return tree, nil
}

// synthesize creates placeholders for declared members that stay in the
// index but were not downloaded.
func (e *Engine) synthesize(listing *Listing, md *Metadata, ret *Retention) (*placeholder.Set, error) {
	if !md.Incremental {
		return placeholder.Synthesize(e.dir.Root, nil)
	}

	var declared []string
	for _, p := range md.Declared {
		if e.excluded(p) || ret.Superseded.Contains(p) || ret.Kept.Contains(p) {
			continue
		}
		declared = append(declared, p)
	}

	files, err := e.dir.ListFiles()
	if err != nil {
		return nil, err
	}
	needed, err := placeholder.Plan(declared, mapset.NewThreadUnsafeSet(files...), listing.Target)
	if err != nil {
		return nil, err
	}
	return placeholder.Synthesize(e.dir.Root, needed)
}

// generate runs the indexer and removes the placeholders afterwards, also
// when the indexer failed.
func (e *Engine) generate(ctx context.Context, md *Metadata, placeholders *placeholder.Set) error {
	slog.Info("regenerating index", "root", e.dir.Root, "incremental", md.Incremental, "placeholders", placeholders.Len())

	genErr := e.indexer.Generate(ctx, e.dir.Root, md.Incremental, e.opts.IndexerArgs)
	if err := placeholders.Remove(); err != nil {
		if genErr != nil {
			slog.Error("failed to remove placeholders", "error", err)
			return genErr
		}
		return err
	}
	if genErr != nil {
		return genErr
	}
	if err := e.dir.RemoveEmptyDirs(); err != nil {
		return err
	}

	if !e.repo.Exists() {
		return &repomd.IntegrityError{Reason: "indexer produced no index", Paths: []string{e.layout.IndexPath()}}
	}
	return nil
}

// plan computes the remote operations from the regenerated tree.
func (e *Engine) plan(listing *Listing, ret *Retention, tree *Tree) (*reconcile.Plan, error) {
	files, err := e.dir.ListFiles()
	if err != nil {
		return nil, err
	}
	return reconcile.NewPlanner(e.layout).Build(reconcile.Input{
		Source:             e.source,
		Target:             e.target,
		StagingRoot:        e.dir.Root,
		LocalFiles:         files,
		TargetListing:      listing.Target,
		Additions:          tree.Added,
		Excluded:           slices.Clone(listing.Excluded),
		Decisions:          ret.Decisions,
		LocalDeletes:       tree.LocalDeletes,
		UploadMetadataOnly: e.opts.UploadMetadataOnly,
	})
}
