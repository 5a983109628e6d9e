package placeholder

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/s3repo/internal/repomd"
	"github.com/openmined/s3repo/internal/staging"
)

// Plan returns the declared members that need a placeholder: those not in
// the local tree. Every such member must exist remotely; otherwise an
// IntegrityError names all of the missing ones.
func Plan(declared []string, local mapset.Set[string], remote mapset.Set[string]) ([]string, error) {
	var needed, missing []string
	seen := mapset.NewThreadUnsafeSet[string]()

	for _, p := range declared {
		if !seen.Add(p) || local.Contains(p) {
			continue
		}
		if !remote.Contains(p) {
			missing = append(missing, p)
			continue
		}
		needed = append(needed, p)
	}

	if len(missing) > 0 {
		return nil, &repomd.IntegrityError{
			Reason: "index declares files that do not exist in the repository",
			Paths:  missing,
		}
	}
	return needed, nil
}

// Set tracks synthesized placeholders under a root.
type Set struct {
	root  string
	paths []string
}

// Synthesize creates a zero-length file for every repo-relative path. An
// existing file at any path is fatal; files created before the failure are
// removed again.
func Synthesize(root string, paths []string) (*Set, error) {
	set := &Set{root: root}

	for _, p := range paths {
		local := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			_ = set.Remove()
			return nil, &staging.LocalIOError{Op: "synthesize", Path: local, Err: err}
		}

		file, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			_ = set.Remove()
			return nil, &staging.LocalIOError{Op: "synthesize", Path: local, Err: err}
		}
		if err := file.Close(); err != nil {
			_ = set.Remove()
			return nil, &staging.LocalIOError{Op: "synthesize", Path: local, Err: err}
		}
		set.paths = append(set.paths, p)
	}

	slog.Debug("placeholders synthesized", "count", len(set.paths))
	return set, nil
}

// Paths returns the repo-relative placeholder paths.
func (s *Set) Paths() []string {
	return slices.Clone(s.paths)
}

func (s *Set) Len() int {
	return len(s.paths)
}

// Contains reports whether p is a placeholder.
func (s *Set) Contains(p string) bool {
	return slices.Contains(s.paths, p)
}

// Remove deletes every placeholder. A placeholder that is already gone is
// not an error; any other failure is.
func (s *Set) Remove() error {
	var errs []error
	for _, p := range s.paths {
		local := filepath.Join(s.root, filepath.FromSlash(p))
		if err := os.Remove(local); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, &staging.LocalIOError{Op: "remove placeholder", Path: local, Err: err})
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.paths = nil
	return nil
}
