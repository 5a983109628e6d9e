package staging

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/otiai10/copy"
	"github.com/openmined/s3repo/internal/snapshot"
)

// Numberer produces the nth numbered variant of a volatile file name.
type Numberer interface {
	snapshot.Classifier
	Numbered(name string, n int) string
}

// Addition is a local file to place into the repository.
type Addition struct {
	// Source is the local file to copy
	Source string
	// Subfolder is the repo-relative folder the file lands in, may be empty
	Subfolder string
	// Name overrides the file name, defaults to the base name of Source
	Name string
}

// AddOptions controls how additions are named.
type AddOptions struct {
	Numberer      Numberer
	AutoIncrement bool
	// Taken holds repo-relative paths already present in the repository but
	// not necessarily in the local tree
	Taken mapset.Set[string]
}

// AddFiles copies additions into the tree and returns their repo-relative
// paths. A name that already exists is fatal unless the file is volatile and
// AutoIncrement is set, in which case the next free build number is used.
func (d *Dir) AddFiles(additions []Addition, opts AddOptions) ([]string, error) {
	var added []string

	for _, addition := range additions {
		info, err := os.Stat(addition.Source)
		if err != nil {
			return nil, &LocalIOError{Op: "stat", Path: addition.Source, Err: err}
		} else if !info.Mode().IsRegular() {
			return nil, &LocalIOError{Op: "add", Path: addition.Source, Err: fmt.Errorf("not a regular file")}
		}

		name := addition.Name
		if name == "" {
			name = filepath.Base(addition.Source)
		}

		rel, err := d.freeName(addition.Subfolder, name, opts)
		if err != nil {
			return nil, err
		}

		dst := d.Path(rel)
		if err := copy.Copy(addition.Source, dst, copy.Options{PreserveTimes: true}); err != nil {
			return nil, &LocalIOError{Op: "copy", Path: dst, Err: err}
		}
		slog.Info("added", "source", addition.Source, "path", rel)
		added = append(added, rel)
		if opts.Taken != nil {
			opts.Taken.Add(rel)
		}
	}

	return added, nil
}

func (d *Dir) freeName(subfolder, name string, opts AddOptions) (string, error) {
	numberer := opts.Numberer
	volatile := opts.AutoIncrement && numberer != nil && numberer.IsVolatile(name)

	candidate := name
	for n := 0; ; n++ {
		if volatile {
			// never suffix with 0
			candidate = numberer.Numbered(name, n)
		}
		rel := path.Join(subfolder, candidate)
		if !d.HasFile(rel) && (opts.Taken == nil || !opts.Taken.Contains(rel)) {
			return rel, nil
		}
		if !volatile || (n > 0 && candidate == numberer.Numbered(name, n-1)) {
			return "", fmt.Errorf("%w: %s", ErrExists, rel)
		}
	}
}
