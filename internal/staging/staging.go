package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/openmined/s3repo/internal/blob"
	"github.com/openmined/s3repo/internal/utils"
)

const lockSuffix = ".lock"

// Dir is the local working copy of a repository.
type Dir struct {
	Root  string
	flock *flock.Flock
}

func NewDir(root string) (*Dir, error) {
	root, err := utils.ResolvePath(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	// the lock lives next to the tree so it is never listed or uploaded
	return &Dir{
		Root:  root,
		flock: flock.New(root + lockSuffix),
	}, nil
}

// NewTempDir creates a fresh staging directory under the system temp dir.
func NewTempDir() (*Dir, error) {
	root, err := os.MkdirTemp("", "s3repo-")
	if err != nil {
		return nil, &LocalIOError{Op: "mkdir", Path: os.TempDir(), Err: err}
	}
	return NewDir(root)
}

func (d *Dir) Lock() error {
	if err := utils.EnsureParent(d.flock.Path()); err != nil {
		return &LocalIOError{Op: "mkdir", Path: filepath.Dir(d.flock.Path()), Err: err}
	}

	locked, err := d.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock staging directory: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

func (d *Dir) Unlock() error {
	// if this process hasn't locked the directory, then don't delete the lock file
	if !d.flock.Locked() {
		return nil
	}

	if err := d.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock staging directory: %w", err)
	}

	return os.Remove(d.flock.Path())
}

// Ensure creates the root if needed.
func (d *Dir) Ensure() error {
	if err := utils.EnsureDir(d.Root); err != nil {
		return &LocalIOError{Op: "mkdir", Path: d.Root, Err: err}
	}
	return nil
}

// PreClean empties the staging tree, creating it when missing.
func (d *Dir) PreClean() error {
	entries, err := os.ReadDir(d.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return d.Ensure()
	} else if err != nil {
		return &LocalIOError{Op: "clean", Path: d.Root, Err: err}
	}

	for _, entry := range entries {
		p := filepath.Join(d.Root, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			return &LocalIOError{Op: "clean", Path: p, Err: err}
		}
	}
	slog.Debug("staging cleaned", "root", d.Root, "entries", len(entries))
	return nil
}

// Path converts a repo-relative path into a local path.
func (d *Dir) Path(repoRelative string) string {
	return filepath.Join(d.Root, filepath.FromSlash(repoRelative))
}

// HasFile reports whether repoRelative is a regular file in the tree.
func (d *Dir) HasFile(repoRelative string) bool {
	return utils.IsRegularFile(d.Path(repoRelative))
}

// ListFiles returns every regular file under the root as sorted repo-relative
// slash paths.
func (d *Dir) ListFiles() ([]string, error) {
	return d.ListFilesUnder("")
}

// ListFilesUnder is ListFiles restricted to a repo-relative folder.
func (d *Dir) ListFilesUnder(repoRelativeDir string) ([]string, error) {
	base := d.Path(repoRelativeDir)
	var files []string

	err := filepath.WalkDir(base, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == base {
				return fs.SkipDir
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(d.Root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, &LocalIOError{Op: "walk", Path: base, Err: err}
	}

	slices.Sort(files)
	return files, nil
}

// Remove deletes a repo-relative file. The file must exist.
func (d *Dir) Remove(repoRelative string) error {
	p := d.Path(repoRelative)
	info, err := os.Stat(p)
	if err != nil || !info.Mode().IsRegular() {
		return &LocalIOError{Op: "remove", Path: p, Err: fs.ErrNotExist}
	}
	if err := os.Remove(p); err != nil {
		return &LocalIOError{Op: "remove", Path: p, Err: err}
	}
	return nil
}

// Rename moves a repo-relative file to another repo-relative path.
func (d *Dir) Rename(from, to string) error {
	src, dst := d.Path(from), d.Path(to)
	if err := utils.EnsureParent(dst); err != nil {
		return &LocalIOError{Op: "rename", Path: dst, Err: err}
	}
	if err := os.Rename(src, dst); err != nil {
		return &LocalIOError{Op: "rename", Path: src, Err: err}
	}
	return nil
}

// Truncated reports whether repoRelative is an empty file in the tree while
// the object it stands for has size bytes. Placeholders left behind by an
// interrupted run look like this.
func (d *Dir) Truncated(repoRelative string, size int64) bool {
	if size <= 0 {
		return false
	}
	info, err := os.Stat(d.Path(repoRelative))
	return err == nil && info.Mode().IsRegular() && info.Size() == 0
}

// Download copies an object of the listed size into the tree at repoRelative.
// Existing files are kept as they are and reported with downloaded=false,
// unless they are empty while the object is not. A negative size means the
// size is unknown.
func (d *Dir) Download(ctx context.Context, backend blob.Backend, bucket, key, repoRelative string, size int64) (downloaded bool, err error) {
	dst := d.Path(repoRelative)
	if d.HasFile(repoRelative) {
		if !d.Truncated(repoRelative, size) {
			slog.Debug("download skipped, file exists", "path", repoRelative)
			return false, nil
		}
		slog.Warn("empty local file, downloading again", "path", repoRelative, "size", humanize.Bytes(uint64(size)))
	}

	obj, err := backend.GetObject(ctx, bucket, key)
	if err != nil {
		return false, err
	}
	defer obj.Body.Close()

	if err := utils.EnsureParent(dst); err != nil {
		return false, &LocalIOError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}

	file, err := os.Create(dst)
	if err != nil {
		return false, &LocalIOError{Op: "create", Path: dst, Err: err}
	}

	n, err := io.Copy(file, obj.Body)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return false, &LocalIOError{Op: "download", Path: dst, Err: err}
	}

	slog.Info("downloaded", "key", fmt.Sprintf("s3://%s/%s", bucket, key), "path", repoRelative, "size", humanize.Bytes(uint64(n)))
	return true, nil
}

// RemoveEmptyDirs prunes directories left empty under the root.
func (d *Dir) RemoveEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(d.Root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() && p != d.Root {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return &LocalIOError{Op: "walk", Path: d.Root, Err: err}
	}

	// deepest first
	slices.SortFunc(dirs, func(a, b string) int {
		return strings.Count(b, string(filepath.Separator)) - strings.Count(a, string(filepath.Separator))
	})
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = os.Remove(dir)
		}
	}
	return nil
}
