package repomd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openmined/s3repo/internal/utils"
)

// Repo answers queries about a local copy of a repository.
type Repo struct {
	root   string
	layout Layout
}

func NewRepo(root string) *Repo {
	return NewRepoWithLayout(root, DefaultLayout)
}

func NewRepoWithLayout(root string, layout Layout) *Repo {
	return &Repo{root: root, layout: layout}
}

func (r *Repo) Root() string {
	return r.root
}

func (r *Repo) Layout() Layout {
	return r.layout
}

// IndexFile returns the local path of the index document.
func (r *Repo) IndexFile() string {
	return filepath.Join(r.root, filepath.FromSlash(r.layout.IndexPath()))
}

// MetadataDir returns the local metadata folder.
func (r *Repo) MetadataDir() string {
	return filepath.Join(r.root, r.layout.Folder)
}

// Exists reports whether the index document is present.
func (r *Repo) Exists() bool {
	return utils.IsRegularFile(r.IndexFile())
}

// HasFile reports whether a repo-relative path is a regular file in the local tree.
func (r *Repo) HasFile(repoRelative string) bool {
	return utils.IsRegularFile(filepath.Join(r.root, filepath.FromSlash(repoRelative)))
}

// Index parses the local index document.
func (r *Repo) Index() (*Index, error) {
	file, err := os.Open(r.IndexFile())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &IntegrityError{Reason: "index document not found", Paths: []string{r.layout.IndexPath()}}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer file.Close()

	return ReadIndex(file)
}

// Members returns the repo-relative paths declared by the primary document.
func (r *Repo) Members() ([]string, error) {
	index, err := r.Index()
	if err != nil {
		return nil, err
	}

	ref, ok := index.Ref(r.layout.PrimaryType)
	if !ok || ref.Location == "" {
		return nil, &IntegrityError{Reason: fmt.Sprintf("index declares no %s document", r.layout.PrimaryType)}
	}

	docPath := filepath.Join(r.root, filepath.FromSlash(ref.Location))
	doc, err := OpenDocument(docPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &IntegrityError{Reason: "member list document not found", Paths: []string{ref.Location}}
	} else if err != nil {
		return nil, err
	}
	defer doc.Close()

	return ReadMemberList(doc)
}

// Verify checks every per-type document against the digests in the index.
func (r *Repo) Verify() error {
	index, err := r.Index()
	if err != nil {
		return err
	}
	return VerifyAll(index, r.root, r.layout)
}
