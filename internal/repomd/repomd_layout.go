package repomd

import (
	"path"
	"slices"
	"strings"
)

// Layout names the well-known files and member types of a repository.
type Layout struct {
	// Folder holds the index and every member-list document, relative to the repo root
	Folder string
	// IndexFile is the index-of-indexes inside Folder
	IndexFile string
	// PrimaryType is the member type that enumerates packages
	PrimaryType string
	// MemberTypes are the per-type documents checked before an incremental update
	MemberTypes []string
	// CompressedExtensions are the accepted extensions for per-type documents
	CompressedExtensions []string
}

// DefaultLayout is the layout written by createrepo and createrepo_c.
var DefaultLayout = Layout{
	Folder:               "repodata",
	IndexFile:            "repomd.xml",
	PrimaryType:          "primary",
	MemberTypes:          []string{"primary", "filelists", "other"},
	CompressedExtensions: []string{".gz", ".zst", ".bz2"},
}

// IndexPath returns the repo-relative path of the index document.
func (l Layout) IndexPath() string {
	return path.Join(l.Folder, l.IndexFile)
}

// IsMetadata reports whether a repo-relative path lives in the metadata folder.
func (l Layout) IsMetadata(repoRelative string) bool {
	return strings.HasPrefix(repoRelative, l.Folder+"/")
}

// IsCompressed reports whether name carries one of the accepted extensions.
func (l Layout) IsCompressed(name string) bool {
	return slices.Contains(l.CompressedExtensions, path.Ext(name))
}
