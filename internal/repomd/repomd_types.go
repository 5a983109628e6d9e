package repomd

import (
	"errors"
	"fmt"
	"strings"
)

var ErrIntegrity = errors.New("metadata integrity error")

// Index is the parsed index-of-indexes document.
type Index struct {
	// Namespace of the root element as found in the document
	Namespace string
	// Data maps a member type ("primary", "filelists", ...) to its document
	Data map[string]DataRef
}

// DataRef points at a per-type document and carries its declared digest.
type DataRef struct {
	Type         string
	Location     string
	ChecksumType string
	Checksum     string
}

// Ref returns the document declared for typ.
func (i *Index) Ref(typ string) (DataRef, bool) {
	ref, ok := i.Data[typ]
	return ref, ok
}

// IntegrityError reports metadata that cannot be trusted. Paths lists every
// offending repo-relative path at once.
type IntegrityError struct {
	Reason string
	Paths  []string
}

func (e *IntegrityError) Error() string {
	if len(e.Paths) == 0 {
		return fmt.Sprintf("metadata integrity: %s", e.Reason)
	}
	return fmt.Sprintf("metadata integrity: %s: %s", e.Reason, strings.Join(e.Paths, ", "))
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

// ChecksumMismatchError is returned when a per-type document does not match
// the digest declared in the index.
type ChecksumMismatchError struct {
	Path      string
	Algorithm string
	Expected  string
	Actual    string
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum does not match for %s (%s): expected %s but got %s", e.Path, e.Algorithm, e.Expected, e.Actual)
}

func (e *ChecksumMismatchError) Is(target error) bool {
	return target == ErrIntegrity
}
