// Package repoaddr parses and renders repository addresses of the form
// "s3://bucket/folder" or "/bucket/folder".
package repoaddr

import (
	"errors"
	"fmt"
	"strings"
)

const (
	schemeSep   = "://"
	pathSep     = "/"
	renderedFmt = "s3://%s"
)

var (
	ErrParse = errors.New("invalid repository address")
)

// ParseError is returned when a repository address cannot be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse repository address %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Address identifies a repository root inside a bucket. Folder never has a
// leading or trailing separator and is empty when the repository lives at
// the bucket root.
type Address struct {
	Bucket string
	Folder string
}

// Parse accepts "scheme://bucket/path..." or "/bucket/path...". Empty path
// segments and trailing separators are ignored.
func Parse(text string) (Address, error) {
	var rest string
	if idx := strings.Index(text, schemeSep); idx > 0 && !strings.Contains(text[:idx], pathSep) {
		rest = text[idx+len(schemeSep):]
	} else if strings.HasPrefix(text, pathSep) {
		rest = text[len(pathSep):]
	} else {
		return Address{}, &ParseError{Input: text, Reason: "expected '/' or 's3://' prefix"}
	}

	pieces := splitPath(rest)
	if len(pieces) == 0 {
		return Address{}, &ParseError{Input: text, Reason: "missing bucket name"}
	}

	return Address{
		Bucket: pieces[0],
		Folder: strings.Join(pieces[1:], pathSep),
	}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and constants.
func MustParse(text string) Address {
	addr, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return addr
}

func (a Address) String() string {
	if a.HasFolder() {
		return fmt.Sprintf(renderedFmt, a.Bucket+pathSep+a.Folder)
	}
	return fmt.Sprintf(renderedFmt, a.Bucket)
}

func (a Address) HasFolder() bool {
	return a.Folder != ""
}

// Prefix is the listing prefix for the repository, "" or "folder/".
func (a Address) Prefix() string {
	if a.HasFolder() {
		return a.Folder + pathSep
	}
	return ""
}

// Key converts a repo-relative path into a bucket key.
func (a Address) Key(repoRelative string) string {
	return a.Prefix() + strings.TrimPrefix(repoRelative, pathSep)
}

// RepoRelative converts a bucket key into a repo-relative path. The second
// return value is false when the key lies outside the repository folder.
func (a Address) RepoRelative(key string) (string, bool) {
	prefix := a.Prefix()
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	return key[len(prefix):], true
}

// Contains reports whether key lives under this repository.
func (a Address) Contains(bucket, key string) bool {
	if bucket != a.Bucket {
		return false
	}
	_, ok := a.RepoRelative(key)
	return ok
}

func splitPath(path string) []string {
	parts := strings.Split(path, pathSep)
	pieces := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}
