package snapshot

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// DefaultMarker flags a rebuildable pre-release artifact.
const DefaultMarker = "SNAPSHOT"

// Classifier decides which members are volatile builds and how they group.
// Names are base file names; keys are slash separated paths.
type Classifier interface {
	// IsVolatile reports whether the file name is a rebuildable artifact
	IsVolatile(name string) bool
	// GroupKey returns the key shared by every build of the same artifact
	GroupKey(key string) string
	// Ordinal returns the build number, -1 when there is none
	Ordinal(name string) int
	// Canonical returns the name a retained build is published under
	Canonical(name string) string
}

// MarkerClassifier detects volatile artifacts by a marker token in the file name.
type MarkerClassifier struct {
	marker  string
	numeric *regexp.Regexp
}

func NewMarkerClassifier(marker string) *MarkerClassifier {
	return &MarkerClassifier{
		marker:  marker,
		numeric: regexp.MustCompile(regexp.QuoteMeta(marker) + `[-_]?\d+\.`),
	}
}

// Default returns a classifier for the SNAPSHOT marker.
func Default() *MarkerClassifier {
	return NewMarkerClassifier(DefaultMarker)
}

func (c *MarkerClassifier) Marker() string {
	return c.marker
}

// IsVolatile is true when the marker appears after the first character.
func (c *MarkerClassifier) IsVolatile(name string) bool {
	return strings.Index(name, c.marker) > 0
}

func (c *MarkerClassifier) GroupKey(key string) string {
	dir, name := path.Split(key)
	idx := strings.Index(name, c.marker)
	if idx <= 0 {
		return key
	}
	return dir + name[:idx]
}

// Ordinal parses every digit after the marker as one number.
func (c *MarkerClassifier) Ordinal(name string) int {
	idx := strings.Index(name, c.marker)
	if idx < 0 {
		return -1
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, name[idx:])
	if digits == "" {
		return -1
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}
	return n
}

// Canonical drops the build number that follows the marker. Names carrying
// the marker more or less than once are returned unchanged.
func (c *MarkerClassifier) Canonical(name string) string {
	if strings.Count(name, c.marker) != 1 {
		return name
	}
	return c.numeric.ReplaceAllLiteralString(name, c.marker+".")
}

// Numbered returns the canonical name with build number n after the marker.
// n <= 0 yields the canonical name.
func (c *MarkerClassifier) Numbered(name string, n int) string {
	canonical := c.Canonical(name)
	if n <= 0 || strings.Count(canonical, c.marker) != 1 {
		return canonical
	}
	idx := strings.Index(canonical, c.marker) + len(c.marker)
	rest := canonical[idx:]
	if rest != "" && (unicode.IsDigit(rune(rest[0])) || rest[0] == '-' || rest[0] == '_') {
		return canonical
	}
	return canonical[:idx] + "-" + strconv.Itoa(n) + rest
}

var _ Classifier = (*MarkerClassifier)(nil)
