package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
)

// Excludes matches repo-relative paths against the exclude list. Plain entries
// match exactly; entries with glob metacharacters match with doublestar.
type Excludes struct {
	exact    mapset.Set[string]
	patterns []string
}

// ParseExcludes parses a comma-delimited exclude list. Surrounding whitespace
// and leading separators are ignored.
func ParseExcludes(list string) (*Excludes, error) {
	e := &Excludes{exact: mapset.NewThreadUnsafeSet[string]()}

	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimLeft(strings.TrimSpace(entry), "/")
		if entry == "" {
			continue
		}
		if !strings.ContainsAny(entry, "*?[{") {
			e.exact.Add(entry)
			continue
		}
		if !doublestar.ValidatePattern(entry) {
			return nil, fmt.Errorf("invalid exclude pattern %q", entry)
		}
		e.patterns = append(e.patterns, entry)
	}

	return e, nil
}

// Match reports whether repoRelative is excluded.
func (e *Excludes) Match(repoRelative string) bool {
	if e == nil {
		return false
	}
	if e.exact.Contains(repoRelative) {
		return true
	}
	for _, pattern := range e.patterns {
		if ok, _ := doublestar.Match(pattern, repoRelative); ok {
			return true
		}
	}
	return false
}

func (e *Excludes) Empty() bool {
	return e == nil || (e.exact.Cardinality() == 0 && len(e.patterns) == 0)
}
