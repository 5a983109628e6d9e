package snapshot

import (
	"cmp"
	"maps"
	"path"
	"slices"

	"github.com/openmined/s3repo/internal/repoaddr"
)

// Descriptor is one build of a volatile artifact as seen in a repository.
type Descriptor struct {
	Prefix  string
	Path    string // repo-relative
	Key     string // object key in Repo
	Ordinal int
	Repo    repoaddr.Address
}

// Group holds every build sharing a prefix.
type Group struct {
	Prefix  string
	Members []Descriptor
}

// Groups indexes snapshot groups by prefix.
type Groups struct {
	classifier Classifier
	groups     map[string]*Group
	seen       map[string]struct{}
}

func NewGroups(classifier Classifier) *Groups {
	return &Groups{
		classifier: classifier,
		groups:     make(map[string]*Group),
		seen:       make(map[string]struct{}),
	}
}

// Add records a member of repo if it is volatile. A repo-relative path that
// was already added, possibly from another repository, is ignored so the
// first listing wins. It returns true when the member was recorded.
func (g *Groups) Add(repo repoaddr.Address, repoRelative string) bool {
	name := path.Base(repoRelative)
	if !g.classifier.IsVolatile(name) {
		return false
	}
	if _, ok := g.seen[repoRelative]; ok {
		return false
	}
	g.seen[repoRelative] = struct{}{}

	prefix := g.classifier.GroupKey(repoRelative)
	group, ok := g.groups[prefix]
	if !ok {
		group = &Group{Prefix: prefix}
		g.groups[prefix] = group
	}
	group.Members = append(group.Members, Descriptor{
		Prefix:  prefix,
		Path:    repoRelative,
		Key:     repo.Key(repoRelative),
		Ordinal: g.classifier.Ordinal(name),
		Repo:    repo,
	})
	return true
}

// Len returns the number of groups.
func (g *Groups) Len() int {
	return len(g.groups)
}

// Get returns the group for prefix.
func (g *Groups) Get(prefix string) (*Group, bool) {
	group, ok := g.groups[prefix]
	return group, ok
}

// Sorted returns every group ordered by prefix.
func (g *Groups) Sorted() []*Group {
	prefixes := slices.Sorted(maps.Keys(g.groups))
	out := make([]*Group, 0, len(prefixes))
	for _, prefix := range prefixes {
		out = append(out, g.groups[prefix])
	}
	return out
}

// Collect groups the volatile members among paths listed from repo.
func Collect(classifier Classifier, repo repoaddr.Address, paths []string) *Groups {
	groups := NewGroups(classifier)
	for _, p := range paths {
		groups.Add(repo, p)
	}
	return groups
}

// Decision is the retention outcome for one group.
type Decision struct {
	Keep Descriptor
	// CanonicalPath is the repo-relative path Keep is published under
	CanonicalPath string
	// Superseded builds, most recent first
	Superseded []Descriptor
}

// Renamed reports whether the kept build changes name.
func (d Decision) Renamed() bool {
	return d.CanonicalPath != d.Keep.Path
}

// Retain keeps the highest ordinal build of a group. Equal ordinals are
// ordered by repo-relative path so repeated runs keep the same member.
func Retain(classifier Classifier, group *Group) Decision {
	if len(group.Members) == 0 {
		return Decision{}
	}
	members := slices.Clone(group.Members)
	slices.SortStableFunc(members, compareDescriptors)

	keep := members[0]
	dir, name := path.Split(keep.Path)
	return Decision{
		Keep:          keep,
		CanonicalPath: dir + classifier.Canonical(name),
		Superseded:    members[1:],
	}
}

// RetainAll returns a decision for every group with more than one member,
// ordered by prefix.
func RetainAll(groups *Groups) []Decision {
	var decisions []Decision
	for _, group := range groups.Sorted() {
		if len(group.Members) < 2 {
			continue
		}
		decisions = append(decisions, Retain(groups.classifier, group))
	}
	return decisions
}

func compareDescriptors(a, b Descriptor) int {
	if c := cmp.Compare(b.Ordinal, a.Ordinal); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Path, b.Path); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}
