package snapshot

import (
	"math/rand"
	"testing"

	"github.com/openmined/s3repo/internal/repoaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRepo = repoaddr.MustParse("s3://bucket/repo")

func TestCollect(t *testing.T) {
	groups := Collect(Default(), testRepo, []string{
		"x86_64/pkg-1.0-SNAPSHOT1.rpm",
		"x86_64/pkg-1.0-SNAPSHOT-2.rpm",
		"x86_64/other.rpm",
		"noarch/tool-2.0-SNAPSHOT.rpm",
		"repodata/repomd.xml",
	})

	require.Equal(t, 2, groups.Len())

	group, ok := groups.Get("x86_64/pkg-1.0-")
	require.True(t, ok)
	require.Len(t, group.Members, 2)
	assert.Equal(t, "repo/x86_64/pkg-1.0-SNAPSHOT1.rpm", group.Members[0].Key)
	assert.Equal(t, 1, group.Members[0].Ordinal)
	assert.Equal(t, testRepo, group.Members[0].Repo)

	sorted := groups.Sorted()
	assert.Equal(t, "noarch/tool-2.0-", sorted[0].Prefix)
	assert.Equal(t, "x86_64/pkg-1.0-", sorted[1].Prefix)
}

func TestGroups_FirstListingWins(t *testing.T) {
	target := repoaddr.MustParse("s3://target")
	source := repoaddr.MustParse("s3://source/base")

	groups := NewGroups(Default())
	assert.True(t, groups.Add(target, "pkg-1.0-SNAPSHOT1.rpm"))
	assert.False(t, groups.Add(source, "pkg-1.0-SNAPSHOT1.rpm"))
	assert.True(t, groups.Add(source, "pkg-1.0-SNAPSHOT2.rpm"))
	assert.False(t, groups.Add(source, "other.rpm"))

	group, ok := groups.Get("pkg-1.0-")
	require.True(t, ok)
	require.Len(t, group.Members, 2)
	assert.Equal(t, target, group.Members[0].Repo)
	assert.Equal(t, "base/pkg-1.0-SNAPSHOT2.rpm", group.Members[1].Key)
}

func TestRetain_Determinism(t *testing.T) {
	paths := []string{
		"pkg-1.0-SNAPSHOT5.rpm",
		"pkg-1.0-SNAPSHOT-5.rpm",
		"pkg-1.0-SNAPSHOT3.rpm",
		"pkg-1.0-SNAPSHOT.rpm",
	}

	var first Decision
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]string(nil), paths...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		groups := Collect(Default(), testRepo, shuffled)
		decisions := RetainAll(groups)
		require.Len(t, decisions, 1)
		decision := decisions[0]

		assert.Equal(t, 5, decision.Keep.Ordinal)
		require.Len(t, decision.Superseded, 3)
		assert.Equal(t, []int{5, 3, -1}, []int{
			decision.Superseded[0].Ordinal,
			decision.Superseded[1].Ordinal,
			decision.Superseded[2].Ordinal,
		})

		if i == 0 {
			first = decision
			continue
		}
		assert.Equal(t, first.Keep.Path, decision.Keep.Path)
	}

	// "-" sorts before "5"
	assert.Equal(t, "pkg-1.0-SNAPSHOT-5.rpm", first.Keep.Path)
	assert.Equal(t, "pkg-1.0-SNAPSHOT.rpm", first.CanonicalPath)
	assert.True(t, first.Renamed())
}

func TestRetain_Scenario(t *testing.T) {
	groups := Collect(Default(), testRepo, []string{
		"pkg-1.0-SNAPSHOT1.rpm",
		"pkg-1.0-SNAPSHOT-2.rpm",
		"pkg-1.0-SNAPSHOT-9.rpm",
		"other.rpm",
	})

	decisions := RetainAll(groups)
	require.Len(t, decisions, 1)

	decision := decisions[0]
	assert.Equal(t, "pkg-1.0-SNAPSHOT-9.rpm", decision.Keep.Path)
	assert.Equal(t, "repo/pkg-1.0-SNAPSHOT-9.rpm", decision.Keep.Key)
	assert.Equal(t, "pkg-1.0-SNAPSHOT.rpm", decision.CanonicalPath)

	var superseded []string
	for _, d := range decision.Superseded {
		superseded = append(superseded, d.Path)
	}
	assert.Equal(t, []string{"pkg-1.0-SNAPSHOT-2.rpm", "pkg-1.0-SNAPSHOT1.rpm"}, superseded)
}

func TestRetainAll_SkipsSingletons(t *testing.T) {
	groups := Collect(Default(), testRepo, []string{
		"a/pkg-1.0-SNAPSHOT3.rpm",
		"b/pkg-1.0-SNAPSHOT4.rpm",
	})
	assert.Equal(t, 2, groups.Len())
	assert.Empty(t, RetainAll(groups))
}

func TestRetain_KeepUnchangedName(t *testing.T) {
	groups := Collect(Default(), testRepo, []string{"pkg-SNAPSHOT.rpm", "pkg-SNAPSHOT.x.rpm"})
	decisions := RetainAll(groups)
	require.Len(t, decisions, 1)
	assert.Equal(t, "pkg-SNAPSHOT.rpm", decisions[0].Keep.Path)
	assert.False(t, decisions[0].Renamed())
}
