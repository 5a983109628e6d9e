package snapshot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkerClassifier_IsVolatile(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		want bool
	}{
		{name: "pkg-1.0-SNAPSHOT1.rpm", want: true},
		{name: "pkg-1.0-SNAPSHOT.rpm", want: true},
		{name: "SNAPSHOT-1.rpm", want: false},
		{name: "pkg-1.0.rpm", want: false},
		{name: "pkg-1.0-snapshot1.rpm", want: false},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, c.IsVolatile(test.name), test.name)
	}
}

func TestMarkerClassifier_GroupKey(t *testing.T) {
	c := Default()

	assert.Equal(t, "x86_64/pkg-1.0-", c.GroupKey("x86_64/pkg-1.0-SNAPSHOT1.rpm"))
	assert.Equal(t, "x86_64/pkg-1.0-", c.GroupKey("x86_64/pkg-1.0-SNAPSHOT-9.rpm"))
	assert.Equal(t, "pkg-1.0-", c.GroupKey("pkg-1.0-SNAPSHOT.rpm"))
	assert.NotEqual(t, c.GroupKey("a/pkg-1.0-SNAPSHOT1.rpm"), c.GroupKey("b/pkg-1.0-SNAPSHOT1.rpm"))
}

func TestMarkerClassifier_Ordinal(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		want int
	}{
		{name: "pkg-1.0-SNAPSHOT1.rpm", want: 1},
		{name: "pkg-1.0-SNAPSHOT-2.rpm", want: 2},
		{name: "pkg-1.0-SNAPSHOT_12.rpm", want: 12},
		{name: "pkg-1.0-SNAPSHOT.rpm", want: -1},
		{name: "pkg-1.0-SNAPSHOT1.x86_64.rpm", want: 18664},
		{name: "pkg-1.0-SNAPSHOT99999999999999999999999.rpm", want: -1},
		{name: "pkg-1.0.rpm", want: -1},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, c.Ordinal(test.name), test.name)
	}
}

func TestMarkerClassifier_Canonical(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		want string
	}{
		{name: "pkg-1.0-SNAPSHOT1.rpm", want: "pkg-1.0-SNAPSHOT.rpm"},
		{name: "pkg-1.0-SNAPSHOT-9.rpm", want: "pkg-1.0-SNAPSHOT.rpm"},
		{name: "pkg-1.0-SNAPSHOT_3.noarch.rpm", want: "pkg-1.0-SNAPSHOT.noarch.rpm"},
		{name: "pkg-1.0-SNAPSHOT.rpm", want: "pkg-1.0-SNAPSHOT.rpm"},
		{name: "pkg-SNAPSHOT-1.0-SNAPSHOT2.rpm", want: "pkg-SNAPSHOT-1.0-SNAPSHOT2.rpm"},
		{name: "other.rpm", want: "other.rpm"},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, c.Canonical(test.name), test.name)
	}
}

func TestMarkerClassifier_Numbered(t *testing.T) {
	c := Default()

	assert.Equal(t, "pkg-1.0-SNAPSHOT.rpm", c.Numbered("pkg-1.0-SNAPSHOT.rpm", 0))
	assert.Equal(t, "pkg-1.0-SNAPSHOT-1.rpm", c.Numbered("pkg-1.0-SNAPSHOT.rpm", 1))
	assert.Equal(t, "pkg-1.0-SNAPSHOT-7.noarch.rpm", c.Numbered("pkg-1.0-SNAPSHOT3.noarch.rpm", 7))
	assert.Equal(t, 7, c.Ordinal(c.Numbered("pkg-1.0-SNAPSHOT.rpm", 7)))
}

func TestMarkerClassifier_CustomMarker(t *testing.T) {
	c := NewMarkerClassifier("dev.")

	assert.True(t, c.IsVolatile("pkg-1.0-dev.3.rpm"))
	assert.Equal(t, 3, c.Ordinal("pkg-1.0-dev.3.rpm"))
	assert.Equal(t, "pkg-1.0-", c.GroupKey("pkg-1.0-dev.3.rpm"))
}
