package repoaddr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Address
	}{
		{name: "scheme-bucket-only", input: "s3://bucket", want: Address{Bucket: "bucket"}},
		{name: "scheme-with-folder", input: "s3://bucket/path/to/repo", want: Address{Bucket: "bucket", Folder: "path/to/repo"}},
		{name: "scheme-trailing-slash", input: "s3://bucket/repo/", want: Address{Bucket: "bucket", Folder: "repo"}},
		{name: "other-scheme", input: "minio://bucket/repo", want: Address{Bucket: "bucket", Folder: "repo"}},
		{name: "absolute", input: "/bucket/repo", want: Address{Bucket: "bucket", Folder: "repo"}},
		{name: "absolute-trailing", input: "/bucket/repo/", want: Address{Bucket: "bucket", Folder: "repo"}},
		{name: "empty-segments", input: "/bucket//a///b/", want: Address{Bucket: "bucket", Folder: "a/b"}},
		{name: "absolute-bucket-only", input: "/bucket", want: Address{Bucket: "bucket"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Parse(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	inputs := []string{"", "/", "//", "s3://", "s3:///", "bucket/repo", "relative", "a/b://bucket"}
	for _, input := range inputs {
		_, err := Parse(input)
		require.Error(t, err, input)
		assert.True(t, errors.Is(err, ErrParse), input)

		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, input, parseErr.Input)
	}
}

func TestRoundTrip(t *testing.T) {
	addrs := []Address{
		{Bucket: "bucket"},
		{Bucket: "bucket", Folder: "repo"},
		{Bucket: "my.bucket-1", Folder: "a/b/c"},
	}
	for _, addr := range addrs {
		parsed, err := Parse(addr.String())
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
	}
}

func TestKeyMapping(t *testing.T) {
	root := MustParse("s3://bucket")
	assert.Equal(t, "a/b.rpm", root.Key("a/b.rpm"))
	assert.Equal(t, "", root.Prefix())

	nested := MustParse("s3://bucket/repo/el9")
	assert.Equal(t, "repo/el9/", nested.Prefix())
	assert.Equal(t, "repo/el9/a/b.rpm", nested.Key("a/b.rpm"))
	assert.Equal(t, "repo/el9/a/b.rpm", nested.Key("/a/b.rpm"))

	rel, ok := nested.RepoRelative("repo/el9/a/b.rpm")
	assert.True(t, ok)
	assert.Equal(t, "a/b.rpm", rel)

	_, ok = nested.RepoRelative("repo/el8/a/b.rpm")
	assert.False(t, ok)

	assert.True(t, nested.Contains("bucket", "repo/el9/x.rpm"))
	assert.False(t, nested.Contains("other", "repo/el9/x.rpm"))
}

func TestEquality(t *testing.T) {
	assert.Equal(t, MustParse("s3://bucket/repo"), MustParse("/bucket/repo/"))
	assert.NotEqual(t, MustParse("s3://bucket/repo"), MustParse("s3://bucket/other"))
}
