package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "empty path", input: "", wantErr: ErrEmptyPath},
		{name: "relative path", input: "./stage", want: filepath.Join(cwd, "stage")},
		{name: "absolute path", input: "/tmp/stage/../repo", want: filepath.Clean("/tmp/repo")},
		{name: "home", input: "~", want: home},
		{name: "under home", input: "~/repos/el9", want: filepath.Join(home, "repos", "el9")},
		{name: "tilde in name", input: "~stage", want: filepath.Join(cwd, "~stage")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureParent(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a", "b", "journal.db")

	require.NoError(t, EnsureParent(file))
	assert.DirExists(t, filepath.Join(root, "a", "b"))

	// idempotent
	require.NoError(t, EnsureParent(file))
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	assert.Error(t, EnsureDir(path))
}

func TestIsRegularFile(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "a.rpm")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	assert.True(t, IsRegularFile(file))
	assert.False(t, IsRegularFile(root))
	assert.False(t, IsRegularFile(filepath.Join(root, "missing.rpm")))
}
