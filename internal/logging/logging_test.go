package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Options{Level: slog.LevelInfo, Console: &buf})
	require.NoError(t, err)
	defer closer()

	logger.Debug("hidden")
	logger.Info("uploading", "key", "repo/a.rpm")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "uploading")
	assert.Contains(t, out, "key=repo/a.rpm")
	// not a terminal, so no escape codes
	assert.NotContains(t, out, "\x1b[")
}

func TestNew_WithFile(t *testing.T) {
	var buf bytes.Buffer
	logFile := filepath.Join(t.TempDir(), "logs", "s3repo.log")

	logger, closer, err := New(Options{Level: slog.LevelWarn, Console: &buf, File: logFile})
	require.NoError(t, err)

	logger.Debug("debug only in file")
	logger.Warn("warn everywhere")
	require.NoError(t, closer())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug only in file")
	assert.Contains(t, string(data), "warn everywhere")

	assert.NotContains(t, buf.String(), "debug only in file")
	assert.Contains(t, buf.String(), "warn everywhere")
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(h).With("run", "r1").WithGroup("op")
	logger.Info("upload", "key", "k")

	assert.Contains(t, a.String(), "run=r1")
	assert.Contains(t, a.String(), "op.key=k")
	assert.Empty(t, b.String())

	logger.Error("failed")
	assert.Contains(t, b.String(), "failed")
}
