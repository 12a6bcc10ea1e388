package logging

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	} {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestJSONHandlerCarriesEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(slog.New(NewHandler(&buf, slog.LevelInfo, "json")), "session")
	logger.Info("registered with namenode", slog.String("event", EventRegistered))
	logger.Debug("hidden")

	out := buf.String()
	require.Contains(t, out, `"component":"session"`)
	require.Contains(t, out, `"event":"registered"`)
	require.NotContains(t, out, "hidden")
}

func TestNewWithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datanode.log")
	logger, closer, err := New("info", path, "text")
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}
