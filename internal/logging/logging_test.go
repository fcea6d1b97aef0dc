package logging

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T, cfg Config) (*Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bitflipd.log")
	cfg.Output = "file"
	cfg.FilePath = path

	l, err := New(&cfg)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestNew_WritesComponentAndMessage(t *testing.T) {
	l, path := newFileLogger(t, Config{
		Level:     slog.LevelInfo,
		Component: "detector",
	})

	l.Info("mass armed", "capacity_bytes", 1024)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mass armed")
	assert.Contains(t, string(data), "component=detector")
	assert.Contains(t, string(data), "capacity_bytes=1024")
}

func TestNew_JSONFormat(t *testing.T) {
	l, path := newFileLogger(t, Config{
		Level:     slog.LevelInfo,
		Format:    FormatJSON,
		Component: "monitor",
	})

	l.Info("bit flip detected", "byte_index", 42)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "bit flip detected", entry["msg"])
	assert.Equal(t, "monitor", entry["component"])
	assert.Equal(t, float64(42), entry["byte_index"])
}

func TestNew_BadFilePath(t *testing.T) {
	_, err := New(&Config{
		Output:   "file",
		FilePath: filepath.Join(string(os.PathSeparator), "nonexistent-dir-for-logs", "x.log"),
	})
	require.Error(t, err)
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	defer l.Close()
	assert.NotNil(t, l.Logger)
}

func TestSetLevel_GatesOutput(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: slog.LevelInfo})

	l.Debug("suppressed progress line")
	l.SetLevel(slog.LevelDebug)
	l.Debug("visible progress line")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "suppressed progress line")
	assert.Contains(t, string(data), "visible progress line")
}

func TestWithComponent_SharesLevel(t *testing.T) {
	l, path := newFileLogger(t, Config{Level: slog.LevelWarn})

	child := l.WithComponent("sizer")
	child.Info("hidden")
	l.SetLevel(slog.LevelInfo)
	child.Info("probe accepted")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "probe accepted")
	assert.Contains(t, string(data), "component=sizer")
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	got, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, got)

	got, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, got)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}
