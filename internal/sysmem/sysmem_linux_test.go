//go:build linux

package sysmem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMeminfo(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meminfo")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMemAvailable_ParsesKernelFormat(t *testing.T) {
	path := writeMeminfo(t, `MemTotal:       16266200 kB
MemFree:         1056004 kB
MemAvailable:    8123456 kB
Buffers:          402124 kB
Cached:          5871244 kB
SwapTotal:       2097148 kB
SwapFree:        2097148 kB
`)

	p := &systemProvider{meminfoPath: path}
	got, err := p.memAvailable()
	require.NoError(t, err)
	assert.Equal(t, uint64(8123456*1024), got)
}

func TestMemAvailable_MissingField(t *testing.T) {
	path := writeMeminfo(t, `MemTotal:       16266200 kB
MemFree:         1056004 kB
`)

	p := &systemProvider{meminfoPath: path}
	_, err := p.memAvailable()
	require.Error(t, err)
}

func TestMemAvailable_MissingFile(t *testing.T) {
	p := &systemProvider{meminfoPath: filepath.Join(t.TempDir(), "absent")}
	_, err := p.memAvailable()
	require.Error(t, err)
}

func TestSnapshot_RealSystem(t *testing.T) {
	m, err := NewSystemProvider().Snapshot()
	require.NoError(t, err)

	assert.Positive(t, m.TotalBytes)
	assert.Positive(t, m.AvailableBytes)
	assert.LessOrEqual(t, m.SwapUsedBytes, m.SwapTotalBytes)
}
