package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitflipd/internal/journal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_CreatesDatabaseAndParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "archive.db")

	st, err := Open(path)
	require.NoError(t, err)
	defer st.Close()

	assert.Equal(t, path, st.Path())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSessions_RoundTrip(t *testing.T) {
	st := newTestStore(t)

	records := []journal.SessionStart{
		{SessionStartMs: 1700000000000, DelayMs: 30000, Latitude: "59.33", Longitude: "18.06"},
		{SessionStartMs: 1700000100000, DelayMs: 30000, Latitude: "59.33", Longitude: "18.06"},
	}
	for _, r := range records {
		require.NoError(t, st.RecordSession(r))
	}

	rows, err := st.Sessions()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	for i, row := range rows {
		assert.Equal(t, records[i], row.Record)
		assert.Positive(t, row.RecordedAtMs)
	}
}

func TestDetections_RoundTrip(t *testing.T) {
	st := newTestStore(t)

	rec := journal.Detection{
		SessionStartMs:  1700000000000,
		DelayMs:         30000,
		ChecksSinceFlip: 42,
		Ambiguous:       false,
		EventTimeMs:     1700000123456,
		Latitude:        "40.7",
		Longitude:       "-74.0",
	}
	require.NoError(t, st.RecordDetection(rec, 8191, 0x40))

	rows, err := st.Detections()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, rec, row.Record)
	require.NotNil(t, row.Index)
	require.NotNil(t, row.Value)
	assert.Equal(t, int64(8191), *row.Index)
	assert.Equal(t, int64(0x40), *row.Value)
}

func TestDetections_AmbiguousStoresNullByteColumns(t *testing.T) {
	st := newTestStore(t)

	rec := journal.Detection{
		SessionStartMs:  1700000000000,
		DelayMs:         1000,
		ChecksSinceFlip: 7,
		Ambiguous:       true,
		EventTimeMs:     1700000007000,
		Latitude:        "59.33",
		Longitude:       "18.06",
	}
	// Index and value are meaningless for an ambiguous detection and
	// must not be archived even if passed.
	require.NoError(t, st.RecordDetection(rec, 123, 0xFF))

	rows, err := st.Detections()
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.True(t, row.Record.Ambiguous)
	assert.Nil(t, row.Index)
	assert.Nil(t, row.Value)
}

func TestDetections_OrderedOldestFirst(t *testing.T) {
	st := newTestStore(t)

	for i := 0; i < 5; i++ {
		rec := journal.Detection{
			SessionStartMs:  1700000000000,
			ChecksSinceFlip: uint64(i + 1),
			EventTimeMs:     1700000000000 + int64(i),
			Latitude:        "0",
			Longitude:       "0",
		}
		require.NoError(t, st.RecordDetection(rec, i, 1))
	}

	rows, err := st.Detections()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	for i, row := range rows {
		assert.Equal(t, uint64(i+1), row.Record.ChecksSinceFlip)
	}
}

func TestOpen_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.RecordSession(journal.SessionStart{
		SessionStartMs: 1, DelayMs: 2, Latitude: "3", Longitude: "4",
	}))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	rows, err := st.Sessions()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
