package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitflipd/internal/journal"
	"bitflipd/internal/store"
)

func newFixtureStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	require.NoError(t, st.RecordSession(journal.SessionStart{
		SessionStartMs: 1700000000000,
		DelayMs:        30000,
		Latitude:       "59.33",
		Longitude:      "18.06",
	}))
	require.NoError(t, st.RecordSession(journal.SessionStart{
		SessionStartMs: 1700000900000,
		DelayMs:        30000,
		Latitude:       "59.33",
		Longitude:      "18.06",
	}))

	require.NoError(t, st.RecordDetection(journal.Detection{
		SessionStartMs:  1700000000000,
		DelayMs:         30000,
		ChecksSinceFlip: 29,
		Ambiguous:       false,
		EventTimeMs:     1700000870000,
		Latitude:        "59.33",
		Longitude:       "18.06",
	}, 8191, 0x40))
	require.NoError(t, st.RecordDetection(journal.Detection{
		SessionStartMs:  1700000900000,
		DelayMs:         30000,
		ChecksSinceFlip: 3,
		Ambiguous:       true,
		EventTimeMs:     1700000990000,
		Latitude:        "59.33",
		Longitude:       "18.06",
	}, 0, 0))

	return st
}

func TestBuild_FromArchive(t *testing.T) {
	st := newFixtureStore(t)

	r, err := Build(st)
	require.NoError(t, err)

	assert.Equal(t, SchemaName, r.Schema)
	assert.Positive(t, r.GeneratedAtMs)
	assert.Equal(t, 2, r.Totals.Sessions)
	assert.Equal(t, 2, r.Totals.Detections)
	assert.Equal(t, 1, r.Totals.Ambiguous)

	require.Len(t, r.Sessions, 2)
	assert.Equal(t, int64(1700000000000), r.Sessions[0].SessionStartMs)

	require.Len(t, r.Detections, 2)
	identified := r.Detections[0]
	require.NotNil(t, identified.ByteIndex)
	require.NotNil(t, identified.ByteValue)
	assert.Equal(t, int64(8191), *identified.ByteIndex)
	assert.Equal(t, int64(0x40), *identified.ByteValue)

	ambiguous := r.Detections[1]
	assert.True(t, ambiguous.Ambiguous)
	assert.Nil(t, ambiguous.ByteIndex)
	assert.Nil(t, ambiguous.ByteValue)
}

func TestBuild_EmptyArchive(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	defer st.Close()

	r, err := Build(st)
	require.NoError(t, err)

	assert.Zero(t, r.Totals.Sessions)
	assert.NotNil(t, r.Sessions, "empty arrays must serialize as [], not null")
	assert.NotNil(t, r.Detections)
}

func TestWriteJSON_MatchesSchema(t *testing.T) {
	st := newFixtureStore(t)

	r, err := Build(st)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	validateAgainstSchema(t, buf.Bytes())
}

func TestWriteJSON_AmbiguousOmitsByteFields(t *testing.T) {
	st := newFixtureStore(t)

	r, err := Build(st)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	var decoded struct {
		Detections []map[string]any `json:"detections"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Detections, 2)

	assert.Contains(t, decoded.Detections[0], "byte_index")
	assert.NotContains(t, decoded.Detections[1], "byte_index")
	assert.NotContains(t, decoded.Detections[1], "byte_value")
}

func TestSchema_RejectsAmbiguousWithByteIndex(t *testing.T) {
	idx := int64(5)
	val := int64(1)
	r := &Report{
		Schema:        SchemaName,
		GeneratedAtMs: 1700000000000,
		Totals:        Totals{Sessions: 0, Detections: 1, Ambiguous: 1},
		Sessions:      []Session{},
		Detections: []Detection{{
			SessionStartMs:  1700000000000,
			DelayMs:         1000,
			ChecksSinceFlip: 1,
			Ambiguous:       true,
			EventTimeMs:     1700000001000,
			Latitude:        "0",
			Longitude:       "0",
			ByteIndex:       &idx,
			ByteValue:       &val,
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	err := validationError(t, buf.Bytes())
	require.Error(t, err, "ambiguous detections must not carry byte_index")
}

func TestSchema_RejectsUnknownSchemaName(t *testing.T) {
	r := &Report{
		Schema:        "flip-report-v2",
		GeneratedAtMs: 1,
		Sessions:      []Session{},
		Detections:    []Detection{},
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))

	require.Error(t, validationError(t, buf.Bytes()))
}

func validateAgainstSchema(t *testing.T, doc []byte) {
	t.Helper()
	if err := validationError(t, doc); err != nil {
		t.Fatalf("schema validation failed: %v", err)
	}
}

func validationError(t *testing.T, doc []byte) error {
	t.Helper()

	schemaPath := filepath.Join(repoRoot(t), "docs", "schema", "flip-report-v1.schema.json")
	schemaData, err := os.ReadFile(schemaPath)
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}

	var instance any
	if err := json.Unmarshal(doc, &instance); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaPath, bytes.NewReader(schemaData)); err != nil {
		t.Fatalf("add schema resource: %v", err)
	}
	schema, err := compiler.Compile(schemaPath)
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}

	return schema.Validate(instance)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("unable to resolve caller path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}
