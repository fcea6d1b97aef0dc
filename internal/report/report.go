// Package report exports archived detector activity as a JSON document.
// The document shape is pinned by docs/schema/flip-report-v1.schema.json.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"bitflipd/internal/store"
)

// SchemaName identifies the report format.
const SchemaName = "flip-report-v1"

// Report is a full export of the archive.
type Report struct {
	Schema        string      `json:"schema"`
	GeneratedAtMs int64       `json:"generated_at_ms"`
	Totals        Totals      `json:"totals"`
	Sessions      []Session   `json:"sessions"`
	Detections    []Detection `json:"detections"`
}

// Totals summarizes the archive.
type Totals struct {
	Sessions   int `json:"sessions"`
	Detections int `json:"detections"`
	Ambiguous  int `json:"ambiguous"`
}

// Session is one armed detector cycle.
type Session struct {
	SessionStartMs int64  `json:"session_start_ms"`
	DelayMs        int64  `json:"delay_ms"`
	Latitude       string `json:"latitude"`
	Longitude      string `json:"longitude"`
}

// Detection is one archived anomaly. ByteIndex and ByteValue are absent
// for ambiguous detections.
type Detection struct {
	SessionStartMs  int64  `json:"session_start_ms"`
	DelayMs         int64  `json:"delay_ms"`
	ChecksSinceFlip uint64 `json:"checks_since_last_flip"`
	Ambiguous       bool   `json:"ambiguous"`
	EventTimeMs     int64  `json:"event_time_ms"`
	Latitude        string `json:"latitude"`
	Longitude       string `json:"longitude"`
	ByteIndex       *int64 `json:"byte_index,omitempty"`
	ByteValue       *int64 `json:"byte_value,omitempty"`
}

// Build assembles a report from the archive.
func Build(st *store.Store) (*Report, error) {
	sessions, err := st.Sessions()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	detections, err := st.Detections()
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}

	r := &Report{
		Schema:        SchemaName,
		GeneratedAtMs: time.Now().UnixMilli(),
		Sessions:      make([]Session, 0, len(sessions)),
		Detections:    make([]Detection, 0, len(detections)),
	}

	for _, row := range sessions {
		r.Sessions = append(r.Sessions, Session{
			SessionStartMs: row.Record.SessionStartMs,
			DelayMs:        row.Record.DelayMs,
			Latitude:       row.Record.Latitude,
			Longitude:      row.Record.Longitude,
		})
	}

	for _, row := range detections {
		d := Detection{
			SessionStartMs:  row.Record.SessionStartMs,
			DelayMs:         row.Record.DelayMs,
			ChecksSinceFlip: row.Record.ChecksSinceFlip,
			Ambiguous:       row.Record.Ambiguous,
			EventTimeMs:     row.Record.EventTimeMs,
			Latitude:        row.Record.Latitude,
			Longitude:       row.Record.Longitude,
			ByteIndex:       row.Index,
			ByteValue:       row.Value,
		}
		if d.Ambiguous {
			r.Totals.Ambiguous++
		}
		r.Detections = append(r.Detections, d)
	}

	r.Totals.Sessions = len(r.Sessions)
	r.Totals.Detections = len(r.Detections)

	return r, nil
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
