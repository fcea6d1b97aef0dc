package journal

import "fmt"

// Record is a single journal line, without the trailing newline.
type Record interface {
	Line() string
}

// SessionStart marks the arming of a fresh detector cycle. The two
// middle fields of a detection line are left empty, which is how log
// consumers tell the shapes apart.
type SessionStart struct {
	SessionStartMs int64
	DelayMs        int64
	Latitude       string
	Longitude      string
}

// Line renders `<start_ms>,<delay_ms>,,,<lat>,<lon>`.
func (r SessionStart) Line() string {
	return fmt.Sprintf("%d,%d,,,%s,%s",
		r.SessionStartMs, r.DelayMs, r.Latitude, r.Longitude)
}

// Detection is one detected anomaly. It is created once per event,
// serialized, appended, and never retained in memory afterward.
type Detection struct {
	SessionStartMs  int64
	DelayMs         int64
	ChecksSinceFlip uint64

	// Ambiguous is set when the flipped bit self-reverted before its
	// index could be re-identified.
	Ambiguous bool

	EventTimeMs int64
	Latitude    string
	Longitude   string
}

// Line renders `<start_ms>,<delay_ms>,<checks>,<ambiguous 0|1>,<event_ms>,<lat>,<lon>`.
func (r Detection) Line() string {
	ambiguous := 0
	if r.Ambiguous {
		ambiguous = 1
	}
	return fmt.Sprintf("%d,%d,%d,%d,%d,%s,%s",
		r.SessionStartMs, r.DelayMs, r.ChecksSinceFlip, ambiguous,
		r.EventTimeMs, r.Latitude, r.Longitude)
}
