// Package monitor drives the detection loop: arm the mass, wait, check,
// and on a mismatch report a detection. The loop has no terminal state;
// it runs until the process is terminated externally or a sink write
// fails, which is fatal by design.
package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"bitflipd/internal/journal"
)

// state is the detection loop's position in its cycle.
type state int

const (
	stateArmed state = iota
	stateWaiting
	stateChecking
	stateLogging
)

// Buffer is the detector mass as the loop sees it. The loop is the
// buffer's single owner for the life of the process.
type Buffer interface {
	Reset()
	Intact() bool
	FindChanged() (int, bool)
	Get(int) (byte, bool)
	Capacity() int
}

// Event is a detected anomaly together with what the journal record
// cannot carry: the re-identified byte, the monotonic elapsed time, and
// the total check count.
type Event struct {
	Record journal.Detection

	// Index is the flipped byte's index, or -1 when the record is
	// ambiguous (the bit reverted before it could be re-identified).
	Index int

	// Value is the byte's current value; only meaningful when Index
	// is not -1.
	Value byte

	// Elapsed is the monotonic time since the mass was armed.
	Elapsed time.Duration

	// TotalChecks is the number of integrity checks since startup.
	TotalChecks uint64
}

// Sink receives session starts and detections. Returning an error stops
// the loop: losing a detection is worse than stopping the process.
type Sink interface {
	SessionStarted(journal.SessionStart) error
	FlipDetected(Event) error
}

// Config holds the loop parameters.
type Config struct {
	// DelayMs is the pause between integrity checks. Zero means
	// checks run back-to-back as fast as the scan allows.
	DelayMs int64

	// Latitude and Longitude are recorded verbatim in every record.
	Latitude  string
	Longitude string
}

// cycleState is the per-cycle bookkeeping. It is rebuilt on every ARMED
// transition rather than kept in ambient globals, so a single cycle can
// be exercised in isolation.
type cycleState struct {
	sessionStartMs  int64
	startedAt       time.Time
	checksSinceFlip uint64
}

// Monitor is the detection loop.
type Monitor struct {
	buf  Buffer
	sink Sink
	cfg  Config
	log  *slog.Logger

	now   func() time.Time
	sleep func(time.Duration)

	cycle       cycleState
	totalChecks uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger directs loop diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// WithClock substitutes the wall clock and the sleep function; tests use
// it to run cycles instantly.
func WithClock(now func() time.Time, sleep func(time.Duration)) Option {
	return func(m *Monitor) {
		m.now = now
		m.sleep = sleep
	}
}

// New creates a detection loop over the given buffer and sink.
func New(buf Buffer, sink Sink, cfg Config, opts ...Option) *Monitor {
	m := &Monitor{
		buf:   buf,
		sink:  sink,
		cfg:   cfg,
		log:   slog.Default(),
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TotalChecks returns the number of integrity checks run since startup.
func (m *Monitor) TotalChecks() uint64 {
	return m.totalChecks
}

// Run drives the state machine forever. It returns only when a sink
// write fails.
func (m *Monitor) Run() error {
	s := stateArmed
	for {
		next, err := m.step(s)
		if err != nil {
			return err
		}
		s = next
	}
}

// step executes one state and returns the next.
func (m *Monitor) step(s state) (state, error) {
	switch s {
	case stateArmed:
		if err := m.arm(); err != nil {
			return s, err
		}
		return stateWaiting, nil

	case stateWaiting:
		m.wait()
		return stateChecking, nil

	case stateChecking:
		if m.check() {
			return stateWaiting, nil
		}
		return stateLogging, nil

	case stateLogging:
		if err := m.logFlip(); err != nil {
			return s, err
		}
		return stateArmed, nil

	default:
		return s, fmt.Errorf("monitor: invalid state %d", s)
	}
}

// arm resets the mass to its default value, zeroes the since-flip
// counter, stamps the session start, and records the session in the
// sink. Runs once per detection cycle, including the very first.
func (m *Monitor) arm() error {
	m.buf.Reset()

	start := m.now()
	m.cycle = cycleState{
		sessionStartMs: start.UnixMilli(),
		startedAt:      start,
	}

	m.log.Debug("detector armed",
		"capacity_bytes", m.buf.Capacity(),
		"session_start_ms", m.cycle.sessionStartMs)

	record := journal.SessionStart{
		SessionStartMs: m.cycle.sessionStartMs,
		DelayMs:        m.cfg.DelayMs,
		Latitude:       m.cfg.Latitude,
		Longitude:      m.cfg.Longitude,
	}
	if err := m.sink.SessionStarted(record); err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// wait pauses for the configured inter-check delay. This is the only
// deliberate suspension point in the whole system; it is not cancellable
// and always completes.
func (m *Monitor) wait() {
	if m.cfg.DelayMs > 0 {
		m.sleep(time.Duration(m.cfg.DelayMs) * time.Millisecond)
	}
}

// check runs one integrity scan. Both counters advance regardless of the
// outcome.
func (m *Monitor) check() bool {
	intact := m.buf.Intact()
	m.totalChecks++
	m.cycle.checksSinceFlip++

	if intact {
		m.log.Debug("integrity check passed",
			"checks", m.cycle.checksSinceFlip,
			"total_checks", m.totalChecks)
	}
	return intact
}

// logFlip reports a detected anomaly. The mass is re-scanned to pin the
// flipped byte down: if the bit has already reverted, the detection is
// recorded as ambiguous with no index.
func (m *Monitor) logFlip() error {
	eventTime := m.now()
	elapsed := eventTime.Sub(m.cycle.startedAt)

	index, found := m.buf.FindChanged()

	record := journal.Detection{
		SessionStartMs:  m.cycle.sessionStartMs,
		DelayMs:         m.cfg.DelayMs,
		ChecksSinceFlip: m.cycle.checksSinceFlip,
		Ambiguous:       !found,
		EventTimeMs:     eventTime.UnixMilli(),
		Latitude:        m.cfg.Latitude,
		Longitude:       m.cfg.Longitude,
	}

	event := Event{
		Record:      record,
		Index:       -1,
		Elapsed:     elapsed,
		TotalChecks: m.totalChecks,
	}
	if found {
		event.Index = index
		if v, ok := m.buf.Get(index); ok {
			event.Value = v
		}
	}

	if found {
		m.log.Info("bit flip detected",
			"byte_index", event.Index,
			"byte_value", event.Value,
			"checks_since_flip", record.ChecksSinceFlip,
			"elapsed", elapsed)
	} else {
		m.log.Info("bit flip detected but it self-reverted before re-scan",
			"checks_since_flip", record.ChecksSinceFlip,
			"elapsed", elapsed)
	}

	if err := m.sink.FlipDetected(event); err != nil {
		return fmt.Errorf("record detection: %w", err)
	}
	return nil
}
