package main

import (
	"fmt"
	"log/slog"
	"time"

	"bitflipd/internal/journal"
	"bitflipd/internal/monitor"
	"bitflipd/internal/notify"
	"bitflipd/internal/store"
)

// journalSink writes records to the durable CSV flip log.
type journalSink struct {
	j *journal.Journal
}

func (s journalSink) SessionStarted(r journal.SessionStart) error {
	return s.j.Append(r)
}

func (s journalSink) FlipDetected(ev monitor.Event) error {
	return s.j.Append(ev.Record)
}

// archiveSink mirrors records into the SQLite archive.
type archiveSink struct {
	st *store.Store
}

func (s archiveSink) SessionStarted(r journal.SessionStart) error {
	return s.st.RecordSession(r)
}

func (s archiveSink) FlipDetected(ev monitor.Event) error {
	return s.st.RecordDetection(ev.Record, ev.Index, ev.Value)
}

// notifySink raises a desktop notification per detection. Best effort:
// errors are logged and swallowed so a missing session bus can never
// stop the loop.
type notifySink struct {
	notifier *notify.Notifier
	log      *slog.Logger
}

func (s *notifySink) SessionStarted(journal.SessionStart) error {
	return nil
}

func (s *notifySink) FlipDetected(ev monitor.Event) error {
	elapsed := ev.Elapsed.Truncate(time.Millisecond)
	var body string
	if ev.Record.Ambiguous {
		body = fmt.Sprintf("A bit flipped but self-reverted before re-scan (after %s, check %d).",
			elapsed, ev.Record.ChecksSinceFlip)
	} else {
		body = fmt.Sprintf("Byte %d became %d after %s on check %d.",
			ev.Index, ev.Value, elapsed, ev.Record.ChecksSinceFlip)
	}
	if err := s.notifier.Send("Bit flip detected", body); err != nil {
		s.log.Warn("desktop notification failed", "error", err)
	}
	return nil
}
