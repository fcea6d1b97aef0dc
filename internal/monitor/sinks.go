package monitor

import "bitflipd/internal/journal"

// MultiSink fans records out to several sinks in order. The first error
// stops the fan-out and is returned, keeping the loop's fatal-on-failure
// contract.
func MultiSink(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) SessionStarted(r journal.SessionStart) error {
	for _, s := range m {
		if err := s.SessionStarted(r); err != nil {
			return err
		}
	}
	return nil
}

func (m multiSink) FlipDetected(ev Event) error {
	for _, s := range m {
		if err := s.FlipDetected(ev); err != nil {
			return err
		}
	}
	return nil
}
