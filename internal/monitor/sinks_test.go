package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitflipd/internal/journal"
)

func TestMultiSink_FansOutToAll(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	sink := MultiSink(a, b)

	require.NoError(t, sink.SessionStarted(journal.SessionStart{SessionStartMs: 1}))
	require.NoError(t, sink.FlipDetected(Event{Index: 9}))

	assert.Len(t, a.sessions, 1)
	assert.Len(t, b.sessions, 1)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestMultiSink_FirstErrorStopsFanOut(t *testing.T) {
	boom := errors.New("archive unavailable")
	a := &recordingSink{}
	failing := &recordingSink{eventErr: boom}
	c := &recordingSink{}
	sink := MultiSink(a, failing, c)

	err := sink.FlipDetected(Event{Index: 3})
	require.ErrorIs(t, err, boom)

	assert.Len(t, a.events, 1)
	assert.Empty(t, c.events)
}

func TestMultiSink_Empty(t *testing.T) {
	sink := MultiSink()
	assert.NoError(t, sink.SessionStarted(journal.SessionStart{}))
	assert.NoError(t, sink.FlipDetected(Event{}))
}
