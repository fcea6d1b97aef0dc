// Package sizer picks the largest detector size that can be held in RAM
// without pushing the operating system into paging. It is engaged once at
// startup, only when the operator asks for automatic sizing, and its sole
// output is a byte count.
package sizer

import (
	"fmt"
	"log/slog"

	"bitflipd/internal/detector"
	"bitflipd/internal/sysmem"
)

// Policy constants bounding how aggressively the sizer claims memory.
// Both remain externally configurable through Config.
const (
	// DefaultSwapDelta is the swap-usage growth over the pre-loop
	// baseline at which a probe is rejected.
	DefaultSwapDelta = 10 << 20 // 10 MB

	// DefaultFreeFloor is the available-memory floor at or under which
	// a probe is rejected. It doubles as the convergence threshold.
	DefaultFreeFloor = 50 << 20 // 50 MB
)

// Config holds the sizing policy thresholds.
type Config struct {
	// SwapDelta is the allowed swap growth in bytes before a probe is
	// rejected. Zero selects DefaultSwapDelta.
	SwapDelta uint64

	// FreeFloor is the available-memory floor in bytes. Zero selects
	// DefaultFreeFloor.
	FreeFloor uint64
}

func (c Config) withDefaults() Config {
	if c.SwapDelta == 0 {
		c.SwapDelta = DefaultSwapDelta
	}
	if c.FreeFloor == 0 {
		c.FreeFloor = DefaultFreeFloor
	}
	return c
}

// A probe is a filled chunk of candidate detector memory. Its release
// function unmaps it.
type probeFunc func(size uint64) (release func() error, err error)

// Sizer converges on a detector size using live memory metrics.
type Sizer struct {
	metrics  sysmem.Provider
	cfg      Config
	sentinel byte
	probe    probeFunc
	log      *slog.Logger
}

// Option configures a Sizer.
type Option func(*Sizer)

// WithLogger directs probe diagnostics to l.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sizer) { s.log = l }
}

// withProbe substitutes the probe allocator; tests use it to avoid
// claiming real memory.
func withProbe(p probeFunc) Option {
	return func(s *Sizer) { s.probe = p }
}

// New returns a sizer that evaluates probes by allocating and filling
// real detector regions with the given sentinel value, so every probed
// page is physically committed exactly like the final mass will be.
func New(metrics sysmem.Provider, sentinel byte, cfg Config, opts ...Option) *Sizer {
	s := &Sizer{
		metrics:  metrics,
		cfg:      cfg.withDefaults(),
		sentinel: sentinel,
		log:      slog.Default(),
	}
	s.probe = s.allocProbe
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Choose runs the diminishing-step hill-climb and returns the converged
// size in bytes. Each round allocates a probe chunk on top of the already
// accepted total, re-samples the metrics, and keeps the chunk only if
// swap usage stayed within SwapDelta of the pre-loop baseline and
// available memory stayed above FreeFloor. Step size halves every round,
// so the loop runs O(log(available/FreeFloor)) iterations. All probes are
// released before Choose returns; only the byte count survives.
func (s *Sizer) Choose() (uint64, error) {
	base, err := s.metrics.Snapshot()
	if err != nil {
		return 0, fmt.Errorf("sizer: baseline metrics: %w", err)
	}

	increment := base.AvailableBytes / 2
	total := uint64(0)
	var held []func() error

	releaseAll := func() {
		for _, release := range held {
			_ = release()
		}
		held = nil
	}
	defer releaseAll()

	for round := 1; increment >= s.cfg.FreeFloor; round++ {
		release, err := s.probe(increment)
		if err != nil {
			return 0, fmt.Errorf("sizer: probe %d bytes: %w", increment, err)
		}
		total += increment

		m, err := s.metrics.Snapshot()
		if err != nil {
			return 0, fmt.Errorf("sizer: metrics after probe: %w", err)
		}

		swapGrew := m.SwapUsedBytes > base.SwapUsedBytes+s.cfg.SwapDelta
		floorHit := m.AvailableBytes <= s.cfg.FreeFloor

		if swapGrew || floorHit {
			// The probe pushed the system too far: back it out.
			total -= increment
			if err := release(); err != nil {
				return 0, fmt.Errorf("sizer: release rejected probe: %w", err)
			}
			s.log.Debug("sizing probe rejected",
				"round", round,
				"probe_bytes", increment,
				"swap_grew", swapGrew,
				"floor_hit", floorHit,
				"available", m.AvailableBytes)
		} else {
			held = append(held, release)
			s.log.Debug("sizing probe accepted",
				"round", round,
				"probe_bytes", increment,
				"total_bytes", total,
				"available", m.AvailableBytes)
		}

		increment /= 2
	}

	releaseAll()
	return total, nil
}

// allocProbe claims a probe chunk by standing up a throwaway detector
// region, which fills (and therefore commits) every page.
func (s *Sizer) allocProbe(size uint64) (func() error, error) {
	d, err := detector.New(s.sentinel, int(size))
	if err != nil {
		return nil, err
	}
	return d.Close, nil
}
