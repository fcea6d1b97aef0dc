// Package sysmem samples live operating-system memory and swap metrics.
// The adaptive sizer relies on these readings to grow the detector mass
// right up to the point where the OS would start paging.
package sysmem

import "errors"

// ErrUnsupported is returned on platforms without a metrics source.
var ErrUnsupported = errors.New("sysmem: no metrics source on this platform")

// Metrics is a point-in-time snapshot of system memory state.
type Metrics struct {
	// TotalBytes is the total physical RAM.
	TotalBytes uint64

	// AvailableBytes is the kernel's estimate of memory available for
	// new allocations without swapping.
	AvailableBytes uint64

	// SwapTotalBytes is the total configured swap space.
	SwapTotalBytes uint64

	// SwapUsedBytes is the swap space currently in use.
	SwapUsedBytes uint64
}

// Provider samples memory metrics. Implementations must be cheap enough
// to call once per sizing probe.
type Provider interface {
	Snapshot() (Metrics, error)
}
