//go:build !linux

package sysmem

// NewSystemProvider returns a provider that always fails: automatic
// sizing needs live swap metrics, which only the Linux implementation
// supplies. Fixed-size operation works everywhere.
func NewSystemProvider() Provider {
	return unsupportedProvider{}
}

type unsupportedProvider struct{}

func (unsupportedProvider) Snapshot() (Metrics, error) {
	return Metrics{}, ErrUnsupported
}
