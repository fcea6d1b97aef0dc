//go:build linux

package sysmem

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// NewSystemProvider returns a provider backed by sysinfo(2) and
// /proc/meminfo.
func NewSystemProvider() Provider {
	return &systemProvider{meminfoPath: "/proc/meminfo"}
}

type systemProvider struct {
	meminfoPath string
}

// Snapshot combines sysinfo(2) totals with the kernel's MemAvailable
// estimate. Sysinfo's freeram undercounts what is actually allocatable
// (it ignores reclaimable caches), so MemAvailable is preferred and
// freeram is only a fallback.
func (p *systemProvider) Snapshot() (Metrics, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Metrics{}, fmt.Errorf("sysinfo: %w", err)
	}

	unit := uint64(info.Unit)
	m := Metrics{
		TotalBytes:     uint64(info.Totalram) * unit,
		AvailableBytes: uint64(info.Freeram) * unit,
		SwapTotalBytes: uint64(info.Totalswap) * unit,
		SwapUsedBytes:  (uint64(info.Totalswap) - uint64(info.Freeswap)) * unit,
	}

	if avail, err := p.memAvailable(); err == nil {
		m.AvailableBytes = avail
	}

	return m, nil
}

// memAvailable reads the MemAvailable field from /proc/meminfo, in bytes.
func (p *systemProvider) memAvailable() (uint64, error) {
	f, err := os.Open(p.meminfoPath)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse MemAvailable: %w", err)
		}
		return kb * 1024, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("MemAvailable not present in %s", p.meminfoPath)
}
