//go:build unix

package detector

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocRegion maps an anonymous read/write region of at least size bytes,
// rounded up to whole pages. The mapping lives outside the Go heap, so the
// runtime never moves it and the returned slice is page-aligned.
func allocRegion(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	pageSize := unix.Getpagesize()
	mapped := (size + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(-1, 0, mapped,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", mapped, err)
	}

	return mem, nil
}

// freeRegion unmaps a region returned by allocRegion.
func freeRegion(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Munmap(mem)
}

// lockRegion pins the region into physical RAM so the detector mass cannot
// be swapped out. A swapped-out page is not sitting in DRAM cells and would
// be invisible to the experiment. Fails without CAP_IPC_LOCK when the
// region exceeds RLIMIT_MEMLOCK; callers treat that as a warning.
func lockRegion(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Mlock(mem)
}
