//go:build !unix

package detector

import (
	"errors"
	"unsafe"
)

// ErrLockUnsupported is returned by lockRegion on platforms without mlock.
var ErrLockUnsupported = errors.New("detector: memory locking not supported on this platform")

// allocRegion falls back to a heap allocation on platforms without mmap.
// Allocating []uint64 and reslicing to bytes guarantees word alignment for
// the atomic accessors.
func allocRegion(size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	words := make([]uint64, (size+wordSize-1)/wordSize)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(words)*wordSize)
	return mem, nil
}

func freeRegion(mem []byte) error {
	return nil
}

func lockRegion(mem []byte) error {
	if len(mem) == 0 {
		return nil
	}
	return ErrLockUnsupported
}
