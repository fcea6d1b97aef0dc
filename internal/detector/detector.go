// Package detector implements the sentinel memory mass that bitflipd
// monitors for single-event upsets.
//
// Nothing in the program ever consumes the buffer's contents through a
// visible data dependency, so an ordinary []byte would invite the compiler
// to elide the fills and scans entirely. The mass therefore lives in an
// anonymous mmap region outside the Go heap and every access goes through
// sync/atomic word operations, which the compiler must treat as observable
// synchronization and may not remove or reorder across the call boundary.
// The eager fill in New touches every page, forcing physical commit, and
// the region is pinned with mlock (best effort) so it stays in DRAM.
package detector

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

const wordSize = 8

// scanStride is how many words a parallel scan worker examines between
// checks of the shared stop flag.
const scanStride = 8192

// Detector holds a block of memory at a known default value and answers
// "has anything changed?". A single Detector has a single logical owner;
// parallel workers only ever read during scans or store the same value
// during fills, so no locking is needed.
type Detector struct {
	def     byte
	defWord uint64

	capacity  int
	mem       []byte   // backing region, len(mem) >= nWords*wordSize
	words     []uint64 // word view of mem, covers the full capacity
	fullWords int      // words entirely inside the capacity
	tailBytes int      // bytes of the final partial word, 0 if none

	workers int
	locked  bool
	closed  bool
}

// Option configures a Detector.
type Option func(*Detector)

// WithWorkers sets the number of goroutines used to fan out fills and
// scans across the byte range. Values below 2 keep operations sequential.
func WithWorkers(n int) Option {
	return func(d *Detector) {
		if n > 1 {
			d.workers = n
		}
	}
}

// New allocates a detector mass of capacity bytes and eagerly writes
// defaultValue into every byte. The fill touches every page, so the whole
// region is physically committed before New returns; lazily-zeroed virtual
// pages would not expose real DRAM cells to the experiment.
func New(defaultValue byte, capacity int, opts ...Option) (*Detector, error) {
	if capacity < 0 {
		return nil, fmt.Errorf("detector: negative capacity %d", capacity)
	}

	d := &Detector{
		def:       defaultValue,
		defWord:   broadcast(defaultValue),
		capacity:  capacity,
		fullWords: capacity / wordSize,
		tailBytes: capacity % wordSize,
		workers:   1,
	}
	for _, opt := range opts {
		opt(d)
	}

	nWords := (capacity + wordSize - 1) / wordSize
	mem, err := allocRegion(nWords * wordSize)
	if err != nil {
		return nil, fmt.Errorf("detector: alloc %d bytes: %w", capacity, err)
	}
	d.mem = mem
	if nWords > 0 {
		d.words = unsafe.Slice((*uint64)(unsafe.Pointer(&mem[0])), nWords)
	}

	d.Write(defaultValue)

	if err := lockRegion(d.mem); err == nil {
		d.locked = true
	}

	return d, nil
}

// Capacity returns the number of monitored bytes.
func (d *Detector) Capacity() int { return d.capacity }

// DefaultValue returns the sentinel value the mass is armed with.
func (d *Detector) DefaultValue() byte { return d.def }

// Locked reports whether the region was successfully pinned into RAM.
func (d *Detector) Locked() bool { return d.locked }

// Write sets every byte of the mass to v. The stores are atomic word
// writes and are never elided. Side effect only.
func (d *Detector) Write(v byte) {
	word := broadcast(v)
	n := len(d.words)
	if n == 0 {
		return
	}

	if d.workers < 2 || n < d.workers*scanStride {
		for i := range d.words {
			atomic.StoreUint64(&d.words[i], word)
		}
		return
	}

	var wg sync.WaitGroup
	per := (n + d.workers - 1) / d.workers
	for lo := 0; lo < n; lo += per {
		hi := min(lo+per, n)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				atomic.StoreUint64(&d.words[i], word)
			}
		}(lo, hi)
	}
	wg.Wait()
}

// Reset rearms the mass with its default value.
func (d *Detector) Reset() {
	d.Write(d.def)
}

// Intact reports whether every monitored byte still equals the default
// value. Parallel scans stop as soon as any worker finds a mismatch.
func (d *Detector) Intact() bool {
	_, changed := d.FindChanged()
	return !changed
}

// FindChanged returns the index of some byte that no longer equals the
// default value. When several bytes differ at once any one index may be
// returned; two simultaneous independent flips are astronomically unlikely
// and nothing downstream distinguishes them.
func (d *Detector) FindChanged() (int, bool) {
	// The partial tail word is compared bytewise so that the padding
	// bytes past the capacity can never produce a phantom index.
	if i, ok := d.scanTail(); ok {
		return i, true
	}

	if d.fullWords == 0 {
		return 0, false
	}

	if d.workers < 2 || d.fullWords < d.workers*scanStride {
		return d.scanWords(0, d.fullWords)
	}
	return d.scanParallel()
}

// Get returns the current value of the byte at index i, or false when the
// index is out of range.
func (d *Detector) Get(i int) (byte, bool) {
	if i < 0 || i >= d.capacity {
		return 0, false
	}
	word := atomic.LoadUint64(&d.words[i/wordSize])
	var buf [wordSize]byte
	binary.NativeEndian.PutUint64(buf[:], word)
	return buf[i%wordSize], true
}

// Close releases the backing region. The detector must not be used again.
func (d *Detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	mem := d.mem
	d.mem = nil
	d.words = nil
	return freeRegion(mem)
}

// scanWords scans full words [lo, hi) sequentially and resolves a
// mismatching word to a byte index.
func (d *Detector) scanWords(lo, hi int) (int, bool) {
	for i := lo; i < hi; i++ {
		w := atomic.LoadUint64(&d.words[i])
		if w != d.defWord {
			return i*wordSize + firstChangedByte(w, d.def), true
		}
	}
	return 0, false
}

// scanTail compares the bytes of the final partial word, if any.
func (d *Detector) scanTail() (int, bool) {
	if d.tailBytes == 0 {
		return 0, false
	}
	w := atomic.LoadUint64(&d.words[d.fullWords])
	var buf [wordSize]byte
	binary.NativeEndian.PutUint64(buf[:], w)
	for i := 0; i < d.tailBytes; i++ {
		if buf[i] != d.def {
			return d.fullWords*wordSize + i, true
		}
	}
	return 0, false
}

// scanParallel fans the full-word scan out across the worker pool. The
// first worker to hit a mismatch publishes its index and raises the stop
// flag; the others bail out at the next stride boundary.
func (d *Detector) scanParallel() (int, bool) {
	var (
		stop  atomic.Bool
		found atomic.Int64
		wg    sync.WaitGroup
	)
	found.Store(-1)

	per := (d.fullWords + d.workers - 1) / d.workers
	for lo := 0; lo < d.fullWords; lo += per {
		hi := min(lo+per, d.fullWords)
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for start := lo; start < hi; start += scanStride {
				if stop.Load() {
					return
				}
				end := min(start+scanStride, hi)
				if idx, ok := d.scanWords(start, end); ok {
					found.CompareAndSwap(-1, int64(idx))
					stop.Store(true)
					return
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	if idx := found.Load(); idx >= 0 {
		return int(idx), true
	}
	return 0, false
}

// broadcast repeats v into every byte of a word.
func broadcast(v byte) uint64 {
	return uint64(v) * 0x0101010101010101
}

// firstChangedByte returns the offset within word w of a byte that does
// not equal def. w must contain at least one such byte.
func firstChangedByte(w uint64, def byte) int {
	var buf [wordSize]byte
	binary.NativeEndian.PutUint64(buf[:], w)
	for i, b := range buf {
		if b != def {
			return i
		}
	}
	return 0
}
