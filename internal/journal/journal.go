// Package journal is the durable flip log: an append-only UTF-8 text
// file, one comma-separated record per line. Every append is flushed and
// fsynced before control returns to the detection loop, so a crash can
// never lose an already-reported event. Losing a detection is considered
// worse than stopping outright, which is why callers treat any journal
// error as fatal.
package journal

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// ErrClosed is returned when appending to a closed journal.
var ErrClosed = errors.New("journal: closed")

// Journal is the append-only flip log. It is written only by the
// detection loop's control thread; the mutex guards against a concurrent
// Close from a shutdown path.
type Journal struct {
	mu sync.Mutex

	path     string
	file     *os.File
	closed   bool
	appended uint64
}

// Open opens the journal for appending, creating the file if it does not
// exist. An unusable path is a startup failure.
func Open(path string) (*Journal, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return &Journal{path: path, file: file}, nil
}

// Append writes one record line and syncs it to stable storage before
// returning.
func (j *Journal) Append(r Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}

	if _, err := j.file.WriteString(r.Line() + "\n"); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync record: %w", err)
	}

	j.appended++
	return nil
}

// Appended returns the number of records written through this handle.
func (j *Journal) Appended() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.appended
}

// Path returns the journal file path.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the journal file. Closing twice is harmless.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}
