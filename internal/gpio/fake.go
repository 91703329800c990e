package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted button levels.
type FakeReader struct {
	mu sync.Mutex

	// Levels contains scripted values to return.
	// Each call to Read() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given levels.
func NewFakeReader(levels ...bool) *FakeReader {
	return &FakeReader{Levels: levels}
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeReader) Read() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	held := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return held, nil
}

// Set replaces the script with a single level returned from now on.
func (f *FakeReader) Set(held bool) {
	f.mu.Lock()
	f.Levels = []bool{held}
	f.index = 0
	f.mu.Unlock()
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
