// Package gpio reads the optional manual start button.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Reader reads the button level.
type Reader interface {
	// Read returns true while the button is held down.
	Read() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Edge turns polled button levels into press events. A press is reported
// once, on the poll where the button goes from released to held. The first
// poll only primes the detector, so a button held at startup does not count.
type Edge struct {
	last   bool
	primed bool
}

// Update feeds one poll and reports whether it completes a press.
func (e *Edge) Update(held bool) bool {
	pressed := e.primed && held && !e.last
	e.last = held
	e.primed = true
	return pressed
}
