package mqtt

// outgoing is a serialized message waiting to be sent.
type outgoing struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds messages published while the broker is unreachable.
// When full, the oldest message is discarded. Caller must synchronize.
type backlog struct {
	ring  []outgoing
	next  int
	size  int
	lossy bool
}

func newBacklog(capacity int) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{ring: make([]outgoing, capacity)}
}

// add queues msg and reports whether this is the first drop since the last flush.
func (b *backlog) add(msg outgoing) (firstDrop bool) {
	b.ring[b.next] = msg
	b.next = (b.next + 1) % len(b.ring)
	if b.size < len(b.ring) {
		b.size++
		return false
	}
	firstDrop = !b.lossy
	b.lossy = true
	return firstDrop
}

// flush returns queued messages oldest first and empties the backlog.
func (b *backlog) flush() []outgoing {
	if b.size == 0 {
		return nil
	}
	out := make([]outgoing, 0, b.size)
	first := (b.next - b.size + len(b.ring)) % len(b.ring)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(first+i)%len(b.ring)])
	}
	b.next, b.size, b.lossy = 0, 0, false
	return out
}

func (b *backlog) len() int { return b.size }
