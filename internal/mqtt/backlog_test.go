package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(msgs []outgoing) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestBacklogEmptyFlush(t *testing.T) {
	b := newBacklog(4)
	assert.Nil(t, b.flush())
	assert.Equal(t, 0, b.len())
}

func TestBacklogKeepsOrder(t *testing.T) {
	b := newBacklog(10)
	for i := 0; i < 5; i++ {
		assert.False(t, b.add(outgoing{topic: "t", payload: []byte{byte(i)}}))
	}
	assert.Equal(t, 5, b.len())
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, payloads(b.flush()))
	assert.Nil(t, b.flush())
}

func TestBacklogOverflowDropsOldest(t *testing.T) {
	b := newBacklog(5)
	var drops int
	for i := 0; i < 8; i++ {
		if b.add(outgoing{topic: "t", payload: []byte{byte(i)}}) {
			drops++
		}
	}
	assert.Equal(t, 1, drops, "only the first drop is reported")
	assert.Equal(t, []byte{3, 4, 5, 6, 7}, payloads(b.flush()))

	// The drop report re-arms after a flush.
	for i := 0; i < 6; i++ {
		if b.add(outgoing{topic: "t", payload: []byte{byte(i)}}) {
			drops++
		}
	}
	assert.Equal(t, 2, drops)
}

func TestBacklogReuseAfterFlush(t *testing.T) {
	b := newBacklog(5)
	for i := 0; i < 3; i++ {
		b.add(outgoing{payload: []byte{byte(i)}})
	}
	require.Len(t, b.flush(), 3)

	for i := 10; i < 14; i++ {
		b.add(outgoing{payload: []byte{byte(i)}})
	}
	assert.Equal(t, []byte{10, 11, 12, 13}, payloads(b.flush()))
}

func TestBacklogPreservesFields(t *testing.T) {
	b := newBacklog(2)
	b.add(outgoing{topic: "home/dishwasher/events", payload: []byte(`{"x":1}`), qos: 1, retained: true})
	got := b.flush()
	require.Len(t, got, 1)
	assert.Equal(t, outgoing{topic: "home/dishwasher/events", payload: []byte(`{"x":1}`), qos: 1, retained: true}, got[0])
}

func TestBacklogMinimumCapacity(t *testing.T) {
	b := newBacklog(0)
	b.add(outgoing{payload: []byte{1}})
	b.add(outgoing{payload: []byte{2}})
	assert.Equal(t, []byte{2}, payloads(b.flush()))
}
