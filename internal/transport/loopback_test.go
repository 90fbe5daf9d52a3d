package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(conn *Loopback) []Message {
	var out []Message
	for {
		select {
		case msg := <-conn.Receive():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestPacketTypeClasses(t *testing.T) {
	assert.False(t, UnreliableUnordered.Reliable())
	assert.False(t, UnreliableUnordered.Ordered())
	assert.True(t, UnreliableOrdered.Ordered())
	assert.True(t, ReliableUnordered.Reliable())
	assert.True(t, ReliableOrdered.Reliable())
	assert.True(t, ReliableOrdered.Ordered())
	assert.Equal(t, "reliable-ordered", ReliableOrdered.String())
}

func TestLoopbackDelivers(t *testing.T) {
	a, b := NewLoopbackPair()
	require.NoError(t, a.SendMessage(3, ReliableOrdered, []byte("hello")))
	require.NoError(t, a.SendMessage(4, UnreliableUnordered, []byte("world")))

	msgs := drain(b)
	require.Len(t, msgs, 2)
	assert.Equal(t, uint8(3), msgs[0].ID)
	assert.Equal(t, []byte("hello"), msgs[0].Payload)
	assert.Equal(t, uint8(4), msgs[1].ID)
}

func TestLoopbackDropsUnreliableOnly(t *testing.T) {
	a, b := NewLoopbackPair()
	a.SetDrop(func(PacketType, uint8) bool { return true })

	require.NoError(t, a.SendMessage(1, UnreliableUnordered, []byte("lost")))
	require.NoError(t, a.SendMessage(2, ReliableOrdered, []byte("kept")))

	msgs := drain(b)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint8(2), msgs[0].ID)
}

func TestLoopbackReordersHeldMessages(t *testing.T) {
	a, b := NewLoopbackPair()
	a.HoldUnreliable(true)
	require.NoError(t, a.SendMessage(1, UnreliableUnordered, []byte("first")))
	require.NoError(t, a.SendMessage(1, UnreliableUnordered, []byte("second")))
	require.Empty(t, drain(b))

	a.ReleaseHeld()
	msgs := drain(b)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("second"), msgs[0].Payload)
	assert.Equal(t, []byte("first"), msgs[1].Payload)
}

func TestLoopbackClose(t *testing.T) {
	a, b := NewLoopbackPair()
	require.NoError(t, b.Close())
	assert.Error(t, b.SendMessage(1, ReliableOrdered, nil))
	// Sending into a closed peer is silently discarded.
	assert.NoError(t, a.SendMessage(1, ReliableOrdered, nil))

	_, open := <-b.Receive()
	assert.False(t, open)
}
