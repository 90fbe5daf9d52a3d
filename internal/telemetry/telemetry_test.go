package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountersRead(t *testing.T) {
	c := NewCounters()
	c.RecordStaleFrameDrop()
	c.RecordStaleFrameDrop()
	c.RecordProtocolDesync()
	c.RecordResnapshot()
	c.RecordSend(100)
	c.RecordSend(-5)
	c.RecordReceive()

	got := c.Read()
	assert.Equal(t, uint64(2), got.StaleFrameDrops)
	assert.Equal(t, uint64(1), got.ProtocolDesyncs)
	assert.Equal(t, uint64(1), got.Resnapshots)
	assert.Equal(t, uint64(2), got.MessagesSent)
	assert.Equal(t, uint64(100), got.BytesSent, "negative sizes clamp to zero")
	assert.Equal(t, uint64(1), got.MessagesReceived)
}
