package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResyncPolicyTriggersOnDesync(t *testing.T) {
	policy := newResyncPolicy()
	for i := 0; i < 100; i++ {
		policy.noteEvent()
	}
	_, ok := policy.consume()
	assert.False(t, ok, "healthy traffic never signals")

	policy.noteDesync("counters", 7)
	signal, ok := policy.consume()
	require.True(t, ok)
	assert.Equal(t, uint64(1), signal.Desyncs)
	assert.Equal(t, uint64(100), signal.TotalEvents)
	require.Len(t, signal.Reasons, 1)
	assert.Equal(t, "counters", signal.Reasons[0].Kind)
	assert.NotEmpty(t, signal.summary())

	// Consuming resets the accounting.
	_, ok = policy.consume()
	assert.False(t, ok)
}

func TestResyncPolicyReasonLimit(t *testing.T) {
	policy := newResyncPolicy()
	for i := 0; i < resyncReasonLimit*2; i++ {
		policy.noteDesync("transform", 1)
	}
	signal, ok := policy.consume()
	require.True(t, ok)
	assert.Len(t, signal.Reasons, resyncReasonLimit)
	assert.Equal(t, uint64(resyncReasonLimit*2), signal.Desyncs)
}

func TestResyncPolicyNilSafe(t *testing.T) {
	var policy *resyncPolicy
	policy.noteEvent()
	policy.noteDesync("", 0)
	_, ok := policy.consume()
	assert.False(t, ok)
	assert.Empty(t, resyncSignal{}.summary())
}
