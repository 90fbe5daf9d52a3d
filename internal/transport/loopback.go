package transport

import (
	"fmt"
	"sync"
	"time"
)

const loopbackBuffer = 1024

// Loopback is one end of an in-memory connection pair. Delivery is
// synchronous into the peer's inbox; tests can install a drop hook to
// simulate loss on the unreliable classes.
type Loopback struct {
	name string
	peer *Loopback

	mu      sync.Mutex
	drop    func(packetType PacketType, msgID uint8) bool
	holding bool
	delayed []Message

	inbox  chan Message
	closed bool

	ping time.Duration
}

// NewLoopbackPair returns two connected ends. The clock is considered
// synchronized with zero offset.
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{name: "loopback-a", inbox: make(chan Message, loopbackBuffer)}
	b := &Loopback{name: "loopback-b", inbox: make(chan Message, loopbackBuffer)}
	a.peer = b
	b.peer = a
	return a, b
}

// SetDrop installs a hook consulted for every outgoing unreliable message;
// returning true discards it. Reliable classes are never dropped.
func (l *Loopback) SetDrop(fn func(packetType PacketType, msgID uint8) bool) {
	l.mu.Lock()
	l.drop = fn
	l.mu.Unlock()
}

// HoldUnreliable buffers outgoing unreliable messages instead of delivering
// them; ReleaseHeld delivers the backlog in reverse order. Together they
// simulate reordering in tests.
func (l *Loopback) HoldUnreliable(hold bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.holding = hold
}

// ReleaseHeld delivers every held message, newest first.
func (l *Loopback) ReleaseHeld() {
	l.mu.Lock()
	held := l.delayed
	l.delayed = nil
	l.mu.Unlock()
	for i := len(held) - 1; i >= 0; i-- {
		l.peer.deliver(held[i])
	}
}

// SetPing fixes the reported round-trip estimate.
func (l *Loopback) SetPing(d time.Duration) { l.ping = d }

func (l *Loopback) SendMessage(msgID uint8, packetType PacketType, payload []byte) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrConnectionClosed
	}
	if !packetType.Reliable() {
		if l.drop != nil && l.drop(packetType, msgID) {
			l.mu.Unlock()
			return nil
		}
		if l.holding {
			data := make([]byte, len(payload))
			copy(data, payload)
			l.delayed = append(l.delayed, Message{ID: msgID, Payload: data})
			l.mu.Unlock()
			return nil
		}
	}
	l.mu.Unlock()

	data := make([]byte, len(payload))
	copy(data, payload)
	return l.peer.deliver(Message{ID: msgID, Payload: data})
}

func (l *Loopback) deliver(msg Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	select {
	case l.inbox <- msg:
		return nil
	default:
		return fmt.Errorf("transport: %s inbox full", l.name)
	}
}

func (l *Loopback) Receive() <-chan Message { return l.inbox }

func (l *Loopback) IsClockSynchronized() bool { return true }

func (l *Loopback) LocalToRemoteTime(seconds float64) float64 { return seconds }

func (l *Loopback) RemoteToLocalTime(seconds float64) float64 { return seconds }

func (l *Loopback) Ping() time.Duration { return l.ping }

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.inbox)
	}
	return nil
}

func (l *Loopback) String() string { return l.name }
