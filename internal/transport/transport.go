// Package transport abstracts the channel pair used by the replication
// managers. Implementations deliver payloads tagged with a message id over
// one of four delivery classes; inbound traffic is handed to the owning
// manager as decoded messages on the goroutine that owns the replication
// state.
package transport

import "time"

// PacketType selects the delivery class for an outgoing message.
type PacketType uint8

const (
	UnreliableUnordered PacketType = iota
	UnreliableOrdered
	ReliableUnordered
	ReliableOrdered
)

// Reliable reports whether the class guarantees delivery.
func (p PacketType) Reliable() bool {
	return p == ReliableUnordered || p == ReliableOrdered
}

// Ordered reports whether the class guarantees in-order delivery.
func (p PacketType) Ordered() bool {
	return p == UnreliableOrdered || p == ReliableOrdered
}

func (p PacketType) String() string {
	switch p {
	case UnreliableUnordered:
		return "unreliable-unordered"
	case UnreliableOrdered:
		return "unreliable-ordered"
	case ReliableUnordered:
		return "reliable-unordered"
	case ReliableOrdered:
		return "reliable-ordered"
	default:
		return "unknown"
	}
}

// Message is one decoded inbound unit: the message id and its payload.
type Message struct {
	ID      uint8
	Payload []byte
}

// Connection is one end of a replication channel pair.
//
// SendMessage never blocks the caller's tick: unreliable classes are
// best-effort and may drop the payload when the peer cannot absorb it.
// Inbound messages are buffered until the owner drains them via Receive.
type Connection interface {
	// SendMessage queues payload for delivery under the given class.
	SendMessage(msgID uint8, packetType PacketType, payload []byte) error
	// Receive returns the channel of inbound messages. The owning manager
	// drains it at tick (server) or frame (client) start; nothing else may
	// touch replication state with these payloads.
	Receive() <-chan Message
	// IsClockSynchronized reports whether time conversion is meaningful yet.
	IsClockSynchronized() bool
	// LocalToRemoteTime converts a local monotonic timestamp (seconds) to
	// the peer's timeline.
	LocalToRemoteTime(seconds float64) float64
	// RemoteToLocalTime converts a peer timestamp (seconds) to the local
	// timeline.
	RemoteToLocalTime(seconds float64) float64
	// Ping returns the current round-trip estimate.
	Ping() time.Duration
	// Close tears the connection down; Receive's channel is closed.
	Close() error

	String() string
}
