// Package proto defines the versioned wire envelopes exchanged by the
// replication managers. Envelopes are JSON; the transport prefixes each one
// with its message id byte.
package proto

import (
	"encoding/json"
	"fmt"

	"replicast/internal/object"
	"replicast/internal/replica"
	"replicast/internal/transport"
)

// ProtocolVersion is bumped on any incompatible envelope change.
const ProtocolVersion = 1

// Message ids, one per envelope.
const (
	MsgSnapshot uint8 = iota + 1
	MsgReliableDelta
	MsgUnreliableDelta
	MsgRemove
	MsgClock
	MsgResyncRequest
)

// ClassFor returns the delivery class each message travels under. Snapshot,
// reliable delta and removal form the ordered reliable chain; per-tick state
// and the clock are expendable.
func ClassFor(msgID uint8) transport.PacketType {
	switch msgID {
	case MsgUnreliableDelta:
		return transport.UnreliableUnordered
	case MsgClock:
		return transport.UnreliableOrdered
	default:
		return transport.ReliableOrdered
	}
}

// ObjectUpdate carries one object's contribution to an envelope. Kind is
// only populated where the receiver may not know the object yet
// (snapshots); Parent always travels so reliable updates can reparent.
type ObjectUpdate struct {
	ID      object.ID       `json:"id" jsonschema:"description=Server-assigned object id"`
	Kind    string          `json:"kind,omitempty" jsonschema:"description=Object kind for polymorphic decode"`
	Parent  object.ID       `json:"parent" jsonschema:"description=Id of the parent object or 0"`
	Payload json.RawMessage `json:"payload,omitempty" jsonschema:"description=Kind-specific state"`
}

// SnapshotMessage establishes or re-establishes full state for a set of
// objects.
type SnapshotMessage struct {
	Ver     int            `json:"ver"`
	Frame   replica.Frame  `json:"frame"`
	Objects []ObjectUpdate `json:"objects"`
}

// ReliableDeltaMessage carries ordered deltas that each apply on top of the
// previous reliable write for the same object.
type ReliableDeltaMessage struct {
	Ver     int            `json:"ver"`
	Frame   replica.Frame  `json:"frame"`
	Updates []ObjectUpdate `json:"updates"`
}

// UnreliableDeltaMessage carries frame-keyed best-effort state.
type UnreliableDeltaMessage struct {
	Ver     int            `json:"ver"`
	Frame   replica.Frame  `json:"frame"`
	Updates []ObjectUpdate `json:"updates"`
}

// RemoveMessage orders the removal of objects.
type RemoveMessage struct {
	Ver   int           `json:"ver"`
	Frame replica.Frame `json:"frame"`
	IDs   []object.ID   `json:"ids"`
}

// ClockMessage announces the server's current frame so the client can dilate
// its replica clock toward it.
type ClockMessage struct {
	Ver      int           `json:"ver"`
	Frame    replica.Frame `json:"frame"`
	SubFrame float64       `json:"subFrame"`
	// UpdateFrequency is the server tick rate in frames per second.
	UpdateFrequency float64 `json:"updateFrequency"`
}

// ResyncRequestMessage asks the server to resend full snapshots for objects
// whose reliable chain desynced on the client.
type ResyncRequestMessage struct {
	Ver int         `json:"ver"`
	IDs []object.ID `json:"ids"`
}

func (m SnapshotMessage) version() int        { return m.Ver }
func (m ReliableDeltaMessage) version() int   { return m.Ver }
func (m UnreliableDeltaMessage) version() int { return m.Ver }
func (m RemoveMessage) version() int          { return m.Ver }
func (m ClockMessage) version() int           { return m.Ver }
func (m ResyncRequestMessage) version() int   { return m.Ver }

type versioned interface {
	version() int
}

// Encode marshals an envelope. The caller is responsible for having set Ver
// to ProtocolVersion (the New* constructors do).
func Encode(m versioned) ([]byte, error) {
	if m.version() != ProtocolVersion {
		return nil, fmt.Errorf("proto: encoding version %d, want %d", m.version(), ProtocolVersion)
	}
	return json.Marshal(m)
}

// Decode unmarshals an envelope and validates its protocol version.
func Decode[M versioned](data []byte) (M, error) {
	var m M
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("proto: %w", err)
	}
	if m.version() != ProtocolVersion {
		return m, fmt.Errorf("proto: version %d, want %d", m.version(), ProtocolVersion)
	}
	return m, nil
}

func NewSnapshot(frame replica.Frame, objects []ObjectUpdate) SnapshotMessage {
	return SnapshotMessage{Ver: ProtocolVersion, Frame: frame, Objects: objects}
}

func NewReliableDelta(frame replica.Frame, updates []ObjectUpdate) ReliableDeltaMessage {
	return ReliableDeltaMessage{Ver: ProtocolVersion, Frame: frame, Updates: updates}
}

func NewUnreliableDelta(frame replica.Frame, updates []ObjectUpdate) UnreliableDeltaMessage {
	return UnreliableDeltaMessage{Ver: ProtocolVersion, Frame: frame, Updates: updates}
}

func NewRemove(frame replica.Frame, ids []object.ID) RemoveMessage {
	return RemoveMessage{Ver: ProtocolVersion, Frame: frame, IDs: ids}
}

func NewClock(time replica.NetworkTime, updateFrequency float64) ClockMessage {
	return ClockMessage{
		Ver:             ProtocolVersion,
		Frame:           time.Frame(),
		SubFrame:        time.SubFrame(),
		UpdateFrequency: updateFrequency,
	}
}

func NewResyncRequest(ids []object.ID) ResyncRequestMessage {
	return ResyncRequestMessage{Ver: ProtocolVersion, IDs: ids}
}
