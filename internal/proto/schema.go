package proto

// WireMessages groups every envelope so the schema tool can reflect the
// whole protocol at once.
type WireMessages struct {
	Snapshot        SnapshotMessage        `json:"snapshot"`
	ReliableDelta   ReliableDeltaMessage   `json:"reliableDelta"`
	UnreliableDelta UnreliableDeltaMessage `json:"unreliableDelta"`
	Remove          RemoveMessage          `json:"remove"`
	Clock           ClockMessage           `json:"clock"`
	ResyncRequest   ResyncRequestMessage   `json:"resyncRequest"`
}
