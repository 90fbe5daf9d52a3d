// Package object defines the replicated object model: the polymorphic
// serialization hooks every replicated thing implements, the id-keyed
// registry with its weak parent/child hierarchy, and the concrete object
// kinds shipped with the server.
package object

import (
	"errors"

	"replicast/internal/replica"
	"replicast/internal/transport"
)

// ID identifies a replicated object. Ids are allocated by the authoritative
// registry; clients only ever see ids the server assigned.
type ID uint32

// InvalidID is never assigned to an object.
const InvalidID ID = 0

// ErrStaleFrame reports that an inbound payload carried data older than the
// retained history window. This is expected under latency and loss; callers
// count it instead of treating it as a protocol error.
var ErrStaleFrame = errors.New("object: frame older than retained window")

// Object is the contract between a replicated thing and the managers.
//
// The Write side runs on the server every tick; the Read side mirrors it on
// the client. Reliable deltas form an ordered chain (each applies on top of
// the previous one), unreliable deltas are frame-keyed and tolerate loss,
// reorder and duplication.
type Object interface {
	// Kind names the object's type for polymorphic decode.
	Kind() string

	NetworkID() ID
	SetNetworkID(id ID)

	// ParentID is a weak link: it may name an object that no longer exists.
	ParentID() ID
	SetParent(id ID)

	// IsRelevantFor filters which connections receive this object.
	IsRelevantFor(conn transport.Connection) bool

	// InitializeOnServer runs once when the object is added to the
	// authoritative registry.
	InitializeOnServer()

	// WriteSnapshot serializes full state for first sync or a relevance
	// transition.
	WriteSnapshot(frame replica.Frame) ([]byte, error)
	// WriteReliableDelta emits a delta on top of the last reliable write.
	// ok is false when nothing changed.
	WriteReliableDelta(frame replica.Frame) (payload []byte, ok bool, err error)
	// WriteUnreliableDelta emits the best-effort per-tick state. ok is
	// false when there is nothing to send for this frame.
	WriteUnreliableDelta(frame replica.Frame) (payload []byte, ok bool, err error)

	ReadSnapshot(frame replica.Frame, payload []byte) error
	ReadReliableDelta(frame replica.Frame, payload []byte) error
	ReadUnreliableDelta(frame replica.Frame, payload []byte) error

	// InterpolateState produces the displayed state from buffered history.
	// Client only, once per render frame.
	InterpolateState(time replica.NetworkTime, timeStep float64)

	// PrepareToRemove runs on the client just before a server-ordered
	// removal takes effect.
	PrepareToRemove()
}

// Base is the embeddable default implementation: relevant to everyone,
// nothing to serialize, no interpolation. Concrete kinds embed it and
// override what they need; Kind is deliberately left to the concrete type.
type Base struct {
	id     ID
	parent ID
}

func (b *Base) NetworkID() ID      { return b.id }
func (b *Base) SetNetworkID(id ID) { b.id = id }
func (b *Base) ParentID() ID       { return b.parent }
func (b *Base) SetParent(id ID)    { b.parent = id }

func (b *Base) IsRelevantFor(transport.Connection) bool { return true }

func (b *Base) InitializeOnServer() {}

func (b *Base) WriteSnapshot(replica.Frame) ([]byte, error) { return nil, nil }

func (b *Base) WriteReliableDelta(replica.Frame) ([]byte, bool, error) {
	return nil, false, nil
}

func (b *Base) WriteUnreliableDelta(replica.Frame) ([]byte, bool, error) {
	return nil, false, nil
}

func (b *Base) ReadSnapshot(replica.Frame, []byte) error       { return nil }
func (b *Base) ReadReliableDelta(replica.Frame, []byte) error  { return nil }
func (b *Base) ReadUnreliableDelta(replica.Frame, []byte) error { return nil }

func (b *Base) InterpolateState(replica.NetworkTime, float64) {}

func (b *Base) PrepareToRemove() {}

// Factory constructs an empty object of some kind, ready for ReadSnapshot.
type Factory func() Object

var kindFactories = map[string]Factory{}

// RegisterKind binds a factory to a kind name for polymorphic decode. A
// later registration replaces an earlier one, so wiring can rebind a kind
// with its configuration baked in.
func RegisterKind(kind string, factory Factory) {
	if kind == "" {
		panic("object: empty kind")
	}
	if factory == nil {
		panic("object: nil factory for kind " + kind)
	}
	kindFactories[kind] = factory
}

// NewOfKind instantiates a registered kind.
func NewOfKind(kind string) (Object, bool) {
	factory, ok := kindFactories[kind]
	if !ok {
		return nil, false
	}
	return factory(), true
}
