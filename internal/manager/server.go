// Package manager drives replication on both ends of a connection: the
// Server captures authoritative state every tick and fans it out per
// connection, the Client rebuilds that state from envelopes and derives the
// displayed view from buffered history.
//
// Neither side is thread-safe; each belongs to the single goroutine that
// owns its role's replication state. Transports hand inbound payloads over
// via their Receive channel, drained at tick or frame start.
package manager

import (
	"replicast/internal/config"
	"replicast/internal/object"
	"replicast/internal/proto"
	"replicast/internal/replica"
	"replicast/internal/telemetry"
	"replicast/internal/transport"

	"github.com/rs/zerolog"
)

// objectSync is the per-connection sync state for one object.
type objectSync struct {
	pendingSnapshot bool
	lastRelevant    replica.Frame
}

type connectionState struct {
	conn    transport.Connection
	objects map[object.ID]*objectSync

	// stale holds resync ids that no longer exist in the registry; they are
	// answered with a remove so the client stops asking for them.
	stale []object.ID
}

// Server owns the authoritative registry and replicates it to any number of
// connections. Call Tick once per simulation step.
type Server struct {
	cfg      config.Config
	log      zerolog.Logger
	counters *telemetry.Counters
	registry *object.Registry

	frame       replica.Frame
	connections []*connectionState

	lastParent map[object.ID]object.ID
	removed    []object.ID

	relevanceTimeoutFrames replica.Frame
}

func NewServer(cfg config.Config, log zerolog.Logger, counters *telemetry.Counters) *Server {
	return &Server{
		cfg:                    cfg,
		log:                    log.With().Str("role", "server").Logger(),
		counters:               counters,
		registry:               object.NewRegistry(),
		lastParent:             make(map[object.ID]object.ID),
		relevanceTimeoutFrames: replica.Frame(traceFramesForTimeout(cfg)),
	}
}

func traceFramesForTimeout(cfg config.Config) int {
	frames := int(cfg.RelevanceTimeout * cfg.UpdateFrequency)
	if frames < 1 {
		frames = 1
	}
	return frames
}

// Registry exposes the authoritative object arena. Add objects through it;
// remove them through RemoveObject so clients hear about it.
func (s *Server) Registry() *object.Registry { return s.registry }

// Frame returns the current authoritative frame.
func (s *Server) Frame() replica.Frame { return s.frame }

// AddConnection starts replicating to conn. Every relevant object is
// snapshotted on the next tick.
func (s *Server) AddConnection(conn transport.Connection) {
	s.connections = append(s.connections, &connectionState{
		conn:    conn,
		objects: make(map[object.ID]*objectSync),
	})
	s.log.Info().Str("peer", conn.String()).Msg("connection added")
}

// RemoveConnection stops replicating to conn.
func (s *Server) RemoveConnection(conn transport.Connection) {
	for i, cs := range s.connections {
		if cs.conn == conn {
			s.connections = append(s.connections[:i], s.connections[i+1:]...)
			s.log.Info().Str("peer", conn.String()).Msg("connection removed")
			return
		}
	}
}

// RemoveObject takes an object out of the registry and orders every synced
// connection to drop it on the next tick.
func (s *Server) RemoveObject(id object.ID) (object.Object, bool) {
	obj, ok := s.registry.Remove(id)
	if !ok {
		return nil, false
	}
	delete(s.lastParent, id)
	s.removed = append(s.removed, id)
	return obj, true
}

// Tick advances the authoritative frame, lets advance capture state into
// the registry's objects for that frame, then replicates.
func (s *Server) Tick(advance func(frame replica.Frame)) {
	s.frame++
	frame := s.frame

	if advance != nil {
		advance(frame)
	}

	s.drainInbound()

	reliable, unreliable := s.writeDeltas(frame)

	for _, cs := range s.connections {
		s.replicateTo(cs, frame, reliable, unreliable)
	}
	s.removed = s.removed[:0]
}

// drainInbound consumes resync requests from every connection and drops
// connections whose transport has closed.
func (s *Server) drainInbound() {
	var dead []transport.Connection
	for _, cs := range s.connections {
		for drained := false; !drained; {
			select {
			case msg, ok := <-cs.conn.Receive():
				if !ok {
					dead = append(dead, cs.conn)
					drained = true
					break
				}
				s.counters.RecordReceive()
				s.handleMessage(cs, msg)
			default:
				drained = true
			}
		}
	}
	for _, conn := range dead {
		s.RemoveConnection(conn)
	}
}

func (s *Server) handleMessage(cs *connectionState, msg transport.Message) {
	if msg.ID != proto.MsgResyncRequest {
		s.log.Warn().Uint8("msg", msg.ID).Str("peer", cs.conn.String()).Msg("unexpected message")
		return
	}
	request, err := proto.Decode[proto.ResyncRequestMessage](msg.Payload)
	if err != nil {
		s.log.Warn().Err(err).Str("peer", cs.conn.String()).Msg("bad resync request")
		return
	}
	for _, id := range request.IDs {
		st, tracked := cs.objects[id]
		if !tracked {
			if _, exists := s.registry.Get(id); !exists {
				cs.stale = append(cs.stale, id)
				continue
			}
			st = &objectSync{lastRelevant: s.frame}
			cs.objects[id] = st
		}
		st.pendingSnapshot = true
		s.counters.RecordResnapshot()
	}
	s.log.Debug().Str("peer", cs.conn.String()).Int("objects", len(request.IDs)).Msg("resnapshot requested")
}

// writeDeltas serializes each object's deltas exactly once per tick; the
// per-connection fan-out reuses the payloads.
func (s *Server) writeDeltas(frame replica.Frame) (reliable, unreliable map[object.ID]proto.ObjectUpdate) {
	reliable = make(map[object.ID]proto.ObjectUpdate)
	unreliable = make(map[object.ID]proto.ObjectUpdate)

	s.registry.Each(func(obj object.Object) {
		id := obj.NetworkID()
		parent := obj.ParentID()

		payload, ok, err := obj.WriteReliableDelta(frame)
		if err != nil {
			s.log.Error().Err(err).Uint32("object", uint32(id)).Msg("reliable delta write failed")
			ok = false
		}
		parentChanged := s.lastParent[id] != parent
		if ok || parentChanged {
			update := proto.ObjectUpdate{ID: id, Parent: parent}
			if ok {
				update.Payload = payload
			}
			reliable[id] = update
			s.lastParent[id] = parent
		}

		payload, ok, err = obj.WriteUnreliableDelta(frame)
		if err != nil {
			s.log.Error().Err(err).Uint32("object", uint32(id)).Msg("unreliable delta write failed")
		} else if ok {
			unreliable[id] = proto.ObjectUpdate{ID: id, Parent: parent, Payload: payload}
		}
	})
	return reliable, unreliable
}

func (s *Server) replicateTo(cs *connectionState, frame replica.Frame, reliable, unreliable map[object.ID]proto.ObjectUpdate) {
	removeIDs := s.trackRelevance(cs, frame)
	if len(cs.stale) > 0 {
		removeIDs = append(removeIDs, cs.stale...)
		cs.stale = nil
	}

	var snapshots []proto.ObjectUpdate
	var reliableUpdates []proto.ObjectUpdate
	var unreliableUpdates []proto.ObjectUpdate

	for _, id := range s.registry.IDs() {
		st, tracked := cs.objects[id]
		if !tracked {
			continue
		}
		obj, _ := s.registry.Get(id)
		if st.pendingSnapshot {
			payload, err := obj.WriteSnapshot(frame)
			if err != nil {
				s.log.Error().Err(err).Uint32("object", uint32(id)).Msg("snapshot write failed")
				continue
			}
			snapshots = append(snapshots, proto.ObjectUpdate{
				ID:      id,
				Kind:    obj.Kind(),
				Parent:  obj.ParentID(),
				Payload: payload,
			})
			st.pendingSnapshot = false
			continue
		}
		if update, ok := reliable[id]; ok {
			reliableUpdates = append(reliableUpdates, update)
		}
		if update, ok := unreliable[id]; ok {
			unreliableUpdates = append(unreliableUpdates, update)
		}
	}

	if len(snapshots) > 0 {
		payload, err := proto.Encode(proto.NewSnapshot(frame, snapshots))
		s.send(cs, proto.MsgSnapshot, payload, err)
	}
	if len(reliableUpdates) > 0 {
		payload, err := proto.Encode(proto.NewReliableDelta(frame, reliableUpdates))
		s.send(cs, proto.MsgReliableDelta, payload, err)
	}
	if len(removeIDs) > 0 {
		payload, err := proto.Encode(proto.NewRemove(frame, removeIDs))
		s.send(cs, proto.MsgRemove, payload, err)
	}
	if len(unreliableUpdates) > 0 {
		payload, err := proto.Encode(proto.NewUnreliableDelta(frame, unreliableUpdates))
		s.send(cs, proto.MsgUnreliableDelta, payload, err)
	}
	payload, err := proto.Encode(proto.NewClock(replica.At(frame), s.cfg.UpdateFrequency))
	s.send(cs, proto.MsgClock, payload, err)
}

// trackRelevance reconciles the connection's tracked set with the registry:
// newly relevant objects get a snapshot, objects irrelevant for longer than
// the timeout are dropped, removed objects are dropped immediately.
func (s *Server) trackRelevance(cs *connectionState, frame replica.Frame) []object.ID {
	var removeIDs []object.ID

	for _, id := range s.removed {
		if _, tracked := cs.objects[id]; tracked {
			delete(cs.objects, id)
			removeIDs = append(removeIDs, id)
		}
	}

	for _, id := range s.registry.IDs() {
		obj, _ := s.registry.Get(id)
		st, tracked := cs.objects[id]
		if obj.IsRelevantFor(cs.conn) {
			if !tracked {
				cs.objects[id] = &objectSync{pendingSnapshot: true, lastRelevant: frame}
			} else {
				st.lastRelevant = frame
			}
			continue
		}
		if tracked && replica.FrameGreater(frame, st.lastRelevant+s.relevanceTimeoutFrames) {
			delete(cs.objects, id)
			removeIDs = append(removeIDs, id)
		}
	}
	return removeIDs
}

func (s *Server) send(cs *connectionState, msgID uint8, payload []byte, err error) {
	if err != nil {
		s.log.Error().Err(err).Uint8("msg", msgID).Msg("encode failed")
		return
	}
	if err := cs.conn.SendMessage(msgID, proto.ClassFor(msgID), payload); err != nil {
		s.log.Warn().Err(err).Str("peer", cs.conn.String()).Msg("send failed")
		return
	}
	s.counters.RecordSend(len(payload))
}
