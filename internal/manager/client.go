package manager

import (
	"errors"
	"sort"

	"replicast/internal/config"
	"replicast/internal/object"
	"replicast/internal/proto"
	"replicast/internal/replica"
	"replicast/internal/telemetry"
	"replicast/internal/transport"

	"github.com/rs/zerolog"
)

// Client rebuilds replicated state from envelopes. ProcessMessages drains
// the transport at frame start; Advance moves the replica clock and derives
// the displayed state for every object.
//
// A reliable chain violation never crashes the session: the object is
// quarantined and a fresh snapshot is requested from the server.
type Client struct {
	cfg      config.Config
	log      zerolog.Logger
	counters *telemetry.Counters
	conn     transport.Connection
	registry *object.Registry

	clock      *Clock
	quarantine map[object.ID]struct{}
	resync     *resyncPolicy
}

func NewClient(cfg config.Config, log zerolog.Logger, counters *telemetry.Counters, conn transport.Connection) *Client {
	return &Client{
		cfg:      cfg,
		log:      log.With().Str("role", "client").Logger(),
		counters: counters,
		conn:     conn,
		registry: object.NewRegistry(),
		clock: NewClock(
			cfg.UpdateFrequency,
			cfg.TimeSnapThreshold,
			cfg.MinTimeDilation,
			cfg.MaxTimeDilation,
			cfg.SmoothingConstant,
		),
		quarantine: make(map[object.ID]struct{}),
		resync:     newResyncPolicy(),
	}
}

// Registry exposes the reconstructed object arena.
func (c *Client) Registry() *object.Registry { return c.registry }

// ProcessMessages drains the transport and applies every envelope, then
// sends a resync request if the desync accounting crossed its threshold.
func (c *Client) ProcessMessages() {
	for drained := false; !drained; {
		select {
		case msg, ok := <-c.conn.Receive():
			if !ok {
				drained = true
				break
			}
			c.counters.RecordReceive()
			c.handleMessage(msg)
		default:
			drained = true
		}
	}
	c.requestResyncIfNeeded()
}

// Advance moves the replica clock by dt seconds and interpolates every
// object's displayed state at the render time (clock time minus the
// interpolation delay). It returns the render time.
func (c *Client) Advance(dt float64) replica.NetworkTime {
	now := c.clock.Advance(dt)
	renderTime := now.Add(-c.cfg.InterpolationDelay * c.cfg.UpdateFrequency)
	if !c.clock.IsSynchronized() {
		return renderTime
	}
	c.registry.Each(func(obj object.Object) {
		obj.InterpolateState(renderTime, dt)
	})
	return renderTime
}

func (c *Client) handleMessage(msg transport.Message) {
	switch msg.ID {
	case proto.MsgSnapshot:
		envelope, err := proto.Decode[proto.SnapshotMessage](msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad snapshot envelope")
			return
		}
		c.applySnapshot(envelope)
	case proto.MsgReliableDelta:
		envelope, err := proto.Decode[proto.ReliableDeltaMessage](msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad reliable delta envelope")
			return
		}
		c.applyReliableDelta(envelope)
	case proto.MsgUnreliableDelta:
		envelope, err := proto.Decode[proto.UnreliableDeltaMessage](msg.Payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("bad unreliable delta envelope")
			return
		}
		c.applyUnreliableDelta(envelope)
	case proto.MsgRemove:
		envelope, err := proto.Decode[proto.RemoveMessage](msg.Payload)
		if err != nil {
			c.log.Warn().Err(err).Msg("bad remove envelope")
			return
		}
		c.applyRemove(envelope)
	case proto.MsgClock:
		envelope, err := proto.Decode[proto.ClockMessage](msg.Payload)
		if err != nil {
			c.log.Debug().Err(err).Msg("bad clock envelope")
			return
		}
		serverTime := replica.AtSubFrame(envelope.Frame, envelope.SubFrame)
		c.clock.Update(serverTime, c.conn.Ping().Seconds())
	default:
		c.log.Warn().Uint8("msg", msg.ID).Msg("unexpected message")
	}
}

func (c *Client) applySnapshot(envelope proto.SnapshotMessage) {
	for _, update := range envelope.Objects {
		obj, known := c.registry.Get(update.ID)
		if !known {
			created, ok := object.NewOfKind(update.Kind)
			if !ok {
				c.log.Error().Str("kind", update.Kind).Uint32("object", uint32(update.ID)).Msg("unknown object kind")
				continue
			}
			if err := c.registry.Insert(update.ID, created); err != nil {
				c.log.Error().Err(err).Msg("snapshot insert failed")
				continue
			}
			obj = created
		}
		c.registry.UpdateParent(obj, update.Parent)
		if err := obj.ReadSnapshot(envelope.Frame, update.Payload); err != nil {
			c.log.Warn().Err(err).Uint32("object", uint32(update.ID)).Msg("snapshot read failed")
			continue
		}
		delete(c.quarantine, update.ID)
	}
}

func (c *Client) applyReliableDelta(envelope proto.ReliableDeltaMessage) {
	for _, update := range envelope.Updates {
		obj, known := c.registry.Get(update.ID)
		if !known {
			// A delta for an object we never saw a snapshot for: the
			// ordered chain is broken.
			c.desync("", update.ID)
			continue
		}
		if _, quarantined := c.quarantine[update.ID]; quarantined {
			continue
		}
		if update.Parent != obj.ParentID() {
			c.registry.UpdateParent(obj, update.Parent)
		}
		if len(update.Payload) > 0 {
			if err := obj.ReadReliableDelta(envelope.Frame, update.Payload); err != nil {
				c.log.Warn().Err(err).Uint32("object", uint32(update.ID)).Msg("reliable delta rejected")
				c.desync(obj.Kind(), update.ID)
				continue
			}
		}
		c.resync.noteEvent()
	}
}

func (c *Client) applyUnreliableDelta(envelope proto.UnreliableDeltaMessage) {
	for _, update := range envelope.Updates {
		obj, known := c.registry.Get(update.ID)
		if !known {
			// Loss and reorder are expected here; the snapshot may simply
			// not have arrived yet.
			continue
		}
		if _, quarantined := c.quarantine[update.ID]; quarantined {
			continue
		}
		err := obj.ReadUnreliableDelta(envelope.Frame, update.Payload)
		switch {
		case err == nil:
		case errors.Is(err, object.ErrStaleFrame):
			c.counters.RecordStaleFrameDrop()
		default:
			c.log.Debug().Err(err).Uint32("object", uint32(update.ID)).Msg("unreliable delta dropped")
		}
	}
}

func (c *Client) applyRemove(envelope proto.RemoveMessage) {
	for _, id := range envelope.IDs {
		obj, known := c.registry.Get(id)
		if !known {
			delete(c.quarantine, id)
			continue
		}
		obj.PrepareToRemove()
		c.registry.Remove(id)
		delete(c.quarantine, id)
	}
}

// desync quarantines an object whose reliable chain broke and feeds the
// resync accounting.
func (c *Client) desync(kind string, id object.ID) {
	if _, already := c.quarantine[id]; already {
		return
	}
	c.quarantine[id] = struct{}{}
	c.counters.RecordProtocolDesync()
	c.resync.noteDesync(kind, id)
	c.log.Warn().Str("kind", kind).Uint32("object", uint32(id)).Msg("reliable chain desync, quarantined")
}

func (c *Client) requestResyncIfNeeded() {
	signal, ok := c.resync.consume()
	if !ok {
		return
	}
	ids := make([]object.ID, 0, len(c.quarantine))
	for id := range c.quarantine {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	payload, err := proto.Encode(proto.NewResyncRequest(ids))
	if err != nil {
		c.log.Error().Err(err).Msg("encode resync request failed")
		return
	}
	if err := c.conn.SendMessage(proto.MsgResyncRequest, proto.ClassFor(proto.MsgResyncRequest), payload); err != nil {
		c.log.Warn().Err(err).Msg("resync request send failed")
		return
	}
	c.counters.RecordSend(len(payload))
	c.log.Info().Str("signal", signal.summary()).Int("objects", len(ids)).Msg("requested resnapshot")
}
