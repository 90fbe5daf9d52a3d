package manager

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replicast/internal/config"
	"replicast/internal/object"
	"replicast/internal/proto"
	"replicast/internal/replica"
	"replicast/internal/telemetry"
	"replicast/internal/transport"
)

// gated is relevant only while its flag is set.
type gated struct {
	object.Base
	relevant bool
}

func (g *gated) Kind() string { return "gated" }

func (g *gated) IsRelevantFor(transport.Connection) bool { return g.relevant }

func registerTestKinds(cfg config.Config) {
	object.RegisterKind(object.KindTransform, func() object.Object {
		return object.NewTransform(transformConfig(cfg, cfg.ClientTraceFrames()))
	})
	object.RegisterKind("gated", func() object.Object { return &gated{} })
}

func transformConfig(cfg config.Config, capacity int) object.TransformConfig {
	return object.TransformConfig{
		TraceCapacity:     capacity,
		MaxExtrapolation:  cfg.MaxExtrapolationFrames(),
		SmoothingConstant: cfg.SmoothingConstant,
		PositionSnap:      cfg.PositionSnapThreshold,
	}
}

type pair struct {
	server         *Server
	client         *Client
	serverCounters *telemetry.Counters
	clientCounters *telemetry.Counters
	serverEnd      *transport.Loopback
	clientEnd      *transport.Loopback
}

func newPair(cfg config.Config) *pair {
	log := zerolog.Nop()
	serverEnd, clientEnd := transport.NewLoopbackPair()
	p := &pair{
		serverCounters: telemetry.NewCounters(),
		clientCounters: telemetry.NewCounters(),
		serverEnd:      serverEnd,
		clientEnd:      clientEnd,
	}
	p.server = NewServer(cfg, log, p.serverCounters)
	p.server.AddConnection(serverEnd)
	p.client = NewClient(cfg, log, p.clientCounters, clientEnd)
	return p
}

func TestReplicationEndToEnd(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	transform := object.NewTransform(transformConfig(cfg, cfg.ServerTraceFrames()))
	transformID := p.server.Registry().Add(transform)
	score := object.NewCounters("score")
	scoreID := p.server.Registry().Add(score)
	score.Set("score", 42)

	for i := 0; i < 5; i++ {
		p.server.Tick(func(frame replica.Frame) {
			transform.Capture(frame,
				replica.Vec3{X: float64(frame)}, replica.Vec3{X: 1},
				replica.QuatIdentity, replica.Vec3{})
		})
		p.client.ProcessMessages()
	}

	renderTime := p.client.Advance(1.0 / 30)
	// The clock adopted frame 5 plus one step; rendering sits the
	// interpolation delay behind that.
	assert.Equal(t, replica.Frame(3), renderTime.Frame())

	got, ok := p.client.Registry().Get(transformID)
	require.True(t, ok)
	clientTransform := got.(*object.Transform)
	position, ok := clientTransform.Position()
	require.True(t, ok)
	assert.InDelta(t, 3.0, position.X, 1e-6)

	got, ok = p.client.Registry().Get(scoreID)
	require.True(t, ok)
	assert.Equal(t, 42.0, got.(*object.Counters).Value("score"))

	assert.Zero(t, p.clientCounters.Read().ProtocolDesyncs)
	assert.NotZero(t, p.serverCounters.Read().MessagesSent)
}

func TestParentLinkReplicated(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	parent := &gated{relevant: true}
	child := &gated{relevant: true}
	parentID := p.server.Registry().Add(parent)
	childID := p.server.Registry().Add(child)
	p.server.Registry().UpdateParent(child, parentID)

	p.server.Tick(nil)
	p.client.ProcessMessages()

	clientChild, ok := p.client.Registry().Get(childID)
	require.True(t, ok)
	assert.Equal(t, parentID, clientChild.ParentID())
	assert.Equal(t, []object.ID{childID}, p.client.Registry().Children(parentID))

	// Reparenting mid-life travels over the reliable channel.
	p.server.Registry().UpdateParent(child, object.InvalidID)
	p.server.Tick(nil)
	p.client.ProcessMessages()

	assert.Equal(t, object.InvalidID, clientChild.ParentID())
	assert.Empty(t, p.client.Registry().Children(parentID))
}

func TestUnreliableLossAbsorbed(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	transform := object.NewTransform(transformConfig(cfg, cfg.ServerTraceFrames()))
	transformID := p.server.Registry().Add(transform)

	dropping := false
	p.serverEnd.SetDrop(func(_ transport.PacketType, msgID uint8) bool {
		return dropping && msgID == proto.MsgUnreliableDelta
	})

	for i := 0; i < 8; i++ {
		dropping = i == 3 || i == 4 // lose two ticks of per-frame state
		p.server.Tick(func(frame replica.Frame) {
			transform.Capture(frame,
				replica.Vec3{X: float64(frame)}, replica.Vec3{X: 1},
				replica.QuatIdentity, replica.Vec3{})
		})
		p.client.ProcessMessages()
	}

	p.client.Advance(1.0 / 30)
	got, ok := p.client.Registry().Get(transformID)
	require.True(t, ok)
	position, ok := got.(*object.Transform).Position()
	require.True(t, ok)
	assert.InDelta(t, 6.0, position.X, 1e-6)

	snapshot := p.clientCounters.Read()
	assert.Zero(t, snapshot.ProtocolDesyncs, "unreliable loss is steady state, not a desync")
}

func TestDesyncQuarantinesAndResnapshots(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	score := object.NewCounters("score")
	scoreID := p.server.Registry().Add(score)

	p.server.Tick(nil)
	p.client.ProcessMessages()

	score.Set("score", 10)
	p.server.Tick(nil)
	p.client.ProcessMessages()

	clientObj, ok := p.client.Registry().Get(scoreID)
	require.True(t, ok)
	clientScore := clientObj.(*object.Counters)
	require.Equal(t, 10.0, clientScore.Value("score"))

	// A corrupt reliable delta breaks the ordered chain for this object.
	broken, err := proto.Encode(proto.NewReliableDelta(3, []proto.ObjectUpdate{
		{ID: scoreID, Payload: []byte(`{"mask":1,"values":[]}`)},
	}))
	require.NoError(t, err)
	require.NoError(t, p.serverEnd.SendMessage(proto.MsgReliableDelta, transport.ReliableOrdered, broken))

	p.client.ProcessMessages()
	assert.Equal(t, uint64(1), p.clientCounters.Read().ProtocolDesyncs)

	// The next tick drains the resync request and re-establishes the
	// object with a fresh snapshot.
	score.Set("score", 77)
	p.server.Tick(nil)
	p.client.ProcessMessages()

	assert.Equal(t, 77.0, clientScore.Value("score"))
	assert.Equal(t, uint64(1), p.serverCounters.Read().Resnapshots)
}

func TestQuarantineClearedForVanishedObject(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	// A reliable delta for an id the client never saw breaks the chain; the
	// id goes into quarantine and rides the resync request.
	broken, err := proto.Encode(proto.NewReliableDelta(1, []proto.ObjectUpdate{
		{ID: 99, Payload: []byte(`{}`)},
	}))
	require.NoError(t, err)
	require.NoError(t, p.serverEnd.SendMessage(proto.MsgReliableDelta, transport.ReliableOrdered, broken))

	p.client.ProcessMessages()
	require.Contains(t, p.client.quarantine, object.ID(99))
	require.Equal(t, uint64(1), p.clientCounters.Read().ProtocolDesyncs)

	// The server has no such object, so it answers with a remove instead of
	// a snapshot and the quarantine entry clears.
	p.server.Tick(nil)
	p.client.ProcessMessages()

	assert.NotContains(t, p.client.quarantine, object.ID(99))
	assert.Zero(t, p.serverCounters.Read().Resnapshots)
}

func TestRelevanceFiltering(t *testing.T) {
	cfg := config.Default()
	cfg.RelevanceTimeout = 0.1 // 3 frames at 30 Hz
	registerTestKinds(cfg)
	p := newPair(cfg)

	visible := &gated{relevant: true}
	hidden := &gated{relevant: false}
	visibleID := p.server.Registry().Add(visible)
	hiddenID := p.server.Registry().Add(hidden)

	p.server.Tick(nil)
	p.client.ProcessMessages()

	_, ok := p.client.Registry().Get(visibleID)
	assert.True(t, ok)
	_, ok = p.client.Registry().Get(hiddenID)
	assert.False(t, ok, "irrelevant objects are never synced")

	// Turning irrelevant drops the object after the timeout.
	visible.relevant = false
	for i := 0; i < 6; i++ {
		p.server.Tick(nil)
		p.client.ProcessMessages()
	}
	_, ok = p.client.Registry().Get(visibleID)
	assert.False(t, ok)
}

func TestRemoveObjectPropagates(t *testing.T) {
	cfg := config.Default()
	registerTestKinds(cfg)
	p := newPair(cfg)

	obj := &gated{relevant: true}
	id := p.server.Registry().Add(obj)

	p.server.Tick(nil)
	p.client.ProcessMessages()
	require.Equal(t, 1, p.client.Registry().Len())

	_, removed := p.server.RemoveObject(id)
	require.True(t, removed)
	p.server.Tick(nil)
	p.client.ProcessMessages()

	assert.Zero(t, p.client.Registry().Len())
	_, ok := p.server.Registry().Get(id)
	assert.False(t, ok)
}
