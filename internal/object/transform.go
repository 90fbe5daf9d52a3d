package object

import (
	"encoding/json"
	"fmt"

	"replicast/internal/replica"
)

// KindTransform names the spatial-state object kind.
const KindTransform = "transform"

// TransformConfig sizes a Transform's history and tunes its client-side
// sampling.
type TransformConfig struct {
	// TraceCapacity is the number of frames of history retained.
	TraceCapacity int
	// MaxExtrapolation caps projection past the last received frame,
	// in frames.
	MaxExtrapolation int
	// SmoothingConstant drives exponential correction decay.
	SmoothingConstant float64
	// PositionSnap is the distance beyond which position jumps instead of
	// blending.
	PositionSnap float64
}

// Transform replicates position and rotation with their derivatives. The
// server captures one sample per tick and ships it as an unreliable delta;
// the client buffers samples by frame and derives the displayed pose with
// interpolation, capped extrapolation and correction smoothing.
type Transform struct {
	Base

	cfg TransformConfig

	position *replica.Series[replica.Vec3WithVelocity, replica.Vec3]
	rotation *replica.Series[replica.QuatWithAngularVelocity, replica.Quat]

	positionSampler *replica.Sampler[replica.Vec3WithVelocity, replica.Vec3]
	rotationSampler *replica.Sampler[replica.QuatWithAngularVelocity, replica.Quat]

	displayedPosition replica.Vec3
	displayedRotation replica.Quat
	displayed         bool
}

type transformState struct {
	Position replica.Vec3WithVelocity        `json:"position"`
	Rotation replica.QuatWithAngularVelocity `json:"rotation"`
}

// NewTransform builds a transform with the given history and sampling
// parameters.
func NewTransform(cfg TransformConfig) *Transform {
	posTraits := replica.Vec3WithVelocityTraits{}
	rotTraits := replica.QuatWithAngularVelocityTraits{}

	t := &Transform{
		cfg:               cfg,
		position:          replica.NewSeries[replica.Vec3WithVelocity, replica.Vec3](posTraits, cfg.TraceCapacity),
		rotation:          replica.NewSeries[replica.QuatWithAngularVelocity, replica.Quat](rotTraits, cfg.TraceCapacity),
		positionSampler:   replica.NewSampler[replica.Vec3WithVelocity, replica.Vec3](posTraits),
		rotationSampler:   replica.NewSampler[replica.QuatWithAngularVelocity, replica.Quat](rotTraits),
		displayedRotation: replica.QuatIdentity,
	}
	t.positionSampler.Setup(cfg.MaxExtrapolation, cfg.SmoothingConstant, cfg.PositionSnap)
	t.rotationSampler.Setup(cfg.MaxExtrapolation, cfg.SmoothingConstant, 0)
	return t
}

func (t *Transform) Kind() string { return KindTransform }

// Capture records the authoritative pose for frame. Server side, once per
// tick. Returns false when frame is older than the retained window.
func (t *Transform) Capture(frame replica.Frame, position, velocity replica.Vec3, rotation replica.Quat, angularVelocity replica.Vec3) bool {
	posOK := t.position.Set(frame, replica.Vec3WithVelocity{Value: position, Velocity: velocity})
	rotOK := t.rotation.Set(frame, replica.QuatWithAngularVelocity{Value: rotation, Velocity: angularVelocity})
	return posOK && rotOK
}

func (t *Transform) WriteSnapshot(frame replica.Frame) ([]byte, error) {
	var state transformState
	if t.position.Initialized() {
		state.Position = t.position.GetClosestRaw(frame)
		state.Rotation = t.rotation.GetClosestRaw(frame)
	} else {
		state.Rotation.Value = replica.QuatIdentity
	}
	return json.Marshal(state)
}

func (t *Transform) WriteUnreliableDelta(frame replica.Frame) ([]byte, bool, error) {
	position, ok := t.position.GetRaw(frame)
	if !ok {
		return nil, false, nil
	}
	rotation, _ := t.rotation.GetRaw(frame)
	payload, err := json.Marshal(transformState{Position: position, Rotation: rotation})
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (t *Transform) ReadSnapshot(frame replica.Frame, payload []byte) error {
	return t.store(frame, payload)
}

func (t *Transform) ReadUnreliableDelta(frame replica.Frame, payload []byte) error {
	return t.store(frame, payload)
}

func (t *Transform) store(frame replica.Frame, payload []byte) error {
	var state transformState
	if err := json.Unmarshal(payload, &state); err != nil {
		return fmt.Errorf("transform %d: %w", t.NetworkID(), err)
	}
	posOK := t.position.Set(frame, state.Position)
	t.rotation.Set(frame, state.Rotation)
	if !posOK {
		return ErrStaleFrame
	}
	return nil
}

func (t *Transform) InterpolateState(time replica.NetworkTime, timeStep float64) {
	position, ok := t.positionSampler.UpdateAndSample(t.position, time, timeStep)
	if !ok {
		return
	}
	rotation, ok := t.rotationSampler.UpdateAndSample(t.rotation, time, timeStep)
	if !ok {
		return
	}
	t.displayedPosition = position
	t.displayedRotation = rotation
	t.displayed = true
}

// Position returns the displayed position. ok is false until the first
// successful InterpolateState.
func (t *Transform) Position() (replica.Vec3, bool) {
	return t.displayedPosition, t.displayed
}

// Rotation returns the displayed rotation.
func (t *Transform) Rotation() (replica.Quat, bool) {
	return t.displayedRotation, t.displayed
}

// LastFrame returns the newest buffered frame; ok is false before any data
// arrived.
func (t *Transform) LastFrame() (replica.Frame, bool) {
	if !t.position.Initialized() {
		return 0, false
	}
	return t.position.LastFrame(), true
}
