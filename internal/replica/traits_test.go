package replica

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatTraitsSnapReturnsEndpoint(t *testing.T) {
	tr := FloatTraits{}

	// Distance above threshold: never a blended value.
	assert.Equal(t, 0.0, tr.Interpolate(0, 100, 0.5, 1.0))
	assert.Equal(t, 100.0, tr.Interpolate(0, 100, 0.75, 1.0))
	assert.Equal(t, 0.0, tr.Interpolate(0, 100, 0.25, 1.0))

	// Distance below threshold: normal lerp.
	assert.InDelta(t, 0.25, tr.Interpolate(0, 0.5, 0.5, 1.0), 1e-9)
}

func TestVec3TraitsSnapUsesSquaredDistance(t *testing.T) {
	tr := Vec3Traits{}
	near := tr.Interpolate(Vec3{}, Vec3{X: 0.5}, 0.5, 1.0)
	assert.InDelta(t, 0.25, near.X, 1e-9)

	far := tr.Interpolate(Vec3{}, Vec3{X: 3}, 0.6, 1.0)
	assert.Equal(t, Vec3{X: 3}, far)
}

func TestVec3WithVelocityExtrapolate(t *testing.T) {
	tr := Vec3WithVelocityTraits{}
	v := Vec3WithVelocity{Value: Vec3{X: 1}, Velocity: Vec3{X: 2}}
	assert.Equal(t, Vec3{X: 5}, tr.Extrapolate(v, 2))
	assert.Equal(t, Vec3{X: 1}, tr.Extrapolate(v, 0))
}

func TestQuatSlerpEndpoints(t *testing.T) {
	tr := QuatTraits{}
	a := QuatIdentity
	b := QuatFromAngularVelocity(Vec3{Z: math.Pi / 2})

	got := tr.Interpolate(a, b, 0, largeValue)
	assert.InDelta(t, 1.0, math.Abs(got.Dot(a)), 1e-9)

	got = tr.Interpolate(a, b, 1, largeValue)
	assert.InDelta(t, 1.0, math.Abs(got.Dot(b)), 1e-9)

	mid := tr.Interpolate(a, b, 0.5, largeValue)
	quarter := QuatFromAngularVelocity(Vec3{Z: math.Pi / 4})
	assert.InDelta(t, 1.0, math.Abs(mid.Dot(quarter)), 1e-6)
}

func TestQuatCorrectionRoundTrip(t *testing.T) {
	tr := QuatTraits{}
	old := QuatFromAngularVelocity(Vec3{Z: 0.3})
	correct := QuatFromAngularVelocity(Vec3{Z: 0.7})

	// Folding the discrepancy and applying it to the correct value must
	// reproduce the previously displayed value.
	correction := tr.UpdateCorrection(tr.NeutralCorrection(), correct, old)
	reproduced := tr.ApplyCorrection(correction, correct)
	assert.InDelta(t, 1.0, math.Abs(reproduced.Dot(old)), 1e-9)
}

func TestScalarCorrectionDecay(t *testing.T) {
	tr := FloatTraits{}
	correction := tr.UpdateCorrection(tr.NeutralCorrection(), 10.0, 4.0)
	assert.Equal(t, -6.0, correction)
	assert.Equal(t, 4.0, tr.ApplyCorrection(correction, 10.0))

	decayed := tr.SmoothCorrection(correction, 0.5)
	assert.Equal(t, -3.0, decayed)
	decayed = tr.SmoothCorrection(decayed, 1.0)
	assert.Equal(t, 0.0, decayed)
}

func TestQuatFromAngularVelocity(t *testing.T) {
	assert.Equal(t, QuatIdentity, QuatFromAngularVelocity(Vec3{}))

	q := QuatFromAngularVelocity(Vec3{Z: math.Pi})
	assert.InDelta(t, 0.0, q.W, 1e-9)
	assert.InDelta(t, 1.0, q.Z, 1e-9)
}

func TestExpSmoothing(t *testing.T) {
	assert.Equal(t, 0.0, ExpSmoothing(8, 0))
	assert.InDelta(t, 1-math.Exp(-8*0.1), ExpSmoothing(8, 0.1), 1e-12)
	assert.Less(t, ExpSmoothing(8, 0.01), ExpSmoothing(8, 0.1))
}
