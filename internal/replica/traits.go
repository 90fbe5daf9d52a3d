package replica

// Traits is the per-type policy used by Series and Sampler. V is the stored
// representation; R is the externally visible value extracted from it (the
// two differ for value+derivative pairs).
//
// The set of implementations is deliberately closed: scalars, vectors,
// rotations and their derivative-carrying variants. The per-tick sampling
// path is hot, so traits are small value types rather than open dynamic
// dispatch.
type Traits[V, R any] interface {
	// Interpolate blends two stored values. When the distance between them
	// exceeds snapThreshold, no blending occurs: the endpoint nearer in time
	// is returned unchanged (teleportation must not slide).
	Interpolate(lhs, rhs V, blend, snapThreshold float64) V
	// Extract converts the stored representation to the visible value.
	Extract(value V) R
	// Extrapolate projects the stored value forward by factor frames.
	Extrapolate(value V, factor float64) R
	// NeutralCorrection returns the correction that changes nothing.
	NeutralCorrection() R
	// UpdateCorrection folds the discrepancy between a freshly recomputed
	// value and the previously displayed one into the inverse correction.
	UpdateCorrection(correction, correctValue, oldValue R) R
	// SmoothCorrection decays the correction toward neutral.
	SmoothCorrection(correction R, blend float64) R
	// ApplyCorrection composes the correction onto a sampled value.
	ApplyCorrection(correction, value R) R
}

// FloatTraits replicates a plain scalar with linear interpolation and
// squared-distance snap detection.
type FloatTraits struct{}

func (FloatTraits) Interpolate(lhs, rhs, blend, snapThreshold float64) float64 {
	if d := lhs - rhs; d*d >= snapThreshold*snapThreshold {
		if blend > 0.5 {
			return rhs
		}
		return lhs
	}
	return Lerp(lhs, rhs, blend)
}

func (FloatTraits) Extract(value float64) float64 { return value }

func (FloatTraits) Extrapolate(value float64, factor float64) float64 { return value }

func (FloatTraits) NeutralCorrection() float64 { return 0 }

func (FloatTraits) UpdateCorrection(correction, correctValue, oldValue float64) float64 {
	return correction - (correctValue - oldValue)
}

func (FloatTraits) SmoothCorrection(correction, blend float64) float64 {
	return Lerp(correction, 0, blend)
}

func (FloatTraits) ApplyCorrection(correction, value float64) float64 {
	return value + correction
}

// Vec3Traits replicates a plain vector.
type Vec3Traits struct{}

func (Vec3Traits) Interpolate(lhs, rhs Vec3, blend, snapThreshold float64) Vec3 {
	if lhs.Sub(rhs).LengthSquared() >= snapThreshold*snapThreshold {
		if blend > 0.5 {
			return rhs
		}
		return lhs
	}
	return LerpVec3(lhs, rhs, blend)
}

func (Vec3Traits) Extract(value Vec3) Vec3 { return value }

func (Vec3Traits) Extrapolate(value Vec3, factor float64) Vec3 { return value }

func (Vec3Traits) NeutralCorrection() Vec3 { return Vec3{} }

func (Vec3Traits) UpdateCorrection(correction, correctValue, oldValue Vec3) Vec3 {
	return correction.Sub(correctValue.Sub(oldValue))
}

func (Vec3Traits) SmoothCorrection(correction Vec3, blend float64) Vec3 {
	return LerpVec3(correction, Vec3{}, blend)
}

func (Vec3Traits) ApplyCorrection(correction, value Vec3) Vec3 {
	return value.Add(correction)
}

// QuatTraits replicates a rotation. Rotations always take the shortest arc,
// so snap detection does not apply.
type QuatTraits struct{}

func (QuatTraits) Interpolate(lhs, rhs Quat, blend, snapThreshold float64) Quat {
	return SlerpQuat(lhs, rhs, blend)
}

func (QuatTraits) Extract(value Quat) Quat { return value }

func (QuatTraits) Extrapolate(value Quat, factor float64) Quat { return value }

func (QuatTraits) NeutralCorrection() Quat { return QuatIdentity }

func (QuatTraits) UpdateCorrection(correction, correctValue, oldValue Quat) Quat {
	return oldValue.Mul(correctValue.Inverse()).Mul(correction)
}

func (QuatTraits) SmoothCorrection(correction Quat, blend float64) Quat {
	return SlerpQuat(correction, QuatIdentity, blend)
}

func (QuatTraits) ApplyCorrection(correction, value Quat) Quat {
	return correction.Mul(value)
}

// Vec3WithVelocity stores a position together with its time derivative so
// the client can extrapolate past the last received frame.
type Vec3WithVelocity struct {
	Value    Vec3 `json:"value"`
	Velocity Vec3 `json:"velocity"`
}

// Vec3WithVelocityTraits interpolates both components and extrapolates as
// value + velocity*dt.
type Vec3WithVelocityTraits struct{}

func (Vec3WithVelocityTraits) Interpolate(lhs, rhs Vec3WithVelocity, blend, snapThreshold float64) Vec3WithVelocity {
	if lhs.Value.Sub(rhs.Value).LengthSquared() >= snapThreshold*snapThreshold {
		if blend > 0.5 {
			return rhs
		}
		return lhs
	}
	return Vec3WithVelocity{
		Value:    LerpVec3(lhs.Value, rhs.Value, blend),
		Velocity: LerpVec3(lhs.Velocity, rhs.Velocity, blend),
	}
}

func (Vec3WithVelocityTraits) Extract(value Vec3WithVelocity) Vec3 { return value.Value }

func (Vec3WithVelocityTraits) Extrapolate(value Vec3WithVelocity, factor float64) Vec3 {
	return value.Value.Add(value.Velocity.Scale(factor))
}

func (Vec3WithVelocityTraits) NeutralCorrection() Vec3 { return Vec3{} }

func (Vec3WithVelocityTraits) UpdateCorrection(correction, correctValue, oldValue Vec3) Vec3 {
	return Vec3Traits{}.UpdateCorrection(correction, correctValue, oldValue)
}

func (Vec3WithVelocityTraits) SmoothCorrection(correction Vec3, blend float64) Vec3 {
	return Vec3Traits{}.SmoothCorrection(correction, blend)
}

func (Vec3WithVelocityTraits) ApplyCorrection(correction, value Vec3) Vec3 {
	return Vec3Traits{}.ApplyCorrection(correction, value)
}

// QuatWithAngularVelocity stores a rotation and its angular velocity vector.
type QuatWithAngularVelocity struct {
	Value    Quat `json:"value"`
	Velocity Vec3 `json:"velocity"`
}

// QuatWithAngularVelocityTraits slerps rotations and extrapolates by
// integrating the angular velocity.
type QuatWithAngularVelocityTraits struct{}

func (QuatWithAngularVelocityTraits) Interpolate(lhs, rhs QuatWithAngularVelocity, blend, snapThreshold float64) QuatWithAngularVelocity {
	return QuatWithAngularVelocity{
		Value:    SlerpQuat(lhs.Value, rhs.Value, blend),
		Velocity: LerpVec3(lhs.Velocity, rhs.Velocity, blend),
	}
}

func (QuatWithAngularVelocityTraits) Extract(value QuatWithAngularVelocity) Quat {
	return value.Value
}

func (QuatWithAngularVelocityTraits) Extrapolate(value QuatWithAngularVelocity, factor float64) Quat {
	return QuatFromAngularVelocity(value.Velocity.Scale(factor)).Mul(value.Value)
}

func (QuatWithAngularVelocityTraits) NeutralCorrection() Quat { return QuatIdentity }

func (QuatWithAngularVelocityTraits) UpdateCorrection(correction, correctValue, oldValue Quat) Quat {
	return QuatTraits{}.UpdateCorrection(correction, correctValue, oldValue)
}

func (QuatWithAngularVelocityTraits) SmoothCorrection(correction Quat, blend float64) Quat {
	return QuatTraits{}.SmoothCorrection(correction, blend)
}

func (QuatWithAngularVelocityTraits) ApplyCorrection(correction, value Quat) Quat {
	return QuatTraits{}.ApplyCorrection(correction, value)
}
