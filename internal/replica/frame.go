package replica

import "math"

// Frame identifies a discrete simulation tick. Frames increase monotonically
// and wrap around; they must never be compared with plain < or >.
type Frame uint32

// CompareFrames orders two frames with wraparound-safe signed-difference
// semantics. Frames more than half the counter range apart are intentionally
// unordered; the comparison is intransitive.
func CompareFrames(lhs, rhs Frame) int {
	diff := int32(lhs - rhs)
	switch {
	case diff > 0:
		return 1
	case diff < 0:
		return -1
	default:
		return 0
	}
}

// FrameGreater reports whether lhs is a later frame than rhs.
func FrameGreater(lhs, rhs Frame) bool { return CompareFrames(lhs, rhs) > 0 }

// FrameLess reports whether lhs is an earlier frame than rhs.
func FrameLess(lhs, rhs Frame) bool { return CompareFrames(lhs, rhs) < 0 }

// MaxFrame returns the later of two frames.
func MaxFrame(lhs, rhs Frame) Frame {
	if FrameGreater(lhs, rhs) {
		return lhs
	}
	return rhs
}

// MinFrame returns the earlier of two frames.
func MinFrame(lhs, rhs Frame) Frame {
	if FrameLess(lhs, rhs) {
		return lhs
	}
	return rhs
}

// NetworkTime is a point between two integer frames: a frame plus a subframe
// fraction in [0, 1). It is the unit of client-side sampling requests.
type NetworkTime struct {
	frame Frame
	sub   float64
}

// At returns the NetworkTime exactly at the given frame.
func At(frame Frame) NetworkTime { return NetworkTime{frame: frame} }

// AtSubFrame returns a normalized NetworkTime for frame plus fraction.
func AtSubFrame(frame Frame, sub float64) NetworkTime {
	return NetworkTime{frame: frame}.Add(sub)
}

// Frame returns the integer frame component.
func (t NetworkTime) Frame() Frame { return t.frame }

// SubFrame returns the fractional component in [0, 1).
func (t NetworkTime) SubFrame() float64 { return t.sub }

// Add advances the time by delta frames (which may be negative or
// fractional) and renormalizes the subframe into [0, 1).
func (t NetworkTime) Add(delta float64) NetworkTime {
	total := t.sub + delta
	shift := math.Floor(total)
	t.frame += Frame(int32(shift))
	t.sub = total - shift
	if t.sub < 0 {
		t.sub = 0
	} else if t.sub >= 1 {
		t.frame++
		t.sub = 0
	}
	return t
}

// Sub returns the signed distance from rhs to t in frames, using
// wraparound-safe frame arithmetic for the integer part.
func (t NetworkTime) Sub(rhs NetworkTime) float64 {
	return float64(int32(t.frame-rhs.frame)) + (t.sub - rhs.sub)
}
