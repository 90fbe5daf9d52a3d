package replica

// Series stores one typed value per frame in a ring buffer. Once any frame
// has been set the series always has at least one valid value.
//
// On the server values are treated as reliable and piecewise-continuous. On
// the client frames may be missing and values may be sampled between or
// beyond them.
type Series[V, R any] struct {
	ring   Ring
	traits Traits[V, R]
	values []V
}

// NewSeries constructs a series with the given traits and capacity.
func NewSeries[V, R any](traits Traits[V, R], capacity int) *Series[V, R] {
	s := &Series[V, R]{traits: traits}
	s.Resize(capacity)
	return s
}

// Resize clears the series and reallocates storage.
func (s *Series[V, R]) Resize(capacity int) {
	s.ring.Resize(capacity)
	s.values = make([]V, capacity)
}

// Initialized reports whether any value was ever set.
func (s *Series[V, R]) Initialized() bool { return s.ring.Initialized() }

// LastFrame returns the most recently written frame.
func (s *Series[V, R]) LastFrame() Frame { return s.ring.LastFrame() }

// FirstFrame returns the oldest frame of the retained window.
func (s *Series[V, R]) FirstFrame() Frame { return s.ring.FirstFrame() }

// Traits returns the per-type policy the series was built with.
func (s *Series[V, R]) Traits() Traits[V, R] { return s.traits }

// Set stores a value for the frame. Returns false when the frame is older
// than the retained window; the write is silently dropped as stale.
func (s *Series[V, R]) Set(frame Frame, value V) bool {
	if !s.ring.AllocateFrame(frame) {
		return false
	}
	index := s.ring.frameToIndexUnchecked(frame)
	s.values[index] = value
	return true
}

// GetRaw returns the exact value stored for the frame, if any.
func (s *Series[V, R]) GetRaw(frame Frame) (V, bool) {
	if index, ok := s.ring.AllocatedFrameToIndex(frame); ok {
		return s.values[index], true
	}
	var zero V
	return zero, false
}

// GetClosestRaw returns the nearest stored value, preferring earlier frames.
// The series must have received at least one value.
func (s *Series[V, R]) GetClosestRaw(frame Frame) V {
	closest := s.ring.ClosestAllocatedFrame(frame)
	return s.values[s.ring.frameToIndexUnchecked(closest)]
}

// SampleValid returns a best-effort value for any time: interpolated between
// bracketing frames, or the nearest single valid value when only one side
// exists.
func (s *Series[V, R]) SampleValid(time NetworkTime, snapThreshold float64) V {
	value, _ := s.interpolatedValue(time, snapThreshold)
	return value
}

// SamplePrecise is like SampleValid but reports no value when the requested
// time lies beyond the latest bracketing pair: a signal that authoritative
// data has not arrived yet, so the caller should extrapolate instead.
func (s *Series[V, R]) SamplePrecise(time NetworkTime, snapThreshold float64) (V, bool) {
	value, precise := s.interpolatedValue(time, snapThreshold)
	if !precise {
		var zero V
		return zero, false
	}
	return value, true
}

func (s *Series[V, R]) interpolatedValue(time NetworkTime, snapThreshold float64) (V, bool) {
	interpolation := s.ring.ValidFrameInterpolation(time)

	var value V
	if interpolation.FirstIndex == interpolation.SecondIndex {
		value = s.values[interpolation.FirstIndex]
	} else {
		value = s.traits.Interpolate(
			s.values[interpolation.FirstIndex], s.values[interpolation.SecondIndex],
			interpolation.Blend, snapThreshold)
	}

	// Frames older than the window count as precise: no new data will ever
	// arrive for them.
	precise := !FrameGreater(time.Frame(), interpolation.SecondFrame)
	return value, precise
}
