package replica

// SeriesVector is like Series except each frame holds a fixed-size array of
// elements, e.g. per-bone animation weights. It does not support client-side
// reconstruction via Sampler.
type SeriesVector[V, R any] struct {
	ring   Ring
	traits Traits[V, R]
	size   int
	values []V
}

// InterpolatedSpan lazily blends element pairs from two frames.
type InterpolatedSpan[V, R any] struct {
	traits        Traits[V, R]
	first, second []V
	blend         float64
	snapThreshold float64
}

// At returns the blended element at index.
func (s InterpolatedSpan[V, R]) At(index int) V {
	if s.second == nil {
		return s.first[index]
	}
	return s.traits.Interpolate(s.first[index], s.second[index], s.blend, s.snapThreshold)
}

// Len returns the number of elements per frame.
func (s InterpolatedSpan[V, R]) Len() int { return len(s.first) }

// NewSeriesVector constructs a per-frame array store with size elements per
// frame and the given ring capacity.
func NewSeriesVector[V, R any](traits Traits[V, R], size, capacity int) *SeriesVector[V, R] {
	if size < 1 {
		size = 1
	}
	s := &SeriesVector[V, R]{traits: traits, size: size}
	s.ring.Resize(capacity)
	s.values = make([]V, size*capacity)
	return s
}

// Initialized reports whether any frame was ever set.
func (s *SeriesVector[V, R]) Initialized() bool { return s.ring.Initialized() }

// Set stores the frame's elements, truncated to the configured size.
// Returns false when the frame is too old.
func (s *SeriesVector[V, R]) Set(frame Frame, value []V) bool {
	if !s.ring.AllocateFrame(frame) {
		return false
	}
	index := s.ring.frameToIndexUnchecked(frame)
	count := min(len(value), s.size)
	copy(s.values[index*s.size:index*s.size+count], value[:count])
	return true
}

// GetRaw returns the elements stored for the frame, if any.
func (s *SeriesVector[V, R]) GetRaw(frame Frame) ([]V, bool) {
	if index, ok := s.ring.AllocatedFrameToIndex(frame); ok {
		return s.spanForIndex(index), true
	}
	return nil, false
}

// GetClosestRaw returns the nearest stored elements, preferring earlier
// frames. The series must have received at least one frame.
func (s *SeriesVector[V, R]) GetClosestRaw(frame Frame) []V {
	closest := s.ring.ClosestAllocatedFrame(frame)
	return s.spanForIndex(s.ring.frameToIndexUnchecked(closest))
}

// SampleValid interpolates between bracketing frames or returns the nearest
// valid frame's elements.
func (s *SeriesVector[V, R]) SampleValid(time NetworkTime, snapThreshold float64) InterpolatedSpan[V, R] {
	interpolation := s.ring.ValidFrameInterpolation(time)

	if interpolation.FirstIndex == interpolation.SecondIndex {
		return InterpolatedSpan[V, R]{traits: s.traits, first: s.spanForIndex(interpolation.FirstIndex)}
	}

	return InterpolatedSpan[V, R]{
		traits:        s.traits,
		first:         s.spanForIndex(interpolation.FirstIndex),
		second:        s.spanForIndex(interpolation.SecondIndex),
		blend:         interpolation.Blend,
		snapThreshold: snapThreshold,
	}
}

func (s *SeriesVector[V, R]) spanForIndex(index int) []V {
	return s.values[index*s.size : (index+1)*s.size]
}
