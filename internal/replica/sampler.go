package replica

// Sampler turns a continuous stream of sampling requests against a Series
// into smooth client-side values. It caches the interpolation pair for the
// current frame, falls back to capped extrapolation when authoritative data
// has not arrived, and absorbs late corrections into a decaying offset so a
// server update never causes a visible pop.
type Sampler[V, R any] struct {
	traits Traits[V, R]

	maxExtrapolation  int
	smoothingConstant float64
	snapThreshold     float64

	cache         *interpolationCache[V]
	previous      *timeAndValue[R]
	extrapolation *Frame

	correction R
}

type interpolationCache[V any] struct {
	baseFrame Frame
	baseValue V
	nextValue V
}

type timeAndValue[R any] struct {
	time  NetworkTime
	value R
}

// NewSampler constructs a sampler for series built with the same traits.
func NewSampler[V, R any](traits Traits[V, R]) *Sampler[V, R] {
	return &Sampler[V, R]{
		traits:        traits,
		snapThreshold: largeValue,
		correction:    traits.NeutralCorrection(),
	}
}

// Setup updates sampler settings. maxExtrapolation is in frames.
func (s *Sampler[V, R]) Setup(maxExtrapolation int, smoothingConstant, snapThreshold float64) {
	s.maxExtrapolation = maxExtrapolation
	s.smoothingConstant = smoothingConstant
	s.snapThreshold = snapThreshold
}

// UpdateAndSample advances the sampler to the given time and returns the
// corrected value. It reports false only while the underlying series has
// never received data.
func (s *Sampler[V, R]) UpdateAndSample(series *Series[V, R], time NetworkTime, timeStep float64) (R, bool) {
	if !series.Initialized() {
		var zero R
		return zero, false
	}

	s.updateCorrection(series, timeStep)
	s.updateCache(series, time.Frame())

	sampled := s.valueFromCache(series, time)
	s.previous = &timeAndValue[R]{time: time, value: sampled}

	return s.traits.ApplyCorrection(s.correction, sampled), true
}

// updateCorrection decays the accumulated correction, then recomputes what
// the previous request would sample now that newer authoritative data may
// have arrived, folding the discrepancy into the correction.
func (s *Sampler[V, R]) updateCorrection(series *Series[V, R], timeStep float64) {
	if s.previous == nil {
		return
	}

	s.correction = s.traits.SmoothCorrection(s.correction, ExpSmoothing(s.smoothingConstant, timeStep))

	s.updateCache(series, s.previous.time.Frame())
	newPrevious := s.valueFromCache(series, s.previous.time)
	s.correction = s.traits.UpdateCorrection(s.correction, newPrevious, s.previous.value)
}

func (s *Sampler[V, R]) updateCache(series *Series[V, R], frame Frame) {
	if s.cache != nil && s.cache.baseFrame == frame {
		return
	}

	if nextValue, ok := series.SamplePrecise(At(frame+1), s.snapThreshold); ok {
		// Enough data to interpolate. Reuse the cached next value as the new
		// base when the cursor advanced exactly one frame.
		var baseValue V
		if s.cache != nil && s.cache.baseFrame+1 == frame {
			baseValue = s.cache.nextValue
		} else {
			baseValue = series.SampleValid(At(frame), s.snapThreshold)
		}

		s.cache = &interpolationCache[V]{baseFrame: frame, baseValue: baseValue, nextValue: nextValue}
		extrapolation := frame + 1
		s.extrapolation = &extrapolation
	} else {
		extrapolation := series.LastFrame()
		s.extrapolation = &extrapolation
	}
}

func (s *Sampler[V, R]) valueFromCache(series *Series[V, R], time NetworkTime) R {
	if s.cache != nil && s.cache.baseFrame == time.Frame() {
		value := s.traits.Interpolate(s.cache.baseValue, s.cache.nextValue, time.SubFrame(), s.snapThreshold)
		return s.traits.Extract(value)
	}

	if s.extrapolation == nil {
		panic("replica: sampler has no extrapolation base")
	}

	baseValue, ok := series.GetRaw(*s.extrapolation)
	if !ok {
		baseValue = series.GetClosestRaw(*s.extrapolation)
	}
	factor := s.extrapolationFactor(time, *s.extrapolation)
	return s.traits.Extrapolate(baseValue, factor)
}

// extrapolationFactor saturates at the configured horizon instead of
// projecting indefinitely.
func (s *Sampler[V, R]) extrapolationFactor(time NetworkTime, baseFrame Frame) float64 {
	factor := float64(int32(time.Frame()-baseFrame)) + time.SubFrame()
	return min(factor, float64(s.maxExtrapolation))
}
