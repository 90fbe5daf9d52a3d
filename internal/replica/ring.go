package replica

// Ring maps a wraparound-aware frame counter onto a fixed set of slots and
// tracks which slots hold valid data. It is the storage backbone for Series
// and SeriesVector.
//
// The retained window is always [LastFrame-Capacity+1, LastFrame]. Writing a
// frame newer than LastFrame advances the window and invalidates evicted and
// skipped frames; writing a frame older than the window fails.
type Ring struct {
	initialized bool
	lastFrame   Frame
	lastIndex   int
	valid       []bool
}

// Interpolation describes the two allocated frames bracketing a sampling
// request and the blend factor between them. The frames may be identical.
type Interpolation struct {
	FirstFrame  Frame
	FirstIndex  int
	SecondFrame Frame
	SecondIndex int
	Blend       float64
}

// NewRing constructs a ring with the given capacity. Capacity must be
// positive; anything else is a programming error.
func NewRing(capacity int) Ring {
	var r Ring
	r.Resize(capacity)
	return r
}

// Resize clears all data and reallocates slots. Panics if capacity is not
// positive.
func (r *Ring) Resize(capacity int) {
	if capacity <= 0 {
		panic("replica: ring capacity must be positive")
	}
	r.initialized = false
	r.lastFrame = 0
	r.lastIndex = 0
	r.valid = make([]bool, capacity)
}

// Initialized reports whether any frame was ever allocated.
func (r *Ring) Initialized() bool { return r.initialized }

// Capacity returns the number of slots.
func (r *Ring) Capacity() int { return len(r.valid) }

// FirstFrame returns the oldest frame of the retained window.
func (r *Ring) FirstFrame() Frame { return r.lastFrame - Frame(r.Capacity()) + 1 }

// LastFrame returns the most recently written frame.
func (r *Ring) LastFrame() Frame { return r.lastFrame }

// FrameToIndex returns the slot for a frame within the retained window.
func (r *Ring) FrameToIndex(frame Frame) (int, bool) {
	capacity := r.Capacity()
	behind := int(int32(r.lastFrame - frame))
	if behind >= 0 && behind < capacity {
		return (r.lastIndex + capacity - behind) % capacity, true
	}
	return 0, false
}

func (r *Ring) frameToIndexUnchecked(frame Frame) int {
	index, ok := r.FrameToIndex(frame)
	if !ok {
		panic("replica: frame outside ring window")
	}
	return index
}

// AllocatedFrameToIndex returns the slot for a frame that is both within the
// window and holds valid data.
func (r *Ring) AllocatedFrameToIndex(frame Frame) (int, bool) {
	if index, ok := r.FrameToIndex(frame); ok && r.valid[index] {
		return index, true
	}
	return 0, false
}

// HasFrame reports whether the frame holds valid data.
func (r *Ring) HasFrame(frame Frame) bool {
	_, ok := r.AllocatedFrameToIndex(frame)
	return ok
}

// AllocateFrame marks a frame valid, advancing the window when the frame is
// newer than LastFrame and invalidating any frames skipped over. Returns
// false when the frame is older than the retained window; stale data is
// dropped without error.
func (r *Ring) AllocateFrame(frame Frame) bool {
	if len(r.valid) == 0 {
		panic("replica: ring not sized")
	}

	if !r.initialized {
		r.initialized = true
		r.lastFrame = frame
		r.lastIndex = 0
		r.valid[r.lastIndex] = true
		return true
	}

	if FrameGreater(frame, r.lastFrame) {
		offset := int(int32(frame - r.lastFrame))
		r.lastFrame += Frame(offset)
		r.lastIndex = (r.lastIndex + offset) % r.Capacity()

		firstSkipped := MaxFrame(r.lastFrame-Frame(offset)+1, r.FirstFrame())
		for skipped := firstSkipped; skipped != r.lastFrame; skipped++ {
			r.valid[r.frameToIndexUnchecked(skipped)] = false
		}

		r.valid[r.lastIndex] = true
		return true
	}

	// Past frame still within the window: mark valid without moving anything.
	if index, ok := r.FrameToIndex(frame); ok {
		r.valid[index] = true
		return true
	}

	return false
}

// FindClosestAllocatedFrame scans outward from frame for valid data. The
// past is scanned before the future when both directions are enabled.
func (r *Ring) FindClosestAllocatedFrame(frame Frame, searchPast, searchFuture bool) (Frame, bool) {
	if r.HasFrame(frame) {
		return frame, true
	}

	firstFrame := r.FirstFrame()

	if searchPast && FrameGreater(frame, firstFrame) {
		lastChecked := MinFrame(r.lastFrame, frame-1)
		for past := lastChecked; past != firstFrame-1; past-- {
			if r.HasFrame(past) {
				return past, true
			}
		}
	}

	if searchFuture && FrameLess(frame, r.lastFrame) {
		firstChecked := MaxFrame(firstFrame, frame+1)
		for future := firstChecked; future != r.lastFrame+1; future++ {
			if r.HasFrame(future) {
				return future, true
			}
		}
	}

	return 0, false
}

// ClosestAllocatedFrame returns the nearest valid frame, preferring the past.
// The ring must be initialized.
func (r *Ring) ClosestAllocatedFrame(frame Frame) Frame {
	if !r.initialized {
		panic("replica: ring has no data")
	}
	if closest, ok := r.FindClosestAllocatedFrame(frame, true, true); ok {
		return closest
	}
	return r.lastFrame
}

const subFrameEpsilon = 1e-5

// ValidFrameInterpolation resolves a sampling time into the two bracketing
// allocated frames and a blend factor. Gaps widen the effective span: the
// blend is adjusted so interpolation speed stays uniform across missing
// frames.
func (r *Ring) ValidFrameInterpolation(time NetworkTime) Interpolation {
	frame := time.Frame()
	thisOrPast, havePast := r.FindClosestAllocatedFrame(frame, true, false)

	// Exact queries short-circuit to the raw value.
	if havePast && thisOrPast == frame && time.SubFrame() < subFrameEpsilon {
		index := r.frameToIndexUnchecked(frame)
		return Interpolation{frame, index, frame, index, 0}
	}

	nextOrFuture, haveFuture := r.FindClosestAllocatedFrame(frame+1, false, true)
	if havePast && haveFuture {
		firstIndex := r.frameToIndexUnchecked(thisOrPast)
		secondIndex := r.frameToIndexUnchecked(nextOrFuture)
		extraPast := float64(int32(frame - thisOrPast))
		extraFuture := float64(int32(nextOrFuture - frame - 1))
		adjusted := (extraPast + time.SubFrame()) / (extraPast + extraFuture + 1)
		return Interpolation{thisOrPast, firstIndex, nextOrFuture, secondIndex, adjusted}
	}

	closest := r.lastFrame
	if havePast {
		closest = thisOrPast
	} else if haveFuture {
		closest = nextOrFuture
	}
	index := r.frameToIndexUnchecked(closest)
	return Interpolation{closest, index, closest, index, 0}
}
