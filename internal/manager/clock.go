package manager

import (
	"math"

	"replicast/internal/replica"
)

// Clock maintains the client's estimate of server time. Between clock
// announcements it free-runs at the tick rate; each announcement becomes a
// target the clock dilates toward, bounded so displayed time never runs
// noticeably fast or slow. Errors beyond the snap threshold jump instead.
type Clock struct {
	updateFrequency float64
	snapThreshold   float64 // frames
	minDilation     float64
	maxDilation     float64
	smoothing       float64

	time        replica.NetworkTime
	target      replica.NetworkTime
	hasTarget   bool
	initialized bool
}

func NewClock(updateFrequency, snapThreshold, minDilation, maxDilation, smoothing float64) *Clock {
	return &Clock{
		updateFrequency: updateFrequency,
		snapThreshold:   snapThreshold,
		minDilation:     minDilation,
		maxDilation:     maxDilation,
		smoothing:       smoothing,
	}
}

// Update records a server time announcement, compensated for half the
// round trip.
func (c *Clock) Update(serverTime replica.NetworkTime, rttSeconds float64) {
	c.target = serverTime.Add(rttSeconds / 2 * c.updateFrequency)
	c.hasTarget = true
}

// IsSynchronized reports whether Now is meaningful yet.
func (c *Clock) IsSynchronized() bool { return c.initialized }

// Now returns the current estimate without advancing it.
func (c *Clock) Now() replica.NetworkTime { return c.time }

// Advance moves the clock by dt seconds and steers it toward the latest
// announcement.
func (c *Clock) Advance(dt float64) replica.NetworkTime {
	delta := dt * c.updateFrequency
	if c.hasTarget {
		c.target = c.target.Add(delta)
	}
	if !c.initialized {
		if c.hasTarget {
			c.time = c.target
			c.initialized = true
		}
		return c.time
	}

	c.time = c.time.Add(delta)
	if !c.hasTarget {
		return c.time
	}

	err := c.target.Sub(c.time)
	if math.Abs(err) >= c.snapThreshold {
		c.time = c.target
		return c.time
	}

	// Consume a fraction of the error per step, bounded by the dilation
	// limits relative to real time.
	adjust := err * replica.ExpSmoothing(c.smoothing, dt)
	adjust = replica.Clamp(adjust, (c.minDilation-1)*delta, (c.maxDilation-1)*delta)
	c.time = c.time.Add(adjust)
	return c.time
}
