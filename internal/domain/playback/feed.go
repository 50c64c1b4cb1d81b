package playback

import "github.com/edumarques81/stellar-pocket/internal/audio"

// DefaultLowWaterRatio is the ring occupancy below which the feed wakes the
// decode task.
const DefaultLowWaterRatio = 0.25

// OutputFeed is the consumer side of the ring buffer, called from the sink's
// real-time goroutine. It never blocks and never does I/O.
type OutputFeed struct {
	ring     *audio.RingBuffer
	lowWater int
	wake     func()
}

// NewOutputFeed creates a feed that calls wake whenever occupancy after a
// pop falls below lowWaterRatio of the ring capacity.
func NewOutputFeed(ring *audio.RingBuffer, lowWaterRatio float64, wake func()) *OutputFeed {
	if lowWaterRatio <= 0 || lowWaterRatio > 1 {
		lowWaterRatio = DefaultLowWaterRatio
	}
	return &OutputFeed{
		ring:     ring,
		lowWater: int(float64(ring.Cap()) * lowWaterRatio),
		wake:     wake,
	}
}

// Fill pops up to len(dst) frames and returns how many were provided. Zero
// means silence for this cycle.
func (f *OutputFeed) Fill(dst []audio.Frame) int {
	n, remaining := f.ring.PopFrames(dst)
	if remaining < f.lowWater && f.wake != nil {
		f.wake()
	}
	return n
}

// LowWater returns the wake threshold in samples.
func (f *OutputFeed) LowWater() int { return f.lowWater }
