package fusion

import (
	"math"
	"sync"
)

// DeadReckoner advances a position from step events and heading. It only
// produces candidates while anchored to an absolute fix; drift makes its
// accuracy degrade with every step until the next re-anchor.
type DeadReckoner struct {
	stepLen   float64
	threshold float64
	minStepMs int64
	baseAcc   float64
	drift     float64

	mu       sync.Mutex
	anchored bool
	pos      Position
	heading  float64
	steps    int
	lastStep int64
	above    bool
}

func NewDeadReckoner(stepLen, threshold float64, minStepMs int64, baseAcc, driftPerStep float64) *DeadReckoner {
	return &DeadReckoner{
		stepLen:   stepLen,
		threshold: threshold,
		minStepMs: minStepMs,
		baseAcc:   baseAcc,
		drift:     driftPerStep,
	}
}

// Reset anchors the reckoner at an absolute position and clears accumulated
// drift.
func (d *DeadReckoner) Reset(p Position) {
	d.mu.Lock()
	d.anchored = true
	d.pos = p
	d.steps = 0
	d.above = false
	d.mu.Unlock()
}

// Ingest consumes one inertial sample: updates the heading and runs step
// detection. A step fires when the gravity-removed magnitude rises through
// the threshold, at most once per debounce interval, and advances the
// position by one step length along the heading (0 = +Y, clockwise).
func (d *DeadReckoner) Ingest(s MotionSample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.heading = s.Heading
	rising := s.Accel >= d.threshold && !d.above
	d.above = s.Accel >= d.threshold
	if !rising {
		return
	}
	if d.lastStep != 0 && s.At-d.lastStep < d.minStepMs {
		return
	}
	d.lastStep = s.At
	if !d.anchored {
		return
	}
	d.steps++
	d.pos.X += d.stepLen * math.Sin(d.heading)
	d.pos.Y += d.stepLen * math.Cos(d.heading)
}

// Estimate returns the reckoned position. ok is false until the first anchor.
func (d *DeadReckoner) Estimate(at int64) (Measurement, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.anchored {
		return Measurement{}, false
	}
	return Measurement{
		Pos:      d.pos,
		Accuracy: d.baseAcc + d.drift*float64(d.steps),
		Source:   SourceDeadReckoning,
		At:       at,
	}, true
}

// Steps reports steps taken since the last anchor.
func (d *DeadReckoner) Steps() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.steps
}
