package fusion

import (
	"math"
	"time"
)

// Filter fuses position candidates with a per-axis Kalman update. State is
// the 2D position with a diagonal covariance, one term per axis; accuracy of
// an incoming measurement plays the role of its measurement noise, so the
// two share units.
type Filter struct {
	processNoise float64
	initCov      float64
	minCov       float64

	x, y   float64
	px, py float64
	floor  int
}

func NewFilter(processNoise float64) *Filter {
	f := &Filter{
		processNoise: processNoise,
		initCov:      InitialCovariance,
		minCov:       MinCovariance,
	}
	f.Reset()
	return f
}

// Reset returns the filter to its start state: origin, unit covariance.
func (f *Filter) Reset() {
	f.x, f.y = 0, 0
	f.px, f.py = f.initCov, f.initCov
	f.floor = 0
}

// ResetTo seeds the filter at a known position, used for manual injection
// and recovery re-acquisition.
func (f *Filter) ResetTo(p Position, accuracy float64) {
	f.x, f.y = p.X, p.Y
	f.px = math.Max(accuracy, f.minCov)
	f.py = f.px
	f.floor = p.Floor
}

// Update runs one predict/correct cycle. Prediction inflates the diagonal by
// the process noise; each measurement then corrects both axes with gain
// K = P/(P+acc). ok is false for an empty measurement set, which leaves the
// state untouched.
func (f *Filter) Update(ms []Measurement, at int64) (Estimate, bool) {
	if len(ms) == 0 {
		return Estimate{}, false
	}

	f.px += f.processNoise
	f.py += f.processNoise

	floorVotes := make(map[int]float64, 2)
	floorOrder := make([]int, 0, 2)
	for _, m := range ms {
		acc := math.Max(m.Accuracy, f.minCov)

		kx := f.px / (f.px + acc)
		f.x += kx * (m.Pos.X - f.x)
		f.px = math.Max(f.px*(1.0-kx), f.minCov)

		ky := f.py / (f.py + acc)
		f.y += ky * (m.Pos.Y - f.y)
		f.py = math.Max(f.py*(1.0-ky), f.minCov)

		if _, seen := floorVotes[m.Pos.Floor]; !seen {
			floorOrder = append(floorOrder, m.Pos.Floor)
		}
		floorVotes[m.Pos.Floor] += 1.0 / acc
	}

	// Floor follows the strongest 1/accuracy vote. Ties keep the first
	// floor encountered in measurement order.
	best, bestW := floorOrder[0], floorVotes[floorOrder[0]]
	for _, fl := range floorOrder[1:] {
		if floorVotes[fl] > bestW {
			best, bestW = fl, floorVotes[fl]
		}
	}
	f.floor = best

	if !finite(f.x) || !finite(f.y) || !finite(f.px) || !finite(f.py) {
		f.Reset()
		return Estimate{}, false
	}
	return f.estimate(at), true
}

func (f *Filter) estimate(at int64) Estimate {
	return Estimate{
		Pos:      Position{X: f.x, Y: f.y, Floor: f.floor},
		Accuracy: math.Sqrt((f.px + f.py) / 2.0),
		At:       time.UnixMilli(at),
	}
}

// Covariance returns the diagonal terms, for watchdogs and tests.
func (f *Filter) Covariance() (px, py float64) {
	return f.px, f.py
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
