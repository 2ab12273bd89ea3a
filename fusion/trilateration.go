package fusion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Method records how a position candidate was produced, so callers can see
// when the solver had to downgrade.
type Method int

const (
	MethodNone Method = iota
	MethodLeastSquares
	MethodCentroid
)

func (m Method) String() string {
	switch m {
	case MethodLeastSquares:
		return "lstsq"
	case MethodCentroid:
		return "centroid"
	}
	return "none"
}

// RangeObservation pairs a surveyed emitter with an estimated distance to it.
type RangeObservation struct {
	Emitter  Emitter
	Distance float64
}

// Trilaterator turns range observations into position candidates. Three or
// more emitters are solved as a linearised circle system by least squares;
// fewer emitters, or degenerate geometry, fall back to an inverse-square
// weighted centroid.
type Trilaterator struct {
	Model  *PathLossModel
	source SourceKind
	acc    float64
}

func NewTrilaterator(model *PathLossModel, source SourceKind, accuracy float64) *Trilaterator {
	return &Trilaterator{Model: model, source: source, acc: accuracy}
}

// Ranges converts readings into observations against the emitter survey.
// Unknown emitters and strengths past the model's usable range are dropped.
func (t *Trilaterator) Ranges(readings []SignalReading, emitters map[EmitterID]Emitter) []RangeObservation {
	obs := make([]RangeObservation, 0, len(readings))
	for _, rd := range readings {
		e, ok := emitters[rd.Source]
		if !ok || !t.Model.Usable(rd.RSSI) {
			continue
		}
		obs = append(obs, RangeObservation{Emitter: e, Distance: t.Model.DistanceFor(e, rd.RSSI)})
	}
	return obs
}

// Estimate produces a position candidate from the observations. ok is false
// only when obs is empty.
func (t *Trilaterator) Estimate(obs []RangeObservation, at int64) (Measurement, Method, bool) {
	if len(obs) == 0 {
		return Measurement{}, MethodNone, false
	}
	if len(obs) >= 3 {
		if x, y, ok := solveRanges(obs); ok {
			return Measurement{
				Pos:      Position{X: x, Y: y, Floor: emitterFloorVote(obs)},
				Accuracy: t.acc,
				Source:   t.source,
				At:       at,
			}, MethodLeastSquares, true
		}
	}
	x, y, meanDist := rangeCentroid(obs)
	return Measurement{
		Pos:      Position{X: x, Y: y, Floor: emitterFloorVote(obs)},
		Accuracy: math.Max(t.acc*1.5, meanDist),
		Source:   t.source,
		At:       at,
	}, MethodCentroid, true
}

// solveRanges linearises the circle equations against the first emitter:
//
//	2(xi-x0)x + 2(yi-y0)y = d0² - di² + xi² - x0² + yi² - y0²
//
// and solves by QR. Near-collinear emitter geometry is detected through the
// singular value ratio and reported as not ok.
func solveRanges(obs []RangeObservation) (float64, float64, bool) {
	n := len(obs) - 1
	ref := obs[0]
	x0, y0, d0 := ref.Emitter.Pos.X, ref.Emitter.Pos.Y, ref.Distance

	a := mat.NewDense(n, 2, nil)
	b := mat.NewVecDense(n, nil)
	for i := 1; i < len(obs); i++ {
		xi, yi, di := obs[i].Emitter.Pos.X, obs[i].Emitter.Pos.Y, obs[i].Distance
		a.Set(i-1, 0, 2.0*(xi-x0))
		a.Set(i-1, 1, 2.0*(yi-y0))
		b.SetVec(i-1, sq(d0)-sq(di)+sq(xi)-sq(x0)+sq(yi)-sq(y0))
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDNone) {
		return 0, 0, false
	}
	s := svd.Values(nil)
	if len(s) < 2 || s[1] <= 0 || s[0]/s[1] > ConditionLimit {
		return 0, 0, false
	}

	sol := mat.NewVecDense(2, nil)
	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveVecTo(sol, false, b); err != nil {
		return 0, 0, false
	}
	x, y := sol.AtVec(0), sol.AtVec(1)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return 0, 0, false
	}
	return x, y, true
}

// rangeCentroid weights each emitter by the inverse square of its estimated
// distance, floored at MinDistance so touching an emitter cannot blow up the
// weight.
func rangeCentroid(obs []RangeObservation) (x, y, meanDist float64) {
	var wx, wy, wsum, dsum float64
	for _, o := range obs {
		d := math.Max(o.Distance, MinDistance)
		w := 1.0 / sq(d)
		wx += w * o.Emitter.Pos.X
		wy += w * o.Emitter.Pos.Y
		wsum += w
		dsum += d
	}
	return wx / wsum, wy / wsum, dsum / float64(len(obs))
}

// emitterFloorVote picks the floor backed by the most inverse-square weight.
// Ties keep the first floor encountered.
func emitterFloorVote(obs []RangeObservation) int {
	votes := make(map[int]float64, 2)
	order := make([]int, 0, 2)
	for _, o := range obs {
		f := o.Emitter.Pos.Floor
		if _, seen := votes[f]; !seen {
			order = append(order, f)
		}
		votes[f] += 1.0 / sq(math.Max(o.Distance, MinDistance))
	}
	best, bestW := order[0], votes[order[0]]
	for _, f := range order[1:] {
		if votes[f] > bestW {
			best, bestW = f, votes[f]
		}
	}
	return best
}
