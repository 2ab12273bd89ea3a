package fusion

import "math"

// PathLossModel converts RSSI to range with the log-distance model
//
//	d = 10^((ref - rssi) / (10 n))
//
// A lookup table over whole-dBm strengths keeps Pow out of the per-reading
// path; fractional strengths fall through to the direct formula.
type PathLossModel struct {
	RefRSSI  float64
	Exponent float64
	MaxRange float64
	table    []float64
}

const pathLossTableMax = 120

func NewPathLossModel(ref, exponent, maxRange float64) *PathLossModel {
	m := &PathLossModel{RefRSSI: ref, Exponent: exponent, MaxRange: maxRange}
	if m.Exponent <= 0 {
		m.Exponent = DefaultBleExponent
	}
	if m.MaxRange <= 0 {
		m.MaxRange = DefaultMaxRange
	}
	m.table = make([]float64, pathLossTableMax+1)
	for i := range m.table {
		m.table[i] = m.compute(float64(-i))
	}
	return m
}

func (m *PathLossModel) compute(rssi float64) float64 {
	d := math.Pow(10.0, (m.RefRSSI-rssi)/(10.0*m.Exponent))
	if d < MinDistance {
		return MinDistance
	}
	return d
}

// Distance returns the estimated range in metres for a signal strength.
// Never less than MinDistance.
func (m *PathLossModel) Distance(rssi float64) float64 {
	if rssi <= 0 && rssi == math.Trunc(rssi) {
		if idx := int(-rssi); idx < len(m.table) {
			return m.table[idx]
		}
	}
	return m.compute(rssi)
}

// DistanceFor honours a per-emitter 1 m calibration when the survey recorded
// one, otherwise the model reference.
func (m *PathLossModel) DistanceFor(e Emitter, rssi float64) float64 {
	if e.RefRSSI != 0 {
		d := math.Pow(10.0, (e.RefRSSI-rssi)/(10.0*m.Exponent))
		if d < MinDistance {
			return MinDistance
		}
		return d
	}
	return m.Distance(rssi)
}

// Usable reports whether a reading is strong enough to contribute a range.
func (m *PathLossModel) Usable(rssi float64) bool {
	return m.Distance(rssi) <= m.MaxRange
}
