package fusion

import (
	"math"
	"sort"
	"sync"
)

// FingerprintSource loads survey fingerprints. The matcher caches per floor,
// so implementations may read from disk on every call.
type FingerprintSource interface {
	FingerprintFloors() []int
	FingerprintsForFloor(floor int) ([]Fingerprint, error)
}

// StaticFingerprints is an in-memory FingerprintSource keyed by floor.
type StaticFingerprints map[int][]Fingerprint

func (s StaticFingerprints) FingerprintFloors() []int {
	floors := make([]int, 0, len(s))
	for f := range s {
		floors = append(floors, f)
	}
	sort.Ints(floors)
	return floors
}

func (s StaticFingerprints) FingerprintsForFloor(floor int) ([]Fingerprint, error) {
	return s[floor], nil
}

// Matcher locates a device by comparing observed signal strengths against
// surveyed fingerprints, k-nearest-neighbour with inverse-distance weighting.
type Matcher struct {
	src        FingerprintSource
	k          int
	bleWeight  float64
	wifiWeight float64
	acc        float64

	mu    sync.Mutex
	cache map[int][]Fingerprint
}

func NewMatcher(src FingerprintSource, k int, bleWeight, wifiWeight, accuracy float64) *Matcher {
	if k <= 0 {
		k = DefaultFingerprintK
	}
	return &Matcher{
		src:        src,
		k:          k,
		bleWeight:  bleWeight,
		wifiWeight: wifiWeight,
		acc:        accuracy,
		cache:      make(map[int][]Fingerprint),
	}
}

// Invalidate drops the cached fingerprint sets, forcing a reload from the
// source on the next match.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.cache = make(map[int][]Fingerprint)
	m.mu.Unlock()
}

func (m *Matcher) forFloor(floor int) []Fingerprint {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fps, ok := m.cache[floor]; ok {
		return fps
	}
	fps, err := m.src.FingerprintsForFloor(floor)
	if err != nil {
		return nil
	}
	m.cache[floor] = fps
	return fps
}

// Match interpolates a position from the floor's fingerprints. ok is false
// when no fingerprint shares at least one signal source with the observation.
func (m *Matcher) Match(ble, wifi map[EmitterID]float64, floor int, at int64) (Measurement, bool) {
	return m.match(ble, wifi, m.forFloor(floor), at)
}

// MatchAnywhere searches every surveyed floor. Used during recovery, when the
// current floor is unknown.
func (m *Matcher) MatchAnywhere(ble, wifi map[EmitterID]float64, at int64) (Measurement, bool) {
	var all []Fingerprint
	for _, f := range m.src.FingerprintFloors() {
		all = append(all, m.forFloor(f)...)
	}
	return m.match(ble, wifi, all, at)
}

type fpCandidate struct {
	fp   Fingerprint
	dist float64
}

func (m *Matcher) match(ble, wifi map[EmitterID]float64, fps []Fingerprint, at int64) (Measurement, bool) {
	cands := make([]fpCandidate, 0, len(fps))
	for _, fp := range fps {
		d, ok := m.signalDistance(ble, wifi, fp)
		if !ok {
			continue
		}
		cands = append(cands, fpCandidate{fp: fp, dist: d})
	}
	if len(cands) == 0 {
		return Measurement{}, false
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	if len(cands) > m.k {
		cands = cands[:m.k]
	}

	var wx, wy, wsum float64
	floorVotes := make(map[int]float64, 2)
	floorOrder := make([]int, 0, 2)
	for _, c := range cands {
		w := ExactMatchWeight
		if c.dist > ExactMatchDistance {
			w = 1.0 / c.dist
		}
		wx += w * c.fp.Pos.X
		wy += w * c.fp.Pos.Y
		wsum += w
		f := c.fp.Pos.Floor
		if _, seen := floorVotes[f]; !seen {
			floorOrder = append(floorOrder, f)
		}
		floorVotes[f] += w
	}
	best, bestW := floorOrder[0], floorVotes[floorOrder[0]]
	for _, f := range floorOrder[1:] {
		if floorVotes[f] > bestW {
			best, bestW = f, floorVotes[f]
		}
	}
	return Measurement{
		Pos:      Position{X: wx / wsum, Y: wy / wsum, Floor: best},
		Accuracy: m.acc,
		Source:   SourceFingerprint,
		At:       at,
	}, true
}

// signalDistance is the per-channel Euclidean distance over source ids both
// sides observed, channels blended by the configured weights. A channel with
// no common sources contributes nothing and its weight is redistributed; ok
// is false when neither channel overlaps.
func (m *Matcher) signalDistance(ble, wifi map[EmitterID]float64, fp Fingerprint) (float64, bool) {
	db, nb := channelDistance(ble, fp.BLE)
	dw, nw := channelDistance(wifi, fp.Wifi)
	switch {
	case nb > 0 && nw > 0:
		return (m.bleWeight*db + m.wifiWeight*dw) / (m.bleWeight + m.wifiWeight), true
	case nb > 0:
		return db, true
	case nw > 0:
		return dw, true
	}
	return 0, false
}

func channelDistance(obs, ref map[EmitterID]float64) (float64, int) {
	var sum float64
	n := 0
	for id, v := range obs {
		rv, ok := ref[id]
		if !ok {
			continue
		}
		sum += sq(v - rv)
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return math.Sqrt(sum), n
}
