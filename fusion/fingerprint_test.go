package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcherMatch(t *testing.T) {
	t.Parallel()

	t.Run("interpolates between neighbours by inverse distance", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 0, Y: 0}, BLE: map[EmitterID]float64{"b1": -60}},
			{Pos: Position{X: 10, Y: 0}, BLE: map[EmitterID]float64{"b1": -70}},
		}}
		m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		est, ok := m.Match(map[EmitterID]float64{"b1": -62}, nil, 0, 1000)
		require.True(t, ok)
		// Signal distances 2 and 8, weights 0.5 and 0.125.
		assert.InDelta(t, 2.0, est.Pos.X, 1e-9)
		assert.InDelta(t, 0.0, est.Pos.Y, 1e-9)
		assert.Equal(t, SourceFingerprint, est.Source)
		assert.Equal(t, DefaultFingerprintAccuracy, est.Accuracy)
	})

	t.Run("near exact observation snaps to the survey point", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 2, Y: 3}, BLE: map[EmitterID]float64{"b1": -60, "b2": -70}},
			{Pos: Position{X: 9, Y: 9}, BLE: map[EmitterID]float64{"b1": -75, "b2": -52}},
		}}
		m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		est, ok := m.Match(map[EmitterID]float64{"b1": -60, "b2": -70}, nil, 0, 1000)
		require.True(t, ok)
		assert.InDelta(t, 2.0, est.Pos.X, 0.01)
		assert.InDelta(t, 3.0, est.Pos.Y, 0.01)
	})

	t.Run("identical signature with k=1 returns the stored position", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 2, Y: 3}, BLE: map[EmitterID]float64{"b1": -60, "b2": -70}},
			{Pos: Position{X: 9, Y: 9}, BLE: map[EmitterID]float64{"b1": -75, "b2": -52}},
		}}
		m := NewMatcher(src, 1, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		est, ok := m.Match(map[EmitterID]float64{"b1": -60, "b2": -70}, nil, 0, 1000)
		require.True(t, ok)
		assert.Equal(t, 2.0, est.Pos.X)
		assert.Equal(t, 3.0, est.Pos.Y)
	})

	t.Run("only the k nearest candidates contribute", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 0, Y: 0}, BLE: map[EmitterID]float64{"b1": -59}},
			{Pos: Position{X: 10, Y: 0}, BLE: map[EmitterID]float64{"b1": -58}},
			{Pos: Position{X: 0, Y: 10}, BLE: map[EmitterID]float64{"b1": -10}},
			{Pos: Position{X: 10, Y: 10}, BLE: map[EmitterID]float64{"b1": -118}},
		}}
		m := NewMatcher(src, 2, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		est, ok := m.Match(map[EmitterID]float64{"b1": -60}, nil, 0, 1000)
		require.True(t, ok)
		// Distances 1 and 2 survive the cut; weights 1 and 0.5.
		assert.InDelta(t, 10.0/3.0, est.Pos.X, 1e-9)
		assert.InDelta(t, 0.0, est.Pos.Y, 1e-9)
	})

	t.Run("no shared source is not a match", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 0, Y: 0}, BLE: map[EmitterID]float64{"b1": -60}},
		}}
		m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		_, ok := m.Match(map[EmitterID]float64{"zz": -50}, nil, 0, 1000)
		assert.False(t, ok)
	})

	t.Run("channel without overlap cedes its weight", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 4, Y: 4}, BLE: map[EmitterID]float64{"b1": -59}},
		}}
		m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		// Wi-Fi side observes an AP the survey never saw; BLE alone decides.
		est, ok := m.Match(
			map[EmitterID]float64{"b1": -63},
			map[EmitterID]float64{"w9": -50},
			0, 1000)
		require.True(t, ok)
		assert.InDelta(t, 4.0, est.Pos.X, 1e-9)
		assert.InDelta(t, 4.0, est.Pos.Y, 1e-9)
	})

	t.Run("wifi only overlap still matches", func(t *testing.T) {
		src := StaticFingerprints{0: {
			{Pos: Position{X: 7, Y: 1}, Wifi: map[EmitterID]float64{"w1": -50}},
		}}
		m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

		est, ok := m.Match(nil, map[EmitterID]float64{"w1": -54}, 0, 1000)
		require.True(t, ok)
		assert.InDelta(t, 7.0, est.Pos.X, 1e-9)
	})
}

func TestMatcherMatchAnywhere(t *testing.T) {
	t.Parallel()

	src := StaticFingerprints{
		0: {{Pos: Position{X: 0, Y: 0, Floor: 0}, BLE: map[EmitterID]float64{"b1": -60}}},
		2: {{Pos: Position{X: 5, Y: 5, Floor: 2}, BLE: map[EmitterID]float64{"b9": -58}}},
	}
	m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

	obs := map[EmitterID]float64{"b9": -61}

	_, ok := m.Match(obs, nil, 0, 1000)
	assert.False(t, ok, "floor 0 has no overlapping fingerprint")

	est, ok := m.MatchAnywhere(obs, nil, 1000)
	require.True(t, ok)
	assert.Equal(t, 2, est.Pos.Floor)
	assert.InDelta(t, 5.0, est.Pos.X, 1e-9)
}

func TestMatcherInvalidate(t *testing.T) {
	t.Parallel()

	src := StaticFingerprints{0: {
		{Pos: Position{X: 0, Y: 0}, BLE: map[EmitterID]float64{"b1": -60}},
	}}
	m := NewMatcher(src, 3, DefaultBleWeight, DefaultWifiWeight, DefaultFingerprintAccuracy)

	obs := map[EmitterID]float64{"b1": -61}
	est, ok := m.Match(obs, nil, 0, 1000)
	require.True(t, ok)
	assert.InDelta(t, 0.0, est.Pos.X, 1e-9)

	// A survey update behind the matcher's back is invisible until the
	// cache is dropped.
	src[0] = []Fingerprint{{Pos: Position{X: 10, Y: 10}, BLE: map[EmitterID]float64{"b1": -60}}}

	est, ok = m.Match(obs, nil, 0, 2000)
	require.True(t, ok)
	assert.InDelta(t, 0.0, est.Pos.X, 1e-9)

	m.Invalidate()
	est, ok = m.Match(obs, nil, 0, 3000)
	require.True(t, ok)
	assert.InDelta(t, 10.0, est.Pos.X, 1e-9)
}
