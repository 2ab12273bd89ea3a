package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bleTrilaterator() *Trilaterator {
	model := NewPathLossModel(DefaultBleRefRSSI, DefaultBleExponent, DefaultMaxRange)
	return NewTrilaterator(model, SourceBLE, DefaultBleAccuracy)
}

func TestTrilateratorEstimate(t *testing.T) {
	t.Parallel()

	t.Run("three well placed emitters solve by least squares", func(t *testing.T) {
		tri := bleTrilaterator()
		d := math.Sqrt(50.0) // true range from (5,5) to each corner
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 0, Y: 0}}, Distance: d},
			{Emitter: Emitter{ID: "b", Pos: Position{X: 10, Y: 0}}, Distance: d},
			{Emitter: Emitter{ID: "c", Pos: Position{X: 0, Y: 10}}, Distance: d},
		}
		m, method, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, MethodLeastSquares, method)
		assert.InDelta(t, 5.0, m.Pos.X, 1e-6)
		assert.InDelta(t, 5.0, m.Pos.Y, 1e-6)
		assert.Equal(t, DefaultBleAccuracy, m.Accuracy)
		assert.Equal(t, SourceBLE, m.Source)
		assert.Equal(t, int64(1000), m.At)
	})

	t.Run("collinear emitters fall back to centroid", func(t *testing.T) {
		tri := bleTrilaterator()
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 0, Y: 0}}, Distance: 3},
			{Emitter: Emitter{ID: "b", Pos: Position{X: 5, Y: 0}}, Distance: 3},
			{Emitter: Emitter{ID: "c", Pos: Position{X: 10, Y: 0}}, Distance: 3},
		}
		_, method, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, MethodCentroid, method)
	})

	t.Run("single emitter centroids onto it", func(t *testing.T) {
		tri := bleTrilaterator()
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 3, Y: 4, Floor: 1}}, Distance: 2},
		}
		m, method, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, MethodCentroid, method)
		assert.InDelta(t, 3.0, m.Pos.X, 1e-9)
		assert.InDelta(t, 4.0, m.Pos.Y, 1e-9)
		assert.Equal(t, 1, m.Pos.Floor)
		// Widened accuracy: max(1.5 * nominal, mean range).
		assert.InDelta(t, 3.0, m.Accuracy, 1e-9)
	})

	t.Run("centroid weights nearer emitters harder", func(t *testing.T) {
		tri := bleTrilaterator()
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 0, Y: 0}}, Distance: 1},
			{Emitter: Emitter{ID: "b", Pos: Position{X: 10, Y: 0}}, Distance: 3},
		}
		m, method, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, MethodCentroid, method)
		// Weights 1 and 1/9: x = 10/9 / (10/9) ... = 1.0.
		assert.InDelta(t, 1.0, m.Pos.X, 1e-9)
		assert.InDelta(t, 0.0, m.Pos.Y, 1e-9)
	})

	t.Run("no observations is not a fix", func(t *testing.T) {
		tri := bleTrilaterator()
		_, method, ok := tri.Estimate(nil, 1000)
		assert.False(t, ok)
		assert.Equal(t, MethodNone, method)
	})
}

func TestTrilateratorFloorVote(t *testing.T) {
	t.Parallel()

	tri := bleTrilaterator()

	t.Run("two far emitters outvote one near", func(t *testing.T) {
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 0, Y: 0, Floor: 0}}, Distance: 2},
			{Emitter: Emitter{ID: "b", Pos: Position{X: 4, Y: 0, Floor: 0}}, Distance: 2},
			{Emitter: Emitter{ID: "c", Pos: Position{X: 2, Y: 2, Floor: 1}}, Distance: 1.5},
		}
		m, _, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, 0, m.Pos.Floor)
	})

	t.Run("dominant near emitter carries its floor", func(t *testing.T) {
		obs := []RangeObservation{
			{Emitter: Emitter{ID: "a", Pos: Position{X: 0, Y: 0, Floor: 0}}, Distance: 4},
			{Emitter: Emitter{ID: "c", Pos: Position{X: 2, Y: 2, Floor: 1}}, Distance: 1},
		}
		m, _, ok := tri.Estimate(obs, 1000)
		require.True(t, ok)
		assert.Equal(t, 1, m.Pos.Floor)
	})
}

func TestTrilateratorRanges(t *testing.T) {
	t.Parallel()

	tri := bleTrilaterator()
	emitters := map[EmitterID]Emitter{
		"b1": {ID: "b1", Channel: ChannelBLE, Pos: Position{X: 1, Y: 2}},
	}

	readings := []SignalReading{
		{Source: "b1", RSSI: -79},  // known, in range
		{Source: "zz", RSSI: -60},  // not surveyed
		{Source: "b1", RSSI: -115}, // too weak to range
	}
	obs := tri.Ranges(readings, emitters)
	require.Len(t, obs, 1)
	assert.Equal(t, EmitterID("b1"), obs[0].Emitter.ID)
	assert.InDelta(t, 5.505, obs[0].Distance, 0.01)
}
