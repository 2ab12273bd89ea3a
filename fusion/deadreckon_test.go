package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReckoner() *DeadReckoner {
	return NewDeadReckoner(DefaultStepLength, DefaultStepThreshold, DefaultStepIntervalMs,
		DefaultDeadReckonAccuracy, DefaultDriftPerStep)
}

// stride feeds one spike-and-settle pair, the shape one footfall produces.
func stride(d *DeadReckoner, at int64, heading float64) {
	d.Ingest(MotionSample{Accel: 2.5, Heading: heading, At: at})
	d.Ingest(MotionSample{Accel: 0.3, Heading: heading, At: at + 100})
}

func TestDeadReckonerWalk(t *testing.T) {
	t.Parallel()

	t.Run("four steps north move three metres", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{X: 0, Y: 0, Floor: 1})
		for i := int64(0); i < 4; i++ {
			stride(d, 1000+i*500, 0)
		}
		m, ok := d.Estimate(5000)
		require.True(t, ok)
		assert.InDelta(t, 0.0, m.Pos.X, 1e-9)
		assert.InDelta(t, 3.0, m.Pos.Y, 1e-9)
		assert.Equal(t, 1, m.Pos.Floor)
		assert.Equal(t, 4, d.Steps())
		assert.Equal(t, SourceDeadReckoning, m.Source)
	})

	t.Run("heading east moves along x", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		stride(d, 1000, math.Pi/2)
		stride(d, 1500, math.Pi/2)
		m, ok := d.Estimate(2000)
		require.True(t, ok)
		assert.InDelta(t, 1.5, m.Pos.X, 1e-9)
		assert.InDelta(t, 0.0, m.Pos.Y, 1e-9)
	})

	t.Run("accuracy widens with every step", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		for i := int64(0); i < 4; i++ {
			stride(d, 1000+i*500, 0)
		}
		m, ok := d.Estimate(5000)
		require.True(t, ok)
		assert.InDelta(t, DefaultDeadReckonAccuracy+4*DefaultDriftPerStep, m.Accuracy, 1e-9)
	})
}

func TestDeadReckonerStepDetection(t *testing.T) {
	t.Parallel()

	t.Run("spikes inside the debounce window count once", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		d.Ingest(MotionSample{Accel: 2.5, At: 1000})
		d.Ingest(MotionSample{Accel: 0.3, At: 1050})
		d.Ingest(MotionSample{Accel: 2.5, At: 1100})
		assert.Equal(t, 1, d.Steps())
	})

	t.Run("sustained load above threshold is one step", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		d.Ingest(MotionSample{Accel: 2.5, At: 1000})
		d.Ingest(MotionSample{Accel: 2.6, At: 1400})
		d.Ingest(MotionSample{Accel: 2.4, At: 1800})
		assert.Equal(t, 1, d.Steps())
	})

	t.Run("below threshold never fires", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		for i := int64(0); i < 5; i++ {
			d.Ingest(MotionSample{Accel: 1.0, At: 1000 + i*400})
		}
		assert.Equal(t, 0, d.Steps())
	})
}

func TestDeadReckonerAnchoring(t *testing.T) {
	t.Parallel()

	t.Run("no estimate before the first anchor", func(t *testing.T) {
		d := newReckoner()
		stride(d, 1000, 0)
		_, ok := d.Estimate(2000)
		assert.False(t, ok)
		assert.Equal(t, 0, d.Steps())
	})

	t.Run("reset clears accumulated drift", func(t *testing.T) {
		d := newReckoner()
		d.Reset(Position{})
		for i := int64(0); i < 3; i++ {
			stride(d, 1000+i*500, 0)
		}
		require.Equal(t, 3, d.Steps())

		d.Reset(Position{X: 8, Y: 8, Floor: 2})
		assert.Equal(t, 0, d.Steps())

		m, ok := d.Estimate(5000)
		require.True(t, ok)
		assert.InDelta(t, DefaultDeadReckonAccuracy, m.Accuracy, 1e-9)
		assert.InDelta(t, 8.0, m.Pos.X, 1e-9)
		assert.Equal(t, 2, m.Pos.Floor)
	})
}
