package fusion

import "math"

// Compiled tuning defaults. Every value here is mirrored by a Config field;
// deployments override through the YAML tuning file.
const (
	// Log-distance path-loss model, one calibration per radio channel.
	DefaultBleExponent  = 2.7
	DefaultBleRefRSSI   = -59.0
	DefaultWifiExponent = 2.7
	DefaultWifiRefRSSI  = -45.0
	DefaultMaxRange     = 50.0

	// MinDistance floors estimated ranges before inverse-square weighting.
	MinDistance = 0.1

	// Filter defaults.
	DefaultProcessNoise   = 0.05
	InitialCovariance     = 1.0
	MinCovariance         = 1e-6
	CovarianceResetLimit  = 1e4
	StaleResetMs          = 30000
	DefaultTickMs         = 1000
	DefaultReadingAgeMs   = 3000
	DefaultAnchorAccuracy = 3.0

	// Nominal accuracy per source, metres. Ordering matters more than the
	// absolute values: BLE < fingerprint < Wi-Fi < dead reckoning.
	DefaultBleAccuracy         = 2.0
	DefaultFingerprintAccuracy = 2.5
	DefaultWifiAccuracy        = 4.0
	DefaultDeadReckonAccuracy  = 4.5
	DefaultDriftPerStep        = 0.15

	// Step detection.
	DefaultStepThreshold  = 1.8
	DefaultStepIntervalMs = 250
	DefaultStepLength     = 0.75

	// Fingerprint matching.
	DefaultFingerprintK = 3
	DefaultBleWeight    = 0.7
	DefaultWifiWeight   = 0.3
	ExactMatchDistance  = 0.1
	ExactMatchWeight    = 1e6

	// Least-squares conditioning cutoff before falling back to centroid.
	ConditionLimit = 1e6

	// Accuracy assigned to user-injected positions.
	InjectedAccuracy = 1.0

	// Recovery.
	DefaultFailureThreshold  = 5
	DefaultRecoveryAttempts  = 5
	DefaultMinConfidence     = 0.6
	RecoveryAccuracyScale    = 10.0
	DefaultRecoveryLandmarks = 3
)

// Retry delays between re-acquisition attempts, seconds.
var DefaultRecoveryBackoff = []int{5, 10, 15, 30, 60}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func hypot2(dx, dy float64) float64 {
	return math.Sqrt(dx*dx + dy*dy)
}

func sq(x float64) float64 { return x * x }
