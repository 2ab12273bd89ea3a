package fusion

import (
	"fmt"
	"time"
)

// Position is a 2D location in the building frame, metres, plus floor index.
type Position struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Floor int     `json:"floor"`
}

// DistanceTo returns the planar distance ignoring floors.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return hypot2(dx, dy)
}

// Channel separates BLE and Wi-Fi observations of the radio environment.
type Channel int

const (
	ChannelBLE Channel = iota
	ChannelWifi
)

func (c Channel) String() string {
	switch c {
	case ChannelBLE:
		return "ble"
	case ChannelWifi:
		return "wifi"
	}
	return "unknown"
}

// EmitterID identifies a fixed transmitter (beacon MAC, AP BSSID or a site
// label). Validated once at the ingest boundary, opaque everywhere else.
type EmitterID string

// ParseEmitterID validates the wire form of an emitter id: non-empty, at most
// 64 bytes, restricted to [A-Za-z0-9:._-].
func ParseEmitterID(s string) (EmitterID, error) {
	if s == "" {
		return "", fmt.Errorf("empty emitter id")
	}
	if len(s) > 64 {
		return "", fmt.Errorf("emitter id too long (%d bytes)", len(s))
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == ':' || c == '.' || c == '_' || c == '-':
		default:
			return "", fmt.Errorf("emitter id %q: bad byte %q at %d", s, c, i)
		}
	}
	return EmitterID(s), nil
}

// Emitter is a transmitter at a surveyed position.
type Emitter struct {
	ID      EmitterID
	Channel Channel
	Pos     Position
	// RefRSSI is the expected signal strength at 1 m. Zero means "use the
	// model default".
	RefRSSI float64
}

// SignalReading is one RSSI observation of a known or unknown emitter.
type SignalReading struct {
	Source  EmitterID
	Channel Channel
	RSSI    float64
	At      int64 // ms since epoch
}

// MotionSample carries one inertial update: gravity-removed acceleration
// magnitude in m/s² and heading in radians clockwise from +Y (building
// north).
type MotionSample struct {
	Accel   float64
	Heading float64
	At      int64
}

// SourceKind tags where a position candidate came from.
type SourceKind int

const (
	SourceBLE SourceKind = iota
	SourceWifi
	SourceFingerprint
	SourceDeadReckoning
	SourceManual
)

func (s SourceKind) String() string {
	switch s {
	case SourceBLE:
		return "ble"
	case SourceWifi:
		return "wifi"
	case SourceFingerprint:
		return "fingerprint"
	case SourceDeadReckoning:
		return "deadreckoning"
	case SourceManual:
		return "manual"
	}
	return "unknown"
}

// Measurement is a position candidate entering the fusion filter. Accuracy is
// an expected error radius in metres; smaller means more trusted.
type Measurement struct {
	Pos      Position
	Accuracy float64
	Source   SourceKind
	At       int64
}

// Estimate is a fused position published to consumers.
type Estimate struct {
	Pos      Position  `json:"pos"`
	Accuracy float64   `json:"accuracy"`
	At       time.Time `json:"at"`
}

// Fingerprint pairs a surveyed position with the signal strengths recorded
// there, kept per channel.
type Fingerprint struct {
	Pos  Position
	BLE  map[EmitterID]float64
	Wifi map[EmitterID]float64
}

// Landmark is a named point surfaced to the user during recovery.
type Landmark struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Pos      Position `json:"pos"`
	Distance float64  `json:"distance"`
}

// LandmarkSource yields named reference points near a position, closest
// first. The navigation graph implements this.
type LandmarkSource interface {
	NearbyLandmarks(p Position, max int) []Landmark
}
