package server

import (
	"encoding/json"
	"fmt"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// Envelope types accepted on the ingest socket.
const (
	TypeRanging = "ranging"
	TypeWifi    = "wifi"
	TypeMotion  = "motion"
)

// ReadingRecord is one observed emitter inside a ranging or wifi envelope.
type ReadingRecord struct {
	Source string  `json:"source"`
	RSSI   float64 `json:"rssi"`
}

// MotionRecord carries one inertial sample. Accel is gravity-removed
// magnitude in m/s^2, Heading is radians clockwise from building north.
type MotionRecord struct {
	Accel   float64 `json:"accel"`
	Heading float64 `json:"heading"`
}

// Envelope is the JSON datagram devices send to the ingest socket. At is
// ms since epoch; zero means "stamp on receipt".
type Envelope struct {
	Type     string          `json:"type"`
	Device   string          `json:"device,omitempty"`
	At       int64           `json:"at,omitempty"`
	Readings []ReadingRecord `json:"readings,omitempty"`
	Motion   *MotionRecord   `json:"motion,omitempty"`
}

// ParseEnvelope decodes and validates one datagram.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case TypeRanging, TypeWifi:
		if len(env.Readings) == 0 {
			return nil, fmt.Errorf("%s envelope without readings", env.Type)
		}
		for i, r := range env.Readings {
			if _, err := fusion.ParseEmitterID(r.Source); err != nil {
				return nil, fmt.Errorf("reading %d: %w", i, err)
			}
			if r.RSSI > 20 || r.RSSI < -120 {
				return nil, fmt.Errorf("reading %d: rssi %.1f out of range", i, r.RSSI)
			}
		}
	case TypeMotion:
		if env.Motion == nil {
			return nil, fmt.Errorf("motion envelope without sample")
		}
	default:
		return nil, fmt.Errorf("unknown envelope type %q", env.Type)
	}
	return &env, nil
}

// SignalReadings converts the reading list, stamping entries with the
// envelope time or nowMs when the device sent none.
func (e *Envelope) SignalReadings(ch fusion.Channel, nowMs int64) []fusion.SignalReading {
	at := e.At
	if at == 0 {
		at = nowMs
	}
	out := make([]fusion.SignalReading, 0, len(e.Readings))
	for _, r := range e.Readings {
		out = append(out, fusion.SignalReading{
			Source:  fusion.EmitterID(r.Source),
			Channel: ch,
			RSSI:    r.RSSI,
			At:      at,
		})
	}
	return out
}

// MotionSample converts the inertial payload.
func (e *Envelope) MotionSample(nowMs int64) fusion.MotionSample {
	at := e.At
	if at == 0 {
		at = nowMs
	}
	return fusion.MotionSample{Accel: e.Motion.Accel, Heading: e.Motion.Heading, At: at}
}
