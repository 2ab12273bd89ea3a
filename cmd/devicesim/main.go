package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
	"github.com/skinny-l/IndoorNavigation1-sub003/server"
)

// devicesim walks a synthetic device in a circle through the surveyed
// building and emits the envelopes a real phone would: BLE ranging every
// second, wifi every third second, inertial samples at step cadence.
func main() {
	dest := flag.String("dest", "127.0.0.1:44333", "Ingest socket address")
	buildingPath := flag.String("building", "building.xml", "Building XML")
	radius := flag.Float64("radius", 8.0, "Walk circle radius, metres")
	speed := flag.Float64("speed", 1.2, "Walk speed, m/s")
	noise := flag.Float64("noise", 2.0, "RSSI noise amplitude, dB")
	flag.Parse()

	building, err := fusion.ParseBuilding(*buildingPath)
	if err != nil {
		log.Fatalf("building: %v", err)
	}
	beacons := building.Emitters(fusion.ChannelBLE)
	aps := building.Emitters(fusion.ChannelWifi)
	if len(beacons) == 0 {
		log.Fatal("no ble emitters in building")
	}

	raddr, err := net.ResolveUDPAddr("udp", *dest)
	if err != nil {
		log.Fatalf("resolve %s: %v", *dest, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	cx, cy, floor := centroid(beacons)
	log.Printf("walking r=%.1fm around (%.1f, %.1f) floor %d, %d beacons, %d aps",
		*radius, cx, cy, floor, len(beacons), len(aps))

	angle := 0.0
	delta := *speed / *radius // radians advanced per ranging tick
	prev := walkPos(cx, cy, *radius, angle, floor)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	n := 0

	for range ticker.C {
		now := time.Now().UnixMilli()

		// step impulse every half second, matching the walk speed
		send(conn, server.Envelope{
			Type: server.TypeMotion,
			At:   now,
			Motion: &server.MotionRecord{
				Accel:   2.4 + rand.Float64()*0.4,
				Heading: heading(prev, walkPos(cx, cy, *radius, angle+delta, floor)),
			},
		})

		n++
		if n%2 != 0 {
			continue
		}

		angle += delta
		pos := walkPos(cx, cy, *radius, angle, floor)
		prev = pos

		send(conn, server.Envelope{
			Type:     server.TypeRanging,
			At:       now,
			Readings: observe(beacons, pos, fusion.DefaultBleRefRSSI, fusion.DefaultBleExponent, *noise),
		})
		if n%6 == 0 && len(aps) > 0 {
			send(conn, server.Envelope{
				Type:     server.TypeWifi,
				At:       now,
				Readings: observe(aps, pos, fusion.DefaultWifiRefRSSI, fusion.DefaultWifiExponent, *noise),
			})
		}
	}
}

func walkPos(cx, cy, r, angle float64, floor int) fusion.Position {
	return fusion.Position{X: cx + r*math.Sin(angle), Y: cy + r*math.Cos(angle), Floor: floor}
}

// heading is radians clockwise from +Y, matching the motion envelope
// convention.
func heading(from, to fusion.Position) float64 {
	return math.Atan2(to.X-from.X, to.Y-from.Y)
}

// observe synthesizes the RSSI each emitter would report for a device at
// pos, inverting the log-distance model plus noise.
func observe(emitters map[fusion.EmitterID]fusion.Emitter, pos fusion.Position, refRSSI, exponent, noise float64) []server.ReadingRecord {
	var out []server.ReadingRecord
	for id, e := range emitters {
		if e.Pos.Floor != pos.Floor {
			continue
		}
		d := math.Max(pos.DistanceTo(e.Pos), fusion.MinDistance)
		if d > fusion.DefaultMaxRange {
			continue
		}
		ref := refRSSI
		if e.RefRSSI != 0 {
			ref = e.RefRSSI
		}
		rssi := ref - 10*exponent*math.Log10(d) + (rand.Float64()*2-1)*noise
		out = append(out, server.ReadingRecord{Source: string(id), RSSI: rssi})
	}
	return out
}

func centroid(emitters map[fusion.EmitterID]fusion.Emitter) (float64, float64, int) {
	var sx, sy float64
	floors := map[int]int{}
	for _, e := range emitters {
		sx += e.Pos.X
		sy += e.Pos.Y
		floors[e.Pos.Floor]++
	}
	n := float64(len(emitters))
	busiest, best := 0, 0
	for f, c := range floors {
		if c > best || (c == best && f < busiest) {
			busiest, best = f, c
		}
	}
	return sx / n, sy / n, busiest
}

func send(conn *net.UDPConn, env server.Envelope) {
	b, err := json.Marshal(env)
	if err != nil {
		return
	}
	if _, err := conn.Write(b); err != nil {
		log.Printf("send: %v", err)
	}
}
