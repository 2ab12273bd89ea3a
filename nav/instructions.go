package nav

import (
	"fmt"
	"math"
	"time"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// Instruction kinds, wire form.
const (
	KindStart       = "start"
	KindStraight    = "straight"
	KindSlightLeft  = "slight_left"
	KindSlightRight = "slight_right"
	KindLeft        = "left"
	KindRight       = "right"
	KindTurnAround  = "turn_around"
	KindFloorChange = "floor_change"
	KindArrive      = "arrive"
)

// Turn angle thresholds, degrees.
const (
	turnAroundDeg = 150.0
	turnDeg       = 45.0
	slightDeg     = 20.0
)

// Instruction is one step of turn-by-turn guidance, anchored at a path node.
type Instruction struct {
	Kind       string          `json:"kind"`
	Text       string          `json:"text"`
	NodeID     string          `json:"node_id"`
	At         fusion.Position `json:"at"`
	Distance   float64         `json:"distance,omitempty"`
	Floors     int             `json:"floors,omitempty"`
	Transition string          `json:"transition,omitempty"`
}

// BuildInstructions turns a path into guidance. Turns are classified by the
// signed angle between the incoming and outgoing segments (atan2 of cross
// and dot, positive turning left); edges that cross floors become floor
// changes worded by their transition kind.
func BuildInstructions(nodes []Node, cfg *Config) []Instruction {
	if len(nodes) == 0 {
		return nil
	}
	last := nodes[len(nodes)-1]
	if len(nodes) == 1 {
		return []Instruction{arriveAt(last)}
	}

	out := make([]Instruction, 0, len(nodes)+1)
	out = append(out, Instruction{
		Kind:     KindStart,
		Text:     fmt.Sprintf("Head toward %s", nodeName(nodes[1])),
		NodeID:   nodes[0].ID,
		At:       nodes[0].Pos,
		Distance: edgeDistance(nodes[0], nodes[1]),
	})
	for i := 1; i+1 < len(nodes); i++ {
		out = append(out, maneuverAt(nodes[i-1], nodes[i], nodes[i+1]))
	}
	out = append(out, arriveAt(last))
	return out
}

func maneuverAt(prev, cur, next Node) Instruction {
	dist := edgeDistance(cur, next)
	if df := next.Pos.Floor - cur.Pos.Floor; df != 0 {
		trans := TransitionStairs
		if e, ok := cur.Edges[next.ID]; ok && e.Transition != TransitionNone {
			trans = e.Transition
		}
		dir := "up"
		if df < 0 {
			dir = "down"
		}
		return Instruction{
			Kind:       KindFloorChange,
			Text:       fmt.Sprintf("Take the %s %s to floor %d", trans, dir, next.Pos.Floor),
			NodeID:     cur.ID,
			At:         cur.Pos,
			Distance:   dist,
			Floors:     df,
			Transition: trans.String(),
		}
	}

	deg := turnAngle(prev.Pos, cur.Pos, next.Pos)
	kind, text := classifyTurn(deg)
	return Instruction{
		Kind:     kind,
		Text:     text,
		NodeID:   cur.ID,
		At:       cur.Pos,
		Distance: dist,
	}
}

func classifyTurn(deg float64) (string, string) {
	abs := math.Abs(deg)
	switch {
	case abs > turnAroundDeg:
		return KindTurnAround, "Turn around"
	case deg > turnDeg:
		return KindLeft, "Turn left"
	case deg < -turnDeg:
		return KindRight, "Turn right"
	case deg > slightDeg:
		return KindSlightLeft, "Bear left"
	case deg < -slightDeg:
		return KindSlightRight, "Bear right"
	}
	return KindStraight, "Continue straight"
}

// turnAngle is the signed angle in degrees between segments a→b and b→c.
// Positive means a left (counter-clockwise) turn.
func turnAngle(a, b, c fusion.Position) float64 {
	ux, uy := b.X-a.X, b.Y-a.Y
	vx, vy := c.X-b.X, c.Y-b.Y
	cross := ux*vy - uy*vx
	dot := ux*vx + uy*vy
	return math.Atan2(cross, dot) * 180.0 / math.Pi
}

func arriveAt(n Node) Instruction {
	return Instruction{
		Kind:   KindArrive,
		Text:   fmt.Sprintf("You have arrived at %s", nodeName(n)),
		NodeID: n.ID,
		At:     n.Pos,
	}
}

func nodeName(n Node) string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

func edgeDistance(a, b Node) float64 {
	if e, ok := a.Edges[b.ID]; ok {
		return e.Distance
	}
	return a.Pos.DistanceTo(b.Pos)
}

// PathDistance sums the edge distances along the node sequence.
func PathDistance(nodes []Node) float64 {
	total := 0.0
	for i := 0; i+1 < len(nodes); i++ {
		total += edgeDistance(nodes[i], nodes[i+1])
	}
	return total
}

// TravelTime estimates how long the path takes: flat segments at walking
// speed, stairs slower and escalators faster by their factors, elevators as
// a flat wait regardless of distance.
func TravelTime(nodes []Node, cfg *Config) time.Duration {
	secs := 0.0
	for i := 0; i+1 < len(nodes); i++ {
		d := edgeDistance(nodes[i], nodes[i+1])
		trans := TransitionNone
		if e, ok := nodes[i].Edges[nodes[i+1].ID]; ok {
			trans = e.Transition
		}
		switch trans {
		case TransitionStairs:
			secs += d / (cfg.WalkSpeed * cfg.StairsFactor)
		case TransitionEscalator:
			secs += d / (cfg.WalkSpeed * cfg.EscalatorFactor)
		case TransitionElevator:
			secs += cfg.ElevatorWaitS
		default:
			secs += d / cfg.WalkSpeed
		}
	}
	return time.Duration(secs * float64(time.Second))
}

// RemainingDistance measures the walk left from p to the end of the path.
// The closest node anchors the measurement; when p has already moved past it
// along the outgoing segment (positive projection), counting starts at the
// next node instead, so the value cannot jump backwards.
func RemainingDistance(p fusion.Position, nodes []Node, cfg *Config) float64 {
	d, _ := remainingFrom(p, nodes, cfg)
	return d
}

func remainingFrom(p fusion.Position, nodes []Node, cfg *Config) (float64, int) {
	if len(nodes) == 0 {
		return 0, 0
	}
	ci := 0
	bestD := math.Inf(1)
	for i, n := range nodes {
		if d := penalizedDistance(p, n.Pos, cfg.FloorPenalty); d < bestD {
			ci, bestD = i, d
		}
	}
	if ci+1 < len(nodes) {
		ax, ay := nodes[ci].Pos.X, nodes[ci].Pos.Y
		sx, sy := nodes[ci+1].Pos.X-ax, nodes[ci+1].Pos.Y-ay
		if (p.X-ax)*sx+(p.Y-ay)*sy > 0 {
			ci++
		}
	}
	total := p.DistanceTo(nodes[ci].Pos)
	for i := ci; i+1 < len(nodes); i++ {
		total += edgeDistance(nodes[i], nodes[i+1])
	}
	return total, ci
}

// DistanceToPath is the deviation of p from the polyline: the smallest
// point-to-segment distance, surcharged by the floor penalty when p's floor
// matches neither segment endpoint.
func DistanceToPath(p fusion.Position, nodes []Node, cfg *Config) float64 {
	if len(nodes) == 0 {
		return math.Inf(1)
	}
	if len(nodes) == 1 {
		return penalizedDistance(p, nodes[0].Pos, cfg.FloorPenalty)
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(nodes); i++ {
		a, b := nodes[i].Pos, nodes[i+1].Pos
		d := segmentDistance(p, a, b)
		if p.Floor != a.Floor && p.Floor != b.Floor {
			d += cfg.FloorPenalty
		}
		if d < best {
			best = d
		}
	}
	return best
}
