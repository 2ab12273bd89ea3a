package nav

import (
	"math"
	"sort"
	"sync"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// TransitionKind classifies how a node moves people between floors.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionStairs
	TransitionElevator
	TransitionEscalator
)

func (t TransitionKind) String() string {
	switch t {
	case TransitionStairs:
		return "stairs"
	case TransitionElevator:
		return "elevator"
	case TransitionEscalator:
		return "escalator"
	}
	return "none"
}

// ParseTransition maps the wire form back; unknown strings mean none.
func ParseTransition(s string) TransitionKind {
	switch s {
	case "stairs":
		return TransitionStairs
	case "elevator":
		return TransitionElevator
	case "escalator":
		return TransitionEscalator
	}
	return TransitionNone
}

// Vertical distance charged per floor crossed on a transition edge.
const FloorHeight = 3.5

// Node is one navigable point. Kind marks floor-transition nodes (a
// stairwell, an elevator door); edges between floors inherit it.
type Node struct {
	ID    string
	Label string
	Kind  TransitionKind
	Pos   fusion.Position
	Edges map[string]Edge
}

// Edge is one directed half of a bidirectional connection.
type Edge struct {
	To         string
	Distance   float64
	Transition TransitionKind
}

// Graph is the mutable navigation mesh. All operations are safe for
// concurrent use; mutations bump a revision counter that the router uses to
// drop stale cached paths.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	rev   uint64
}

func NewGraph() *Graph {
	return &Graph{nodes: map[string]*Node{}}
}

// Rev returns the mutation counter.
func (g *Graph) Rev() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rev
}

func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// AddNode inserts a disconnected node. False when the id is empty or taken;
// the graph is unchanged in that case.
func (g *Graph) AddNode(n Node) bool {
	if n.ID == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.ID]; exists {
		return false
	}
	n.Edges = map[string]Edge{}
	g.nodes[n.ID] = &n
	g.rev++
	return true
}

// Connect links two nodes bidirectionally. The edge distance is the planar
// distance plus FloorHeight per floor crossed; edges crossing floors carry
// the transition kind of their endpoints (stairs when neither names one).
// False when either id is unknown, the ids are equal, or the link exists.
func (g *Graph) Connect(a, b string) bool {
	if a == b {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked(a, b)
}

func (g *Graph) connectLocked(a, b string) bool {
	na, ok := g.nodes[a]
	if !ok {
		return false
	}
	nb, ok := g.nodes[b]
	if !ok {
		return false
	}
	if _, dup := na.Edges[b]; dup {
		return false
	}
	planar := na.Pos.DistanceTo(nb.Pos)
	dist := planar
	trans := TransitionNone
	if df := nb.Pos.Floor - na.Pos.Floor; df != 0 {
		dist = math.Hypot(planar, FloorHeight*math.Abs(float64(df)))
		trans = na.Kind
		if trans == TransitionNone {
			trans = nb.Kind
		}
		if trans == TransitionNone {
			trans = TransitionStairs
		}
	}
	na.Edges[b] = Edge{To: b, Distance: dist, Transition: trans}
	nb.Edges[a] = Edge{To: a, Distance: dist, Transition: trans}
	g.rev++
	return true
}

// Disconnect removes the link in both directions. False when either node or
// the link itself is missing.
func (g *Graph) Disconnect(a, b string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	na, ok := g.nodes[a]
	if !ok {
		return false
	}
	nb, ok := g.nodes[b]
	if !ok {
		return false
	}
	if _, linked := na.Edges[b]; !linked {
		return false
	}
	delete(na.Edges, b)
	delete(nb.Edges, a)
	g.rev++
	return true
}

// RemoveNode deletes a node and every connection that references it.
func (g *Graph) RemoveNode(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return false
	}
	for to := range n.Edges {
		if other, ok := g.nodes[to]; ok {
			delete(other.Edges, id)
		}
	}
	delete(g.nodes, id)
	g.rev++
	return true
}

// Node returns a copy; mutating it does not touch the graph.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return copyNode(n), true
}

// Nodes returns every node, sorted by id for deterministic export.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Replace swaps the whole mesh in one step: nodes first, then the given
// connection pairs. Pairs referencing unknown ids are skipped.
func (g *Graph) Replace(nodes []Node, pairs [][2]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Node, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		nc := n
		nc.Edges = map[string]Edge{}
		g.nodes[n.ID] = &nc
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			g.connectLocked(p[0], p[1])
		}
	}
	g.rev++
}

// ClosestNode finds the node nearest to p: planar distance, plus the
// penalty when the node sits on a different floor. False on an empty graph.
func (g *Graph) ClosestNode(p fusion.Position, floorPenalty float64) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var best *Node
	bestD := math.Inf(1)
	for _, n := range g.nodes {
		d := penalizedDistance(p, n.Pos, floorPenalty)
		if d < bestD || (d == bestD && (best == nil || n.ID < best.ID)) {
			best, bestD = n, d
		}
	}
	if best == nil {
		return Node{}, false
	}
	return copyNode(best), true
}

// NearbyLandmarks returns labeled nodes ordered by penalized distance to p.
// Implements fusion.LandmarkSource for recovery prompts.
func (g *Graph) NearbyLandmarks(p fusion.Position, max int) []fusion.Landmark {
	g.mu.RLock()
	marks := make([]fusion.Landmark, 0, 8)
	for _, n := range g.nodes {
		if n.Label == "" {
			continue
		}
		marks = append(marks, fusion.Landmark{
			ID:       n.ID,
			Label:    n.Label,
			Pos:      n.Pos,
			Distance: penalizedDistance(p, n.Pos, DefaultFloorPenalty),
		})
	}
	g.mu.RUnlock()
	sort.Slice(marks, func(i, j int) bool {
		if marks[i].Distance != marks[j].Distance {
			return marks[i].Distance < marks[j].Distance
		}
		return marks[i].ID < marks[j].ID
	})
	if max > 0 && len(marks) > max {
		marks = marks[:max]
	}
	return marks
}

func copyNode(n *Node) Node {
	c := *n
	c.Edges = make(map[string]Edge, len(n.Edges))
	for k, e := range n.Edges {
		c.Edges[k] = e
	}
	return c
}

// penalizedDistance is the planar distance with a flat surcharge when the
// floors differ.
func penalizedDistance(p, q fusion.Position, floorPenalty float64) float64 {
	d := p.DistanceTo(q)
	if p.Floor != q.Floor {
		d += floorPenalty
	}
	return d
}

// segmentDistance is the distance from p to the segment a-b, projected onto
// the segment and clamped to its endpoints.
func segmentDistance(p, a, b fusion.Position) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	den := dx*dx + dy*dy
	if den < 1e-12 {
		return p.DistanceTo(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / den
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	proj := fusion.Position{X: a.X + t*dx, Y: a.Y + t*dy, Floor: a.Floor}
	return p.DistanceTo(proj)
}
