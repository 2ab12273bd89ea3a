package nav

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

func mkNode(id string, x, y float64, floor int) Node {
	return Node{ID: id, Pos: fusion.Position{X: x, Y: y, Floor: floor}}
}

func nodesOf(t *testing.T, g *Graph, ids ...string) []Node {
	t.Helper()
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		n, ok := g.Node(id)
		require.True(t, ok, id)
		out = append(out, n)
	}
	return out
}

func lineGraph() *Graph {
	g := NewGraph()
	g.AddNode(Node{ID: "l0", Pos: fusion.Position{X: 0, Y: 0, Floor: 0}})
	g.AddNode(Node{ID: "l1", Pos: fusion.Position{X: 10, Y: 0, Floor: 0}})
	g.AddNode(Node{ID: "l2", Pos: fusion.Position{X: 20, Y: 0, Floor: 0}})
	g.Connect("l0", "l1")
	g.Connect("l1", "l2")
	return g
}

func TestTurnClassification(t *testing.T) {
	t.Parallel()

	// Walking north from (0,0) to (0,10); the third node sets the turn.
	cases := []struct {
		name string
		next Node
		kind string
	}{
		{"hard left", mkNode("c", -10, 10, 0), KindLeft},
		{"hard right", mkNode("c", 10, 10, 0), KindRight},
		{"slight left", mkNode("c", -5, 20, 0), KindSlightLeft},
		{"slight right", mkNode("c", 5, 20, 0), KindSlightRight},
		{"straight on", mkNode("c", 0, 20, 0), KindStraight},
		{"turn around", mkNode("c", 1, 0, 0), KindTurnAround},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := []Node{mkNode("a", 0, 0, 0), mkNode("b", 0, 10, 0), tc.next}
			ins := BuildInstructions(path, DefaultConfig())
			require.Len(t, ins, 3)
			assert.Equal(t, KindStart, ins[0].Kind)
			assert.Equal(t, tc.kind, ins[1].Kind)
			assert.Equal(t, KindArrive, ins[2].Kind)
		})
	}
}

func TestBuildInstructions(t *testing.T) {
	t.Parallel()

	t.Run("start names the next stop and its distance", func(t *testing.T) {
		g := officeGraph()
		ins := BuildInstructions(nodesOf(t, g, "h2", "st0", "st1", "cafe"), DefaultConfig())
		require.NotEmpty(t, ins)
		assert.Equal(t, KindStart, ins[0].Kind)
		assert.Equal(t, "Head toward Stairs A", ins[0].Text)
		assert.InDelta(t, 5.0, ins[0].Distance, 1e-9)
		assert.Equal(t, "h2", ins[0].NodeID)
	})

	t.Run("stairs up", func(t *testing.T) {
		g := officeGraph()
		ins := BuildInstructions(nodesOf(t, g, "h2", "st0", "st1", "cafe"), DefaultConfig())
		require.Len(t, ins, 4)
		fc := ins[1]
		assert.Equal(t, KindFloorChange, fc.Kind)
		assert.Equal(t, "Take the stairs up to floor 1", fc.Text)
		assert.Equal(t, 1, fc.Floors)
		assert.Equal(t, "stairs", fc.Transition)
		assert.InDelta(t, FloorHeight, fc.Distance, 1e-9)
	})

	t.Run("stairs down", func(t *testing.T) {
		g := officeGraph()
		ins := BuildInstructions(nodesOf(t, g, "cafe", "st1", "st0", "h2"), DefaultConfig())
		require.Len(t, ins, 4)
		fc := ins[1]
		assert.Equal(t, KindFloorChange, fc.Kind)
		assert.Equal(t, "Take the stairs down to floor 0", fc.Text)
		assert.Equal(t, -1, fc.Floors)
	})

	t.Run("elevator wording", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(Node{ID: "lobby", Pos: fusion.Position{X: 5, Y: 0, Floor: 0}})
		g.AddNode(Node{ID: "e0", Kind: TransitionElevator, Pos: fusion.Position{X: 0, Y: 0, Floor: 0}})
		g.AddNode(Node{ID: "e1", Kind: TransitionElevator, Pos: fusion.Position{X: 0, Y: 0, Floor: 1}})
		g.AddNode(Node{ID: "land", Pos: fusion.Position{X: 5, Y: 0, Floor: 1}})
		g.Connect("lobby", "e0")
		g.Connect("e0", "e1")
		g.Connect("e1", "land")

		ins := BuildInstructions(nodesOf(t, g, "lobby", "e0", "e1", "land"), DefaultConfig())
		require.Len(t, ins, 4)
		assert.Equal(t, "Take the elevator up to floor 1", ins[1].Text)
		assert.Equal(t, "elevator", ins[1].Transition)
	})

	t.Run("arrival uses the label", func(t *testing.T) {
		g := officeGraph()
		ins := BuildInstructions(nodesOf(t, g, "st1", "cafe"), DefaultConfig())
		require.Len(t, ins, 2)
		last := ins[len(ins)-1]
		assert.Equal(t, KindArrive, last.Kind)
		assert.Equal(t, "You have arrived at Cafe", last.Text)
	})

	t.Run("degenerate paths", func(t *testing.T) {
		assert.Nil(t, BuildInstructions(nil, DefaultConfig()))
		ins := BuildInstructions([]Node{mkNode("x", 1, 1, 0)}, DefaultConfig())
		require.Len(t, ins, 1)
		assert.Equal(t, KindArrive, ins[0].Kind)
	})
}

func TestPathDistance(t *testing.T) {
	t.Parallel()

	g := officeGraph()
	nodes := nodesOf(t, g, "ent", "h1", "h2", "st0", "st1", "cafe")
	assert.InDelta(t, 38.5, PathDistance(nodes), 1e-9)
	assert.Equal(t, 0.0, PathDistance(nodes[:1]))
}

func TestTravelTime(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()

	t.Run("walking pace on flat edges", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(mkNode("a", 0, 0, 0))
		g.AddNode(mkNode("b", 14, 0, 0))
		g.Connect("a", "b")
		tt := TravelTime(nodesOf(t, g, "a", "b"), cfg)
		assert.InDelta(t, 10.0, tt.Seconds(), 1e-9)
	})

	t.Run("stairs slow the climb", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(mkNode("a", 0, 0, 0))
		g.AddNode(Node{ID: "s0", Kind: TransitionStairs, Pos: fusion.Position{X: 14, Y: 0, Floor: 0}})
		g.AddNode(Node{ID: "s1", Kind: TransitionStairs, Pos: fusion.Position{X: 14, Y: 0, Floor: 1}})
		g.Connect("a", "s0")
		g.Connect("s0", "s1")
		// 14 m walk plus 3.5 m of stairs at half speed.
		tt := TravelTime(nodesOf(t, g, "a", "s0", "s1"), cfg)
		assert.InDelta(t, 10.0+5.0, tt.Seconds(), 1e-9)
	})

	t.Run("escalators run faster than walking", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(Node{ID: "g0", Kind: TransitionEscalator, Pos: fusion.Position{Floor: 0}})
		g.AddNode(Node{ID: "g1", Kind: TransitionEscalator, Pos: fusion.Position{Floor: 1}})
		g.Connect("g0", "g1")
		tt := TravelTime(nodesOf(t, g, "g0", "g1"), cfg)
		assert.InDelta(t, 2.0, tt.Seconds(), 1e-9)
	})

	t.Run("elevators cost a flat wait", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(Node{ID: "e0", Kind: TransitionElevator, Pos: fusion.Position{Floor: 0}})
		g.AddNode(Node{ID: "e1", Kind: TransitionElevator, Pos: fusion.Position{Floor: 5}})
		g.Connect("e0", "e1")
		tt := TravelTime(nodesOf(t, g, "e0", "e1"), cfg)
		assert.InDelta(t, cfg.ElevatorWaitS, tt.Seconds(), 1e-9)
	})
}

func TestRemainingDistance(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	g := lineGraph()
	nodes := nodesOf(t, g, "l0", "l1", "l2")

	t.Run("past the closest node counts from the next", func(t *testing.T) {
		// At x=4 the walk left is 6 m to l1 plus 10 m to l2, never the
		// 4 m already behind.
		d := RemainingDistance(fusion.Position{X: 4, Y: 0, Floor: 0}, nodes, cfg)
		assert.InDelta(t, 16.0, d, 1e-9)
	})

	t.Run("before the start counts the whole path", func(t *testing.T) {
		d := RemainingDistance(fusion.Position{X: -3, Y: 0, Floor: 0}, nodes, cfg)
		assert.InDelta(t, 23.0, d, 1e-9)
	})

	t.Run("at the destination", func(t *testing.T) {
		d := RemainingDistance(fusion.Position{X: 20, Y: 0, Floor: 0}, nodes, cfg)
		assert.InDelta(t, 0.0, d, 1e-9)
	})

	t.Run("empty path", func(t *testing.T) {
		assert.Equal(t, 0.0, RemainingDistance(fusion.Position{}, nil, cfg))
	})
}

func TestDistanceToPath(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	g := lineGraph()
	nodes := nodesOf(t, g, "l0", "l1", "l2")

	assert.InDelta(t, 3.0, DistanceToPath(fusion.Position{X: 5, Y: 3, Floor: 0}, nodes, cfg), 1e-9)
	assert.InDelta(t, 2.0, DistanceToPath(fusion.Position{X: 15, Y: -2, Floor: 0}, nodes, cfg), 1e-9)

	t.Run("wrong floor pays the penalty", func(t *testing.T) {
		d := DistanceToPath(fusion.Position{X: 5, Y: 3, Floor: 1}, nodes, cfg)
		assert.InDelta(t, 3.0+cfg.FloorPenalty, d, 1e-9)
	})

	t.Run("single node path", func(t *testing.T) {
		d := DistanceToPath(fusion.Position{X: 3, Y: 4, Floor: 0}, nodes[:1], cfg)
		assert.InDelta(t, 5.0, d, 1e-9)
	})

	t.Run("empty path is infinitely far", func(t *testing.T) {
		assert.True(t, math.IsInf(DistanceToPath(fusion.Position{}, nil, cfg), 1))
	})
}
