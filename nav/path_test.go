package nav

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

func TestRouterFindPath(t *testing.T) {
	t.Parallel()

	r := NewRouter(officeGraph(), DefaultConfig())

	t.Run("follows the cheapest chain across floors", func(t *testing.T) {
		assert.Equal(t, []string{"ent", "h1", "h2", "st0", "st1", "cafe"}, r.FindPath("ent", "cafe"))
	})

	t.Run("start equals end", func(t *testing.T) {
		assert.Equal(t, []string{"h1"}, r.FindPath("h1", "h1"))
	})

	t.Run("unknown endpoints", func(t *testing.T) {
		assert.Nil(t, r.FindPath("ent", "nope"))
		assert.Nil(t, r.FindPath("nope", "cafe"))
	})

	t.Run("unreachable destination", func(t *testing.T) {
		g := officeGraph()
		g.AddNode(Node{ID: "island", Pos: fusion.Position{X: 50, Y: 50, Floor: 0}})
		assert.Nil(t, NewRouter(g, DefaultConfig()).FindPath("ent", "island"))
	})

	t.Run("severed chain loses the route", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(Node{ID: "a", Pos: fusion.Position{X: 0, Y: 0}})
		g.AddNode(Node{ID: "b", Pos: fusion.Position{X: 5, Y: 0}})
		g.AddNode(Node{ID: "c", Pos: fusion.Position{X: 10, Y: 0}})
		g.Connect("a", "b")
		g.Connect("b", "c")
		rc := NewRouter(g, DefaultConfig())
		require.Equal(t, []string{"a", "b", "c"}, rc.FindPath("a", "c"))

		// Removing the middle node must also flush the memoized answer.
		require.True(t, g.RemoveNode("b"))
		assert.Nil(t, rc.FindPath("a", "c"))
	})

	t.Run("picks the shorter of two branches", func(t *testing.T) {
		g := NewGraph()
		g.AddNode(Node{ID: "a", Pos: fusion.Position{X: 0, Y: 0}})
		g.AddNode(Node{ID: "b", Pos: fusion.Position{X: 10, Y: 5}})
		g.AddNode(Node{ID: "c", Pos: fusion.Position{X: 20, Y: 0}})
		g.AddNode(Node{ID: "d", Pos: fusion.Position{X: 10, Y: -1}})
		g.Connect("a", "b")
		g.Connect("b", "c")
		g.Connect("a", "d")
		g.Connect("d", "c")
		// Via d: 2 * hypot(10,1) ~ 20.1; via b: 2 * hypot(10,5) ~ 22.4.
		assert.Equal(t, []string{"a", "d", "c"}, NewRouter(g, DefaultConfig()).FindPath("a", "c"))
	})
}

func TestRouterCacheInvalidation(t *testing.T) {
	t.Parallel()

	g := NewGraph()
	g.AddNode(Node{ID: "a", Pos: fusion.Position{X: 0, Y: 0}})
	g.AddNode(Node{ID: "b", Pos: fusion.Position{X: 10, Y: 5}})
	g.AddNode(Node{ID: "c", Pos: fusion.Position{X: 20, Y: 0}})
	g.Connect("a", "b")
	g.Connect("b", "c")
	r := NewRouter(g, DefaultConfig())

	require.Equal(t, []string{"a", "b", "c"}, r.FindPath("a", "c"))

	// A direct link (20 m) beats the detour (~22.4 m); the memoized answer
	// must not survive the graph mutation.
	require.True(t, g.Connect("a", "c"))
	assert.Equal(t, []string{"a", "c"}, r.FindPath("a", "c"))
}

func TestRouterCacheEviction(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CacheSize = 1
	r := NewRouter(officeGraph(), cfg)

	// Every query stays correct while entries churn through the one slot.
	queries := [][2]string{
		{"ent", "cafe"},
		{"h1", "st0"},
		{"ent", "h2"},
		{"ent", "cafe"},
	}
	for _, q := range queries {
		assert.NotEmpty(t, r.FindPath(q[0], q[1]), "%s to %s", q[0], q[1])
	}
}

func TestRouterRecalculateFromPosition(t *testing.T) {
	t.Parallel()

	t.Run("splices onto the remaining suffix", func(t *testing.T) {
		r := NewRouter(officeGraph(), DefaultConfig())
		require.NotEmpty(t, r.FindPath("ent", "cafe"))

		// Wandered off near h2: the route resumes from there, not from
		// the original start.
		got := r.RecalculateFromPosition(fusion.Position{X: 19, Y: -2, Floor: 0}, "cafe")
		assert.Equal(t, []string{"h2", "st0", "st1", "cafe"}, got)
	})

	t.Run("falls back to a fresh search off the cached path", func(t *testing.T) {
		r := NewRouter(officeGraph(), DefaultConfig())
		require.NotEmpty(t, r.FindPath("h2", "cafe"))

		got := r.RecalculateFromPosition(fusion.Position{X: 1, Y: 1, Floor: 0}, "cafe")
		assert.Equal(t, []string{"ent", "h1", "h2", "st0", "st1", "cafe"}, got)
	})

	t.Run("empty graph", func(t *testing.T) {
		r := NewRouter(NewGraph(), DefaultConfig())
		assert.Nil(t, r.RecalculateFromPosition(fusion.Position{}, "cafe"))
	})
}
