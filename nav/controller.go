package nav

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// Arrival is declared when the remaining walk shrinks below this, metres.
const ArriveRadius = 2.0

// Route is one computed way to a destination. Routes are immutable once
// built; a re-route produces a fresh one.
type Route struct {
	ID           string          `json:"id"`
	DestID       string          `json:"dest_id"`
	NodeIDs      []string        `json:"node_ids"`
	Nodes        []Node          `json:"-"`
	Instructions []Instruction   `json:"instructions"`
	Distance     float64         `json:"distance"`
	ETASeconds   float64         `json:"eta_seconds"`
	From         fusion.Position `json:"from"`
}

// Progress is the per-poll navigation status.
type Progress struct {
	RouteID    string          `json:"route_id"`
	Pos        fusion.Position `json:"pos"`
	Remaining  float64         `json:"remaining"`
	ETASeconds float64         `json:"eta_seconds"`
	Deviation  float64         `json:"deviation"`
	OffPath    bool            `json:"off_path"`
}

// NavEvent is what the controller publishes to consumers.
type NavEvent struct {
	Kind     string    `json:"kind"`
	Route    *Route    `json:"route,omitempty"`
	Progress *Progress `json:"progress,omitempty"`
}

const (
	NavEventRoute    = "route"
	NavEventProgress = "progress"
	NavEventRerouted = "rerouted"
	NavEventArrived  = "arrived"
	NavEventStopped  = "stopped"
)

// Controller owns the navigation session: it watches fused positions at the
// poll cadence, detects deviation from the active route and re-routes with a
// cooldown so one bad fix cannot thrash the path search.
type Controller struct {
	g      *Graph
	router *Router
	cfg    *Config
	notify func(NavEvent)

	mu          sync.Mutex
	route       *Route
	navigating  bool
	lastReroute time.Time
}

// NewController wires the session to the graph and router. notify may be
// nil.
func NewController(g *Graph, router *Router, cfg *Config, notify func(NavEvent)) *Controller {
	return &Controller{g: g, router: router, cfg: cfg, notify: notify}
}

// Navigate computes a route from the user's position to the destination
// node and makes it the active session.
func (c *Controller) Navigate(from fusion.Position, destID string) (*Route, error) {
	if _, ok := c.g.Node(destID); !ok {
		return nil, fmt.Errorf("unknown destination %q", destID)
	}
	start, ok := c.g.ClosestNode(from, c.cfg.FloorPenalty)
	if !ok {
		return nil, fmt.Errorf("navigation graph is empty")
	}
	ids := c.router.FindPath(start.ID, destID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("no route from %s to %s", start.ID, destID)
	}
	route := c.buildRoute(ids, destID, from)

	c.mu.Lock()
	c.route = route
	c.navigating = true
	c.lastReroute = time.Time{}
	c.mu.Unlock()

	log.Printf("nav: route %s to %s via %d nodes (%.1fm)", route.ID, destID, len(ids), route.Distance)
	c.emit(NavEvent{Kind: NavEventRoute, Route: route})
	return route, nil
}

// Stop ends the session.
func (c *Controller) Stop() {
	c.mu.Lock()
	was := c.navigating
	c.navigating = false
	c.route = nil
	c.mu.Unlock()
	if was {
		c.emit(NavEvent{Kind: NavEventStopped})
	}
}

// Current returns the active route.
func (c *Controller) Current() (*Route, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.navigating || c.route == nil {
		return nil, false
	}
	return c.route, true
}

// Run polls the position stream until the context ends. Estimates arriving
// faster than the poll cadence collapse to the latest one.
func (c *Controller) Run(ctx context.Context, positions <-chan fusion.Estimate) {
	ticker := time.NewTicker(c.cfg.Poll())
	defer ticker.Stop()
	var latest *fusion.Estimate
	for {
		select {
		case <-ctx.Done():
			return
		case est := <-positions:
			latest = &est
		case <-ticker.C:
			if latest == nil {
				continue
			}
			c.Observe(*latest)
		}
	}
}

// Observe processes one fused position against the active route: progress,
// deviation, re-route, arrival. Exported so tests and replays can drive the
// controller without the poll loop.
func (c *Controller) Observe(est fusion.Estimate) {
	c.mu.Lock()
	if !c.navigating || c.route == nil {
		c.mu.Unlock()
		return
	}
	route := c.route
	deviation := DistanceToPath(est.Pos, route.Nodes, c.cfg)
	offPath := deviation > c.cfg.OffPathThreshold

	var rerouted *Route
	if offPath && time.Since(c.lastReroute) >= c.cfg.RerouteCooldown() {
		if ids := c.router.RecalculateFromPosition(est.Pos, route.DestID); len(ids) > 0 {
			rerouted = c.buildRoute(ids, route.DestID, est.Pos)
			c.route = rerouted
			c.lastReroute = time.Now()
			route = rerouted
			deviation = DistanceToPath(est.Pos, route.Nodes, c.cfg)
			offPath = deviation > c.cfg.OffPathThreshold
		} else {
			log.Printf("nav: off path with no route back to %s", route.DestID)
		}
	}

	remaining, ci := remainingFrom(est.Pos, route.Nodes, c.cfg)
	arrived := remaining <= ArriveRadius
	if arrived {
		c.navigating = false
		c.route = nil
	}
	c.mu.Unlock()

	if rerouted != nil {
		log.Printf("nav: rerouted %s (deviation %.1fm)", rerouted.ID, deviation)
		c.emit(NavEvent{Kind: NavEventRerouted, Route: rerouted})
	}
	prog := &Progress{
		RouteID:    route.ID,
		Pos:        est.Pos,
		Remaining:  remaining,
		ETASeconds: remainingETA(est.Pos, route.Nodes, ci, c.cfg),
		Deviation:  deviation,
		OffPath:    offPath,
	}
	if arrived {
		c.emit(NavEvent{Kind: NavEventArrived, Route: route, Progress: prog})
		return
	}
	c.emit(NavEvent{Kind: NavEventProgress, Progress: prog})
}

func (c *Controller) buildRoute(ids []string, destID string, from fusion.Position) *Route {
	nodes := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := c.g.Node(id); ok {
			nodes = append(nodes, n)
		}
	}
	return &Route{
		ID:           "rt_" + uuid.NewString(),
		DestID:       destID,
		NodeIDs:      ids,
		Nodes:        nodes,
		Instructions: BuildInstructions(nodes, c.cfg),
		Distance:     PathDistance(nodes),
		ETASeconds:   TravelTime(nodes, c.cfg).Seconds(),
		From:         from,
	}
}

func remainingETA(p fusion.Position, nodes []Node, ci int, cfg *Config) float64 {
	if len(nodes) == 0 || ci >= len(nodes) {
		return 0
	}
	lead := p.DistanceTo(nodes[ci].Pos) / cfg.WalkSpeed
	return lead + TravelTime(nodes[ci:], cfg).Seconds()
}

func (c *Controller) emit(ev NavEvent) {
	if c.notify != nil {
		c.notify(ev)
	}
}
