package nav

import (
	"container/heap"
	"sync"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// Router answers shortest-path queries over a Graph, memoizing recent
// results. The memo is dropped whenever the graph revision moves.
type Router struct {
	g   *Graph
	cfg *Config

	mu    sync.Mutex
	cache map[pathKey][]string
	order []pathKey
	rev   uint64
}

type pathKey struct {
	from, to string
}

func NewRouter(g *Graph, cfg *Config) *Router {
	return &Router{g: g, cfg: cfg, cache: map[pathKey][]string{}}
}

// FindPath returns the cheapest node sequence from startID to endID,
// inclusive. Nil when either id is unknown or no route exists.
func (r *Router) FindPath(startID, endID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findLocked(startID, endID)
}

// RecalculateFromPosition re-routes from wherever the user actually is: the
// closest graph node is spliced into the remaining suffix of a cached path
// toward the destination when it lies on one, avoiding a fresh search.
func (r *Router) RecalculateFromPosition(p fusion.Position, destID string) []string {
	start, ok := r.g.ClosestNode(p, r.cfg.FloorPenalty)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkRev()
	for key, path := range r.cache {
		if key.to != destID {
			continue
		}
		for i, id := range path {
			if id == start.ID {
				return append([]string(nil), path[i:]...)
			}
		}
	}
	return r.findLocked(start.ID, destID)
}

func (r *Router) findLocked(startID, endID string) []string {
	r.checkRev()
	key := pathKey{startID, endID}
	if path, hit := r.cache[key]; hit {
		return append([]string(nil), path...)
	}
	path := r.search(startID, endID)
	if path != nil {
		r.store(key, path)
	}
	return append([]string(nil), path...)
}

func (r *Router) checkRev() {
	if rev := r.g.Rev(); rev != r.rev {
		r.cache = map[pathKey][]string{}
		r.order = r.order[:0]
		r.rev = rev
	}
}

func (r *Router) store(key pathKey, path []string) {
	if len(r.order) >= r.cfg.CacheSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.cache, oldest)
	}
	r.cache[key] = path
	r.order = append(r.order, key)
}

// search is plain Dijkstra over a point-in-time copy of the graph.
func (r *Router) search(startID, endID string) []string {
	nodes := r.g.Nodes()
	adj := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		adj[n.ID] = n
	}
	if _, ok := adj[startID]; !ok {
		return nil
	}
	if _, ok := adj[endID]; !ok {
		return nil
	}
	if startID == endID {
		return []string{startID}
	}

	dist := map[string]float64{startID: 0}
	prev := map[string]string{}
	done := map[string]bool{}
	pq := priorityQueue{{id: startID}}
	for len(pq) > 0 {
		cur := heap.Pop(&pq).(*pqItem)
		if done[cur.id] {
			continue
		}
		done[cur.id] = true
		if cur.id == endID {
			break
		}
		for _, e := range adj[cur.id].Edges {
			nd := cur.dist + e.Distance
			if d, seen := dist[e.To]; !seen || nd < d {
				dist[e.To] = nd
				prev[e.To] = cur.id
				heap.Push(&pq, &pqItem{id: e.To, dist: nd})
			}
		}
	}
	if !done[endID] {
		return nil
	}

	path := []string{endID}
	for cur := endID; cur != startID; {
		cur = prev[cur]
		path = append(path, cur)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

type pqItem struct {
	id    string
	dist  float64
	index int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(*pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
