package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"github.com/skinny-l/IndoorNavigation1-sub003/nav"
)

func main() {
	graphPath := flag.String("graph", "", "Navigation graph JSON to check")
	write := flag.Bool("write", false, "Rewrite the file with normalized ordering")
	from := flag.String("from", "", "Optional route test: start node id")
	to := flag.String("to", "", "Optional route test: destination node id")
	flag.Parse()

	if *graphPath == "" {
		log.Fatal("-graph required")
	}

	g, err := nav.LoadGraph(*graphPath)
	if err != nil {
		log.Fatalf("load graph: %v", err)
	}

	nodes := g.Nodes()
	conns := 0
	floors := map[int]int{}
	var isolated []string
	for _, n := range nodes {
		conns += len(n.Edges)
		floors[n.Pos.Floor]++
		if len(n.Edges) == 0 {
			isolated = append(isolated, n.ID)
		}
	}

	fmt.Printf("graph OK: %d nodes, %d connections\n", len(nodes), conns/2)
	floorIdx := make([]int, 0, len(floors))
	for f := range floors {
		floorIdx = append(floorIdx, f)
	}
	sort.Ints(floorIdx)
	for _, f := range floorIdx {
		fmt.Printf("  floor %d: %d nodes\n", f, floors[f])
	}
	fmt.Printf("  components: %d\n", componentCount(nodes))
	if len(isolated) > 0 {
		fmt.Printf("  isolated: %v\n", isolated)
	}

	if *from != "" && *to != "" {
		printRoute(g, *from, *to)
	}

	if *write {
		if err := nav.SaveGraph(g, *graphPath); err != nil {
			log.Fatalf("rewrite graph: %v", err)
		}
		fmt.Printf("rewrote %s\n", *graphPath)
	}
}

func componentCount(nodes []nav.Node) int {
	seen := map[string]bool{}
	adj := map[string][]string{}
	for _, n := range nodes {
		for to := range n.Edges {
			adj[n.ID] = append(adj[n.ID], to)
		}
	}
	count := 0
	for _, n := range nodes {
		if seen[n.ID] {
			continue
		}
		count++
		queue := []string{n.ID}
		seen[n.ID] = true
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			for _, next := range adj[id] {
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return count
}

func printRoute(g *nav.Graph, from, to string) {
	cfg := nav.DefaultConfig()
	router := nav.NewRouter(g, cfg)
	ids := router.FindPath(from, to)
	if len(ids) == 0 {
		log.Fatalf("no route from %s to %s", from, to)
	}
	nodes := make([]nav.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.Node(id); ok {
			nodes = append(nodes, n)
		}
	}
	fmt.Printf("route %s -> %s: %d hops, %.1fm, ~%.0fs\n",
		from, to, len(ids)-1, nav.PathDistance(nodes), nav.TravelTime(nodes, cfg).Seconds())
	for _, ins := range nav.BuildInstructions(nodes, cfg) {
		fmt.Printf("  %6.1fm  %s\n", ins.Distance, ins.Text)
	}
}
