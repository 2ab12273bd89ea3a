package nav

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/skinny-l/IndoorNavigation1-sub003/fusion"
)

// nodeRecord is the wire form of one graph node. Connections list peer ids;
// both endpoints of a link carry it, and import tolerates either side being
// missing.
type nodeRecord struct {
	ID          string   `json:"id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	Floor       int      `json:"floor"`
	Label       string   `json:"label,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Connections []string `json:"connections"`
}

// Export writes the graph as a JSON node list, sorted by id so identical
// graphs produce identical bytes.
func Export(g *Graph, w io.Writer) error {
	nodes := g.Nodes()
	recs := make([]nodeRecord, 0, len(nodes))
	for _, n := range nodes {
		conns := make([]string, 0, len(n.Edges))
		for to := range n.Edges {
			conns = append(conns, to)
		}
		sort.Strings(conns)
		kind := ""
		if n.Kind != TransitionNone {
			kind = n.Kind.String()
		}
		recs = append(recs, nodeRecord{
			ID:          n.ID,
			X:           n.Pos.X,
			Y:           n.Pos.Y,
			Floor:       n.Pos.Floor,
			Label:       n.Label,
			Kind:        kind,
			Connections: conns,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(recs)
}

// Import replaces the graph's contents with the node list read from r.
// Duplicate ids and connections to undeclared ids are errors; nothing is
// replaced when the file is bad.
func Import(g *Graph, r io.Reader) error {
	var recs []nodeRecord
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return fmt.Errorf("decode graph: %w", err)
	}
	seen := make(map[string]bool, len(recs))
	nodes := make([]Node, 0, len(recs))
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("graph node with empty id")
		}
		if seen[rec.ID] {
			return fmt.Errorf("duplicate graph node %q", rec.ID)
		}
		seen[rec.ID] = true
		nodes = append(nodes, Node{
			ID:    rec.ID,
			Label: rec.Label,
			Kind:  ParseTransition(rec.Kind),
			Pos:   fusion.Position{X: rec.X, Y: rec.Y, Floor: rec.Floor},
		})
	}

	pairSeen := map[pathKey]bool{}
	var pairs [][2]string
	for _, rec := range recs {
		for _, to := range rec.Connections {
			if !seen[to] {
				return fmt.Errorf("graph node %q connects to undeclared %q", rec.ID, to)
			}
			a, b := rec.ID, to
			if a > b {
				a, b = b, a
			}
			k := pathKey{a, b}
			if a == b || pairSeen[k] {
				continue
			}
			pairSeen[k] = true
			pairs = append(pairs, [2]string{a, b})
		}
	}
	g.Replace(nodes, pairs)
	return nil
}

// LoadGraph reads a graph file.
func LoadGraph(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer f.Close()
	g := NewGraph()
	if err := Import(g, f); err != nil {
		return nil, fmt.Errorf("graph file %s: %w", path, err)
	}
	return g, nil
}

// SaveGraph writes a graph file.
func SaveGraph(g *Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	defer f.Close()
	return Export(g, f)
}
