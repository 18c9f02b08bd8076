// Package graphs holds the data side of node classification: the undirected Graph, node features,
// labels and splits (Dataset), and the construction of the normalized adjacency operators consumed
// by the graph convolution layers.
//
// Adjacency operators are dense Matrix values: row i holds the aggregation weights node i uses over
// its neighbors (including itself, if self-loops are enabled).
package graphs

import (
	"slices"

	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/pkg/errors"
)

// Graph is an undirected graph over nodes numbered 0 to NumNodes-1.
type Graph struct {
	NumNodes int

	neighbors []generics.Set[int32]
	numEdges  int
}

// NewGraph creates a graph with numNodes nodes and no edges.
func NewGraph(numNodes int) *Graph {
	g := &Graph{
		NumNodes:  numNodes,
		neighbors: make([]generics.Set[int32], numNodes),
	}
	for ii := range g.neighbors {
		g.neighbors[ii] = generics.MakeSet[int32]()
	}
	return g
}

// AddEdge adds the undirected edge a<->b. Duplicated edges and self-loops are ignored: self-loops are
// added (or not) when building the adjacency operators.
func (g *Graph) AddEdge(a, b int32) error {
	if a < 0 || int(a) >= g.NumNodes || b < 0 || int(b) >= g.NumNodes {
		return errors.Errorf("edge (%d, %d) out of range for graph with %d nodes", a, b, g.NumNodes)
	}
	if a == b || g.neighbors[a].Has(b) {
		return nil
	}
	g.neighbors[a].Insert(b)
	g.neighbors[b].Insert(a)
	g.numEdges++
	return nil
}

// HasEdge returns whether a and b are connected.
func (g *Graph) HasEdge(a, b int32) bool {
	return g.neighbors[a].Has(b)
}

// Degree of node, not counting self-loops.
func (g *Graph) Degree(node int32) int {
	return len(g.neighbors[node])
}

// NumEdges returns the number of undirected edges.
func (g *Graph) NumEdges() int {
	return g.numEdges
}

// Neighbors returns the sorted list of neighbors of node.
func (g *Graph) Neighbors(node int32) []int32 {
	return slices.Collect(generics.SortedKeys(g.neighbors[node]))
}
