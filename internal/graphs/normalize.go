package graphs

import (
	"github.com/chewxy/math32"
)

// Normalization selects how the adjacency operator weights are computed from the graph.
type Normalization int

const (
	// NormalizationRow uses D^-1 (A+I): each node averages over itself and its neighbors.
	NormalizationRow Normalization = iota

	// NormalizationSymmetric uses D^-1/2 (A+I) D^-1/2, the renormalization of Kipf & Welling.
	NormalizationSymmetric
)

// String implements fmt.Stringer.
func (n Normalization) String() string {
	switch n {
	case NormalizationRow:
		return "row"
	case NormalizationSymmetric:
		return "symmetric"
	default:
		return "unknown"
	}
}

// Adjacency returns the dense NumNodes x NumNodes normalized adjacency operator of g, with self-loops.
func (g *Graph) Adjacency(normalization Normalization) *Matrix {
	n := g.NumNodes
	adj := NewMatrix(n, n)
	if normalization == NormalizationSymmetric {
		invSqrtDegree := make([]float32, n)
		for node := range n {
			invSqrtDegree[node] = 1 / math32.Sqrt(float32(g.Degree(int32(node))+1))
		}
		for node := range n {
			adj.Set(node, node, invSqrtDegree[node]*invSqrtDegree[node])
			for neighbor := range g.neighbors[node] {
				adj.Set(node, int(neighbor), invSqrtDegree[node]*invSqrtDegree[neighbor])
			}
		}
		return adj
	}

	for node := range n {
		weight := 1 / float32(g.Degree(int32(node))+1)
		adj.Set(node, node, weight)
		for neighbor := range g.neighbors[node] {
			adj.Set(node, int(neighbor), weight)
		}
	}
	return adj
}

// FullAdjacencies returns numLayers references to the same full-graph operator: used for full-batch
// evaluation, where no sampling takes place.
func (g *Graph) FullAdjacencies(numLayers int, normalization Normalization) []*Matrix {
	adj := g.Adjacency(normalization)
	adjs := make([]*Matrix, numLayers)
	for ii := range adjs {
		adjs[ii] = adj
	}
	return adjs
}
