package graphs

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPath returns the graph 0-1-2-3.
func buildPath(t *testing.T) *Graph {
	g := NewGraph(4)
	require.NoError(t, g.AddEdge(0, 1))
	require.NoError(t, g.AddEdge(1, 2))
	require.NoError(t, g.AddEdge(2, 3))
	return g
}

func TestGraph(t *testing.T) {
	g := buildPath(t)
	require.NoError(t, g.AddEdge(1, 0)) // Duplicate, ignored.
	require.NoError(t, g.AddEdge(2, 2)) // Self-loop, ignored.
	assert.Equal(t, 3, g.NumEdges())
	assert.Equal(t, 2, g.Degree(1))
	assert.Equal(t, []int32{0, 2}, g.Neighbors(1))
	assert.True(t, g.HasEdge(2, 1))
	assert.False(t, g.HasEdge(0, 3))
	require.Error(t, g.AddEdge(0, 4))
}

func TestAdjacency(t *testing.T) {
	g := buildPath(t)

	adj := g.Adjacency(NormalizationRow)
	require.Equal(t, 4, adj.Rows)
	require.Equal(t, 4, adj.Cols)
	for row := range adj.Rows {
		var sum float32
		for _, v := range adj.Row(row) {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-6, "row %d", row)
	}
	assert.InDelta(t, 0.5, adj.At(0, 1), 1e-6)
	assert.InDelta(t, 1.0/3.0, adj.At(1, 2), 1e-6)
	assert.Equal(t, float32(0), adj.At(0, 3))

	sym := g.Adjacency(NormalizationSymmetric)
	// Node 0 has degree 2 (with self-loop), node 1 has degree 3.
	assert.InDelta(t, 0.5, sym.At(0, 0), 1e-6)
	assert.InDelta(t, 1/2.449489743, sym.At(0, 1), 1e-6)
	assert.InDelta(t, sym.At(0, 1), sym.At(1, 0), 1e-7)

	adjs := g.FullAdjacencies(3, NormalizationRow)
	require.Len(t, adjs, 3)
	assert.Equal(t, adj.Data, adjs[2].Data)
}

func TestSampler(t *testing.T) {
	g := NewGraph(20)
	for ii := int32(1); ii < 20; ii++ {
		require.NoError(t, g.AddEdge(0, ii)) // Star graph centered on 0.
	}
	sampler := NewSampler(g, 3, 7)
	batch := []int32{0, 5, 7}
	adjs, err := sampler.Sample(0, batch, 3)
	require.NoError(t, err)
	require.Len(t, adjs, 3)
	for _, adj := range adjs[:2] {
		assert.Equal(t, 20, adj.Rows)
		assert.Equal(t, 20, adj.Cols)
	}
	last := adjs[2]
	require.Equal(t, len(batch), last.Rows)
	require.Equal(t, 20, last.Cols)

	// Center node samples exactly 3 neighbors plus itself.
	var nonZero int
	for _, v := range last.Row(0) {
		if v != 0 {
			nonZero++
			assert.InDelta(t, 0.25, v, 1e-6)
		}
	}
	assert.Equal(t, 4, nonZero)
	assert.InDelta(t, 0.25, last.At(0, 0), 1e-6)
	// Leaf node 5: itself and the center.
	assert.InDelta(t, 0.5, last.At(1, 5), 1e-6)
	assert.InDelta(t, 0.5, last.At(1, 0), 1e-6)

	// Same step gives the same sample, different steps (very likely) different ones.
	again, err := sampler.Sample(0, batch, 3)
	require.NoError(t, err)
	assert.Equal(t, adjs[2].Data, again[2].Data)

	_, err = sampler.Sample(0, []int32{20}, 2)
	require.Error(t, err)
	_, err = sampler.Sample(0, batch, 0)
	require.Error(t, err)
}

func TestNewSynthetic(t *testing.T) {
	config := DefaultSyntheticConfig()
	config.NumNodes = 200
	ds, err := NewSynthetic(config)
	require.NoError(t, err)
	require.NoError(t, ds.Validate())
	assert.Equal(t, 200, ds.Graph.NumNodes)
	assert.Equal(t, 200, ds.Features.Rows)
	assert.Equal(t, config.FeatureDim, ds.Features.Cols)
	assert.Equal(t, 200, len(ds.Train)+len(ds.Validation)+len(ds.Test))
	assert.Greater(t, ds.Graph.NumEdges(), 0)

	// Splits are disjoint.
	seen := make(map[int32]bool)
	for _, split := range [][]int32{ds.Train, ds.Validation, ds.Test} {
		for _, node := range split {
			require.False(t, seen[node], "node %d in more than one split", node)
			seen[node] = true
		}
	}

	// Homophily: most edges connect nodes of the same class.
	var same, total int
	for node := range int32(ds.Graph.NumNodes) {
		for _, neighbor := range ds.Graph.Neighbors(node) {
			total++
			if ds.Labels[node] == ds.Labels[neighbor] {
				same++
			}
		}
	}
	assert.Greater(t, float64(same)/float64(total), 0.6)

	config.Homophily = 2
	_, err = NewSynthetic(config)
	require.Error(t, err)
}

func TestParsePlanetoid(t *testing.T) {
	content := `p1 1 0 0 Theory
p2 0 1 0 Neural_Networks
p3 0 0 1 Theory
p4 1 1 0 Genetic_Algorithms
`
	cites := `p1 p2
p2 p3
p3 p1
p4 p9
`
	ds, err := ParsePlanetoid("tiny", strings.NewReader(content), strings.NewReader(cites), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, ds.Graph.NumNodes)
	assert.Equal(t, 3, ds.Graph.NumEdges())
	assert.Equal(t, 3, ds.NumClasses)
	// Sorted class names: Genetic_Algorithms=0, Neural_Networks=1, Theory=2.
	assert.Equal(t, []int32{2, 1, 2, 0}, ds.Labels)
	assert.Equal(t, []float32{1, 1, 0}, ds.Features.Row(3))
	assert.Equal(t, 4, len(ds.Train)+len(ds.Validation)+len(ds.Test))

	_, err = ParsePlanetoid("bad", strings.NewReader("p1 x Theory\n"), strings.NewReader(""), 1)
	require.Error(t, err)
	_, err = ParsePlanetoid("dup", strings.NewReader(content+"p1 0 0 0 Theory\n"), strings.NewReader(""), 1)
	require.Error(t, err)
}

func TestMatrix(t *testing.T) {
	m, err := NewMatrixFromRows([][]float32{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)
	assert.Equal(t, float32(4), m.At(1, 1))
	selected := m.SelectRows([]int32{2, 0})
	assert.Equal(t, [][]float32{{5, 6}, {1, 2}}, selected.ToRows())
	assert.Equal(t, "Matrix(3 x 2)", m.String())
	_, err = NewMatrixFromRows([][]float32{{1, 2}, {3}})
	require.Error(t, err)

	id := Identity(3)
	assert.Equal(t, []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}, id.Data)
}

func TestSplit(t *testing.T) {
	ds := &Dataset{Graph: NewGraph(10)}
	require.NoError(t, ds.Split(rand.New(rand.NewPCG(3, 0)), 0.5, 0.3))
	assert.Len(t, ds.Train, 5)
	assert.Len(t, ds.Validation, 3)
	assert.Len(t, ds.Test, 2)
	require.Error(t, ds.Split(rand.New(rand.NewPCG(3, 0)), 0.9, 0.3))
}

func TestValidate(t *testing.T) {
	ds := &Dataset{
		Name:       "tiny",
		Graph:      buildPath(t),
		Features:   NewMatrix(4, 2),
		Labels:     []int32{0, 1, 1, 0},
		NumClasses: 2,
		Train:      []int32{0, 1},
		Validation: []int32{2},
		Test:       []int32{3},
	}
	require.NoError(t, ds.Validate())

	ds.Test = []int32{3, 0}
	require.ErrorContains(t, ds.Validate(), "train nodes")
	ds.Test = []int32{2}
	require.ErrorContains(t, ds.Validate(), "validation nodes")
	ds.Test = []int32{4}
	require.ErrorContains(t, ds.Validate(), "out of range")
	ds.Test = []int32{3}
	ds.Labels[1] = 2
	require.ErrorContains(t, ds.Validate(), "label 2")
}
