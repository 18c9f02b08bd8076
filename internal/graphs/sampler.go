package graphs

import (
	"math/rand/v2"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Sampler builds layer-wise sampled adjacency operators for mini-batch training.
//
// For every layer but the last, each node aggregates over itself and at most Fanout uniformly
// sampled neighbors, producing a NumNodes x NumNodes operator. The last layer only has rows for the
// batch nodes, producing a len(batch) x NumNodes operator, so the model outputs one row per batch node.
//
// Sampled rows are row-normalized (a mean over the sampled neighborhood).
type Sampler struct {
	Graph *Graph

	// Fanout is the max number of neighbors sampled per node per layer. If <= 0 all neighbors are used.
	Fanout int

	// Seed for the sampling: together with the step number given to Sample, it fully determines the result.
	Seed uint64
}

// NewSampler creates a Sampler for graph g.
func NewSampler(g *Graph, fanout int, seed uint64) *Sampler {
	return &Sampler{Graph: g, Fanout: fanout, Seed: seed}
}

// Sample returns numLayers adjacency operators for the given batch of nodes.
// The step number is mixed in the seed, so each training step gets a different sample.
//
// Layers are sampled concurrently, each with its own random number generator.
func (s *Sampler) Sample(step int, batch []int32, numLayers int) ([]*Matrix, error) {
	if numLayers < 1 {
		return nil, errors.Errorf("Sampler.Sample requires at least 1 layer, got %d", numLayers)
	}
	for _, node := range batch {
		if node < 0 || int(node) >= s.Graph.NumNodes {
			return nil, errors.Errorf("batch node %d out of range for graph with %d nodes", node, s.Graph.NumNodes)
		}
	}
	adjs := make([]*Matrix, numLayers)
	var wg errgroup.Group
	for layerIdx := range numLayers {
		wg.Go(func() error {
			rng := rand.New(rand.NewPCG(s.Seed, uint64(step)*uint64(numLayers)+uint64(layerIdx)))
			if layerIdx == numLayers-1 {
				adjs[layerIdx] = s.sampleRows(rng, batch)
			} else {
				adjs[layerIdx] = s.sampleRows(rng, nil)
			}
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		return nil, err
	}
	klog.V(2).Infof("Sampled %d layers for step %d, batch of %d nodes", numLayers, step, len(batch))
	return adjs, nil
}

// sampleRows creates the operator for the given rows. If rows is nil, all nodes are used.
func (s *Sampler) sampleRows(rng *rand.Rand, rows []int32) *Matrix {
	numRows := len(rows)
	if rows == nil {
		numRows = s.Graph.NumNodes
	}
	adj := NewMatrix(numRows, s.Graph.NumNodes)
	for rowIdx := range numRows {
		node := int32(rowIdx)
		if rows != nil {
			node = rows[rowIdx]
		}
		neighbors := s.Graph.Neighbors(node)
		if s.Fanout > 0 && len(neighbors) > s.Fanout {
			// Partial Fisher-Yates: the first Fanout entries become a uniform sample.
			for ii := range s.Fanout {
				jj := ii + rng.IntN(len(neighbors)-ii)
				neighbors[ii], neighbors[jj] = neighbors[jj], neighbors[ii]
			}
			neighbors = neighbors[:s.Fanout]
		}
		weight := 1 / float32(len(neighbors)+1)
		adj.Set(rowIdx, int(node), weight)
		for _, neighbor := range neighbors {
			adj.Set(rowIdx, int(neighbor), weight)
		}
	}
	return adj
}
