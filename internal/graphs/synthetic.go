package graphs

import (
	"math/rand/v2"

	"github.com/pkg/errors"
)

// SyntheticConfig configures NewSynthetic.
type SyntheticConfig struct {
	NumNodes, NumClasses, FeatureDim int

	// AverageDegree of the generated graph.
	AverageDegree float64

	// Homophily is the probability that an edge connects two nodes of the same class.
	Homophily float64

	// FeatureNoise is the standard deviation of the gaussian noise added to the class centroid
	// to generate each node's features.
	FeatureNoise float64

	Seed uint64
}

// DefaultSyntheticConfig returns a small, easy to learn, configuration.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		NumNodes:      1000,
		NumClasses:    4,
		FeatureDim:    32,
		AverageDegree: 6,
		Homophily:     0.8,
		FeatureNoise:  2.0,
		Seed:          42,
	}
}

// NewSynthetic generates a planted-partition dataset: nodes of the same class are more likely to
// be connected (see Homophily), and node features are a noisy version of a per-class centroid.
//
// Features alone are not enough to classify well with high FeatureNoise, but aggregating over
// neighbors averages the noise out, which is what the graph convolutions exploit.
//
// Nodes are split 60% train, 20% validation and 20% test.
func NewSynthetic(config SyntheticConfig) (*Dataset, error) {
	if config.NumNodes < config.NumClasses || config.NumClasses < 2 || config.FeatureDim < 1 {
		return nil, errors.Errorf("invalid synthetic dataset configuration %+v", config)
	}
	if config.Homophily < 0 || config.Homophily > 1 {
		return nil, errors.Errorf("synthetic dataset homophily must be in [0, 1], got %g", config.Homophily)
	}
	rng := rand.New(rand.NewPCG(config.Seed, 0))
	n := config.NumNodes
	ds := &Dataset{
		Name:       "synthetic",
		Graph:      NewGraph(n),
		Features:   NewMatrix(n, config.FeatureDim),
		Labels:     make([]int32, n),
		NumClasses: config.NumClasses,
	}

	// Labels: round-robin, so all classes are represented, then shuffled.
	nodesPerClass := make([][]int32, config.NumClasses)
	for node := range n {
		ds.Labels[node] = int32(node % config.NumClasses)
	}
	rng.Shuffle(n, func(i, j int) { ds.Labels[i], ds.Labels[j] = ds.Labels[j], ds.Labels[i] })
	for node, label := range ds.Labels {
		nodesPerClass[label] = append(nodesPerClass[label], int32(node))
	}

	// Features.
	centroids := NewMatrix(config.NumClasses, config.FeatureDim)
	for ii := range centroids.Data {
		centroids.Data[ii] = float32(rng.NormFloat64())
	}
	for node, label := range ds.Labels {
		row := ds.Features.Row(node)
		centroid := centroids.Row(int(label))
		for ii := range row {
			row[ii] = centroid[ii] + float32(config.FeatureNoise*rng.NormFloat64())
		}
	}

	// Edges.
	numEdges := int(config.AverageDegree * float64(n) / 2)
	for range numEdges {
		a := int32(rng.IntN(n))
		var b int32
		if rng.Float64() < config.Homophily {
			sameClass := nodesPerClass[ds.Labels[a]]
			b = sameClass[rng.IntN(len(sameClass))]
		} else {
			b = int32(rng.IntN(n))
		}
		if err := ds.Graph.AddEdge(a, b); err != nil {
			return nil, err
		}
	}

	if err := ds.Split(rng, 0.6, 0.2); err != nil {
		return nil, err
	}
	return ds, ds.Validate()
}
