package graphs

import (
	"fmt"
	"math/rand/v2"

	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/pkg/errors"
)

// Dataset for node classification: a graph, its node features and labels, and the split of nodes
// into train, validation and test sets.
type Dataset struct {
	Name       string
	Graph      *Graph
	Features   *Matrix
	Labels     []int32
	NumClasses int

	Train, Validation, Test []int32
}

// String implements fmt.Stringer.
func (ds *Dataset) String() string {
	return fmt.Sprintf("%s: %d nodes, %d edges, %d features, %d classes (train=%d, validation=%d, test=%d)",
		ds.Name, ds.Graph.NumNodes, ds.Graph.NumEdges(), ds.Features.Cols, ds.NumClasses,
		len(ds.Train), len(ds.Validation), len(ds.Test))
}

// Validate the consistency of the dataset.
func (ds *Dataset) Validate() error {
	n := ds.Graph.NumNodes
	if ds.Features.Rows != n {
		return errors.Errorf("dataset %q has %d feature rows for %d nodes", ds.Name, ds.Features.Rows, n)
	}
	if len(ds.Labels) != n {
		return errors.Errorf("dataset %q has %d labels for %d nodes", ds.Name, len(ds.Labels), n)
	}
	for node, label := range ds.Labels {
		if label < 0 || int(label) >= ds.NumClasses {
			return errors.Errorf("dataset %q node %d has label %d, outside of [0, %d)", ds.Name, node, label, ds.NumClasses)
		}
	}
	for name, split := range map[string][]int32{"train": ds.Train, "validation": ds.Validation, "test": ds.Test} {
		for _, node := range split {
			if node < 0 || int(node) >= n {
				return errors.Errorf("dataset %q %s split has node %d out of range", ds.Name, name, node)
			}
		}
	}
	trainSet := generics.SetWith(ds.Train...)
	validationSet := generics.SetWith(ds.Validation...)
	testSet := generics.SetWith(ds.Test...)
	if overlap := len(trainSet) - len(trainSet.Sub(validationSet).Sub(testSet)); overlap > 0 {
		return errors.Errorf("dataset %q has %d train nodes also in the validation or test splits", ds.Name, overlap)
	}
	if overlap := len(validationSet) - len(validationSet.Sub(testSet)); overlap > 0 {
		return errors.Errorf("dataset %q has %d validation nodes also in the test split", ds.Name, overlap)
	}
	return nil
}

// Split shuffles the nodes and assigns the given fractions to train and validation: the rest goes to test.
func (ds *Dataset) Split(rng *rand.Rand, trainFraction, validationFraction float64) error {
	if trainFraction <= 0 || validationFraction < 0 || trainFraction+validationFraction > 1 {
		return errors.Errorf("invalid split fractions train=%g, validation=%g", trainFraction, validationFraction)
	}
	n := ds.Graph.NumNodes
	perm := make([]int32, n)
	for ii := range perm {
		perm[ii] = int32(ii)
	}
	rng.Shuffle(n, func(i, j int) { perm[i], perm[j] = perm[j], perm[i] })
	numTrain := int(trainFraction * float64(n))
	numValidation := int(validationFraction * float64(n))
	ds.Train = perm[:numTrain]
	ds.Validation = perm[numTrain : numTrain+numValidation]
	ds.Test = perm[numTrain+numValidation:]
	return nil
}

// SelectLabels returns the labels of the given nodes.
func (ds *Dataset) SelectLabels(nodes []int32) []int32 {
	labels := make([]int32, len(nodes))
	for ii, node := range nodes {
		labels[ii] = ds.Labels[node]
	}
	return labels
}
