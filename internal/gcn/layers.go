package gcn

import (
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
)

// GraphConvolution aggregates the node features x (shaped [numInputNodes, inputDim]) over their
// neighbors with the adjacency operator (shaped [numOutputNodes, numInputNodes]), and then applies
// an affine transformation to the aggregated features.
//
// It returns the new node features shaped [numOutputNodes, outputDim].
// The variables "weights" and "biases" are created by layers.DenseWithBias, in the "dense" sub-scope of ctx.
func GraphConvolution(ctx *context.Context, x, adjacency *Node, outputDim int) *Node {
	x.AssertRank(2)
	aggregated := Dot(adjacency, x)
	return layers.DenseWithBias(ctx, aggregated, outputDim)
}

// Elu is the exponential linear unit: x if x > 0, exp(x)-1 otherwise.
func Elu(x *Node) *Node {
	zeros := ZerosLike(x)
	// Exp is taken only over the non-positive part, so the discarded branch never overflows.
	negative := Sub(Exp(Min(x, zeros)), OnesLike(x))
	return Where(GreaterThan(x, zeros), x, negative)
}

// NLLLoss returns the mean negative log-likelihood of the targets (Int32, shaped [batchSize]) given the
// log-probabilities (shaped [batchSize, numClasses]).
func NLLLoss(logProbs, targets *Node) *Node {
	logProbs.AssertRank(2)
	numClasses := logProbs.Shape().Dimensions[1]
	oneHot := OneHot(targets, numClasses, logProbs.DType())
	targetLogProbs := ReduceSum(Mul(oneHot, logProbs), -1)
	return Neg(ReduceAllMean(targetLogProbs))
}

// SelectRows gathers the given rows (Int32, shaped [batchSize]) of x, returning a tensor shaped
// [batchSize, ...] -- the remaining axes of x are kept.
func SelectRows(x, rows *Node) *Node {
	return Gather(x, ExpandAxes(rows, -1))
}
