package gcn

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/graph/graphtest"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/xla"
)

func TestElu(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	input := []float32{-1000, -1, 0, 0.5, 1000}
	outputT := graph.ExecOnce(backend, Elu, input)
	got := tensors.CopyFlatData[float32](outputT)
	want := []float32{-1, math32.Exp(-1) - 1, 0, 0.5, 1000}
	assert.InDeltaSlice(t, want, got, 1e-6)
}

func TestLogSoftmax(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	input := [][]float32{{1000, 0, -1000}, {1, 2, 3}, {0, 0, 0}}
	// Log-probabilities as computed by the model head.
	outputT := graph.ExecOnce(backend, func(logits *graph.Node) *graph.Node {
		return graph.LogSoftmax(logits, -1)
	}, input)
	got := outputT.Value().([][]float32)
	for row, logProbs := range got {
		var sum float32
		for _, logProb := range logProbs {
			require.False(t, math32.IsNaN(logProb) || math32.IsInf(logProb, 0), "row %d: %v", row, logProbs)
			sum += math32.Exp(logProb)
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "row %d: %v", row, logProbs)
	}
	assert.InDelta(t, 0, got[0][0], 1e-6)
	assert.InDelta(t, -math32.Log(3), got[2][1], 1e-6)
}

func TestNLLLoss(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	logProbs := [][]float32{
		{math32.Log(0.5), math32.Log(0.25), math32.Log(0.25)},
		{math32.Log(0.1), math32.Log(0.8), math32.Log(0.1)},
	}
	targets := []int32{0, 1}
	lossT := graph.ExecOnce(backend, NLLLoss, logProbs, targets)
	want := -(math32.Log(0.5) + math32.Log(0.8)) / 2
	assert.InDelta(t, want, tensors.ToScalar[float32](lossT), 1e-6)

	// Restricting to the second row.
	lossT = graph.ExecOnce(backend, func(logProbs, targets, rows *graph.Node) *graph.Node {
		return NLLLoss(SelectRows(logProbs, rows), SelectRows(targets, rows))
	}, logProbs, targets, []int32{1})
	assert.InDelta(t, -math32.Log(0.8), tensors.ToScalar[float32](lossT), 1e-6)
}

func TestDropout(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	const (
		numRows, numCols = 200, 100
		rate             = 0.3
	)
	ones := make([]float32, numRows*numCols)
	for ii := range ones {
		ones[ii] = 1
	}
	onesT := tensors.FromFlatDataAndDimensions(ones, numRows, numCols)

	dropout := func(training bool, rate float64) []float32 {
		ctx := context.New()
		ctx.RngStateFromSeed(7)
		outputT := context.ExecOnce(backend, ctx, func(ctx *context.Context, x *graph.Node) *graph.Node {
			ctx.SetTraining(x.Graph(), training)
			return layers.DropoutStatic(ctx, x, rate)
		}, onesT)
		return tensors.CopyFlatData[float32](outputT)
	}

	// Inference mode and rate 0 are the identity.
	assert.Equal(t, ones, dropout(false, rate))
	assert.Equal(t, ones, dropout(true, 0))

	// Training mode: zeroes with frequency ~rate, and rescales the rest.
	got := dropout(true, rate)
	var numZeros int
	for _, value := range got {
		if value == 0 {
			numZeros++
		} else {
			require.InDelta(t, 1/(1-rate), value, 1e-5)
		}
	}
	frequency := float64(numZeros) / float64(len(got))
	assert.InDelta(t, rate, frequency, 0.02, "dropout frequency %.4f, wanted ~%.2f", frequency, rate)
}

func TestGraphConvolution(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := context.New()
	x := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	// Output node 0 averages input nodes 0 and 1; output node 1 is input node 2.
	adjacency := [][]float32{{0.5, 0.5, 0}, {0, 0, 1}}
	outputT := context.ExecOnce(backend, ctx, func(ctx *context.Context, x, adjacency *graph.Node) *graph.Node {
		return GraphConvolution(ctx.In("gc"), x, adjacency, 4)
	}, x, adjacency)
	outputT.Shape().AssertDims(2, 4)

	weights := ctx.InspectVariable("/gc/dense", "weights")
	require.NotNil(t, weights)
	weights.Shape().AssertDims(2, 4)
	biases := ctx.InspectVariable("/gc/dense", "biases")
	require.NotNil(t, biases)
	biases.Shape().AssertDims(4)

	// Output row 0 is 0.5*(W[0]+W[1])+b and row 1 is W[0]+W[1]+b.
	w := weights.Value().Value().([][]float32)
	b := tensors.CopyFlatData[float32](biases.Value())
	got := outputT.Value().([][]float32)
	for col := range 4 {
		sum := w[0][col] + w[1][col]
		assert.InDelta(t, 0.5*sum+b[col], got[0][col], 1e-5)
		assert.InDelta(t, sum+b[col], got[1][col], 1e-5)
	}
}
