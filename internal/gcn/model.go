package gcn

import (
	"fmt"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/train"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Model is a GCN for node classification.
//
// Its parameters live in its context: graph convolution layer i in scope "/gc_<i>/dense", and the classifier
// head in scope "/linear/dense", each with variables "weights" (Glorot initialized) and "biases" (zeros).
// Gradient accumulators are stored under GradientsScope.
type Model struct {
	Config Config

	// ctx holds the weights and hyperparameters.
	ctx *context.Context

	// training mode enables dropout.
	training bool

	// Executors, lazily created, per kind and per training mode.
	execs [numExecKinds][2]*context.Exec

	// stepExec applies the accumulated gradients, and is rebuilt whenever the set of accumulators changes.
	stepExec            *context.Exec
	stepNumAccumulators int

	// optimizer used by Learn.
	optimizer optimizers.Interface

	// checkpoint handler, if model is being saved/loaded to/from disk.
	checkpoint *checkpoints.Handler

	// NumCompilations of computation graphs.
	NumCompilations int
}

type execKind int

const (
	execForward execKind = iota
	execPredict
	execPartialGrad
	execLossGrad
	execLearn
	numExecKinds
)

// New creates a GCN model with fresh (randomly initialized) parameters.
//
// The parameters are only materialized at the first call that builds a computation graph.
func New(config Config) (*Model, error) {
	return newWithContext(config, newContext(config))
}

func newWithContext(config Config, ctx *context.Context) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		Config: config,
		ctx:    ctx.Checked(false),
	}
	m.ctx.SetParam(initializers.ParamInitialSeed, config.Seed)
	m.ctx = m.ctx.WithInitializer(initializers.GlorotUniformFn(m.ctx))
	m.ctx.RngStateFromSeed(config.Seed)
	m.optimizer = optimizers.FromContext(m.ctx)
	klog.V(1).Infof("Created model %s", m)
	return m, nil
}

// Context used by the model: with both its weights and hyperparameters.
func (m *Model) Context() *context.Context {
	return m.ctx
}

// String implements fmt.Stringer.
func (m *Model) String() string {
	if m == nil {
		return "<nil>[GCN]"
	}
	desc := fmt.Sprintf("GCN(layers=%d, features=%d, hidden=%d, classes=%d, dropout=%g)",
		m.Config.NumLayers, m.Config.InputFeatureDim, m.Config.HiddenDim, m.Config.NumClasses, m.Config.DropoutRate)
	if m.checkpoint != nil {
		desc = fmt.Sprintf("%s@%s", desc, m.checkpoint.Dir())
	}
	return desc
}

// SetTraining sets the model in training mode (dropout enabled) or inference mode.
// Models are created in inference mode.
func (m *Model) SetTraining(training bool) {
	m.training = training
}

// IsTraining returns whether the model is in training mode.
func (m *Model) IsTraining() bool {
	return m.training
}

// Reseed resets the state of the random number generator used by dropout.
func (m *Model) Reseed(seed int64) {
	m.ctx.RngStateFromSeed(seed)
}

// ForwardGraph builds the forward pass: for each layer, GraphConvolution, Elu and dropout, followed by
// the linear classifier head and a log-softmax over the classes.
//
// Dropout only happens if the graph is in training mode (see context.Context.SetTraining).
//
// It returns the log-probabilities shaped [numOutputNodes, NumClasses], where numOutputNodes is the
// number of rows of the last adjacency operator.
func (m *Model) ForwardGraph(ctx *context.Context, features *Node, adjacencies []*Node) *Node {
	if len(adjacencies) != m.Config.NumLayers {
		exceptions.Panicf("GCN with %d layers given %d adjacency operators: %v",
			m.Config.NumLayers, len(adjacencies), ErrDimensionMismatch)
	}
	x := features
	for layerIdx, adjacency := range adjacencies {
		x = GraphConvolution(ctx.In(fmt.Sprintf("gc_%d", layerIdx)), x, adjacency, m.Config.HiddenDim)
		x = Elu(x)
		x = layers.DropoutStatic(ctx, x, m.Config.DropoutRate)
	}
	logits := layers.DenseWithBias(ctx.In("linear"), x, m.Config.NumClasses)
	return LogSoftmax(logits, -1)
}

// splitInputs separates the features and the adjacency operators from the remaining inputs of an executor.
func (m *Model) splitInputs(inputs []*Node) (features *Node, adjacencies []*Node, rest []*Node) {
	numLayers := m.Config.NumLayers
	return inputs[0], inputs[1 : 1+numLayers], inputs[1+numLayers:]
}

// exec returns the executor of the given kind for the current training mode, creating it if needed.
func (m *Model) exec(kind execKind) *context.Exec {
	mode := 0
	if m.training {
		mode = 1
	}
	if e := m.execs[kind][mode]; e != nil {
		return e
	}
	muNewClient.Lock()
	defer muNewClient.Unlock()
	training := m.training
	var e *context.Exec
	switch kind {
	case execForward:
		e = context.NewExec(backend(), m.ctx, func(ctx *context.Context, inputs []*Node) *Node {
			m.NumCompilations++
			ctx.SetTraining(inputs[0].Graph(), training)
			features, adjacencies, _ := m.splitInputs(inputs)
			return m.ForwardGraph(ctx, features, adjacencies)
		})
	case execPredict:
		e = context.NewExec(backend(), m.ctx, func(ctx *context.Context, inputs []*Node) *Node {
			m.NumCompilations++
			ctx.SetTraining(inputs[0].Graph(), training)
			features, adjacencies, _ := m.splitInputs(inputs)
			return ArgMax(m.ForwardGraph(ctx, features, adjacencies), 1, dtypes.Int32)
		})
	case execPartialGrad:
		e = context.NewExec(backend(), m.ctx, func(ctx *context.Context, inputs []*Node) *Node {
			m.NumCompilations++
			ctx.SetTraining(inputs[0].Graph(), training)
			features, adjacencies, rest := m.splitInputs(inputs)
			targets := rest[0]
			loss := NLLLoss(m.ForwardGraph(ctx, features, adjacencies), targets)
			accumulateGradients(ctx, loss)
			return loss
		})
	case execLossGrad:
		e = context.NewExec(backend(), m.ctx, func(ctx *context.Context, inputs []*Node) []*Node {
			m.NumCompilations++
			ctx.SetTraining(inputs[0].Graph(), training)
			features, adjacencies, rest := m.splitInputs(inputs)
			targets, batchNodes := rest[0], rest[1]
			logProbs := m.ForwardGraph(ctx, features, adjacencies)
			loss := NLLLoss(SelectRows(logProbs, batchNodes), SelectRows(targets, batchNodes))
			accumulated := accumulateGradients(ctx, loss)
			return []*Node{loss, l2Norm(loss.Graph(), accumulated)}
		})
	case execLearn:
		e = context.NewExec(backend(), m.ctx, func(ctx *context.Context, inputs []*Node) *Node {
			m.NumCompilations++
			g := inputs[0].Graph()
			ctx.SetTraining(g, training)
			features, adjacencies, rest := m.splitInputs(inputs)
			targets, batchNodes := rest[0], rest[1]
			logProbs := m.ForwardGraph(ctx, features, adjacencies)
			loss := NLLLoss(SelectRows(logProbs, batchNodes), SelectRows(targets, batchNodes))
			m.optimizer.UpdateGraph(ctx, g, loss)
			train.ExecPerStepUpdateGraphFn(ctx, g)
			return loss
		})
	default:
		exceptions.Panicf("unknown executor kind %d", kind)
	}
	klog.V(1).Infof("%s: created executor #%d (training=%v)", m, kind, training)
	m.execs[kind][mode] = e
	return e
}

// call the executor of the given kind with the given tensors, converting panics to errors.
func (m *Model) call(kind execKind, inputs []*tensors.Tensor) (outputs []*tensors.Tensor, err error) {
	e := m.exec(kind)
	args := generics.SliceMap(inputs, func(t *tensors.Tensor) any { return t })
	err = exceptions.TryCatch[error](func() {
		outputs = e.Call(args...)
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: failed to execute computation", m)
	}
	return outputs, nil
}

// checkInputs validates the shapes of features and adjacency operators, and returns the number of
// output nodes (rows of the last adjacency operator).
func (m *Model) checkInputs(features *graphs.Matrix, adjacencies []*graphs.Matrix) (numOutputs int, err error) {
	if features == nil {
		return 0, errors.Wrap(ErrDimensionMismatch, "features not given")
	}
	if len(features.Data) != features.Rows*features.Cols {
		return 0, errors.Wrapf(ErrDimensionMismatch, "features %s has %d values", features, len(features.Data))
	}
	if features.Cols != m.Config.InputFeatureDim {
		return 0, errors.Wrapf(ErrDimensionMismatch, "features have %d columns, model expects %d",
			features.Cols, m.Config.InputFeatureDim)
	}
	if len(adjacencies) != m.Config.NumLayers {
		return 0, errors.Wrapf(ErrDimensionMismatch, "model has %d layers but %d adjacency operators were given",
			m.Config.NumLayers, len(adjacencies))
	}
	numInputs := features.Rows
	for layerIdx, adj := range adjacencies {
		if adj == nil {
			return 0, errors.Wrapf(ErrDimensionMismatch, "adjacency operator for layer %d not given", layerIdx)
		}
		if len(adj.Data) != adj.Rows*adj.Cols {
			return 0, errors.Wrapf(ErrDimensionMismatch, "adjacency operator %s for layer %d has %d values",
				adj, layerIdx, len(adj.Data))
		}
		if adj.Cols != numInputs {
			return 0, errors.Wrapf(ErrDimensionMismatch, "adjacency operator %s for layer %d, expected %d columns",
				adj, layerIdx, numInputs)
		}
		numInputs = adj.Rows
	}
	return numInputs, nil
}

// checkTargets validates targets against the number of output nodes.
func (m *Model) checkTargets(targets []int32, numOutputs int) error {
	if len(targets) != numOutputs {
		return errors.Wrapf(ErrDimensionMismatch, "%d targets given for %d output nodes", len(targets), numOutputs)
	}
	for ii, target := range targets {
		if target < 0 || int(target) >= m.Config.NumClasses {
			return errors.Wrapf(ErrDimensionMismatch, "target #%d is %d, outside of [0, %d)", ii, target, m.Config.NumClasses)
		}
	}
	return nil
}

// checkBatchNodes validates the batch nodes against the number of output nodes.
func checkBatchNodes(batchNodes []int32, numOutputs int) error {
	for ii, node := range batchNodes {
		if node < 0 || int(node) >= numOutputs {
			return errors.Wrapf(ErrDimensionMismatch, "batch node #%d is %d, outside of [0, %d)", ii, node, numOutputs)
		}
	}
	return nil
}

// matrixToTensor converts a graphs.Matrix to a tensor shaped [Rows, Cols].
func matrixToTensor(m *graphs.Matrix) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(m.Data, m.Rows, m.Cols)
}

// inputTensors converts the features and adjacencies, followed by the optional int32 slices.
func inputTensors(features *graphs.Matrix, adjacencies []*graphs.Matrix, extra ...[]int32) []*tensors.Tensor {
	inputs := make([]*tensors.Tensor, 0, 1+len(adjacencies)+len(extra))
	inputs = append(inputs, matrixToTensor(features))
	for _, adj := range adjacencies {
		inputs = append(inputs, matrixToTensor(adj))
	}
	for _, values := range extra {
		inputs = append(inputs, tensors.FromFlatDataAndDimensions(values, len(values)))
	}
	return inputs
}

// Forward returns the log-probabilities of each class for each output node, shaped
// [numOutputNodes, NumClasses], where numOutputNodes is the number of rows of the last adjacency operator.
//
// It returns an error wrapping ErrDimensionMismatch if the shapes of the features and adjacency operators
// are not compatible with each other and with the model.
func (m *Model) Forward(features *graphs.Matrix, adjacencies []*graphs.Matrix) (*graphs.Matrix, error) {
	if _, err := m.checkInputs(features, adjacencies); err != nil {
		return nil, err
	}
	outputs, err := m.call(execForward, inputTensors(features, adjacencies))
	if err != nil {
		return nil, err
	}
	logProbsT := outputs[0]
	dims := logProbsT.Shape().Dimensions
	return &graphs.Matrix{Rows: dims[0], Cols: dims[1], Data: tensors.CopyFlatData[float32](logProbsT)}, nil
}

// Predict returns the most likely class for each output node.
func (m *Model) Predict(features *graphs.Matrix, adjacencies []*graphs.Matrix) ([]int32, error) {
	if _, err := m.checkInputs(features, adjacencies); err != nil {
		return nil, err
	}
	outputs, err := m.call(execPredict, inputTensors(features, adjacencies))
	if err != nil {
		return nil, err
	}
	return tensors.CopyFlatData[int32](outputs[0]), nil
}
