package gcn

import (
	"strings"

	"github.com/chewxy/math32"
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/graph"
	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/context/initializers"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// GradientsScope is the absolute scope where the gradient accumulators are stored: the accumulator of
// the variable "/gc_0/dense/weights" is "/gradients/gc_0/dense/weights".
const GradientsScope = "/gradients"

// accumulatorScope returns the scope of the accumulator for a variable in the given scope.
func accumulatorScope(variableScope string) string {
	if variableScope == context.RootScope {
		return GradientsScope
	}
	return GradientsScope + variableScope
}

// isAccumulator returns whether v is a gradient accumulator.
func isAccumulator(v *context.Variable) bool {
	return v.Scope() == GradientsScope || strings.HasPrefix(v.Scope(), GradientsScope+context.ScopeSeparator)
}

// trainableVariables returns the trainable variables used by the graph g.
func trainableVariables(ctx *context.Context, g *Graph) []*context.Variable {
	var vars []*context.Variable
	ctx.EnumerateVariables(func(v *context.Variable) {
		if v.Trainable && v.InUseByGraph(g) {
			vars = append(vars, v)
		}
	})
	return vars
}

// gradientAccumulator returns the accumulator for v, creating it (initialized with zeros) if needed.
func gradientAccumulator(ctx *context.Context, v *context.Variable) *context.Variable {
	return ctx.InAbsPath(accumulatorScope(v.Scope())).
		WithInitializer(initializers.Zero).
		VariableWithShape(v.Name(), v.Shape()).
		SetTrainable(false)
}

// accumulateGradients back-propagates loss to all trainable variables used in its graph, and adds
// the gradients to their accumulators. It returns the updated accumulated values.
func accumulateGradients(ctx *context.Context, loss *Node) []*Node {
	g := loss.Graph()
	vars := trainableVariables(ctx, g)
	if len(vars) == 0 {
		exceptions.Panicf("no trainable variables to back-propagate the loss to")
	}
	grads := Gradient(loss, generics.SliceMap(vars, func(v *context.Variable) *Node { return v.ValueGraph(g) })...)
	accumulated := make([]*Node, len(vars))
	for ii, v := range vars {
		accumulator := gradientAccumulator(ctx, v)
		accumulated[ii] = Add(accumulator.ValueGraph(g), grads[ii])
		accumulator.SetValueGraph(accumulated[ii])
	}
	return accumulated
}

// l2Norm returns the square root of the sum of the squares of all elements of all values.
func l2Norm(g *Graph, values []*Node) *Node {
	sumSquares := Scalar(g, dtypes.Float32, 0)
	for _, value := range values {
		sumSquares = Add(sumSquares, ReduceAllSum(Square(value)))
	}
	return Sqrt(sumSquares)
}

// accumulators returns the gradient accumulator variables created so far.
func (m *Model) accumulators() []*context.Variable {
	var vars []*context.Variable
	m.ctx.EnumerateVariables(func(v *context.Variable) {
		if isAccumulator(v) {
			vars = append(vars, v)
		}
	})
	return vars
}

// ZeroGrad resets all gradient accumulators to zero.
//
// Gradients computed by PartialGrad and CalculateLossGrad are added to the accumulators, so the
// caller is expected to call ZeroGrad before each new gradient computation (as needed).
func (m *Model) ZeroGrad() {
	for _, v := range m.accumulators() {
		v.SetValue(tensors.FromShape(v.Shape()))
	}
}

// GradNorm returns the L2 norm of the accumulated gradients of all parameters.
// It is 0 for a freshly created model, or just after ZeroGrad.
func (m *Model) GradNorm() float32 {
	var sumSquares float32
	for _, v := range m.accumulators() {
		for _, value := range tensors.CopyFlatData[float32](v.Value()) {
			sumSquares += value * value
		}
	}
	return math32.Sqrt(sumSquares)
}

// checkFinite returns an error wrapping ErrNumericInstability if value is NaN or infinite.
func checkFinite(name string, value float32) error {
	if math32.IsNaN(value) || math32.IsInf(value, 0) {
		return errors.Wrapf(ErrNumericInstability, "%s is %g", name, value)
	}
	return nil
}

// PartialGrad computes the stochastic loss and gradient: it runs the forward pass, computes the mean
// negative log-likelihood of targets (one per output node) over all output nodes, and back-propagates it,
// adding the gradients to the accumulators (see ZeroGrad).
//
// It returns the loss. If the loss is NaN or infinite, it is returned along with an error wrapping
// ErrNumericInstability.
func (m *Model) PartialGrad(features *graphs.Matrix, adjacencies []*graphs.Matrix, targets []int32) (float32, error) {
	numOutputs, err := m.checkInputs(features, adjacencies)
	if err != nil {
		return 0, err
	}
	if err = m.checkTargets(targets, numOutputs); err != nil {
		return 0, err
	}
	outputs, err := m.call(execPartialGrad, inputTensors(features, adjacencies, targets))
	if err != nil {
		return 0, err
	}
	loss := tensors.ToScalar[float32](outputs[0])
	klog.V(2).Infof("%s: PartialGrad(%d output nodes) loss=%g", m, numOutputs, loss)
	return loss, checkFinite("loss", loss)
}

// CalculateLossGrad runs the forward pass over all nodes, computes the mean negative log-likelihood
// restricted to the batchNodes rows, and back-propagates it, adding the gradients to the accumulators.
//
// It returns the loss and the L2 norm of the accumulated gradients of all parameters: the norm
// is over the full accumulators, including anything accumulated before this call.
func (m *Model) CalculateLossGrad(features *graphs.Matrix, adjacencies []*graphs.Matrix, targets, batchNodes []int32) (
	loss, gradNorm float32, err error) {
	numOutputs, err := m.checkInputs(features, adjacencies)
	if err != nil {
		return 0, 0, err
	}
	if err = m.checkTargets(targets, numOutputs); err != nil {
		return 0, 0, err
	}
	if len(batchNodes) == 0 {
		return 0, 0, errors.Wrap(ErrDimensionMismatch, "CalculateLossGrad requires at least one batch node")
	}
	if err = checkBatchNodes(batchNodes, numOutputs); err != nil {
		return 0, 0, err
	}
	outputs, err := m.call(execLossGrad, inputTensors(features, adjacencies, targets, batchNodes))
	if err != nil {
		return 0, 0, err
	}
	loss = tensors.ToScalar[float32](outputs[0])
	gradNorm = tensors.ToScalar[float32](outputs[1])
	klog.V(2).Infof("%s: CalculateLossGrad(%d batch nodes) loss=%g, grad_norm=%g", m, len(batchNodes), loss, gradNorm)
	if err = checkFinite("loss", loss); err != nil {
		return loss, gradNorm, err
	}
	return loss, gradNorm, checkFinite("gradient norm", gradNorm)
}

// Step applies one step of stochastic gradient descent with the accumulated gradients:
// each parameter p is updated to p - learning_rate * accumulated_gradient(p).
//
// The learning rate is the context hyperparameter optimizers.ParamLearningRate.
// Accumulators are not cleared: see ZeroGrad.
func (m *Model) Step() error {
	accumulators := m.accumulators()
	if len(accumulators) == 0 {
		klog.Warningf("%s: Step() called with no accumulated gradients, nothing to do", m)
		return nil
	}
	if m.stepExec == nil || m.stepNumAccumulators != len(accumulators) {
		muNewClient.Lock()
		m.stepExec = context.NewExec(backend(), m.ctx, func(ctx *context.Context, learningRate *Node) *Node {
			m.NumCompilations++
			g := learningRate.Graph()
			var numUpdated int
			ctx.EnumerateVariables(func(v *context.Variable) {
				if !v.Trainable {
					return
				}
				accumulator := ctx.InspectVariable(accumulatorScope(v.Scope()), v.Name())
				if accumulator == nil {
					return
				}
				update := Mul(ConvertDType(learningRate, v.Shape().DType), accumulator.ValueGraph(g))
				v.SetValueGraph(Sub(v.ValueGraph(g), update))
				numUpdated++
			})
			return Const(g, int32(numUpdated))
		})
		m.stepNumAccumulators = len(accumulators)
		muNewClient.Unlock()
	}
	learningRate := context.GetParamOr(m.ctx, optimizers.ParamLearningRate, 0.01)
	var numUpdated int32
	err := exceptions.TryCatch[error](func() {
		numUpdated = tensors.ToScalar[int32](m.stepExec.Call(float32(learningRate))[0])
	})
	if err != nil {
		return errors.WithMessagef(err, "%s: failed to apply gradients", m)
	}
	klog.V(2).Infof("%s: Step() updated %d parameters with learning rate %g", m, numUpdated, learningRate)
	return nil
}
