// Package gcn implements a Graph Convolutional Network (GCN) for node classification, using GoMLX.
//
// The Model stacks GraphConvolution layers (neighborhood aggregation with an adjacency operator followed
// by an affine transformation), each followed by an ELU activation and dropout, and a final linear
// classifier head with a log-softmax.
//
// Besides the forward pass, the Model offers the operations needed by a training driver:
//
//   - PartialGrad: stochastic loss and gradient, accumulated into per-parameter gradient accumulators.
//   - CalculateLossGrad: loss restricted to a batch of nodes, plus the L2 norm of the accumulated gradients
//     of all parameters.
//   - CalculateF1: micro-F1 of the predictions over a batch of nodes.
//   - ZeroGrad, GradNorm, Step: manage the accumulated gradients; Step applies them with SGD.
//   - Learn: one training step using the GoMLX optimizer configured in the context.
//
// All parameters and hyperparameters are owned by the Model's GoMLX context.
// The Model does no locking: callers must serialize parameter updates (Step, ZeroGrad, Learn) with
// respect to gradient computation.
package gcn

import (
	"sync"

	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/pkg/errors"
)

var (
	// ErrDimensionMismatch is returned when features, adjacency operators, targets or batch nodes have
	// incompatible shapes.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrInvalidConfiguration is returned when the model configuration is invalid.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrNumericInstability is returned (along with the value) when a loss or norm is NaN or infinite.
	ErrNumericInstability = errors.New("numeric instability")
)

var (
	// Backend is a singleton, the same for all models.
	backend = sync.OnceValue(func() backends.Backend { return backends.New() })

	// muNewClient is a Mutex used to synchronize the creation of executors.
	muNewClient sync.Mutex
)
