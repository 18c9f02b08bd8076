package gcn

import (
	"github.com/gomlx/gomlx/ml/context/checkpoints"
	"github.com/gomlx/gomlx/types/tensors"
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Learn performs one training step with the optimizer configured in the context (hyperparameter
// optimizers.ParamOptimizer, "adam" by default): the loss is the mean negative log-likelihood restricted
// to the batchNodes rows.
//
// It doesn't use or change the gradient accumulators. It returns the loss before the update.
func (m *Model) Learn(features *graphs.Matrix, adjacencies []*graphs.Matrix, targets, batchNodes []int32) (float32, error) {
	numOutputs, err := m.checkInputs(features, adjacencies)
	if err != nil {
		return 0, err
	}
	if err = m.checkTargets(targets, numOutputs); err != nil {
		return 0, err
	}
	if len(batchNodes) == 0 {
		return 0, errors.Wrap(ErrDimensionMismatch, "Learn requires at least one batch node")
	}
	if err = checkBatchNodes(batchNodes, numOutputs); err != nil {
		return 0, err
	}
	outputs, err := m.call(execLearn, inputTensors(features, adjacencies, targets, batchNodes))
	if err != nil {
		return 0, err
	}
	loss := tensors.ToScalar[float32](outputs[0])
	return loss, checkFinite("loss", loss)
}

// SetCheckpoint associates the model to a checkpoint directory, keeping the last keep checkpoints.
// If the directory already holds a checkpoint, its parameters and hyperparameters are loaded: the
// hyperparameters must match the model's configuration.
func (m *Model) SetCheckpoint(dir string, keep int) error {
	checkpoint, err := checkpoints.Build(m.ctx).Dir(dir).Keep(keep).Immediate().Done()
	if err != nil {
		return errors.WithMessagef(err, "failed to build checkpoint for %s in %q", m, dir)
	}
	loaded := configFromContext(m.ctx, m.Config)
	if loaded != m.Config {
		return errors.Wrapf(ErrInvalidConfiguration, "checkpoint in %q has configuration %+v, model was configured with %+v",
			dir, loaded, m.Config)
	}
	m.checkpoint = checkpoint
	klog.V(1).Infof("%s: attached to checkpoint", m)
	return nil
}

// Save the model parameters and hyperparameters to the checkpoint directory.
// It is a no-op (with a warning) if no checkpoint was set with SetCheckpoint.
func (m *Model) Save() error {
	if m.checkpoint == nil {
		klog.Warningf("This %s model is not associated to a checkpoint directory, not saving", m)
		return nil
	}
	return m.checkpoint.Save()
}
