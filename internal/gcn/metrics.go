package gcn

import (
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"k8s.io/klog/v2"
)

// MicroF1 returns the micro-averaged F1 score of the predicted classes against the targets, restricted
// to the rows in batchNodes.
//
// Micro-averaging pools the true positives, false positives and false negatives of all classes.
// Since each node has exactly one predicted and one true class, every mistake is one false positive
// (for the predicted class) and one false negative (for the true class), so the score is the same
// as the accuracy. It returns 0 for an empty batch.
func MicroF1(predicted, targets, batchNodes []int32) float64 {
	var truePositives, falsePositives, falseNegatives int
	for _, node := range batchNodes {
		if predicted[node] == targets[node] {
			truePositives++
		} else {
			falsePositives++
			falseNegatives++
		}
	}
	if truePositives == 0 {
		return 0
	}
	return float64(2*truePositives) / float64(2*truePositives+falsePositives+falseNegatives)
}

// CalculateF1 runs the forward pass, takes the most likely class of each output node, and returns the
// micro-F1 score (see MicroF1) against the targets, restricted to the batchNodes rows.
func (m *Model) CalculateF1(features *graphs.Matrix, adjacencies []*graphs.Matrix, targets, batchNodes []int32) (float64, error) {
	numOutputs, err := m.checkInputs(features, adjacencies)
	if err != nil {
		return 0, err
	}
	if err = m.checkTargets(targets, numOutputs); err != nil {
		return 0, err
	}
	if err = checkBatchNodes(batchNodes, numOutputs); err != nil {
		return 0, err
	}
	predicted, err := m.Predict(features, adjacencies)
	if err != nil {
		return 0, err
	}
	f1 := MicroF1(predicted, targets, batchNodes)
	klog.V(2).Infof("%s: CalculateF1(%d batch nodes) f1=%.4f", m, len(batchNodes), f1)
	return f1, nil
}
