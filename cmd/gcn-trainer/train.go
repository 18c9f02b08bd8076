package main

import (
	"context"
	"math/rand/v2"
	"os"
	"slices"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/janpfeifer/gcnGo/internal/gcn"
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/janpfeifer/gcnGo/internal/ui/report"
	"github.com/janpfeifer/gcnGo/internal/ui/spinning"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// trainer holds the state of the training loop.
type trainer struct {
	ds       *graphs.Dataset
	model    *gcn.Model
	fullAdjs []*graphs.Matrix
	sampler  *graphs.Sampler
	rng      *rand.Rand

	// step counts the training steps across epochs, it seeds the sampler.
	step int
}

// trainModel runs the epoch loop until -epochs or until ctx is cancelled.
// The model is saved after each epoch, if a checkpoint was configured.
func trainModel(ctx context.Context, ds *graphs.Dataset, model *gcn.Model, color, spin bool) error {
	numLayers := model.Config.NumLayers
	t := &trainer{
		ds:       ds,
		model:    model,
		fullAdjs: ds.Graph.FullAdjacencies(numLayers, graphs.NormalizationSymmetric),
		rng:      rand.New(rand.NewPCG(*flagSeed, 1)),
	}
	if *flagFanout > 0 {
		t.sampler = graphs.NewSampler(ds.Graph, *flagFanout, *flagSeed)
	}
	if *flagBatchSize <= 0 {
		return errors.Errorf("-batch_size must be > 0, got %d", *flagBatchSize)
	}

	reporter := report.New(os.Stdout, color)
	for epoch := 1; epoch <= *flagEpochs; epoch++ {
		if ctx.Err() != nil {
			break
		}
		var spinner *spinning.Spinning
		if epoch == 1 && spin {
			// First epoch includes the compilation of the computation graphs.
			spinner = spinning.New(ctx, os.Stdout, nil, 250*time.Millisecond)
		}
		e, err := t.epoch(ctx, epoch)
		if spinner != nil {
			spinner.Done()
		}
		if err != nil {
			return err
		}
		reporter.Add(e)
		if err = model.Save(); err != nil {
			return errors.WithMessagef(err, "saving checkpoint after epoch %d", epoch)
		}
	}
	reporter.Summary(ds.Name)
	return nil
}

// epoch trains over all training nodes once, and then evaluates the model.
func (t *trainer) epoch(ctx context.Context, epochNum int) (report.Epoch, error) {
	e := report.Epoch{Epoch: epochNum}
	start := time.Now()

	trainNodes := slices.Clone(t.ds.Train)
	t.rng.Shuffle(len(trainNodes), func(i, j int) { trainNodes[i], trainNodes[j] = trainNodes[j], trainNodes[i] })
	t.model.SetTraining(true)
	var sumLoss float32
	for batch := range slices.Chunk(trainNodes, *flagBatchSize) {
		if ctx.Err() != nil {
			break
		}
		loss, err := t.trainStep(batch)
		if err != nil {
			return e, errors.WithMessagef(err, "epoch %d, step %d", epochNum, t.step)
		}
		sumLoss += loss
		e.NumSteps++
		t.step++
	}
	t.model.SetTraining(false)
	if e.NumSteps > 0 {
		e.Loss = sumLoss / float32(e.NumSteps)
	}

	var err error
	e.DiagnosticLoss, e.GradNorm, err = t.diagnostics()
	if err != nil {
		return e, err
	}
	e.ValidationF1, err = t.model.CalculateF1(t.ds.Features, t.fullAdjs, t.ds.Labels, t.ds.Validation)
	if err != nil {
		return e, err
	}
	e.TestF1, err = t.model.CalculateF1(t.ds.Features, t.fullAdjs, t.ds.Labels, t.ds.Test)
	if err != nil {
		return e, err
	}
	e.Elapsed = time.Since(start)
	return e, nil
}

// trainStep runs one training step over the batch of training nodes, and returns its loss.
func (t *trainer) trainStep(batch []int32) (loss float32, err error) {
	adjs, targets, batchNodes := t.fullAdjs, t.ds.Labels, batch
	if t.sampler != nil {
		adjs, err = t.sampler.Sample(t.step, batch, t.model.Config.NumLayers)
		if err != nil {
			return 0, err
		}
		// The sampled operators output one row per batch node.
		targets = t.ds.SelectLabels(batch)
		batchNodes = make([]int32, len(batch))
		for ii := range batchNodes {
			batchNodes[ii] = int32(ii)
		}
	}
	if !*flagAccumulate {
		return t.model.Learn(t.ds.Features, adjs, targets, batchNodes)
	}

	if err = zeroGrad(t.model); err != nil {
		return 0, err
	}
	if t.sampler != nil {
		loss, err = t.model.PartialGrad(t.ds.Features, adjs, targets)
	} else {
		loss, _, err = t.model.CalculateLossGrad(t.ds.Features, adjs, targets, batchNodes)
	}
	if err != nil {
		return loss, err
	}
	return loss, t.model.Step()
}

// diagnostics computes the loss over all training nodes, with the full graph and dropout disabled,
// and the norm of its gradient. The accumulated gradients are cleared before and after.
func (t *trainer) diagnostics() (loss, gradNorm float32, err error) {
	if err = zeroGrad(t.model); err != nil {
		return 0, 0, err
	}
	loss, gradNorm, err = t.model.CalculateLossGrad(t.ds.Features, t.fullAdjs, t.ds.Labels, t.ds.Train)
	if errors.Is(err, gcn.ErrNumericInstability) {
		klog.Warningf("Diagnostics: %v", err)
		err = nil
	}
	if err != nil {
		return 0, 0, err
	}
	return loss, gradNorm, zeroGrad(t.model)
}

// zeroGrad clears the model's accumulated gradients, converting a panic to an error.
func zeroGrad(model *gcn.Model) error {
	return exceptions.TryCatch[error](model.ZeroGrad)
}
