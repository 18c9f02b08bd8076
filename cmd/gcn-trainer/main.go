// gcn-trainer trains a GCN node classifier on a synthetic dataset or on a Planetoid (Cora, CiteSeer)
// dataset.
//
// Each epoch it:
//  1. Shuffles the training nodes into mini-batches, and for each batch either accumulates the gradient
//     and applies one step of SGD (-accumulate), or runs one step of the optimizer configured in -model.
//  2. Computes the loss and gradient norm over all training nodes (with the full graph), as a diagnostic.
//  3. Evaluates the micro-F1 on the validation and test nodes, and prints a report line.
//  4. Saves a checkpoint, if -checkpoint is set.
//
// It can be interrupted with Ctrl+C at any time: the current epoch is finished and the model saved.
//
// See -help for flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/janpfeifer/gcnGo/internal/profilers"
	"github.com/janpfeifer/gcnGo/internal/ui/spinning"
	"github.com/janpfeifer/must"
	"golang.org/x/term"
	"k8s.io/klog/v2"
)

// Flags
var (
	flagData = flag.String("data", "synthetic",
		"Either \"synthetic\" or the path prefix of a Planetoid dataset (e.g. \"data/cora\" for the files "+
			"data/cora.content and data/cora.cites).")
	flagSynthetic = flag.String("synthetic", "", "Configuration of the synthetic dataset, e.g. "+
		"\"num_nodes=2000,num_classes=5,feature_dim=16,average_degree=8,homophily=0.9,feature_noise=3\".")
	flagModel = flag.String("model", "", "Model configuration string, e.g. "+
		"\"hidden_dim=32,num_layers=2,dropout_rate=0.5,learning_rate=0.01,optimizer=adam\".")
	flagEpochs     = flag.Int("epochs", 100, "Number of training epochs.")
	flagBatchSize  = flag.Int("batch_size", 128, "Number of training nodes per training step.")
	flagFanout     = flag.Int("fanout", 10, "Max neighbors sampled per node per layer. If <= 0 the full graph is used.")
	flagAccumulate = flag.Bool("accumulate", false, "If set, train with SGD over the accumulated gradients "+
		"(ZeroGrad, PartialGrad, Step), instead of the optimizer configured in -model.")
	flagCheckpoint = flag.String("checkpoint", "", "Directory where to save (and load from) the model.")
	flagKeep       = flag.Int("keep", 3, "Number of checkpoints to keep.")
	flagSeed       = flag.Uint64("seed", 42, "Seed for the dataset generation, split and sampling.")
	flagColor      = flag.Bool("color", true, "Use colors in the report, if the output is a terminal.")
)

// Globals
var (
	// globalCtx used everywhere. It is cancelled when the program is about to exit either by
	// an interrupt (ctrl+C) or by reaching the end.
	globalCtx = context.Background()
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	// Capture Control+C
	var globalCancel func()
	globalCtx, globalCancel = context.WithCancel(context.Background())
	stopInterrupt := spinning.SafeInterrupt(globalCancel, 30*time.Second)
	defer stopInterrupt()
	defer globalCancel()

	// Profilers: HTTP profiler server and CPU profile.
	prof := must.M1(profilers.Setup(globalCtx))
	defer prof.OnQuit()

	ds := must.M1(loadDataset())
	fmt.Println(ds)
	model := must.M1(createModel(ds))
	fmt.Printf("Model: %s\n", model)

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	must.M(trainModel(globalCtx, ds, model, *flagColor && isTerminal, isTerminal))
	if globalCtx.Err() != nil {
		klog.Infof("Training interrupted")
	}
}
