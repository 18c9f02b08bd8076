package gcn

import (
	"slices"

	"github.com/gomlx/gomlx/ml/context"
	"github.com/gomlx/gomlx/ml/layers"
	"github.com/gomlx/gomlx/ml/train/optimizers"
	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/janpfeifer/gcnGo/internal/parameters"
	"github.com/pkg/errors"
)

// Hyperparameter keys stored in the model context, and accepted in configuration strings.
const (
	ParamHiddenDim   = "hidden_dim"
	ParamNumLayers   = "num_layers"
	ParamDropoutRate = layers.ParamDropoutRate
	ParamSeed        = "seed"
)

// Config of a GCN Model.
type Config struct {
	// InputFeatureDim is the number of features per node.
	InputFeatureDim int

	// HiddenDim is the output dimension of every graph convolution layer.
	HiddenDim int

	// NumClasses to classify nodes into: the output dimension of the classifier head.
	NumClasses int

	// NumLayers of graph convolutions. One adjacency operator per layer must be given.
	NumLayers int

	// DropoutRate applied after each graph convolution, in training mode only.
	DropoutRate float64

	// Seed for the initialization of the weights and for the dropout random number generator.
	// If 0, weights are initialized from a random seed.
	Seed int64
}

// DefaultConfig returns the default configuration for the given input and output dimensions.
func DefaultConfig(inputFeatureDim, numClasses int) Config {
	return Config{
		InputFeatureDim: inputFeatureDim,
		HiddenDim:       16,
		NumClasses:      numClasses,
		NumLayers:       2,
		DropoutRate:     0.5,
		Seed:            42,
	}
}

// Validate returns an error wrapping ErrInvalidConfiguration if any of the values is out of range.
func (c Config) Validate() error {
	switch {
	case c.InputFeatureDim < 1:
		return errors.Wrapf(ErrInvalidConfiguration, "input feature dimension must be >= 1, got %d", c.InputFeatureDim)
	case c.HiddenDim < 1:
		return errors.Wrapf(ErrInvalidConfiguration, "%s must be >= 1, got %d", ParamHiddenDim, c.HiddenDim)
	case c.NumClasses < 2:
		return errors.Wrapf(ErrInvalidConfiguration, "number of classes must be >= 2, got %d", c.NumClasses)
	case c.NumLayers < 1:
		return errors.Wrapf(ErrInvalidConfiguration, "%s must be >= 1, got %d", ParamNumLayers, c.NumLayers)
	case c.DropoutRate < 0 || c.DropoutRate >= 1:
		return errors.Wrapf(ErrInvalidConfiguration, "%s must be in [0, 1), got %g", ParamDropoutRate, c.DropoutRate)
	}
	return nil
}

// newContext creates a fresh context with the hyperparameters set from config, and the defaults
// for training.
func newContext(config Config) *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamHiddenDim:   config.HiddenDim,
		ParamNumLayers:   config.NumLayers,
		ParamDropoutRate: config.DropoutRate,
		ParamSeed:        int(config.Seed),

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.01,
		optimizers.ParamAdamEpsilon:  1e-7,
	})
	return ctx
}

// configFromContext reads back the hyperparameters from the context into config.
// The input feature dimension and the number of classes are not hyperparameters: they come with the data.
func configFromContext(ctx *context.Context, config Config) Config {
	config.HiddenDim = context.GetParamOr(ctx, ParamHiddenDim, config.HiddenDim)
	config.NumLayers = context.GetParamOr(ctx, ParamNumLayers, config.NumLayers)
	config.DropoutRate = context.GetParamOr(ctx, ParamDropoutRate, config.DropoutRate)
	config.Seed = int64(context.GetParamOr(ctx, ParamSeed, int(config.Seed)))
	return config
}

// NewFromParams creates a Model for the given input and output dimensions, with the hyperparameters
// set to their defaults and then overwritten by params.
//
// Any key in params that is not a known hyperparameter is reported as an error.
func NewFromParams(inputFeatureDim, numClasses int, params parameters.Params) (*Model, error) {
	config := DefaultConfig(inputFeatureDim, numClasses)
	ctx := newContext(config)
	if err := extractParams(params, ctx); err != nil {
		return nil, err
	}
	if len(params) > 0 {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown model parameters: %v",
			slices.Collect(generics.SortedKeys(params)))
	}
	return newWithContext(configFromContext(ctx, config), ctx)
}

// extractParams and write them as context hyperparameters.
// The parameters used are removed from params.
func extractParams(params parameters.Params, ctx *context.Context) error {
	var err error
	ctx.EnumerateParams(func(scope, key string, valueAny any) {
		if err != nil || scope != context.RootScope {
			return
		}
		switch defaultValue := valueAny.(type) {
		case string:
			err = popContextParam(ctx, params, key, defaultValue)
		case int:
			err = popContextParam(ctx, params, key, defaultValue)
		case float64:
			err = popContextParam(ctx, params, key, defaultValue)
		case float32:
			err = popContextParam(ctx, params, key, defaultValue)
		case bool:
			err = popContextParam(ctx, params, key, defaultValue)
		default:
			err = errors.Errorf("GCN model parameter %q is of unknown type %T", key, defaultValue)
		}
	})
	return err
}

// popContextParam parses key from params, if present, with the type of the current context value,
// and sets it in the context.
func popContextParam[T bool | int | float32 | float64 | string](
	ctx *context.Context, params parameters.Params, key string, defaultValue T) error {
	value, err := parameters.PopParamOr(params, key, defaultValue)
	if err != nil {
		return errors.WithMessagef(err, "parsing %q (%T) for GCN model", key, defaultValue)
	}
	ctx.SetParam(key, value)
	return nil
}
