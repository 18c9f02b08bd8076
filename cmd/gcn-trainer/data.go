package main

import (
	"github.com/janpfeifer/gcnGo/internal/gcn"
	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/janpfeifer/gcnGo/internal/parameters"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// loadDataset generates the synthetic dataset or loads the Planetoid one, per -data.
func loadDataset() (*graphs.Dataset, error) {
	if *flagData != "synthetic" {
		if *flagSynthetic != "" {
			return nil, errors.Errorf("-synthetic can only be used with -data=synthetic")
		}
		return graphs.LoadPlanetoid(*flagData, *flagSeed)
	}
	config, err := syntheticConfig(parameters.NewFromConfigString(*flagSynthetic))
	if err != nil {
		return nil, err
	}
	return graphs.NewSynthetic(config)
}

// syntheticConfig parses the synthetic dataset configuration, starting from the defaults.
func syntheticConfig(params parameters.Params) (graphs.SyntheticConfig, error) {
	config := graphs.DefaultSyntheticConfig()
	config.Seed = *flagSeed
	var err error
	for _, field := range []struct {
		key   string
		value *int
	}{
		{"num_nodes", &config.NumNodes},
		{"num_classes", &config.NumClasses},
		{"feature_dim", &config.FeatureDim},
	} {
		if *field.value, err = parameters.PopParamOr(params, field.key, *field.value); err != nil {
			return config, err
		}
	}
	for _, field := range []struct {
		key   string
		value *float64
	}{
		{"average_degree", &config.AverageDegree},
		{"homophily", &config.Homophily},
		{"feature_noise", &config.FeatureNoise},
	} {
		if *field.value, err = parameters.PopParamOr(params, field.key, *field.value); err != nil {
			return config, err
		}
	}
	if len(params) > 0 {
		var unknown []string
		for key := range generics.SortedKeys(params) {
			unknown = append(unknown, key)
		}
		return config, errors.Errorf("unknown synthetic dataset parameters: %v", unknown)
	}
	return config, nil
}

// createModel from the -model configuration string, and attaches it to the -checkpoint directory.
func createModel(ds *graphs.Dataset) (*gcn.Model, error) {
	params := parameters.NewFromConfigString(*flagModel)
	for key, value := range generics.SortedKeysAndValues(params) {
		klog.V(1).Infof("Model parameter %s=%q", key, value)
	}
	model, err := gcn.NewFromParams(ds.Features.Cols, ds.NumClasses, params)
	if err != nil {
		return nil, err
	}
	if *flagCheckpoint != "" {
		if err = model.SetCheckpoint(*flagCheckpoint, *flagKeep); err != nil {
			return nil, err
		}
	}
	return model, nil
}
