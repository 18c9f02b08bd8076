package main

import (
	"testing"

	"github.com/janpfeifer/gcnGo/internal/graphs"
	"github.com/janpfeifer/gcnGo/internal/parameters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticConfig(t *testing.T) {
	config, err := syntheticConfig(parameters.NewFromConfigString("num_nodes=200,homophily=0.9"))
	require.NoError(t, err)
	want := graphs.DefaultSyntheticConfig()
	want.NumNodes = 200
	want.Homophily = 0.9
	want.Seed = *flagSeed
	assert.Equal(t, want, config)

	_, err = syntheticConfig(parameters.NewFromConfigString("num_nodes=many"))
	require.Error(t, err)
	_, err = syntheticConfig(parameters.NewFromConfigString("num_edges=10"))
	require.ErrorContains(t, err, "num_edges")
}
