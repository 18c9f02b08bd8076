package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromConfigString(t *testing.T) {
	params := NewFromConfigString("hidden_dim=32, num_layers=3,,verbose,expr=a=b")
	assert.Equal(t, Params{
		"hidden_dim": "32",
		"num_layers": "3",
		"verbose":    "",
		"expr":       "a=b",
	}, params)
	assert.Empty(t, NewFromConfigString(""))
}

func TestGetParamOr(t *testing.T) {
	params := NewFromConfigString("hidden_dim=32,dropout_rate=0.25,scale=1.5,verbose,sym=false,name=cora,bad=x,empty=")

	hiddenDim, err := GetParamOr(params, "hidden_dim", 16)
	require.NoError(t, err)
	assert.Equal(t, 32, hiddenDim)

	dropoutRate, err := GetParamOr(params, "dropout_rate", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.25, dropoutRate)

	scale, err := GetParamOr(params, "scale", float32(1))
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), scale)

	verbose, err := GetParamOr(params, "verbose", false)
	require.NoError(t, err)
	assert.True(t, verbose)

	sym, err := GetParamOr(params, "sym", true)
	require.NoError(t, err)
	assert.False(t, sym)

	name, err := GetParamOr(params, "name", "synthetic")
	require.NoError(t, err)
	assert.Equal(t, "cora", name)

	// Missing and empty values return the default.
	numLayers, err := GetParamOr(params, "num_layers", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, numLayers)
	empty, err := GetParamOr(params, "empty", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, empty)

	// Parsing errors.
	_, err = GetParamOr(params, "bad", 1)
	require.Error(t, err)
	_, err = GetParamOr(params, "bad", 1.0)
	require.Error(t, err)
	_, err = GetParamOr(params, "bad", true)
	require.Error(t, err)
}

func TestPopParamOr(t *testing.T) {
	params := NewFromConfigString("hidden_dim=32,num_layers=two")
	hiddenDim, err := PopParamOr(params, "hidden_dim", 16)
	require.NoError(t, err)
	assert.Equal(t, 32, hiddenDim)
	assert.NotContains(t, params, "hidden_dim")

	_, err = PopParamOr(params, "num_layers", 2)
	require.Error(t, err)
	assert.Contains(t, params, "num_layers", "parameters that fail to parse are not removed")
}
