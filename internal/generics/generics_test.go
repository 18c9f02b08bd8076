package generics

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedKeys(t *testing.T) {
	m := map[int32]string{1: "1", 5: "5", 3: "3"}
	// Map iteration in Go is randomized, so we run it a bunch of times to show it is stably sorted.
	want := []int32{1, 3, 5}
	for range 100 {
		assert.Equal(t, want, slices.Collect(SortedKeys(m)))
	}
}

func TestSortedKeysAndValues(t *testing.T) {
	m := map[string]string{"hidden_dim": "16", "dropout_rate": "0.5", "num_layers": "2"}
	for range 100 {
		var keys, values []string
		for key, value := range SortedKeysAndValues(m) {
			keys = append(keys, key)
			values = append(values, value)
		}
		assert.Equal(t, []string{"dropout_rate", "hidden_dim", "num_layers"}, keys)
		assert.Equal(t, []string{"0.5", "16", "2"}, values)
	}

	// Breaking early.
	var count int
	for range SortedKeysAndValues(m) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

func TestSliceMap(t *testing.T) {
	got := SliceMap([]int32{1, 2, 3}, func(e int32) float32 { return float32(e) / 2 })
	assert.Equal(t, []float32{0.5, 1, 1.5}, got)
	assert.Empty(t, SliceMap([]int(nil), func(e int) int { return e }))
}

func TestSet(t *testing.T) {
	// Sets are created empty.
	s := MakeSet[int32](10)
	assert.Len(t, s, 0)

	// Check inserting and recovery.
	s.Insert(3, 7)
	assert.Len(t, s, 2)
	assert.True(t, s.Has(3))
	assert.True(t, s.Has(7))
	assert.False(t, s.Has(5))

	s2 := SetWith[int32](5, 7, 7)
	assert.Len(t, s2, 2)
	assert.True(t, s2.Has(5))
	assert.True(t, s2.Has(7))
	assert.False(t, s2.Has(3))

	s3 := s.Sub(s2)
	assert.Len(t, s3, 1)
	assert.True(t, s3.Has(3))
	assert.Len(t, s, 2, "Sub must not change the receiver")
}
