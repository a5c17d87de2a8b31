package statistics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunningMean(t *testing.T) {
	var mean float64
	var count int64
	for _, sample := range []float64{2, 4, 9} {
		mean = RunningMean(mean, count, sample)
		count++
	}
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.Equal(t, 7.0, RunningMean(123, 0, 7))
}

func TestWeightedMean(t *testing.T) {
	assert.Equal(t, 0.0, WeightedMean(nil))
	assert.Equal(t, 0.0, WeightedMean([]MeanSample{{Mean: 5, Count: 0}}))
	assert.InDelta(t, 2.5, WeightedMean([]MeanSample{
		{Mean: 1, Count: 3},
		{Mean: 7, Count: 1},
		{Mean: 100, Count: 0},
	}), 1e-9)
}
