package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repaircost/internal/dataset"
)

func boostingFixture(t *testing.T) *dataset.Table {
	t.Helper()
	// Piecewise-constant cost in x, exactly recoverable by shallow trees.
	var rows [][]float64
	var y []float64
	for i := 0; i < 90; i++ {
		x := float64(i) / 9
		level := 200.0
		switch {
		case x > 6:
			level = 1000
		case x > 3:
			level = 550
		}
		rows = append(rows, []float64{x})
		y = append(y, level)
	}
	return contTable(t, []string{"x"}, rows, y)
}

func TestBoostingTrainErrorIsNonIncreasing(t *testing.T) {
	tbl := boostingFixture(t)
	b := NewBoostedEnsemble()
	b.NumTrees = 60
	b.LearningRate = 0.2
	b.MaxDepth = 2
	b.MinLeafSize = 2
	b.CVFolds = 0
	require.NoError(t, b.Fit(tbl))

	require.Len(t, b.TrainSSE, 60)
	for m := 1; m < len(b.TrainSSE); m++ {
		assert.LessOrEqual(t, b.TrainSSE[m], b.TrainSSE[m-1]+1e-6, "iteration %d", m)
	}
	assert.Less(t, b.TrainSSE[len(b.TrainSSE)-1], b.TrainSSE[0])
}

func TestBoostingTrainErrorMonotoneOnSkewedCells(t *testing.T) {
	// The three x=1 rows form a cell no split can separate, with responses
	// skewed far from their median. The stage step must still move the
	// cell toward its residual mean or the training error rises.
	tbl := contTable(t, []string{"x"},
		[][]float64{{1}, {1}, {1}, {10}, {11}, {12}},
		[]float64{100, 100, 1000, 5000, 5000, 5000},
	)
	b := NewBoostedEnsemble()
	b.NumTrees = 40
	b.LearningRate = 0.5
	b.MaxDepth = 4
	b.MinLeafSize = 1
	b.CVFolds = 0
	require.NoError(t, b.Fit(tbl))

	require.Len(t, b.TrainSSE, 40)
	for m := 1; m < len(b.TrainSSE); m++ {
		assert.LessOrEqual(t, b.TrainSSE[m], b.TrainSSE[m-1]+1e-6, "stage %d", m)
	}
}

func TestBoostingFirstStageIsTrainingMean(t *testing.T) {
	tbl := boostingFixture(t)
	b := NewBoostedEnsemble()
	b.NumTrees = 10
	b.MaxDepth = 2
	b.CVFolds = 0
	require.NoError(t, b.Fit(tbl))

	var mean float64
	for _, v := range tbl.Y {
		mean += v
	}
	mean /= float64(tbl.NumRows())
	assert.InDelta(t, mean, b.Base, 1e-9)

	// Truncating to zero stages leaves only the base prediction.
	preds, err := b.PredictN([][]float64{{1}, {8}}, 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{mean, mean}, preds)
}

func TestBoostingCVDiagnostic(t *testing.T) {
	tbl := boostingFixture(t)
	b := NewBoostedEnsemble()
	b.NumTrees = 30
	b.LearningRate = 0.2
	b.MaxDepth = 2
	b.MinLeafSize = 2
	b.CVFolds = 3
	b.Seed = 2
	require.NoError(t, b.Fit(tbl))

	require.Len(t, b.CVRMSE, 30)
	best := b.BestIterations()
	assert.GreaterOrEqual(t, best, 1)
	assert.LessOrEqual(t, best, 30)
	for _, v := range b.CVRMSE {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestBoostingIsDeterministic(t *testing.T) {
	tbl := boostingFixture(t)
	fit := func() []float64 {
		b := NewBoostedEnsemble()
		b.NumTrees = 20
		b.LearningRate = 0.3
		b.MaxDepth = 2
		b.CVFolds = 0
		b.Seed = 42
		require.NoError(t, b.Fit(tbl))
		preds, err := b.Predict([][]float64{{0.5}, {4.4}, {9.1}})
		require.NoError(t, err)
		return preds
	}
	assert.Equal(t, fit(), fit())
}

func TestBoostingConfigValidation(t *testing.T) {
	tbl := boostingFixture(t)

	b := NewBoostedEnsemble()
	b.NumTrees = 0
	assert.ErrorIs(t, b.Fit(tbl), ErrInvalidConfiguration)

	b = NewBoostedEnsemble()
	b.LearningRate = 0
	assert.ErrorIs(t, b.Fit(tbl), ErrInvalidConfiguration)

	b = NewBoostedEnsemble()
	b.MaxDepth = 0
	assert.ErrorIs(t, b.Fit(tbl), ErrInvalidConfiguration)

	b = NewBoostedEnsemble()
	empty := contTable(t, []string{"x"}, nil, nil)
	assert.ErrorIs(t, b.Fit(empty), ErrEmptyTrainingSet)

	b = NewBoostedEnsemble()
	require.NoError(t, b.Fit(tbl))
	_, err := b.PredictN([][]float64{{1}}, b.NumTrees+1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
