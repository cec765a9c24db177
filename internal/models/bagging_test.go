package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repaircost/internal/dataset"
)

func baggingFixture(t *testing.T) *dataset.Table {
	t.Helper()
	rng := rand.New(rand.NewSource(23))
	rows := make([][]float64, 150)
	y := make([]float64, 150)
	for i := range rows {
		rows[i] = []float64{rng.Float64() * 10, rng.Float64() * 10, rng.Float64()}
		y[i] = 100 + 60*rows[i][0] + 25*rows[i][1] + rng.NormFloat64()*15
		if y[i] < 1 {
			y[i] = 1
		}
	}
	return contTable(t, []string{"a", "b", "noise"}, rows, y)
}

func TestBaggingDeterministicAcrossWorkerCounts(t *testing.T) {
	tbl := baggingFixture(t)
	probe := [][]float64{{2, 3, 0.5}, {8, 1, 0.1}, {5, 9, 0.9}}

	fit := func(workers int) []float64 {
		b := NewBaggedEnsemble()
		b.NumTrees = 25
		b.MinLeafSize = 3
		b.Seed = 7
		b.Workers = workers
		require.NoError(t, b.Fit(tbl))
		preds, err := b.Predict(probe)
		require.NoError(t, err)
		return preds
	}

	serial := fit(1)
	parallel := fit(4)
	assert.Equal(t, serial, parallel, "worker count must not change the fit")
}

func TestBaggingPredictIsMemberMean(t *testing.T) {
	tbl := baggingFixture(t)
	b := NewBaggedEnsemble()
	b.NumTrees = 10
	b.MinLeafSize = 3
	b.Seed = 3
	require.NoError(t, b.Fit(tbl))

	probe := [][]float64{{4, 4, 0.2}}
	got, err := b.Predict(probe)
	require.NoError(t, err)

	var sum float64
	for _, dt := range b.Trees {
		p, err := dt.Predict(probe)
		require.NoError(t, err)
		sum += p[0]
	}
	assert.InDelta(t, sum/float64(len(b.Trees)), got[0], 1e-9)
}

// holdoutRMSE scores a fitted model against a held-out table. Local copy
// so the models tests stay free of an eval import cycle.
func holdoutRMSE(t *testing.T, m Model, tbl *dataset.Table) float64 {
	t.Helper()
	preds, err := m.Predict(tbl.X)
	require.NoError(t, err)
	var sum float64
	for i, p := range preds {
		d := p - tbl.Y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(preds)))
}

func TestBaggingNoWorseThanAverageMember(t *testing.T) {
	tbl := baggingFixture(t)
	train, test, err := dataset.Split(tbl, 0.3, 19)
	require.NoError(t, err)

	// Averaged over repeated seeded trials, the ensemble must score at
	// least as well on the held-out rows as its average member does.
	seeds := []int64{101, 202, 303, 404}
	var ensemble, members float64
	for _, seed := range seeds {
		b := NewBaggedEnsemble()
		b.NumTrees = 40
		b.MinLeafSize = 3
		b.Seed = seed
		require.NoError(t, b.Fit(train))
		ensemble += holdoutRMSE(t, b, test)

		var sum float64
		for _, dt := range b.Trees {
			sum += holdoutRMSE(t, dt, test)
		}
		members += sum / float64(len(b.Trees))
	}
	ensemble /= float64(len(seeds))
	members /= float64(len(seeds))
	assert.LessOrEqual(t, ensemble, members,
		"averaging bootstrap trees must not score worse than the average tree")
}

func TestBaggingRecordsBootstrapDraws(t *testing.T) {
	tbl := baggingFixture(t)
	b := NewBaggedEnsemble()
	b.NumTrees = 5
	b.Seed = 9
	require.NoError(t, b.Fit(tbl))

	require.Len(t, b.InBag, 5)
	require.Len(t, b.TreeSeeds, 5)
	for k, counts := range b.InBag {
		total := 0
		for _, c := range counts {
			total += c
		}
		assert.Equal(t, tbl.NumRows(), total, "tree %d bootstrap size", k)
	}
}

func TestBaggingOutOfBagEstimate(t *testing.T) {
	tbl := baggingFixture(t)
	b := NewBaggedEnsemble()
	b.NumTrees = 30
	b.MinLeafSize = 3
	b.Seed = 5
	require.NoError(t, b.Fit(tbl))

	assert.False(t, math.IsNaN(b.OOBRMSE))
	assert.Greater(t, b.OOBRMSE, 0.0)
}

func TestBaggingConfigValidation(t *testing.T) {
	tbl := baggingFixture(t)

	b := NewBaggedEnsemble()
	b.NumTrees = 0
	assert.ErrorIs(t, b.Fit(tbl), ErrInvalidConfiguration)

	b = NewBaggedEnsemble()
	b.FeaturesPerSplit = 4
	assert.ErrorIs(t, b.Fit(tbl), ErrInvalidConfiguration)

	b = NewBaggedEnsemble()
	empty := contTable(t, []string{"x"}, nil, nil)
	assert.ErrorIs(t, b.Fit(empty), ErrEmptyTrainingSet)
}
