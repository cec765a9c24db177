package models

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repaircost/internal/dataset"
)

func TestLinearRecoversExactCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	rows := make([][]float64, 40)
	y := make([]float64, 40)
	for i := range rows {
		rows[i] = []float64{rng.Float64() * 10, rng.Float64() * 4}
		y[i] = 120 + 7*rows[i][0] + 3*rows[i][1]
	}
	tbl := contTable(t, []string{"length_km", "slope_pct"}, rows, y)

	l := NewLinearEstimator()
	l.LogResponse = false
	require.NoError(t, l.Fit(tbl))

	require.Len(t, l.Coefs, 3)
	assert.InDelta(t, 120, l.Coefs[0], 1e-8)
	assert.InDelta(t, 7, l.Coefs[1], 1e-8)
	assert.InDelta(t, 3, l.Coefs[2], 1e-8)

	preds, err := l.Predict([][]float64{{2, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 120+14+3, preds[0], 1e-8)
}

func linearFixtureWithBasin(t *testing.T) *dataset.Table {
	t.Helper()
	feats := []dataset.Feature{
		{Name: "basin", Kind: dataset.Nominal, Levels: []string{"a", "b", "c"}},
		{Name: "length_km", Kind: dataset.Continuous},
	}
	tbl, err := dataset.New(feats, "cost")
	require.NoError(t, err)
	shift := map[string]float64{"a": 0, "b": 50, "c": 200}
	for i := 0; i < 12; i++ {
		for _, basin := range []string{"a", "b", "c"} {
			x := float64(i) + 1
			require.NoError(t, tbl.Add(
				map[string]any{"basin": basin, "length_km": x},
				300+5*x+shift[basin],
			))
		}
	}
	return tbl
}

func TestLinearFixedEffects(t *testing.T) {
	tbl := linearFixtureWithBasin(t)
	l := NewLinearEstimator()
	l.LogResponse = false
	require.NoError(t, l.Fit(tbl))

	// Columns: intercept, basin=b, basin=c, length_km. The reference
	// level "a" is absorbed by the intercept.
	coefs := l.Coefficients()
	require.Len(t, coefs, 4)
	assert.Equal(t, "(intercept)", coefs[0].Label)
	assert.Equal(t, "basin=b", coefs[1].Label)
	assert.Equal(t, "basin=c", coefs[2].Label)
	assert.Equal(t, "length_km", coefs[3].Label)

	assert.InDelta(t, 300, coefs[0].Estimate, 1e-8)
	assert.InDelta(t, 50, coefs[1].Estimate, 1e-8)
	assert.InDelta(t, 200, coefs[2].Estimate, 1e-8)
	assert.InDelta(t, 5, coefs[3].Estimate, 1e-8)
}

func TestLinearLogResponseScale(t *testing.T) {
	rows := make([][]float64, 30)
	y := make([]float64, 30)
	for i := range rows {
		x := float64(i) / 3
		rows[i] = []float64{x}
		y[i] = math.Exp(2 + 0.5*x)
	}
	tbl := contTable(t, []string{"x"}, rows, y)

	l := NewLinearEstimator()
	require.NoError(t, l.Fit(tbl))
	require.Len(t, l.Coefs, 2)
	assert.InDelta(t, 2, l.Coefs[0], 1e-8)
	assert.InDelta(t, 0.5, l.Coefs[1], 1e-8)

	// Predictions stay on the log scale.
	preds, err := l.Predict([][]float64{{4}})
	require.NoError(t, err)
	assert.InDelta(t, 2+0.5*4, preds[0], 1e-8)
}

func TestLinearRejectsCollinearDesign(t *testing.T) {
	rows := make([][]float64, 20)
	y := make([]float64, 20)
	for i := range rows {
		x := float64(i)
		rows[i] = []float64{x, x} // identical columns
		y[i] = 10 + x
	}
	tbl := contTable(t, []string{"a", "a_copy"}, rows, y)

	l := NewLinearEstimator()
	l.LogResponse = false
	assert.ErrorIs(t, l.Fit(tbl), ErrRankDeficient)
}

func TestLinearRejectsUnderdeterminedFit(t *testing.T) {
	tbl := contTable(t, []string{"a", "b", "c"},
		[][]float64{{1, 2, 3}, {4, 5, 6}}, []float64{10, 20})
	l := NewLinearEstimator()
	assert.ErrorIs(t, l.Fit(tbl), ErrRankDeficient)
}

func TestLinearClusterRobustErrors(t *testing.T) {
	tbl := linearFixtureWithBasin(t)
	l := NewLinearEstimator()
	l.LogResponse = false
	l.ClusterBy = "basin"
	require.NoError(t, l.Fit(tbl))

	require.Len(t, l.StdErr, len(l.Coefs))
	for j, se := range l.StdErr {
		assert.False(t, math.IsNaN(se), "column %d", j)
		assert.GreaterOrEqual(t, se, 0.0)
	}
}

func TestLinearClusterByMustBeCategorical(t *testing.T) {
	tbl := linearFixtureWithBasin(t)
	l := NewLinearEstimator()
	l.ClusterBy = "length_km"
	assert.ErrorIs(t, l.Fit(tbl), ErrSchemaMismatch)
}

func TestLinearInteractionTerms(t *testing.T) {
	tbl := linearFixtureWithBasin(t)
	l := NewLinearEstimator()
	l.LogResponse = false
	l.Interactions = [][2]string{{"basin", "length_km"}}
	require.NoError(t, l.Fit(tbl))

	labels := make([]string, 0, len(l.Terms))
	for _, tm := range l.Terms {
		labels = append(labels, tm.Label)
	}
	assert.Contains(t, labels, "basin=b:length_km")
	assert.Contains(t, labels, "basin=c:length_km")
}

func TestLinearUnknownInteractionFeature(t *testing.T) {
	tbl := linearFixtureWithBasin(t)
	l := NewLinearEstimator()
	l.Interactions = [][2]string{{"basin", "no_such"}}
	assert.ErrorIs(t, l.Fit(tbl), ErrSchemaMismatch)
}

func TestLinearEmptyTrainingSet(t *testing.T) {
	tbl := contTable(t, []string{"x"}, nil, nil)
	l := NewLinearEstimator()
	assert.ErrorIs(t, l.Fit(tbl), ErrEmptyTrainingSet)
}

func TestLinearPredictBeforeFit(t *testing.T) {
	l := NewLinearEstimator()
	_, err := l.Predict([][]float64{{1}})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
