package models

import (
	"testing"

	"github.com/stretchr/testify/require"

	"repaircost/internal/dataset"
)

// contTable builds a table of continuous features for tests.
func contTable(t *testing.T, cols []string, rows [][]float64, y []float64) *dataset.Table {
	t.Helper()
	feats := make([]dataset.Feature, len(cols))
	for i, c := range cols {
		feats[i] = dataset.Feature{Name: c, Kind: dataset.Continuous}
	}
	tbl, err := dataset.New(feats, "cost")
	require.NoError(t, err)
	for i, r := range rows {
		vals := make(map[string]any, len(cols))
		for j, c := range cols {
			vals[c] = r[j]
		}
		require.NoError(t, tbl.Add(vals, y[i]))
	}
	return tbl
}

// pavedTable is the canonical separable scenario: paved worksites cost 100,
// unpaved 500.
func pavedTable(t *testing.T) *dataset.Table {
	t.Helper()
	return contTable(t, []string{"paved"},
		[][]float64{{1}, {1}, {1}, {0}, {0}, {0}},
		[]float64{100, 100, 100, 500, 500, 500},
	)
}
