// Package models implements the four regression estimators compared by the
// harness: a linear fixed-effects baseline, a single regression tree, a
// bagged tree ensemble and a residual-boosted tree ensemble. All of them
// fit on a dataset.Table and predict over encoded rows; tree-based
// estimators additionally report per-feature importance.
package models

import (
	"fmt"
	"math"

	"repaircost/internal/dataset"
)

// Model is the capability surface shared by every estimator.
type Model interface {
	Fit(t *dataset.Table) error
	Predict(X [][]float64) ([]float64, error)
	Name() string
}

// Importancer is implemented by the tree-based estimators. Scores are raw
// squared-error-reduction sums credited per feature, not normalized.
type Importancer interface {
	Importances() map[string]float64
}

// subSeed derives the k-th independent sub-stream seed from a caller seed.
// Golden-ratio stride, so parallel workers never share a stream.
func subSeed(seed int64, k int64) int64 {
	return seed + k*-0x61C8864680B583EB
}

// checkRow validates an encoded row against the schema a model was fit on.
func checkRow(schema []dataset.Feature, x []float64) error {
	if len(schema) == 0 {
		return fmt.Errorf("%w: model has not been fit", ErrSchemaMismatch)
	}
	if len(x) != len(schema) {
		return fmt.Errorf("%w: row has %d values, model was fit on %d features", ErrSchemaMismatch, len(x), len(schema))
	}
	for i, f := range schema {
		if !f.Categorical() {
			continue
		}
		v := x[i]
		if v != math.Trunc(v) || v < 0 || int(v) >= len(f.Levels) {
			return fmt.Errorf("%w: feature %q value %v outside its %d levels", ErrSchemaMismatch, f.Name, v, len(f.Levels))
		}
	}
	return nil
}
