// Package eval scores fitted estimators against a held-out table.
package eval

import (
	"fmt"
	"math"

	"repaircost/internal/dataset"
	"repaircost/internal/models"
)

// RMSE returns the root-mean-square error of the model's predictions over
// the table's rows. Pure and deterministic. The error is computed on
// whatever response scale the model was fit on; callers must not compare a
// log-scale fit against raw-scale fits.
func RMSE(m models.Model, t *dataset.Table) (float64, error) {
	if t.NumRows() == 0 {
		return 0, fmt.Errorf("rmse: no rows to score")
	}
	preds, err := m.Predict(t.X)
	if err != nil {
		return 0, err
	}
	var sum float64
	for i, p := range preds {
		d := p - t.Y[i]
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(preds))), nil
}
