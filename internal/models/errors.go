package models

import (
	"errors"
	"fmt"

	"repaircost/internal/dataset"
)

// ErrSchemaMismatch aliases the dataset sentinel so callers can match
// prediction-time schema failures with a single errors.Is target.
var ErrSchemaMismatch = dataset.ErrSchemaMismatch

var (
	// ErrEmptyTrainingSet is returned by Fit when given zero rows.
	ErrEmptyTrainingSet = errors.New("empty training set")

	// ErrRankDeficient is returned by the linear estimator when the design
	// matrix is not full column rank.
	ErrRankDeficient = errors.New("rank deficient design matrix")

	// ErrInvalidConfiguration is returned when an estimator's parameters
	// are unusable, e.g. a non-positive tree count or a feature subset
	// wider than the schema.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

func errConfigf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfiguration}, args...)...)
}
