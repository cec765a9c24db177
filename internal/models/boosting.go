package models

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"repaircost/internal/dataset"
)

// BoostedEnsemble fits depth-bounded regression trees to the running
// residual of the prior stages, shrinking each stage by LearningRate. The
// first stage is the training mean and the stage trees predict leaf means
// of the residual, so training error never rises across stages. The main
// fit is strictly sequential; only the cross-validation folds of the
// stopping diagnostic run in parallel.
type BoostedEnsemble struct {
	NumTrees     int
	LearningRate float64
	MaxDepth     int
	MinLeafSize  int
	CVFolds      int // <2 skips the CV diagnostic
	Seed         int64
	Workers      int // fold parallelism; <=0 uses GOMAXPROCS

	Base     float64
	Trees    []*RegressionTree
	TrainSSE []float64 // training sum of squared residuals after each stage
	CVRMSE   []float64 // validation RMSE per iteration count, from CVFolds

	Schema []dataset.Feature
}

// NewBoostedEnsemble returns an ensemble with the harness defaults.
func NewBoostedEnsemble() *BoostedEnsemble {
	return &BoostedEnsemble{NumTrees: 100, LearningRate: 0.1, MaxDepth: 3, MinLeafSize: 5, CVFolds: 5}
}

func (b *BoostedEnsemble) Name() string { return "BoostedEnsemble" }

// Fit runs the sequential boost on the full training table, then reruns
// the same sequence per CV fold to fill CVRMSE.
func (b *BoostedEnsemble) Fit(t *dataset.Table) error {
	if t.NumRows() == 0 {
		return ErrEmptyTrainingSet
	}
	if b.NumTrees <= 0 {
		return errConfigf("num trees %d must be positive", b.NumTrees)
	}
	if b.LearningRate <= 0 {
		return errConfigf("learning rate %v must be positive", b.LearningRate)
	}
	if b.MaxDepth < 1 {
		return errConfigf("max depth %d must be at least 1", b.MaxDepth)
	}
	b.Schema = t.Features

	base, trees, trainSSE, err := b.boost(t, t.Y, b.Seed, nil)
	if err != nil {
		return err
	}
	b.Base = base
	b.Trees = trees
	b.TrainSSE = trainSSE

	if b.CVFolds >= 2 {
		if err := b.crossValidate(t); err != nil {
			return err
		}
	} else {
		b.CVRMSE = nil
	}
	return nil
}

// boost runs the residual loop on the given rows. When holdout is
// non-empty, per-iteration holdout SSE is returned alongside; the residual
// vector is carried explicitly between iterations.
func (b *BoostedEnsemble) boost(t *dataset.Table, y []float64, seed int64, holdout *dataset.Table) (base float64, trees []*RegressionTree, sse []float64, err error) {
	n := len(y)
	base = 0
	for _, v := range y {
		base += v
	}
	base /= float64(n)

	res := make([]float64, n)
	for i := range res {
		res[i] = y[i] - base
	}
	var heldPred []float64
	if holdout != nil {
		heldPred = make([]float64, holdout.NumRows())
		for i := range heldPred {
			heldPred[i] = base
		}
	}

	trees = make([]*RegressionTree, 0, b.NumTrees)
	sse = make([]float64, 0, b.NumTrees)
	for m := 0; m < b.NumTrees; m++ {
		dt := &RegressionTree{
			MaxDepth:    b.MaxDepth,
			MinLeafSize: b.MinLeafSize,
			Cp:          0,
			Seed:        subSeed(seed, int64(m+1)),
			leafMean:    true,
		}
		if err := dt.fitTargets(t, res); err != nil {
			return 0, nil, nil, err
		}
		step, err := dt.Predict(t.X)
		if err != nil {
			return 0, nil, nil, err
		}
		var s float64
		for i := range res {
			res[i] -= b.LearningRate * step[i]
			s += res[i] * res[i]
		}
		trees = append(trees, dt)
		if holdout != nil {
			hp, err := dt.Predict(holdout.X)
			if err != nil {
				return 0, nil, nil, err
			}
			s = 0
			for i := range heldPred {
				heldPred[i] += b.LearningRate * hp[i]
				d := heldPred[i] - holdout.Y[i]
				s += d * d
			}
		}
		sse = append(sse, s)
	}
	return base, trees, sse, nil
}

// crossValidate refits the boost sequence on each fold complement and
// aggregates held-out error per iteration count. Folds are independent and
// run in parallel with per-fold sub-seeds.
func (b *BoostedEnsemble) crossValidate(t *dataset.Table) error {
	n := t.NumRows()
	if n < b.CVFolds {
		return errConfigf("%d rows cannot fill %d folds", n, b.CVFolds)
	}
	assign := dataset.Folds(n, b.CVFolds, subSeed(b.Seed, 7001))
	foldSSE := make([][]float64, b.CVFolds)

	var eg errgroup.Group
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for f := 0; f < b.CVFolds; f++ {
		eg.Go(func() error {
			var trainRows []int
			for g, rows := range assign {
				if g != f {
					trainRows = append(trainRows, rows...)
				}
			}
			sub := t.Subset(trainRows)
			held := t.Subset(assign[f])
			_, _, heldSSE, err := b.boost(sub, sub.Y, subSeed(b.Seed, int64(8000+f)), held)
			if err != nil {
				return err
			}
			foldSSE[f] = heldSSE
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	b.CVRMSE = make([]float64, b.NumTrees)
	for m := 0; m < b.NumTrees; m++ {
		var total float64
		for f := 0; f < b.CVFolds; f++ {
			total += foldSSE[f][m]
		}
		b.CVRMSE[m] = math.Sqrt(total / float64(n))
	}
	return nil
}

// BestIterations returns the iteration count that minimizes the CV error
// curve, or 0 when the diagnostic was skipped. It is advisory; Predict
// always uses the full sequence, PredictN applies a truncation.
func (b *BoostedEnsemble) BestIterations() int {
	if len(b.CVRMSE) == 0 {
		return 0
	}
	best := 0
	for m := range b.CVRMSE {
		if b.CVRMSE[m] < b.CVRMSE[best] {
			best = m
		}
	}
	return best + 1
}

// Predict sums the shrunken stage predictions on top of the base stage.
func (b *BoostedEnsemble) Predict(X [][]float64) ([]float64, error) {
	return b.PredictN(X, len(b.Trees))
}

// PredictN evaluates the ensemble truncated to its first n stages.
func (b *BoostedEnsemble) PredictN(X [][]float64, n int) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, errConfigf("ensemble has not been fit")
	}
	if n < 0 || n > len(b.Trees) {
		return nil, errConfigf("iteration count %d outside [0,%d]", n, len(b.Trees))
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if err := checkRow(b.Schema, x); err != nil {
			return nil, err
		}
		out[i] = b.Base
	}
	for _, dt := range b.Trees[:n] {
		p, err := dt.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] += b.LearningRate * p[i]
		}
	}
	return out, nil
}
