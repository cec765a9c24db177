package models

import (
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"repaircost/internal/dataset"
)

// BaggedEnsemble averages unpruned regression trees fit on bootstrap
// resamples, with a fresh random feature subset drawn at every split.
// Member fits are independent and run in parallel; every tree draws from
// its own sub-seeded stream, so the result is identical for any worker
// count.
type BaggedEnsemble struct {
	NumTrees         int
	FeaturesPerSplit int // <=0 defaults to sqrt of the feature count
	MinLeafSize      int
	MaxDepth         int // <=0 grows deep trees, the bagging default
	Seed             int64
	Workers          int // <=0 uses GOMAXPROCS

	Trees     []*RegressionTree
	TreeSeeds []int64
	InBag     [][]int // per-tree bootstrap multiplicity of each training row
	OOBRMSE   float64 // out-of-bag error estimate, NaN when unavailable

	Schema []dataset.Feature
}

// NewBaggedEnsemble returns an ensemble with the harness defaults.
func NewBaggedEnsemble() *BaggedEnsemble {
	return &BaggedEnsemble{NumTrees: 200, MinLeafSize: 5}
}

func (b *BaggedEnsemble) Name() string { return "BaggedEnsemble" }

// Fit draws NumTrees bootstrap samples and grows one tree per sample.
func (b *BaggedEnsemble) Fit(t *dataset.Table) error {
	if t.NumRows() == 0 {
		return ErrEmptyTrainingSet
	}
	if b.NumTrees <= 0 {
		return errConfigf("num trees %d must be positive", b.NumTrees)
	}
	nFeats := len(t.Features)
	if b.FeaturesPerSplit > nFeats {
		return errConfigf("features per split %d exceeds %d schema features", b.FeaturesPerSplit, nFeats)
	}
	mtry := b.FeaturesPerSplit
	if mtry <= 0 {
		mtry = int(math.Max(1, math.Sqrt(float64(nFeats))))
	}
	minLeaf := b.MinLeafSize
	if minLeaf < 1 {
		minLeaf = 1
	}

	n := t.NumRows()
	b.Schema = t.Features
	b.Trees = make([]*RegressionTree, b.NumTrees)
	b.TreeSeeds = make([]int64, b.NumTrees)
	b.InBag = make([][]int, b.NumTrees)

	var eg errgroup.Group
	workers := b.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for k := 0; k < b.NumTrees; k++ {
		eg.Go(func() error {
			bootSeed := subSeed(b.Seed, int64(2*k+1))
			treeSeed := subSeed(b.Seed, int64(2*k+2))
			rng := rand.New(rand.NewSource(bootSeed))
			rows := make([]int, n)
			inBag := make([]int, n)
			for i := range rows {
				r := rng.Intn(n)
				rows[i] = r
				inBag[r]++
			}
			dt := &RegressionTree{
				MaxDepth:    b.MaxDepth,
				MinLeafSize: minLeaf,
				Cp:          0, // bagging relies on deep trees, no pre-pruning
				MaxFeatures: mtry,
				Seed:        treeSeed,
			}
			if err := dt.Fit(t.Subset(rows)); err != nil {
				return err
			}
			b.Trees[k] = dt
			b.TreeSeeds[k] = bootSeed
			b.InBag[k] = inBag
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	b.OOBRMSE = b.oob(t)
	return nil
}

// oob scores each training row with only the trees that never drew it.
func (b *BaggedEnsemble) oob(t *dataset.Table) float64 {
	var sum float64
	var n int
	for i := 0; i < t.NumRows(); i++ {
		var pred float64
		var trees int
		for k, dt := range b.Trees {
			if b.InBag[k][i] > 0 {
				continue
			}
			p, err := dt.Predict([][]float64{t.X[i]})
			if err != nil {
				return math.NaN()
			}
			pred += p[0]
			trees++
		}
		if trees == 0 {
			continue
		}
		d := pred/float64(trees) - t.Y[i]
		sum += d * d
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return math.Sqrt(sum / float64(n))
}

// Predict returns the arithmetic mean of the member tree predictions.
func (b *BaggedEnsemble) Predict(X [][]float64) ([]float64, error) {
	if len(b.Trees) == 0 {
		return nil, errConfigf("ensemble has not been fit")
	}
	out := make([]float64, len(X))
	for _, dt := range b.Trees {
		p, err := dt.Predict(X)
		if err != nil {
			return nil, err
		}
		for i := range out {
			out[i] += p[i]
		}
	}
	m := float64(len(b.Trees))
	for i := range out {
		out[i] /= m
	}
	return out, nil
}
