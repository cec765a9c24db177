package models

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"repaircost/internal/dataset"
)

// Term is one column of the expanded design matrix. A slot with Feature >= 0
// and Level < 0 contributes the raw value; with Level >= 0 it contributes a
// one-hot indicator for that level. Two active slots form an interaction
// product. No active slots is the intercept.
type Term struct {
	Features [2]int
	Levels   [2]int
	Label    string
}

func (tm Term) value(x []float64) float64 {
	v := 1.0
	for s := 0; s < 2; s++ {
		f := tm.Features[s]
		if f < 0 {
			continue
		}
		if tm.Levels[s] >= 0 {
			if int(x[f]) != tm.Levels[s] {
				return 0
			}
		} else {
			v *= x[f]
		}
	}
	return v
}

// LinearEstimator is the ordinary-least-squares comparison baseline:
// continuous features enter as-is, categorical features as fixed effects
// one-hot expanded against their first level, declared interactions as
// products. The response is log-transformed by default; predictions stay
// on the fitted scale.
type LinearEstimator struct {
	LogResponse  bool
	Interactions [][2]string // feature name pairs expanded as products
	ClusterBy    string      // categorical feature for cluster-robust SEs

	Terms  []Term
	Coefs  []float64
	StdErr []float64 // cluster-robust (CR1) when ClusterBy is set, else homoskedastic

	Schema []dataset.Feature
}

// NewLinearEstimator returns the baseline with a log response, matching
// the cost-regression contract.
func NewLinearEstimator() *LinearEstimator {
	return &LinearEstimator{LogResponse: true}
}

func (l *LinearEstimator) Name() string { return "LinearEstimator" }

// Fit solves the least-squares problem by QR factorization and fails with
// ErrRankDeficient when the design is not full column rank, e.g. when a
// declared level never occurs in the training partition.
func (l *LinearEstimator) Fit(t *dataset.Table) error {
	n := t.NumRows()
	if n == 0 {
		return ErrEmptyTrainingSet
	}
	terms, err := l.expandTerms(t.Features)
	if err != nil {
		return err
	}
	p := len(terms)
	if n < p {
		return fmt.Errorf("%w: %d rows for %d design columns", ErrRankDeficient, n, p)
	}

	design := mat.NewDense(n, p, nil)
	for i := 0; i < n; i++ {
		for j, tm := range terms {
			design.Set(i, j, tm.value(t.X[i]))
		}
	}
	yv := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v := t.Y[i]
		if l.LogResponse {
			v = math.Log(v)
		}
		yv.SetVec(i, v)
	}

	var qr mat.QR
	qr.Factorize(design)
	var r mat.Dense
	qr.RTo(&r)
	var maxDiag float64
	for j := 0; j < p; j++ {
		if d := math.Abs(r.At(j, j)); d > maxDiag {
			maxDiag = d
		}
	}
	for j := 0; j < p; j++ {
		if math.Abs(r.At(j, j)) <= 1e-10*maxDiag {
			return fmt.Errorf("%w: column %q is collinear", ErrRankDeficient, terms[j].Label)
		}
	}

	var beta mat.VecDense
	if err := qr.SolveVecTo(&beta, false, yv); err != nil {
		return fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	l.Schema = t.Features
	l.Terms = terms
	l.Coefs = make([]float64, p)
	for j := 0; j < p; j++ {
		l.Coefs[j] = beta.AtVec(j)
	}
	return l.standardErrors(design, yv, t)
}

// expandTerms builds the design column descriptors in schema order.
func (l *LinearEstimator) expandTerms(schema []dataset.Feature) ([]Term, error) {
	noSlot := [2]int{-1, -1}
	terms := []Term{{Features: noSlot, Levels: noSlot, Label: "(intercept)"}}
	base := make(map[string][]Term, len(schema))
	for fi, f := range schema {
		var cols []Term
		if f.Categorical() {
			for li := 1; li < len(f.Levels); li++ {
				cols = append(cols, Term{
					Features: [2]int{fi, -1},
					Levels:   [2]int{li, -1},
					Label:    f.Name + "=" + f.Levels[li],
				})
			}
		} else {
			cols = []Term{{Features: [2]int{fi, -1}, Levels: [2]int{-1, -1}, Label: f.Name}}
		}
		base[f.Name] = cols
		terms = append(terms, cols...)
	}
	for _, pair := range l.Interactions {
		a, ok := base[pair[0]]
		if !ok {
			return nil, fmt.Errorf("%w: interaction names unknown feature %q", ErrSchemaMismatch, pair[0])
		}
		b, ok := base[pair[1]]
		if !ok {
			return nil, fmt.Errorf("%w: interaction names unknown feature %q", ErrSchemaMismatch, pair[1])
		}
		for _, ta := range a {
			for _, tb := range b {
				terms = append(terms, Term{
					Features: [2]int{ta.Features[0], tb.Features[0]},
					Levels:   [2]int{ta.Levels[0], tb.Levels[0]},
					Label:    ta.Label + ":" + tb.Label,
				})
			}
		}
	}
	return terms, nil
}

// standardErrors fills StdErr with the CR1 cluster-robust sandwich when
// ClusterBy names a categorical feature, or the homoskedastic OLS errors
// otherwise.
func (l *LinearEstimator) standardErrors(design *mat.Dense, yv *mat.VecDense, t *dataset.Table) error {
	n, p := design.Dims()

	resid := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		var fit float64
		for j := 0; j < p; j++ {
			fit += design.At(i, j) * l.Coefs[j]
		}
		resid.SetVec(i, yv.AtVec(i)-fit)
	}

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	var bread mat.Dense
	if err := bread.Inverse(&xtx); err != nil {
		return fmt.Errorf("%w: %v", ErrRankDeficient, err)
	}

	l.StdErr = make([]float64, p)
	if l.ClusterBy == "" {
		var rss float64
		for i := 0; i < n; i++ {
			rss += resid.AtVec(i) * resid.AtVec(i)
		}
		sigma2 := rss / float64(n-p)
		for j := 0; j < p; j++ {
			l.StdErr[j] = math.Sqrt(sigma2 * bread.At(j, j))
		}
		return nil
	}

	ci := t.FeatureIndex(l.ClusterBy)
	if ci < 0 || !t.Features[ci].Categorical() {
		return fmt.Errorf("%w: cluster feature %q is not a categorical column", ErrSchemaMismatch, l.ClusterBy)
	}
	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		g := int(t.X[i][ci])
		groups[g] = append(groups[g], i)
	}
	nG := len(groups)
	if nG < 2 {
		return fmt.Errorf("%w: cluster feature %q has a single cluster", ErrSchemaMismatch, l.ClusterBy)
	}

	meat := mat.NewDense(p, p, nil)
	score := mat.NewVecDense(p, nil)
	for _, rows := range groups {
		score.Zero()
		for _, i := range rows {
			for j := 0; j < p; j++ {
				score.SetVec(j, score.AtVec(j)+design.At(i, j)*resid.AtVec(i))
			}
		}
		var outer mat.Dense
		outer.Outer(1, score, score)
		meat.Add(meat, &outer)
	}
	// CR1 small-sample adjustment.
	c := float64(nG) / float64(nG-1) * float64(n-1) / float64(n-p)
	var sandwich mat.Dense
	sandwich.Mul(&bread, meat)
	sandwich.Mul(&sandwich, &bread)
	for j := 0; j < p; j++ {
		l.StdErr[j] = math.Sqrt(c * sandwich.At(j, j))
	}
	return nil
}

// Predict applies the coefficient vector to the expanded design row. The
// result is on the scale the model was fit on: log cost when LogResponse.
func (l *LinearEstimator) Predict(X [][]float64) ([]float64, error) {
	if len(l.Coefs) == 0 {
		return nil, errConfigf("model has not been fit")
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if err := checkRow(l.Schema, x); err != nil {
			return nil, err
		}
		var v float64
		for j, tm := range l.Terms {
			v += l.Coefs[j] * tm.value(x)
		}
		out[i] = v
	}
	return out, nil
}

// Coefficients returns label/estimate/standard-error triples in design
// order for the comparison report.
func (l *LinearEstimator) Coefficients() []Coefficient {
	out := make([]Coefficient, len(l.Terms))
	for j, tm := range l.Terms {
		out[j] = Coefficient{Label: tm.Label, Estimate: l.Coefs[j], StdErr: l.StdErr[j]}
	}
	return out
}

// Coefficient is one fitted design column.
type Coefficient struct {
	Label    string
	Estimate float64
	StdErr   float64
}
