package models

import (
	"math"
	"math/rand"
	"sort"

	"repaircost/internal/dataset"
)

// TreeNode is one node of a fitted regression tree. Internal nodes hold the
// split rule and own exactly two children; the pass branch (Left) takes
// rows with value <= Threshold, or with their level bit set in LevelMask
// for nominal splits. Every node keeps the median (Value) and SSE of the
// rows routed to it so subtrees can be collapsed during pruning.
type TreeNode struct {
	Feature   int
	Threshold float64
	LevelMask uint64
	Nominal   bool
	Left      *TreeNode
	Right     *TreeNode
	IsLeaf    bool
	Value     float64
	Samples   int
	SSE       float64
	Gain      float64
}

// RegressionTree grows a binary tree by recursive partitioning, selecting
// at each node the split with the largest reduction in within-node sum of
// squared error. Leaf predictions are the median of the routed responses.
type RegressionTree struct {
	MaxDepth    int     // maximum depth; <=0 grows until other limits bind
	MinLeafSize int     // a node with this many rows or fewer becomes a leaf
	Cp          float64 // minimum gain as a fraction of the root SSE
	MaxFeatures int     // per-split random feature subset; <=0 uses all
	Seed        int64

	Root   *TreeNode // full-grown tree
	Pruned *TreeNode // set by Prune; nil until then
	Alpha  float64   // complexity parameter selected by Prune
	CV     []CVPoint // cross-validation table produced by Prune

	Schema []dataset.Feature

	rng      *rand.Rand
	rootSSE  float64
	leafMean bool // leaves emit the routed mean instead of the median
}

// NewRegressionTree returns a tree with the harness defaults.
func NewRegressionTree() *RegressionTree {
	return &RegressionTree{MinLeafSize: 5, Cp: 0.01}
}

func (dt *RegressionTree) Name() string { return "RegressionTree" }

// Fit grows the full tree on the table's rows and response.
func (dt *RegressionTree) Fit(t *dataset.Table) error {
	return dt.fitTargets(t, t.Y)
}

// fitTargets grows the tree against an explicit target vector parallel to
// the table's rows. The boosted ensemble uses this to fit residuals.
func (dt *RegressionTree) fitTargets(t *dataset.Table, y []float64) error {
	if t.NumRows() == 0 {
		return ErrEmptyTrainingSet
	}
	if dt.MaxFeatures > len(t.Features) {
		return errConfigf("max features %d exceeds %d schema features", dt.MaxFeatures, len(t.Features))
	}
	if dt.MinLeafSize < 1 {
		dt.MinLeafSize = 1
	}
	dt.Schema = t.Features
	dt.rng = rand.New(rand.NewSource(dt.Seed))
	idx := make([]int, len(y))
	for i := range idx {
		idx[i] = i
	}
	dt.rootSSE = sumSquares(y, idx)
	dt.Root = dt.build(t, y, idx, 0)
	dt.Pruned = nil
	dt.Alpha = 0
	dt.CV = nil
	return nil
}

// Predict evaluates the encoded rows against the pruned tree when Prune
// has run, otherwise against the full tree. Rows are validated against the
// fit-time schema first.
func (dt *RegressionTree) Predict(X [][]float64) ([]float64, error) {
	return predictNode(dt.activeRoot(), dt.Schema, X)
}

// PredictFull always evaluates against the full-grown tree, so the pruned
// and unpruned fits stay comparable after Prune.
func (dt *RegressionTree) PredictFull(X [][]float64) ([]float64, error) {
	return predictNode(dt.Root, dt.Schema, X)
}

func (dt *RegressionTree) activeRoot() *TreeNode {
	if dt.Pruned != nil {
		return dt.Pruned
	}
	return dt.Root
}

func predictNode(root *TreeNode, schema []dataset.Feature, X [][]float64) ([]float64, error) {
	if root == nil {
		return nil, errConfigf("tree has not been fit")
	}
	out := make([]float64, len(X))
	for i, x := range X {
		if err := checkRow(schema, x); err != nil {
			return nil, err
		}
		n := root
		for !n.IsLeaf {
			if n.route(x) {
				n = n.Left
			} else {
				n = n.Right
			}
		}
		out[i] = n.Value
	}
	return out, nil
}

// route reports whether the row takes the pass branch.
func (n *TreeNode) route(x []float64) bool {
	v := x[n.Feature]
	if n.Nominal {
		return n.LevelMask&(uint64(1)<<uint(int(v))) != 0
	}
	return v <= n.Threshold
}

func (dt *RegressionTree) build(t *dataset.Table, y []float64, idx []int, depth int) *TreeNode {
	node := &TreeNode{
		Value:   dt.leafValue(y, idx),
		Samples: len(idx),
		SSE:     sumSquares(y, idx),
		IsLeaf:  true,
	}
	if len(idx) <= dt.MinLeafSize || (dt.MaxDepth > 0 && depth >= dt.MaxDepth) || node.SSE == 0 {
		return node
	}
	feat, gain, thr, mask, nominal, left, right := dt.bestSplit(t, y, idx, node.SSE)
	if feat < 0 || gain < dt.Cp*dt.rootSSE {
		return node
	}
	node.IsLeaf = false
	node.Feature = feat
	node.Threshold = thr
	node.LevelMask = mask
	node.Nominal = nominal
	node.Gain = gain
	node.Left = dt.build(t, y, left, depth+1)
	node.Right = dt.build(t, y, right, depth+1)
	return node
}

// bestSplit scans the candidate features and returns the split with the
// largest SSE reduction. Ties resolve to the first feature in schema order
// and the lowest threshold or level mask, so growth is deterministic for a
// fixed seed.
func (dt *RegressionTree) bestSplit(t *dataset.Table, y []float64, idx []int, nodeSSE float64) (feat int, gain, thr float64, mask uint64, nominal bool, left, right []int) {
	feat = -1
	for _, f := range dt.candidateFeatures(len(t.Features)) {
		if t.Features[f].Kind == dataset.Nominal {
			g, m, ok := bestNominalSplit(t.X, y, idx, f, len(t.Features[f].Levels), nodeSSE)
			if ok && g > gain {
				feat, gain, mask, nominal = f, g, m, true
			}
		} else {
			g, th, ok := bestThresholdSplit(t.X, y, idx, f, nodeSSE)
			if ok && g > gain {
				feat, gain, thr, nominal = f, g, th, false
			}
		}
	}
	if feat < 0 {
		return
	}
	n := &TreeNode{Feature: feat, Threshold: thr, LevelMask: mask, Nominal: nominal}
	for _, i := range idx {
		if n.route(t.X[i]) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return
}

// candidateFeatures returns all feature indices, or a fresh uniform subset
// of MaxFeatures of them drawn from the tree's rng. The subset is sorted so
// tie-breaking stays in schema order.
func (dt *RegressionTree) candidateFeatures(nFeats int) []int {
	all := make([]int, nFeats)
	for i := range all {
		all[i] = i
	}
	if dt.MaxFeatures <= 0 || dt.MaxFeatures >= nFeats {
		return all
	}
	dt.rng.Shuffle(nFeats, func(i, j int) { all[i], all[j] = all[j], all[i] })
	sub := all[:dt.MaxFeatures]
	sort.Ints(sub)
	return sub
}

// bestThresholdSplit scans midpoints between consecutive distinct sorted
// values of a continuous or ordered feature.
func bestThresholdSplit(X [][]float64, y []float64, idx []int, f int, nodeSSE float64) (gain, thr float64, ok bool) {
	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

	var lSum, lSq float64
	tSum, tSq := 0.0, 0.0
	for _, i := range order {
		tSum += y[i]
		tSq += y[i] * y[i]
	}
	n := float64(len(order))
	for k := 0; k < len(order)-1; k++ {
		i := order[k]
		lSum += y[i]
		lSq += y[i] * y[i]
		a, b := X[i][f], X[order[k+1]][f]
		if a == b {
			continue
		}
		ln := float64(k + 1)
		rn := n - ln
		g := nodeSSE - sse(lSum, lSq, ln) - sse(tSum-lSum, tSq-lSq, rn)
		if !ok || g > gain {
			gain, thr, ok = g, (a+b)/2, true
		}
	}
	return
}

// bestNominalSplit enumerates every non-trivial bipartition of the levels
// present at this node. The highest schema level is pinned to the fail side
// so each bipartition is visited once, in ascending mask order.
func bestNominalSplit(X [][]float64, y []float64, idx []int, f, nLevels int, nodeSSE float64) (gain float64, mask uint64, ok bool) {
	type agg struct {
		n, sum, sq float64
	}
	byLevel := make([]agg, nLevels)
	var tot agg
	for _, i := range idx {
		l := int(X[i][f])
		byLevel[l].n++
		byLevel[l].sum += y[i]
		byLevel[l].sq += y[i] * y[i]
		tot.n++
		tot.sum += y[i]
		tot.sq += y[i] * y[i]
	}
	top := uint64(1) << uint(nLevels-1)
	for m := uint64(1); m < top; m++ {
		var l agg
		for b := 0; b < nLevels-1; b++ {
			if m&(uint64(1)<<uint(b)) != 0 {
				l.n += byLevel[b].n
				l.sum += byLevel[b].sum
				l.sq += byLevel[b].sq
			}
		}
		if l.n == 0 || l.n == tot.n {
			continue
		}
		g := nodeSSE - sse(l.sum, l.sq, l.n) - sse(tot.sum-l.sum, tot.sq-l.sq, tot.n-l.n)
		if !ok || g > gain {
			gain, mask, ok = g, m, true
		}
	}
	return
}

func sse(sum, sq, n float64) float64 {
	s := sq - sum*sum/n
	if s < 0 {
		return 0
	}
	return s
}

func sumSquares(y []float64, idx []int) float64 {
	var sum, sq float64
	for _, i := range idx {
		sum += y[i]
		sq += y[i] * y[i]
	}
	return sse(sum, sq, float64(len(idx)))
}

// leafValue is the statistic a leaf predicts. Response fits use the exact
// median; residual fits inside the boosted ensemble use the mean, because
// the squared-error stage step must move every cell toward its residual
// mean or the training error can rise on skewed cells.
func (dt *RegressionTree) leafValue(y []float64, idx []int) float64 {
	if dt.leafMean {
		return mean(y, idx)
	}
	return median(y, idx)
}

func mean(y []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

// median returns the exact median of the selected targets, averaging the
// two central values for even counts.
func median(y []float64, idx []int) float64 {
	v := make([]float64, len(idx))
	for j, i := range idx {
		v[j] = y[i]
	}
	sort.Float64s(v)
	m := len(v) / 2
	if len(v)%2 == 1 {
		return v[m]
	}
	return (v[m-1] + v[m]) / 2
}

// Leaves counts the leaves under n.
func (n *TreeNode) Leaves() int {
	if n == nil {
		return 0
	}
	if n.IsLeaf {
		return 1
	}
	return n.Left.Leaves() + n.Right.Leaves()
}

// Depth returns the depth of the subtree under n; a lone leaf has depth 0.
func (n *TreeNode) Depth() int {
	if n == nil || n.IsLeaf {
		return 0
	}
	return 1 + int(math.Max(float64(n.Left.Depth()), float64(n.Right.Depth())))
}

func (n *TreeNode) clone() *TreeNode {
	if n == nil {
		return nil
	}
	c := *n
	c.Left = n.Left.clone()
	c.Right = n.Right.clone()
	return &c
}
