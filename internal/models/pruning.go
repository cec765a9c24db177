package models

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"repaircost/internal/dataset"
)

// CVPoint is one row of the pruning cross-validation table: the candidate
// complexity parameter, the mean and standard error of the per-fold RMSE,
// and the leaf count the main tree keeps at that alpha.
type CVPoint struct {
	Alpha  float64
	RMSE   float64
	SE     float64
	Leaves int
}

// Prune selects a cost-complexity subtree of the fitted tree by k-fold
// cross-validation over the weakest-link alpha sequence. Selection follows
// the 1-SE rule: the smallest subtree whose CV error is within one standard
// error of the minimum. The table must be the tree's own training
// partition. The full tree stays in Root; Predict switches to the pruned
// tree, PredictFull does not.
func (dt *RegressionTree) Prune(t *dataset.Table, folds int) error {
	if dt.Root == nil {
		return errConfigf("fit before pruning")
	}
	if folds < 2 {
		return errConfigf("pruning needs at least 2 folds, got %d", folds)
	}
	if t.NumRows() < folds {
		return errConfigf("%d rows cannot fill %d folds", t.NumRows(), folds)
	}

	cands := alphaCandidates(alphaSequence(dt.Root.clone()))
	if len(cands) == 0 {
		dt.Pruned = dt.Root.clone()
		return nil
	}

	foldErr := make([][]float64, len(cands)) // foldErr[c][f] = fold RMSE
	for c := range foldErr {
		foldErr[c] = make([]float64, folds)
	}
	assign := dataset.Folds(t.NumRows(), folds, subSeed(dt.Seed, 101))
	for f := 0; f < folds; f++ {
		var trainRows []int
		for g, rows := range assign {
			if g != f {
				trainRows = append(trainRows, rows...)
			}
		}
		sub := t.Subset(trainRows)
		ft := &RegressionTree{
			MaxDepth:    dt.MaxDepth,
			MinLeafSize: dt.MinLeafSize,
			Cp:          dt.Cp,
			MaxFeatures: dt.MaxFeatures,
			Seed:        subSeed(dt.Seed, int64(200+f)),
		}
		if err := ft.Fit(sub); err != nil {
			return err
		}
		held := t.Subset(assign[f])
		node := ft.Root
		for c, alpha := range cands {
			node = collapseAlpha(node, alpha)
			preds, err := predictNode(node, ft.Schema, held.X)
			if err != nil {
				return err
			}
			var sum float64
			for i, p := range preds {
				d := p - held.Y[i]
				sum += d * d
			}
			foldErr[c][f] = math.Sqrt(sum / float64(len(preds)))
		}
	}

	points := make([]CVPoint, len(cands))
	main := dt.Root.clone()
	best := 0
	for c, alpha := range cands {
		main = collapseAlpha(main, alpha)
		mean, sd := stat.MeanStdDev(foldErr[c], nil)
		points[c] = CVPoint{Alpha: alpha, RMSE: mean, SE: sd / math.Sqrt(float64(folds)), Leaves: main.Leaves()}
		if mean < points[best].RMSE {
			best = c
		}
	}
	// 1-SE rule: largest alpha still within one SE of the minimum.
	limit := points[best].RMSE + points[best].SE
	pick := best
	for c := best + 1; c < len(points); c++ {
		if points[c].RMSE <= limit {
			pick = c
		}
	}

	dt.CV = points
	dt.Alpha = points[pick].Alpha
	dt.Pruned = collapseAlpha(dt.Root.clone(), dt.Alpha)
	return nil
}

// alphaSequence collapses the weakest link repeatedly and returns the
// non-decreasing sequence of critical alpha values. The argument is
// consumed.
func alphaSequence(root *TreeNode) []float64 {
	var alphas []float64
	for !root.IsLeaf {
		g := weakestLink(root)
		if len(alphas) > 0 && g < alphas[len(alphas)-1] {
			g = alphas[len(alphas)-1]
		}
		alphas = append(alphas, g)
		root = collapseAlpha(root, g)
	}
	return alphas
}

// alphaCandidates places one test point between consecutive critical
// alphas (geometric mean, rpart style) plus the zero and beyond-last ends.
func alphaCandidates(alphas []float64) []float64 {
	if len(alphas) == 0 {
		return nil
	}
	cands := []float64{0}
	for k := 0; k < len(alphas); k++ {
		var a float64
		if k+1 < len(alphas) {
			a = math.Sqrt(alphas[k] * alphas[k+1])
		} else {
			a = alphas[k] * 2
		}
		if a > cands[len(cands)-1] {
			cands = append(cands, a)
		}
	}
	return cands
}

// weakestLink returns the smallest per-leaf cost of collapsing any internal
// node: (SSE(node) - SSE(subtree leaves)) / (leaves - 1).
func weakestLink(n *TreeNode) float64 {
	min := math.Inf(1)
	var walk func(*TreeNode)
	walk = func(n *TreeNode) {
		if n == nil || n.IsLeaf {
			return
		}
		leafSSE, leaves := subtreeStats(n)
		if g := (n.SSE - leafSSE) / float64(leaves-1); g < min {
			min = g
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(n)
	return min
}

// collapseAlpha turns every internal node whose per-leaf collapse cost is
// at or below alpha into a leaf, bottom-up, and returns the root.
func collapseAlpha(n *TreeNode, alpha float64) *TreeNode {
	if n == nil || n.IsLeaf {
		return n
	}
	n.Left = collapseAlpha(n.Left, alpha)
	n.Right = collapseAlpha(n.Right, alpha)
	leafSSE, leaves := subtreeStats(n)
	if (n.SSE-leafSSE)/float64(leaves-1) <= alpha {
		n.IsLeaf = true
		n.Left = nil
		n.Right = nil
		n.Gain = 0
	}
	return n
}

func subtreeStats(n *TreeNode) (leafSSE float64, leaves int) {
	if n.IsLeaf {
		return n.SSE, 1
	}
	ls, ln := subtreeStats(n.Left)
	rs, rn := subtreeStats(n.Right)
	return ls + rs, ln + rn
}
