package models

import "repaircost/internal/dataset"

// Importance accounting: every internal split credits its squared-error
// reduction to its feature; ensembles sum member trees. Sums are raw, not
// divided by tree count, and every schema feature appears in the map so
// unused features score exactly zero.

// Importances reports per-feature gain for the tree Predict uses (the
// pruned tree once Prune has run, otherwise the full tree).
func (dt *RegressionTree) Importances() map[string]float64 {
	imp := make(map[string]float64, len(dt.Schema))
	for _, f := range dt.Schema {
		imp[f.Name] = 0
	}
	dt.activeRoot().addGains(dt, imp)
	return imp
}

func (n *TreeNode) addGains(dt *RegressionTree, imp map[string]float64) {
	if n == nil || n.IsLeaf {
		return
	}
	imp[dt.Schema[n.Feature].Name] += n.Gain
	n.Left.addGains(dt, imp)
	n.Right.addGains(dt, imp)
}

// Importances sums the member tree importances.
func (b *BaggedEnsemble) Importances() map[string]float64 {
	return sumImportances(b.Schema, b.Trees)
}

// Importances sums the stage tree importances.
func (b *BoostedEnsemble) Importances() map[string]float64 {
	return sumImportances(b.Schema, b.Trees)
}

func sumImportances(schema []dataset.Feature, trees []*RegressionTree) map[string]float64 {
	imp := make(map[string]float64, len(schema))
	for _, f := range schema {
		imp[f.Name] = 0
	}
	for _, dt := range trees {
		for name, g := range dt.Importances() {
			imp[name] += g
		}
	}
	return imp
}
