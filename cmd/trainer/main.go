package main

import (
	"encoding/csv"
	"encoding/gob"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"repaircost/internal/config"
	"repaircost/internal/data"
	"repaircost/internal/dataset"
	"repaircost/internal/eval"
	"repaircost/internal/features"
	"repaircost/internal/models"
	"repaircost/pkg/utils"
)

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	cfgPath := flag.String("config", "", "YAML config path (defaults apply when empty)")
	regen := flag.Bool("regen", true, "regenerate the synthetic worksite dataset")
	n := flag.Int("n", 20000, "number of synthetic worksites")
	seed := flag.Int64("seed", 0, "override the config seed when non-zero")
	curveImg := flag.String("curve_out_img", "cmd/api/static/boost_cv_curve.png", "boosting CV curve PNG")
	resultCsv := flag.String("result_csv", "data/model_comparison.csv", "comparison table CSV")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}

	if *regen {
		logger.Info("generating worksites", zap.Int("n", *n), zap.String("out", cfg.DataPath))
		if err := data.GenerateWorksites(*n, cfg.Seed, cfg.DataPath); err != nil {
			logger.Fatal("generate worksites", zap.Error(err))
		}
	}

	sites, err := data.ReadWorksites(cfg.DataPath)
	if err != nil {
		logger.Fatal("read worksites", zap.Error(err))
	}
	table, err := features.BuildTable(sites)
	if err != nil {
		logger.Fatal("build table", zap.Error(err))
	}
	train, test, err := dataset.Split(table, cfg.TestFraction, cfg.Seed)
	if err != nil {
		logger.Fatal("split", zap.Error(err))
	}
	logger.Info("partitioned rows", zap.Int("train", train.NumRows()), zap.Int("test", test.NumRows()))

	var results []result

	// Linear baseline, fit on the raw scale so RMSE is comparable with the
	// tree models; the log-scale fit below is for the coefficient report.
	lin := &models.LinearEstimator{
		LogResponse:  false,
		Interactions: cfg.Linear.Interactions,
	}
	if err := lin.Fit(train); err != nil {
		logger.Fatal("fit linear", zap.Error(err))
	}
	linRMSE := mustScore(logger, lin, test)
	results = append(results, result{lin.Name(), linRMSE})

	linLog := &models.LinearEstimator{
		LogResponse:  cfg.Linear.LogResponse,
		ClusterBy:    cfg.Linear.ClusterBy,
		Interactions: cfg.Linear.Interactions,
	}
	if err := linLog.Fit(train); err != nil {
		logger.Fatal("fit log-scale linear", zap.Error(err))
	}
	for _, c := range linLog.Coefficients() {
		logger.Info("coefficient",
			zap.String("term", c.Label),
			zap.Float64("estimate", c.Estimate),
			zap.Float64("cluster_se", c.StdErr),
		)
	}

	tree := models.NewRegressionTree()
	tree.MaxDepth = cfg.Tree.MaxDepth
	tree.MinLeafSize = cfg.Tree.MinLeafSize
	tree.Cp = cfg.Tree.Cp
	tree.Seed = cfg.Seed
	if err := tree.Fit(train); err != nil {
		logger.Fatal("fit tree", zap.Error(err))
	}
	fullRMSE := mustScore(logger, tree, test)
	results = append(results, result{"RegressionTree/full", fullRMSE})
	if err := tree.Prune(train, cfg.Tree.CVFolds); err != nil {
		logger.Fatal("prune tree", zap.Error(err))
	}
	prunedRMSE := mustScore(logger, tree, test)
	results = append(results, result{"RegressionTree/pruned", prunedRMSE})
	logger.Info("pruning",
		zap.Float64("alpha", tree.Alpha),
		zap.Int("full_leaves", tree.Root.Leaves()),
		zap.Int("pruned_leaves", tree.Pruned.Leaves()),
	)

	bag := models.NewBaggedEnsemble()
	bag.NumTrees = cfg.Bagging.NumTrees
	bag.FeaturesPerSplit = cfg.Bagging.FeaturesPerSplit
	bag.MinLeafSize = cfg.Bagging.MinLeafSize
	bag.Workers = cfg.Bagging.Workers
	bag.Seed = cfg.Seed
	if err := bag.Fit(train); err != nil {
		logger.Fatal("fit bagged ensemble", zap.Error(err))
	}
	bagRMSE := mustScore(logger, bag, test)
	results = append(results, result{bag.Name(), bagRMSE})
	logger.Info("out-of-bag estimate", zap.Float64("oob_rmse", bag.OOBRMSE))

	boost := models.NewBoostedEnsemble()
	boost.NumTrees = cfg.Boosting.NumTrees
	boost.LearningRate = cfg.Boosting.LearningRate
	boost.MaxDepth = cfg.Boosting.MaxDepth
	boost.MinLeafSize = cfg.Boosting.MinLeafSize
	boost.CVFolds = cfg.Boosting.CVFolds
	boost.Seed = cfg.Seed
	if err := boost.Fit(train); err != nil {
		logger.Fatal("fit boosted ensemble", zap.Error(err))
	}
	boostRMSE := mustScore(logger, boost, test)
	results = append(results, result{boost.Name(), boostRMSE})
	logger.Info("boosting stopping diagnostic", zap.Int("best_iterations", boost.BestIterations()))

	for _, r := range results {
		logger.Info("holdout score", zap.String("model", r.name), zap.Float64("rmse", r.rmse))
	}
	logImportances(logger, "bagged", bag.Importances())
	logImportances(logger, "boosted", boost.Importances())

	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		logger.Fatal("mkdir models", zap.Error(err))
	}
	saveGob(logger, filepath.Join(cfg.ModelDir, "tree_model.gob"), tree)
	saveGob(logger, filepath.Join(cfg.ModelDir, "bag_model.gob"), bag)
	saveGob(logger, filepath.Join(cfg.ModelDir, "boost_model.gob"), boost)
	saveGob(logger, filepath.Join(cfg.ModelDir, "linear_model.gob"), lin)

	if err := writeResults(*resultCsv, results); err != nil {
		logger.Warn("write comparison csv", zap.Error(err))
	}
	if len(boost.CVRMSE) > 0 {
		if err := plotCVCurve(*curveImg, boost.CVRMSE); err != nil {
			logger.Warn("plot cv curve", zap.Error(err))
		} else {
			logger.Info("cv curve written", zap.String("png", *curveImg))
		}
	}
}

func mustScore(logger *zap.Logger, m models.Model, test *dataset.Table) float64 {
	rmse, err := eval.RMSE(m, test)
	if err != nil {
		logger.Fatal("score", zap.String("model", m.Name()), zap.Error(err))
	}
	return rmse
}

func logImportances(logger *zap.Logger, which string, imp map[string]float64) {
	type fi struct {
		name string
		gain float64
	}
	ranked := make([]fi, 0, len(imp))
	for name, g := range imp {
		ranked = append(ranked, fi{name, g})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].gain != ranked[j].gain {
			return ranked[i].gain > ranked[j].gain
		}
		return ranked[i].name < ranked[j].name
	})
	for _, r := range ranked {
		logger.Info("importance",
			zap.String("ensemble", which),
			zap.String("feature", r.name),
			zap.Float64("gain", r.gain),
		)
	}
}

func saveGob(logger *zap.Logger, path string, m any) {
	f, err := os.Create(path)
	if err != nil {
		logger.Fatal("create model file", zap.String("path", path), zap.Error(err))
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(m); err != nil {
		logger.Fatal("encode model", zap.String("path", path), zap.Error(err))
	}
	logger.Info("model saved", zap.String("path", path))
}

type result struct {
	name string
	rmse float64
}

func writeResults(path string, results []result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"model", "test_rmse"}); err != nil {
		return err
	}
	for _, r := range results {
		if err := w.Write([]string{r.name, fmt.Sprintf("%.2f", r.rmse)}); err != nil {
			return err
		}
	}
	return nil
}

func plotCVCurve(path string, cv []float64) error {
	p := plot.New()
	p.Title.Text = "Boosting Cross-Validated Error"
	p.X.Label.Text = "Iterations"
	p.Y.Label.Text = "CV RMSE"

	pts := make(plotter.XYs, len(cv))
	for i, v := range cv {
		pts[i].X = float64(i + 1)
		pts[i].Y = v
	}
	if err := plotutil.AddLinePoints(p, "CV RMSE", pts); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
