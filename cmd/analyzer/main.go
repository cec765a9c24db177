package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"repaircost/internal/data"
	"repaircost/internal/dataset"
	"repaircost/internal/eval"
	"repaircost/internal/features"
	"repaircost/internal/models"
)

func main() {
	algo := flag.String("algo", "tree", "estimator: linear|tree|bagging|boosting")
	estimators := flag.Int("estimators", 100, "trees in the ensembles")
	maxDepth := flag.Int("max_depth", 3, "tree depth bound (boosting stages)")
	minLeaf := flag.Int("min_leaf", 5, "minimum leaf size")
	lr := flag.Float64("lr", 0.05, "boosting learning rate")
	points := flag.Int("points", 8, "points on the learning curve")
	seed := flag.Int64("seed", 1, "random seed")
	dataPath := flag.String("data", "data/worksites.csv", "worksite CSV")
	outImg := flag.String("out_img", "cmd/api/static/learning_curve.png", "output PNG")
	outCsv := flag.String("out_csv", "data/learning_curve.csv", "output CSV")
	flag.Parse()

	sites, err := data.ReadWorksites(*dataPath)
	if err != nil {
		fmt.Println("read worksites:", err)
		return
	}
	table, err := features.BuildTable(sites)
	if err != nil {
		fmt.Println("build table:", err)
		return
	}
	train, test, err := dataset.Split(table, 0.2, *seed)
	if err != nil {
		fmt.Println("split:", err)
		return
	}

	sizes := make([]int, 0, *points)
	for i := 1; i <= *points; i++ {
		frac := float64(i) / float64(*points)
		s := int(math.Max(100, frac*float64(train.NumRows())))
		if s > train.NumRows() {
			s = train.NumRows()
		}
		sizes = append(sizes, s)
	}

	trainRMSE := make([]float64, len(sizes))
	testRMSE := make([]float64, len(sizes))
	for k, s := range sizes {
		rows := make([]int, s)
		for i := range rows {
			rows[i] = i
		}
		sub := train.Subset(rows)
		mdl := buildModel(*algo, *estimators, *maxDepth, *minLeaf, *lr, *seed)
		if err := mdl.Fit(sub); err != nil {
			fmt.Println("fit:", err)
			return
		}
		if trainRMSE[k], err = eval.RMSE(mdl, sub); err != nil {
			fmt.Println("score train:", err)
			return
		}
		if testRMSE[k], err = eval.RMSE(mdl, test); err != nil {
			fmt.Println("score test:", err)
			return
		}
		fmt.Printf("%s | size=%d | train_rmse=%.0f | test_rmse=%.0f\n", mdl.Name(), s, trainRMSE[k], testRMSE[k])
	}

	if err := writeCSV(*outCsv, sizes, trainRMSE, testRMSE); err != nil {
		fmt.Println("write csv:", err)
	} else {
		fmt.Println("curve written to:", *outCsv)
	}
	if err := plotCurve(*outImg, sizes, trainRMSE, testRMSE); err != nil {
		fmt.Println("write png:", err)
	} else {
		fmt.Println("plot written to:", *outImg)
	}
}

func buildModel(algo string, estimators, maxDepth, minLeaf int, lr float64, seed int64) models.Model {
	switch algo {
	case "linear":
		l := models.NewLinearEstimator()
		l.LogResponse = false
		return l
	case "bagging":
		b := models.NewBaggedEnsemble()
		b.NumTrees = estimators
		b.MinLeafSize = minLeaf
		b.Seed = seed
		return b
	case "boosting":
		b := models.NewBoostedEnsemble()
		b.NumTrees = estimators
		b.LearningRate = lr
		b.MaxDepth = maxDepth
		b.MinLeafSize = minLeaf
		b.CVFolds = 0 // the sweep needs no stopping diagnostic
		b.Seed = seed
		return b
	default:
		dt := models.NewRegressionTree()
		dt.MinLeafSize = minLeaf
		dt.Seed = seed
		return dt
	}
}

func writeCSV(path string, sizes []int, trainRMSE, testRMSE []float64) error {
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
	if err := w.Write([]string{"size", "train_rmse", "test_rmse"}); err != nil {
		return err
	}
	for i := range sizes {
		rec := []string{strconv.Itoa(sizes[i]), fmt.Sprintf("%.2f", trainRMSE[i]), fmt.Sprintf("%.2f", testRMSE[i])}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func plotCurve(path string, sizes []int, trainRMSE, testRMSE []float64) error {
	p := plot.New()
	p.Title.Text = "Learning Curve"
	p.X.Label.Text = "Training rows"
	p.Y.Label.Text = "RMSE"

	toXY := func(xs []int, ys []float64) plotter.XYs {
		pts := make(plotter.XYs, len(xs))
		for i := range xs {
			pts[i].X = float64(xs[i])
			pts[i].Y = ys[i]
		}
		return pts
	}
	if err := plotutil.AddLinePoints(p, "Train", toXY(sizes, trainRMSE), "Test", toXY(sizes, testRMSE)); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 4*vg.Inch, path)
}
