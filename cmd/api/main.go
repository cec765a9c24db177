package main

import (
	"encoding/csv"
	"encoding/gob"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"repaircost/internal/data"
	"repaircost/internal/dataset"
	"repaircost/internal/features"
	"repaircost/internal/models"
	"repaircost/pkg/utils"
)

var (
	model  models.Model
	schema *dataset.Table
)

// unitRateModel is the fallback when no trained artifact is available: a
// per-km unit rate by surface, scaled by severity. Good enough to keep the
// service answering while a training run is pending.
type unitRateModel struct {
	surfaceIdx  int
	severityIdx int
	lengthIdx   int
}

func newUnitRateModel() *unitRateModel {
	return &unitRateModel{
		surfaceIdx:  schema.FeatureIndex("surface"),
		severityIdx: schema.FeatureIndex("severity"),
		lengthIdx:   schema.FeatureIndex("length_km"),
	}
}

// Per-km rates indexed by surface level, scaled by severity level.
var (
	unitRates     = []float64{90000, 35000, 15000}
	severityScale = []float64{0.6, 1.0, 1.8, 3.0}
)

func (u *unitRateModel) Fit(t *dataset.Table) error { return nil }
func (u *unitRateModel) Name() string               { return "UnitRateModel" }

func (u *unitRateModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		if err := schema.CheckRow(x); err != nil {
			return nil, err
		}
		rate := unitRates[int(x[u.surfaceIdx])]
		out[i] = 15000 + x[u.lengthIdx]*rate*severityScale[int(x[u.severityIdx])]
	}
	return out, nil
}

func main() {
	logger := utils.Logger()
	defer logger.Sync()

	var err error
	schema, err = dataset.New(features.Schema(), features.ResponseName)
	if err != nil {
		logger.Fatal("schema", zap.Error(err))
	}

	algo := strings.ToLower(os.Getenv("MODEL_ALGO"))
	if algo == "" {
		algo = "bagging"
	}
	model = loadModel(algo)
	if model == nil {
		logger.Warn("no trained artifact found, serving unit-rate fallback", zap.String("algo", algo))
		model = newUnitRateModel()
	}
	logger.Info("serving model", zap.String("model", model.Name()))

	r := gin.Default()

	r.Static("/static", "cmd/api/static")
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"model": model.Name()})
	})
	r.GET("/importances", handleImportances)
	r.GET("/metrics", handleMetrics)

	api := r.Group("/")
	api.Use(apiKeyMiddleware)
	api.POST("/predict", handlePredict)
	api.POST("/batch", handleBatch)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}

func loadModel(algo string) models.Model {
	switch algo {
	case "tree":
		var m models.RegressionTree
		if decodeGob("tree_model.gob", &m) && m.Root != nil {
			return &m
		}
	case "bagging":
		var m models.BaggedEnsemble
		if decodeGob("bag_model.gob", &m) && len(m.Trees) > 0 {
			return &m
		}
	case "boosting":
		var m models.BoostedEnsemble
		if decodeGob("boost_model.gob", &m) && len(m.Trees) > 0 {
			return &m
		}
	case "linear":
		var m models.LinearEstimator
		if decodeGob("linear_model.gob", &m) && len(m.Coefs) > 0 {
			return &m
		}
	}
	return nil
}

func decodeGob(name string, out any) bool {
	f, err := os.Open(filepath.Join("models", name))
	if err != nil {
		return false
	}
	defer f.Close()
	return gob.NewDecoder(f).Decode(out) == nil
}

func apiKeyMiddleware(c *gin.Context) {
	key := os.Getenv("API_KEY")
	if key == "" {
		c.Next()
		return
	}
	if c.GetHeader("X-API-Key") != key {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

type predictReq struct {
	SiteID        string  `json:"site_id"`
	Basin         string  `json:"basin" binding:"required"`
	FundingSource string  `json:"funding_source" binding:"required"`
	Surface       string  `json:"surface" binding:"required"`
	AccessClass   string  `json:"access_class" binding:"required"`
	Severity      string  `json:"severity" binding:"required"`
	LengthKm      float64 `json:"length_km" binding:"required"`
	SlopePct      float64 `json:"slope_pct"`
	Crossings     int     `json:"crossings"`
}

func (r predictReq) worksite() data.Worksite {
	return data.Worksite{
		SiteID:        r.SiteID,
		Basin:         r.Basin,
		FundingSource: r.FundingSource,
		Surface:       r.Surface,
		AccessClass:   r.AccessClass,
		Severity:      r.Severity,
		LengthKm:      r.LengthKm,
		SlopePct:      r.SlopePct,
		Crossings:     r.Crossings,
	}
}

func handlePredict(c *gin.Context) {
	var req predictReq
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	x, err := schema.EncodeRow(features.Row(req.worksite()))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	preds, err := model.Predict([][]float64{x})
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"site_id": req.SiteID, "cost": preds[0], "model": model.Name()})
}

func handleBatch(c *gin.Context) {
	var items []predictReq
	if err := c.BindJSON(&items); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	X := make([][]float64, 0, len(items))
	for _, it := range items {
		x, err := schema.EncodeRow(features.Row(it.worksite()))
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		X = append(X, x)
	}
	preds, err := model.Predict(X)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	out := make([]gin.H, len(items))
	for i := range items {
		out[i] = gin.H{"site_id": items[i].SiteID, "cost": preds[i]}
	}
	c.JSON(http.StatusOK, out)
}

func handleImportances(c *gin.Context) {
	imp, ok := model.(models.Importancer)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "model has no importance scores"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": model.Name(), "importances": imp.Importances()})
}

func handleMetrics(c *gin.Context) {
	f, err := os.Open("data/model_comparison.csv")
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{}})
		return
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) < 2 {
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{}})
		return
	}
	results := make([]gin.H, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 2 {
			results = append(results, gin.H{"model": row[0], "test_rmse": row[1]})
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
