package data

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
)

var (
	Basins         = []string{"bear creek", "cedar river", "granite gorge", "lower fork", "silver basin"}
	FundingSources = []string{"federal", "state", "county", "private"}
	Surfaces       = []string{"paved", "gravel", "native"}
	AccessClasses  = []string{"easy", "moderate", "difficult", "remote"}
	Severities     = []string{"minor", "moderate", "major", "severe"}
)

// Header is the column order of generated worksite CSV files.
var Header = []string{"site_id", "basin", "funding_source", "surface", "access_class", "severity", "length_km", "slope_pct", "crossings", "cost"}

// unit repair rates per km by surface, the backbone of the synthetic cost.
var surfaceRate = map[string]float64{"paved": 85000, "gravel": 32000, "native": 14000}

var severityFactor = map[string]float64{"minor": 0.6, "moderate": 1.0, "major": 1.8, "severe": 3.1}

var accessFactor = map[string]float64{"easy": 1.0, "moderate": 1.15, "difficult": 1.4, "remote": 1.9}

// GenerateWorksites writes n synthetic worksite rows to outPath. The seed
// fully determines the output.
func GenerateWorksites(n int, seed int64, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(Header); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	for i := 0; i < n; i++ {
		site := randomWorksite(rng, i)
		rec := []string{
			site.SiteID,
			site.Basin,
			site.FundingSource,
			site.Surface,
			site.AccessClass,
			site.Severity,
			strconv.FormatFloat(site.LengthKm, 'f', 3, 64),
			strconv.FormatFloat(site.SlopePct, 'f', 1, 64),
			strconv.Itoa(site.Crossings),
			strconv.FormatFloat(site.Cost, 'f', 2, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func randomWorksite(rng *rand.Rand, i int) Worksite {
	s := Worksite{
		SiteID:        "WS" + strconv.Itoa(100000+i),
		Basin:         Basins[rng.Intn(len(Basins))],
		FundingSource: FundingSources[rng.Intn(len(FundingSources))],
		Surface:       Surfaces[rng.Intn(len(Surfaces))],
		AccessClass:   AccessClasses[rng.Intn(len(AccessClasses))],
		Severity:      Severities[rng.Intn(len(Severities))],
		LengthKm:      0.1 + rng.Float64()*4.9,
		SlopePct:      rng.Float64() * 40,
		Crossings:     rng.Intn(6),
	}
	s.Cost = syntheticCost(s, rng)
	return s
}

// syntheticCost mixes additive and multiplicative effects with lognormal
// noise, so the tree models have structure to find and the linear baseline
// benefits from the log transform.
func syntheticCost(s Worksite, rng *rand.Rand) float64 {
	base := 12000.0
	base += s.LengthKm * surfaceRate[s.Surface]
	base += float64(s.Crossings) * 18000
	base *= severityFactor[s.Severity]
	base *= accessFactor[s.AccessClass]
	base *= 1 + s.SlopePct/100
	if s.FundingSource == "federal" {
		base *= 1.12 // federal oversight overhead
	}
	switch s.Basin {
	case "granite gorge":
		base *= 1.2
	case "lower fork":
		base *= 0.9
	}
	noise := math.Exp(rng.NormFloat64() * 0.25)
	c := base * noise
	if c < 500 {
		c = 500
	}
	return c
}

// ReadWorksites loads a generated CSV back into memory.
func ReadWorksites(path string) ([]Worksite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("worksite csv %s has no data rows", path)
	}
	out := make([]Worksite, 0, len(rows)-1)
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) != len(Header) {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), len(Header))
		}
		length, err := strconv.ParseFloat(row[6], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d length_km: %w", i, err)
		}
		slope, err := strconv.ParseFloat(row[7], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d slope_pct: %w", i, err)
		}
		crossings, err := strconv.Atoi(row[8])
		if err != nil {
			return nil, fmt.Errorf("row %d crossings: %w", i, err)
		}
		cost, err := strconv.ParseFloat(row[9], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d cost: %w", i, err)
		}
		out = append(out, Worksite{
			SiteID:        row[0],
			Basin:         row[1],
			FundingSource: row[2],
			Surface:       row[3],
			AccessClass:   row[4],
			Severity:      row[5],
			LengthKm:      length,
			SlopePct:      slope,
			Crossings:     crossings,
			Cost:          cost,
		})
	}
	return out, nil
}
