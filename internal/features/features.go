// Package features bridges raw worksite records onto the fixed modeling
// schema. The level sets declared here are the ones every estimator is fit
// against; evaluation-time records with other levels fail at encoding.
package features

import (
	"repaircost/internal/data"
	"repaircost/internal/dataset"
)

// ResponseName is the modeled response column.
const ResponseName = "cost"

// Schema returns the fixed feature schema for worksite cost models.
func Schema() []dataset.Feature {
	return []dataset.Feature{
		{Name: "basin", Kind: dataset.Nominal, Levels: data.Basins},
		{Name: "funding_source", Kind: dataset.Nominal, Levels: data.FundingSources},
		{Name: "surface", Kind: dataset.Nominal, Levels: data.Surfaces},
		{Name: "access_class", Kind: dataset.Ordered, Levels: data.AccessClasses},
		{Name: "severity", Kind: dataset.Ordered, Levels: data.Severities},
		{Name: "length_km", Kind: dataset.Continuous},
		{Name: "slope_pct", Kind: dataset.Continuous},
		{Name: "crossings", Kind: dataset.Continuous},
	}
}

// Row maps a worksite onto the schema's raw-row form.
func Row(s data.Worksite) map[string]any {
	return map[string]any{
		"basin":          s.Basin,
		"funding_source": s.FundingSource,
		"surface":        s.Surface,
		"access_class":   s.AccessClass,
		"severity":       s.Severity,
		"length_km":      s.LengthKm,
		"slope_pct":      s.SlopePct,
		"crossings":      s.Crossings,
	}
}

// BuildTable encodes worksites into a fresh modeling table.
func BuildTable(sites []data.Worksite) (*dataset.Table, error) {
	t, err := dataset.New(Schema(), ResponseName)
	if err != nil {
		return nil, err
	}
	for _, s := range sites {
		if err := t.Add(Row(s), s.Cost); err != nil {
			return nil, err
		}
	}
	return t, nil
}
