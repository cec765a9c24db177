package data

// Worksite is one cleaned infrastructure-repair worksite observation as
// produced by the upstream ingestion pipeline.
type Worksite struct {
	SiteID        string  `json:"site_id"`
	Basin         string  `json:"basin"`
	FundingSource string  `json:"funding_source"`
	Surface       string  `json:"surface"`
	AccessClass   string  `json:"access_class"`
	Severity      string  `json:"severity"`
	LengthKm      float64 `json:"length_km"`
	SlopePct      float64 `json:"slope_pct"`
	Crossings     int     `json:"crossings"`
	Cost          float64 `json:"cost"`
}
