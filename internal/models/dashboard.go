package models

import "time"

// MarketStats is the per-market efficiency row, one per Merkl
// opportunity identifier funded in the window.
type MarketStats struct {
	MarketID   string `json:"market_id"`   // opportunity identifier
	MarketName string `json:"market_name"` // human readable, from opportunity
	Platform   string `json:"platform"`    // protocol hosting the pool
	Funder     string `json:"funder"`      // protocol paying the incentives
	Action     string `json:"action"`      // LEND / BORROW / POOL / HOLD

	IncentivesMON float64 `json:"incentives_mon"` // MON paid over the window
	IncentivesUSD float64 `json:"incentives_usd"` // window spend at current price
	AnnualizedUSD float64 `json:"annualized_usd"`

	TVL           float64 `json:"tvl"`
	Volume7d      float64 `json:"volume_7d,omitempty"`
	TVLCostPct    float64 `json:"tvl_cost_pct"`              // annualized USD / TVL * 100
	VolumeCostPct float64 `json:"volume_cost_pct,omitempty"` // annualized USD / annualized volume * 100
	NoTVL         bool    `json:"no_tvl,omitempty"`          // TVL unavailable, cost omitted

	// Week over week, percent change vs the preceding window.
	WoWIncentivesPct float64 `json:"wow_incentives_pct"`
	WoWTVLPct        float64 `json:"wow_tvl_pct"`
	WoWTVLCostPct    float64 `json:"wow_tvl_cost_pct"`

	// Trend classifies the actual TVL-cost move against the mechanical
	// move implied by the incentive change alone: "improving",
	// "degrading" or "mechanical". Used only to phrase report prose.
	Trend string `json:"trend,omitempty"`
}

// FunderGroup groups the markets one protocol funds on one platform.
type FunderGroup struct {
	Funder        string        `json:"funder"`
	IncentivesUSD float64       `json:"incentives_usd"`
	Markets       []MarketStats `json:"markets"`
}

// PlatformGroup is the top aggregation level: the protocol whose pools
// receive the incentives.
type PlatformGroup struct {
	Platform      string        `json:"platform"`
	IncentivesUSD float64       `json:"incentives_usd"`
	TVL           float64       `json:"tvl"`
	Funders       []FunderGroup `json:"funders"`
}

// Aggregate is the full aggregation result for one window.
type Aggregate struct {
	ChainID       int             `json:"chain_id"`
	WindowFrom    time.Time       `json:"window_from"`
	WindowTo      time.Time       `json:"window_to"`
	WindowDays    int             `json:"window_days"`
	MONPriceUSD   float64         `json:"mon_price_usd"`
	IncentivesUSD float64         `json:"incentives_usd"` // total over window
	AnnualizedUSD float64         `json:"annualized_usd"`
	Platforms     []PlatformGroup `json:"platforms"`
}

// Markets flattens the aggregate into market rows.
func (a *Aggregate) Markets() []MarketStats {
	var rows []MarketStats
	for _, p := range a.Platforms {
		for _, f := range p.Funders {
			rows = append(rows, f.Markets...)
		}
	}
	return rows
}

// MarketComment is one market's entry in the LLM report.
type MarketComment struct {
	MarketID string `json:"market_id"`
	Verdict  string `json:"verdict"` // "efficient" | "acceptable" | "wasteful"
	Comment  string `json:"comment"`
}

// EfficiencyReport is the JSON contract the LLM must return.
type EfficiencyReport struct {
	Summary         string          `json:"summary"`
	TopPerformers   []string        `json:"top_performers"`
	Underperformers []string        `json:"underperformers"`
	Markets         []MarketComment `json:"markets"`
	Recommendations []string        `json:"recommendations"`
}

// Snapshot is one dashboard refresh result, cached keyed by date.
type Snapshot struct {
	ID          string            `json:"id"` // run UUID
	Date        string            `json:"date"`
	GeneratedAt time.Time         `json:"generated_at"`
	DurationMS  int64             `json:"duration_ms"`
	Aggregate   *Aggregate        `json:"aggregate"`
	Report      *EfficiencyReport `json:"report,omitempty"`
	ReportError string            `json:"report_error,omitempty"` // set when LLM commentary was skipped
	Provider    string            `json:"provider,omitempty"`     // LLM provider that produced the report
}
