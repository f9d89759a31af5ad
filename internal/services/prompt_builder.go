package services

import (
	"fmt"
	"sort"
	"strings"

	"incentives-backend/internal/models"
	"incentives-backend/internal/utils"
)

// reportSystemPrompt pins the LLM to the analyst role and the exact
// JSON contract. The schema is restated verbatim so retries stay
// deterministic.
const reportSystemPrompt = `You are a DeFi incentive-efficiency analyst. You review how much a chain's ecosystem pays in liquidity incentives relative to the TVL and volume those incentives attract.

Respond with a single JSON object and nothing else. No markdown, no code fences, no commentary outside the JSON. The object must match exactly this shape:

{
  "summary": "2-4 sentence overall assessment",
  "top_performers": ["market_id", ...],
  "underperformers": ["market_id", ...],
  "markets": [
    {"market_id": "...", "verdict": "efficient|acceptable|wasteful", "comment": "one sentence"}
  ],
  "recommendations": ["actionable suggestion", ...]
}

Rules:
- market_id values must be copied exactly from the input data.
- Every market in the input gets exactly one entry in "markets".
- "top_performers" and "underperformers" each hold at most 3 market_ids.
- TVL cost above 50% annualized is almost always wasteful; below 10% is usually efficient. Judge the rest in context.
- A "degrading" trend means TVL cost rose faster than the incentive change alone explains. Weigh it against the verdict.
- Judge cost against the asset class: longtail liquidity is structurally more expensive to attract than stable or native pairs.`

// BuildReportPrompt renders the aggregate as the user prompt for the
// report request. Markets are listed flat, grouped headers carry the
// platform/funder totals.
func BuildReportPrompt(agg *models.Aggregate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Chain: %d, window %s to %s (%d days)\n",
		agg.ChainID,
		agg.WindowFrom.Format("2006-01-02"),
		agg.WindowTo.Format("2006-01-02"),
		agg.WindowDays)
	fmt.Fprintf(&b, "MON price: $%.4f\n", agg.MONPriceUSD)
	fmt.Fprintf(&b, "Total incentives in window: %s (annualized %s)\n\n",
		utils.FormatUSD(agg.IncentivesUSD), utils.FormatUSD(agg.AnnualizedUSD))

	writeAssetClasses(&b, agg)

	for _, p := range agg.Platforms {
		fmt.Fprintf(&b, "## Platform %s — spend %s, TVL %s\n",
			p.Platform, utils.FormatUSD(p.IncentivesUSD), utils.FormatUSD(p.TVL))
		for _, f := range p.Funders {
			fmt.Fprintf(&b, "funded by %s (%s):\n", f.Funder, utils.FormatUSD(f.IncentivesUSD))
			for _, m := range f.Markets {
				writeMarketLine(&b, m)
			}
		}
		b.WriteString("\n")
	}

	writeCompetitors(&b, agg)

	return b.String()
}

var assetClassOrder = []string{"native", "stable", "bluechip", "longtail"}

// writeAssetClasses renders a market-by-asset-class table so the model
// can weigh cost figures against asset risk (incentivizing longtail
// liquidity is expected to cost more than stable pairs).
func writeAssetClasses(b *strings.Builder, agg *models.Aggregate) {
	byClass := make(map[string][]string)
	for _, m := range agg.Markets() {
		class := assetClass(m.MarketName)
		byClass[class] = append(byClass[class], m.MarketName)
	}

	b.WriteString("Asset classes:\n")
	for _, class := range assetClassOrder {
		names := byClass[class]
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)
		fmt.Fprintf(b, "- %s: %s\n", class, strings.Join(names, ", "))
	}
	b.WriteString("\n")
}

var (
	nativeAssets = map[string]bool{
		"MON": true, "WMON": true, "SMON": true, "SHMON": true,
		"APRMON": true, "GMON": true,
	}
	stableAssets = map[string]bool{
		"USDC": true, "USDT": true, "DAI": true, "USDS": true,
		"FRAX": true, "LUSD": true, "USDE": true, "AUSD": true,
	}
	bluechipAssets = map[string]bool{
		"ETH": true, "WETH": true, "BTC": true, "WBTC": true,
		"CBBTC": true, "WSTETH": true, "SOL": true, "WSOL": true,
	}
)

// assetClass buckets a market by the symbols in its name. MON and its
// staking derivatives win over everything else, then stables (only
// when every recognized leg is stable), then bluechips.
func assetClass(marketName string) string {
	symbols := strings.FieldsFunc(strings.ToUpper(marketName), func(r rune) bool {
		return !(r >= 'A' && r <= 'Z') && !(r >= '0' && r <= '9')
	})

	var hasNative, hasBluechip, hasOther bool
	recognized := 0
	for _, sym := range symbols {
		switch {
		case nativeAssets[sym]:
			hasNative = true
			recognized++
		case stableAssets[sym]:
			recognized++
		case bluechipAssets[sym]:
			hasBluechip = true
			recognized++
		default:
			hasOther = true
		}
	}

	switch {
	case hasNative:
		return "native"
	case recognized > 0 && !hasOther && !hasBluechip:
		return "stable"
	case hasBluechip:
		return "bluechip"
	default:
		return "longtail"
	}
}

// writeCompetitors lists, per action type, which platforms compete for
// the same kind of liquidity and at what cost.
func writeCompetitors(b *strings.Builder, agg *models.Aggregate) {
	type entry struct {
		spend    float64
		costSum  float64
		costRows int
	}
	byAction := make(map[string]map[string]*entry)
	for _, m := range agg.Markets() {
		action := m.Action
		if action == "" {
			action = "OTHER"
		}
		if byAction[action] == nil {
			byAction[action] = make(map[string]*entry)
		}
		e := byAction[action][m.Platform]
		if e == nil {
			e = &entry{}
			byAction[action][m.Platform] = e
		}
		e.spend += m.IncentivesUSD
		if !m.NoTVL {
			e.costSum += m.TVLCostPct
			e.costRows++
		}
	}

	actions := make([]string, 0, len(byAction))
	for action := range byAction {
		actions = append(actions, action)
	}
	sort.Strings(actions)

	b.WriteString("Competing platforms by action:\n")
	for _, action := range actions {
		platforms := make([]string, 0, len(byAction[action]))
		for platform := range byAction[action] {
			platforms = append(platforms, platform)
		}
		sort.Slice(platforms, func(i, j int) bool {
			return byAction[action][platforms[i]].spend > byAction[action][platforms[j]].spend
		})

		parts := make([]string, 0, len(platforms))
		for _, platform := range platforms {
			e := byAction[action][platform]
			if e.costRows > 0 {
				parts = append(parts, fmt.Sprintf("%s (%s, %.1f%%/yr avg)",
					platform, utils.FormatUSD(e.spend), e.costSum/float64(e.costRows)))
			} else {
				parts = append(parts, fmt.Sprintf("%s (%s)", platform, utils.FormatUSD(e.spend)))
			}
		}
		fmt.Fprintf(b, "- %s: %s\n", action, strings.Join(parts, ", "))
	}
	b.WriteString("\n")
}

func writeMarketLine(b *strings.Builder, m models.MarketStats) {
	fmt.Fprintf(b, "- market_id=%s name=%q action=%s incentives=%s/window",
		m.MarketID, m.MarketName, m.Action, utils.FormatUSD(m.IncentivesUSD))
	if m.NoTVL {
		b.WriteString(" tvl=unknown tvl_cost=n/a")
	} else {
		fmt.Fprintf(b, " tvl=%s tvl_cost=%.1f%%/yr", utils.FormatUSD(m.TVL), m.TVLCostPct)
	}
	if m.VolumeCostPct > 0 {
		fmt.Fprintf(b, " volume_cost=%.2f%%", m.VolumeCostPct)
	}
	if m.Trend != "" {
		fmt.Fprintf(b, " wow_incentives=%s wow_tvl=%s wow_tvl_cost=%s trend=%s",
			utils.FormatPct(m.WoWIncentivesPct), utils.FormatPct(m.WoWTVLPct),
			utils.FormatPct(m.WoWTVLCostPct), m.Trend)
	}
	b.WriteString("\n")
}
