package services

import (
	"testing"
	"time"

	"incentives-backend/internal/clients"
	"incentives-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	windowTo   = time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	windowFrom = windowTo.AddDate(0, 0, -7)
)

// monCampaign builds a MON campaign fully inside the test window.
func monCampaign(market, platform, funder, amount string, price float64) clients.MerklCampaign {
	return clients.MerklCampaign{
		CampaignID:     "c-" + market,
		Amount:         amount,
		StartTimestamp: windowFrom.Unix(),
		EndTimestamp:   windowTo.Unix(),
		RewardToken:    clients.MerklToken{Symbol: "MON", Decimals: 18, Price: price},
		Opportunity: &clients.MerklCampaignOpportunity{
			Identifier: market,
			Protocol:   &clients.MerklProtocol{Name: platform},
		},
		Creator: &clients.MerklCreator{Tags: []string{funder}},
	}
}

func newTestAggregation() *AggregationService {
	return NewAggregationService(nil, nil, "MON", 143)
}

func TestAggregateGroupsAndAnnualizes(t *testing.T) {
	svc := newTestAggregation()

	// 1000 MON at $2 over the full window.
	campaigns := []clients.MerklCampaign{
		monCampaign("0xaaa", "Curvance", "Curvance", "1000000000000000000000", 2.0),
	}
	opps := map[string]clients.MerklOpportunity{
		"0xaaa": {Identifier: "0xaaa", Name: "MON/USDC", Action: "POOL", TVL: 1_000_000},
	}

	agg := svc.Aggregate(campaigns, opps, windowFrom, windowTo)

	require.Len(t, agg.Platforms, 1)
	require.Len(t, agg.Platforms[0].Funders, 1)
	require.Len(t, agg.Platforms[0].Funders[0].Markets, 1)

	m := agg.Platforms[0].Funders[0].Markets[0]
	assert.Equal(t, "0xaaa", m.MarketID)
	assert.Equal(t, "MON/USDC", m.MarketName)
	assert.InDelta(t, 1000, m.IncentivesMON, 0.01)
	assert.InDelta(t, 2000, m.IncentivesUSD, 0.01)
	assert.InDelta(t, 2000*365.0/7.0, m.AnnualizedUSD, 0.5)
	// annualized / TVL * 100
	assert.InDelta(t, m.AnnualizedUSD/1_000_000*100, m.TVLCostPct, 0.001)
	assert.False(t, m.NoTVL)

	assert.InDelta(t, 2.0, agg.MONPriceUSD, 0.001)
	assert.InDelta(t, 2000, agg.IncentivesUSD, 0.01)
	assert.Equal(t, 7, agg.WindowDays)
}

func TestAggregateIgnoresOtherRewardTokens(t *testing.T) {
	svc := newTestAggregation()

	usdc := monCampaign("0xbbb", "Kuru", "Kuru", "500000000", 1.0)
	usdc.RewardToken = clients.MerklToken{Symbol: "USDC", Decimals: 6, Price: 1}

	agg := svc.Aggregate([]clients.MerklCampaign{usdc}, nil, windowFrom, windowTo)
	assert.Empty(t, agg.Platforms)
	assert.Zero(t, agg.IncentivesUSD)
}

func TestAggregateProRatesPartialOverlap(t *testing.T) {
	svc := newTestAggregation()

	// Campaign runs 14 days, half of it inside the 7 day window: half
	// the 1000 MON budget counts.
	c := monCampaign("0xccc", "Apriori", "Apriori", "1000000000000000000000", 1.0)
	c.StartTimestamp = windowFrom.Unix()
	c.EndTimestamp = windowFrom.AddDate(0, 0, 14).Unix()

	agg := svc.Aggregate([]clients.MerklCampaign{c}, nil, windowFrom, windowTo)

	markets := agg.Markets()
	require.Len(t, markets, 1)
	assert.InDelta(t, 500, markets[0].IncentivesMON, 0.01)
}

func TestAggregateMarketWithoutTVL(t *testing.T) {
	svc := newTestAggregation()

	campaigns := []clients.MerklCampaign{
		monCampaign("0xddd", "Kintsu", "Kintsu", "1000000000000000000", 1.0),
	}

	// No opportunity entry for the market: TVL unknown.
	agg := svc.Aggregate(campaigns, nil, windowFrom, windowTo)

	markets := agg.Markets()
	require.Len(t, markets, 1)
	assert.True(t, markets[0].NoTVL)
	assert.Zero(t, markets[0].TVLCostPct)
	assert.Equal(t, "0xddd", markets[0].MarketName)
}

func TestAggregateMergesCampaignsOnSameMarket(t *testing.T) {
	svc := newTestAggregation()

	campaigns := []clients.MerklCampaign{
		monCampaign("0xeee", "Curvance", "Curvance", "1000000000000000000000", 1.5),
		monCampaign("0xeee", "Curvance", "Curvance", "2000000000000000000000", 1.5),
	}

	agg := svc.Aggregate(campaigns, nil, windowFrom, windowTo)

	markets := agg.Markets()
	require.Len(t, markets, 1)
	assert.InDelta(t, 3000, markets[0].IncentivesMON, 0.01)
}

func TestAggregatePlatformTVLCountedOncePerMarket(t *testing.T) {
	svc := newTestAggregation()

	// Same pool funded by two protocols: one row per funder, but the
	// pool's TVL enters the platform total once.
	campaigns := []clients.MerklCampaign{
		monCampaign("0xfff", "Curvance", "Curvance", "1000000000000000000000", 1.0),
		monCampaign("0xfff", "Curvance", "MonadFoundation", "1000000000000000000000", 1.0),
	}
	opps := map[string]clients.MerklOpportunity{
		"0xfff": {Identifier: "0xfff", Name: "MON/USDT", Action: "POOL", TVL: 1_000_000},
	}

	agg := svc.Aggregate(campaigns, opps, windowFrom, windowTo)

	require.Len(t, agg.Platforms, 1)
	assert.Len(t, agg.Markets(), 2)
	assert.InDelta(t, 1_000_000, agg.Platforms[0].TVL, 0.1)
	assert.InDelta(t, 2000, agg.Platforms[0].IncentivesUSD, 0.01)
}

func TestAggregateSortsBySpendDescending(t *testing.T) {
	svc := newTestAggregation()

	campaigns := []clients.MerklCampaign{
		monCampaign("0x111", "Small", "Small", "1000000000000000000", 1.0),
		monCampaign("0x222", "Big", "Big", "9000000000000000000", 1.0),
	}

	agg := svc.Aggregate(campaigns, nil, windowFrom, windowTo)

	require.Len(t, agg.Platforms, 2)
	assert.Equal(t, "Big", agg.Platforms[0].Platform)
	assert.Equal(t, "Small", agg.Platforms[1].Platform)
}

func buildAggWithMarket(m models.MarketStats) *models.Aggregate {
	return &models.Aggregate{
		WindowDays: 7,
		Platforms: []models.PlatformGroup{{
			Platform: m.Platform,
			Funders: []models.FunderGroup{{
				Funder:  m.Funder,
				Markets: []models.MarketStats{m},
			}},
		}},
	}
}

func TestApplyWoWImprovingTrend(t *testing.T) {
	// Incentives doubled but TVL cost only rose 20%: liquidity grew
	// faster than spend.
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", IncentivesUSD: 2000, TVL: 5_000_000, TVLCostPct: 12,
	})
	previous := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", IncentivesUSD: 1000, TVL: 3_000_000, TVLCostPct: 10,
	})

	ApplyWoW(current, previous)

	m := current.Platforms[0].Funders[0].Markets[0]
	assert.InDelta(t, 100, m.WoWIncentivesPct, 0.01)
	assert.InDelta(t, 20, m.WoWTVLCostPct, 0.01)
	assert.Equal(t, "improving", m.Trend)
}

func TestApplyWoWDegradingTrend(t *testing.T) {
	// Incentives flat but TVL cost jumped: TVL drained.
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xbbb", IncentivesUSD: 1000, TVL: 1_000_000, TVLCostPct: 20,
	})
	previous := buildAggWithMarket(models.MarketStats{
		MarketID: "0xbbb", IncentivesUSD: 1000, TVL: 2_000_000, TVLCostPct: 10,
	})

	ApplyWoW(current, previous)

	m := current.Platforms[0].Funders[0].Markets[0]
	assert.InDelta(t, 0, m.WoWIncentivesPct, 0.01)
	assert.Equal(t, "degrading", m.Trend)
}

func TestApplyWoWMechanicalTrend(t *testing.T) {
	// TVL held, cost moved in lockstep with the incentive change.
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xccc", IncentivesUSD: 1100, TVL: 1_000_000, TVLCostPct: 11,
	})
	previous := buildAggWithMarket(models.MarketStats{
		MarketID: "0xccc", IncentivesUSD: 1000, TVL: 1_000_000, TVLCostPct: 10,
	})

	ApplyWoW(current, previous)

	m := current.Platforms[0].Funders[0].Markets[0]
	assert.Equal(t, "mechanical", m.Trend)
}

func TestApplyWoWSkipsNewMarkets(t *testing.T) {
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xnew", IncentivesUSD: 1000, TVL: 1_000_000, TVLCostPct: 10,
	})

	ApplyWoW(current, buildAggWithMarket(models.MarketStats{MarketID: "0xold"}))

	m := current.Platforms[0].Funders[0].Markets[0]
	assert.Empty(t, m.Trend)
	assert.Zero(t, m.WoWIncentivesPct)
	// "0xold" had no spend last window either, so it stays dropped.
	assert.Len(t, current.Markets(), 1)
}

func TestApplyWoWMatchesPerFunder(t *testing.T) {
	mk := func(funder string, usd float64) models.MarketStats {
		return models.MarketStats{
			MarketID: "0xfff", Platform: "Curvance", Funder: funder,
			IncentivesUSD: usd, TVL: 1_000_000, TVLCostPct: usd / 100,
		}
	}
	twoFunders := func(a, b models.MarketStats) *models.Aggregate {
		return &models.Aggregate{
			WindowDays: 7,
			Platforms: []models.PlatformGroup{{
				Platform: "Curvance",
				Funders: []models.FunderGroup{
					{Funder: "Curvance", Markets: []models.MarketStats{a}},
					{Funder: "MonadFoundation", Markets: []models.MarketStats{b}},
				},
			}},
		}
	}

	current := twoFunders(mk("Curvance", 2000), mk("MonadFoundation", 300))
	previous := twoFunders(mk("Curvance", 1000), mk("MonadFoundation", 600))

	ApplyWoW(current, previous)

	// Each funder's row compares against its own previous spend, not
	// whichever row happened to share the market identifier.
	assert.InDelta(t, 100, current.Platforms[0].Funders[0].Markets[0].WoWIncentivesPct, 0.01)
	assert.InDelta(t, -50, current.Platforms[0].Funders[1].Markets[0].WoWIncentivesPct, 0.01)
}

func TestApplyWoWKeepsLapsedMarketsVisible(t *testing.T) {
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", Platform: "Curvance", Funder: "Curvance",
		IncentivesUSD: 1000, TVL: 1_000_000, TVLCostPct: 10,
	})
	previous := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", Platform: "Curvance", Funder: "Curvance",
		IncentivesUSD: 900, TVL: 1_000_000, TVLCostPct: 9,
	})
	previous.Platforms = append(previous.Platforms, models.PlatformGroup{
		Platform: "Kuru",
		Funders: []models.FunderGroup{{
			Funder: "Kuru",
			Markets: []models.MarketStats{{
				MarketID: "0xgone", MarketName: "WMON/USDC", Platform: "Kuru",
				Funder: "Kuru", Action: "POOL", IncentivesUSD: 500, TVLCostPct: 5,
			}},
		}},
	})

	ApplyWoW(current, previous)

	markets := current.Markets()
	require.Len(t, markets, 2)

	var gone models.MarketStats
	for _, m := range markets {
		if m.MarketID == "0xgone" {
			gone = m
		}
	}
	require.Equal(t, "0xgone", gone.MarketID)
	assert.Zero(t, gone.IncentivesUSD)
	assert.InDelta(t, -100, gone.WoWIncentivesPct, 0.01)
	assert.InDelta(t, -100, gone.WoWTVLCostPct, 0.01)
	assert.Equal(t, "Kuru", gone.Platform)
	assert.Equal(t, "WMON/USDC", gone.MarketName)
}

func TestApplyWoWLapsedRowNotCarriedTwice(t *testing.T) {
	current := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", Platform: "Curvance", Funder: "Curvance", IncentivesUSD: 1000,
	})
	previous := buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", Platform: "Curvance", Funder: "Curvance", IncentivesUSD: 500,
	})
	// A row that already lapsed last window has zero spend and drops
	// out for good.
	previous.Platforms[0].Funders[0].Markets = append(previous.Platforms[0].Funders[0].Markets,
		models.MarketStats{MarketID: "0xgone", Platform: "Curvance", Funder: "Curvance", WoWIncentivesPct: -100})

	ApplyWoW(current, previous)

	assert.Len(t, current.Markets(), 1)
}

func TestApplyWoWNilPrevious(t *testing.T) {
	current := buildAggWithMarket(models.MarketStats{MarketID: "0xaaa"})
	assert.NotPanics(t, func() { ApplyWoW(current, nil) })
}

func TestPctChange(t *testing.T) {
	assert.InDelta(t, 50, pctChange(100, 150), 0.001)
	assert.InDelta(t, -25, pctChange(100, 75), 0.001)
	assert.Zero(t, pctChange(0, 100))
}

func TestProtocolSlug(t *testing.T) {
	assert.Equal(t, "uniswap-v3", protocolSlug("Uniswap V3"))
	assert.Equal(t, "kuru", protocolSlug(" Kuru "))
}
