package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"incentives-backend/internal/clients"
	"incentives-backend/internal/models"

	"github.com/sirupsen/logrus"
)

// AggregationService turns raw Merkl campaigns and opportunities into
// the grouped efficiency aggregate: platform protocol → funding
// protocol → market, with annualized TVL/volume cost per market.
type AggregationService struct {
	merkl        *clients.MerklClient
	llama        *clients.LlamaClient
	rewardSymbol string
	chainID      int
}

// NewAggregationService creates a new aggregation service.
func NewAggregationService(merkl *clients.MerklClient, llama *clients.LlamaClient, rewardSymbol string, chainID int) *AggregationService {
	return &AggregationService{
		merkl:        merkl,
		llama:        llama,
		rewardSymbol: strings.ToUpper(rewardSymbol),
		chainID:      chainID,
	}
}

const annualDays = 365

// BuildAggregate fetches campaigns/opportunities and aggregates the
// window [from, to). Campaign spend is pro-rated to the window overlap
// of each campaign's runtime. Markets with no spend in the window are
// dropped.
func (s *AggregationService) BuildAggregate(ctx context.Context, from, to time.Time) (*models.Aggregate, error) {
	windowDays := int(to.Sub(from).Hours() / 24)
	if windowDays < 1 {
		return nil, fmt.Errorf("aggregation window must cover at least one day (got %s..%s)", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	campaigns, err := s.merkl.FetchCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch campaigns: %w", err)
	}
	opportunities, err := s.merkl.FetchOpportunities(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch opportunities: %w", err)
	}

	oppByID := make(map[string]clients.MerklOpportunity, len(opportunities))
	for _, opp := range opportunities {
		oppByID[opp.Identifier] = opp
	}

	agg := s.Aggregate(campaigns, oppByID, from, to)
	s.attachVolumes(ctx, agg)
	return agg, nil
}

// marketKey is the grouping key within one aggregation pass.
type marketKey struct {
	platform string
	funder   string
	market   string
}

// Aggregate is the pure aggregation step, separated from fetching so
// it can be tested against fixture data.
func (s *AggregationService) Aggregate(campaigns []clients.MerklCampaign, oppByID map[string]clients.MerklOpportunity, from, to time.Time) *models.Aggregate {
	windowDays := int(to.Sub(from).Hours() / 24)
	annualize := float64(annualDays) / float64(windowDays)

	var monPrice float64
	monByMarket := make(map[marketKey]float64)

	for _, c := range campaigns {
		if !strings.EqualFold(c.RewardToken.Symbol, s.rewardSymbol) {
			continue
		}
		overlap := c.WindowOverlap(from, to)
		if overlap <= 0 {
			continue
		}
		if monPrice == 0 && c.RewardToken.Price > 0 {
			monPrice = c.RewardToken.Price
		}

		marketID := ""
		if c.Opportunity != nil {
			marketID = c.Opportunity.Identifier
		}
		if marketID == "" {
			marketID = c.CampaignID
		}

		key := marketKey{platform: c.PlatformName(), funder: c.FunderName(), market: marketID}
		monByMarket[key] += c.AmountTokens() * overlap
	}

	agg := &models.Aggregate{
		ChainID:     s.chainID,
		WindowFrom:  from,
		WindowTo:    to,
		WindowDays:  windowDays,
		MONPriceUSD: monPrice,
	}

	platforms := make(map[string]*models.PlatformGroup)
	funders := make(map[string]map[string]*models.FunderGroup)
	tvlCounted := make(map[string]map[string]bool)

	for key, mon := range monByMarket {
		if mon <= 0 {
			continue
		}
		usd := mon * monPrice
		annualizedUSD := usd * annualize

		row := models.MarketStats{
			MarketID:      key.market,
			Platform:      key.platform,
			Funder:        key.funder,
			IncentivesMON: mon,
			IncentivesUSD: usd,
			AnnualizedUSD: annualizedUSD,
		}
		if opp, ok := oppByID[key.market]; ok {
			row.MarketName = opp.Name
			row.Action = opp.Action
			row.TVL = opp.TVL
		}
		if row.MarketName == "" {
			row.MarketName = key.market
		}
		if row.TVL > 0 {
			row.TVLCostPct = annualizedUSD / row.TVL * 100
		} else {
			row.NoTVL = true
		}

		pg := platforms[key.platform]
		if pg == nil {
			pg = &models.PlatformGroup{Platform: key.platform}
			platforms[key.platform] = pg
			funders[key.platform] = make(map[string]*models.FunderGroup)
			tvlCounted[key.platform] = make(map[string]bool)
		}
		fg := funders[key.platform][key.funder]
		if fg == nil {
			fg = &models.FunderGroup{Funder: key.funder}
			funders[key.platform][key.funder] = fg
		}

		fg.Markets = append(fg.Markets, row)
		fg.IncentivesUSD += usd
		pg.IncentivesUSD += usd
		// A market funded by several protocols gets one row per funder
		// but its TVL counts toward the platform total once.
		if !tvlCounted[key.platform][key.market] {
			pg.TVL += row.TVL
			tvlCounted[key.platform][key.market] = true
		}
		agg.IncentivesUSD += usd
	}

	agg.AnnualizedUSD = agg.IncentivesUSD * annualize

	// Deterministic ordering: biggest spend first at every level.
	for name, pg := range platforms {
		for _, fg := range funders[name] {
			sort.Slice(fg.Markets, func(i, j int) bool {
				return fg.Markets[i].IncentivesUSD > fg.Markets[j].IncentivesUSD
			})
			pg.Funders = append(pg.Funders, *fg)
		}
		sort.Slice(pg.Funders, func(i, j int) bool {
			return pg.Funders[i].IncentivesUSD > pg.Funders[j].IncentivesUSD
		})
		agg.Platforms = append(agg.Platforms, *pg)
	}
	sort.Slice(agg.Platforms, func(i, j int) bool {
		return agg.Platforms[i].IncentivesUSD > agg.Platforms[j].IncentivesUSD
	})

	logrus.WithFields(logrus.Fields{
		"platforms":      len(agg.Platforms),
		"markets":        len(agg.Markets()),
		"incentives_usd": agg.IncentivesUSD,
		"mon_price":      monPrice,
	}).Info("📊 aggregation complete")
	return agg
}

// attachVolumes fills per-market volume cost from DeFiLlama DEX
// volumes. Volume is tracked per protocol, so each market gets the
// platform's 7d volume pro-rated by its TVL share. Markets without
// TVL keep no volume cost. Lookup failures are logged and skipped:
// volume cost is a secondary metric.
func (s *AggregationService) attachVolumes(ctx context.Context, agg *models.Aggregate) {
	for pi := range agg.Platforms {
		pg := &agg.Platforms[pi]
		vol, err := s.llama.GetDexVolume(ctx, protocolSlug(pg.Platform))
		if err != nil {
			logrus.WithError(err).WithField("platform", pg.Platform).Warn("volume lookup failed")
			continue
		}
		if vol == nil || vol.Total7d <= 0 || pg.TVL <= 0 {
			continue
		}
		for fi := range pg.Funders {
			for mi := range pg.Funders[fi].Markets {
				m := &pg.Funders[fi].Markets[mi]
				if m.TVL <= 0 {
					continue
				}
				m.Volume7d = vol.Total7d * (m.TVL / pg.TVL)
				annualVolume := m.Volume7d * annualDays / 7
				if annualVolume > 0 {
					m.VolumeCostPct = m.AnnualizedUSD / annualVolume * 100
				}
			}
		}
	}
}

// trendTolerance is the band (in percentage points) within which the
// actual TVL-cost move counts as purely mechanical.
const trendTolerance = 2.5

// ApplyWoW fills week-over-week fields on the current aggregate by
// matching (platform, funder, market) rows against the previous
// window's aggregate, then classifies each market's trend: the
// mechanical expectation is that TVL cost moves with incentives alone
// (TVL held constant); beating it means liquidity grew faster than
// spend. Markets funded last window but not this one stay visible as
// zero-spend rows; markets with no spend in either window are dropped.
func ApplyWoW(current, previous *models.Aggregate) {
	if previous == nil {
		return
	}
	prevByKey := make(map[marketKey]models.MarketStats)
	for _, m := range previous.Markets() {
		prevByKey[marketKey{platform: m.Platform, funder: m.Funder, market: m.MarketID}] = m
	}
	matched := make(map[marketKey]bool)

	for pi := range current.Platforms {
		for fi := range current.Platforms[pi].Funders {
			for mi := range current.Platforms[pi].Funders[fi].Markets {
				m := &current.Platforms[pi].Funders[fi].Markets[mi]
				key := marketKey{platform: m.Platform, funder: m.Funder, market: m.MarketID}
				prev, ok := prevByKey[key]
				if !ok {
					continue
				}
				matched[key] = true
				m.WoWIncentivesPct = pctChange(prev.IncentivesUSD, m.IncentivesUSD)
				m.WoWTVLPct = pctChange(prev.TVL, m.TVL)
				m.WoWTVLCostPct = pctChange(prev.TVLCostPct, m.TVLCostPct)

				if prev.TVLCostPct == 0 || m.NoTVL {
					continue
				}
				mechanical := m.WoWIncentivesPct
				diff := m.WoWTVLCostPct - mechanical
				switch {
				case diff < -trendTolerance:
					m.Trend = "improving"
				case diff > trendTolerance:
					m.Trend = "degrading"
				default:
					m.Trend = "mechanical"
				}
			}
		}
	}

	appendLapsed(current, prevByKey, matched)
}

// appendLapsed adds zero-spend rows for markets that received
// incentives in the previous window but none in the current one.
// Previous rows that were themselves zero-spend are not carried
// forward, so a lapsed market shows up for exactly one window.
func appendLapsed(current *models.Aggregate, prevByKey map[marketKey]models.MarketStats, matched map[marketKey]bool) {
	var lapsed []models.MarketStats
	for key, prev := range prevByKey {
		if matched[key] || prev.IncentivesUSD <= 0 {
			continue
		}
		lapsed = append(lapsed, models.MarketStats{
			MarketID:         prev.MarketID,
			MarketName:       prev.MarketName,
			Platform:         prev.Platform,
			Funder:           prev.Funder,
			Action:           prev.Action,
			NoTVL:            true,
			WoWIncentivesPct: -100,
			WoWTVLCostPct:    pctChange(prev.TVLCostPct, 0),
		})
	}
	sort.Slice(lapsed, func(i, j int) bool {
		if lapsed[i].MarketID != lapsed[j].MarketID {
			return lapsed[i].MarketID < lapsed[j].MarketID
		}
		return lapsed[i].Funder < lapsed[j].Funder
	})
	for _, row := range lapsed {
		insertMarket(current, row)
	}
}

// insertMarket appends a row under its platform/funder group, creating
// the groups when the current window has no spend there at all.
func insertMarket(agg *models.Aggregate, row models.MarketStats) {
	for pi := range agg.Platforms {
		pg := &agg.Platforms[pi]
		if pg.Platform != row.Platform {
			continue
		}
		for fi := range pg.Funders {
			if pg.Funders[fi].Funder == row.Funder {
				pg.Funders[fi].Markets = append(pg.Funders[fi].Markets, row)
				return
			}
		}
		pg.Funders = append(pg.Funders, models.FunderGroup{Funder: row.Funder, Markets: []models.MarketStats{row}})
		return
	}
	agg.Platforms = append(agg.Platforms, models.PlatformGroup{
		Platform: row.Platform,
		Funders:  []models.FunderGroup{{Funder: row.Funder, Markets: []models.MarketStats{row}}},
	})
}

// pctChange returns the percent change from prev to cur, 0 when there
// is no previous base to compare against.
func pctChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// protocolSlug converts a display name to a DeFiLlama slug.
func protocolSlug(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
