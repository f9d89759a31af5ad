package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/config"
	"incentives-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// MerklClient fetches campaigns and opportunities from the Merkl REST
// API. Pages are cached individually; cache hits are merged with live
// fetches, and a short delay is applied between uncached pages only.
type MerklClient struct {
	baseURL    string
	chainID    int
	pageSize   int
	maxPages   int
	pageDelay  time.Duration
	httpClient *http.Client
	cache      cache.Cache
	ttls       cache.TTLs
}

// NewMerklClient creates a new Merkl client.
func NewMerklClient(cfg config.MerklConfig, chainID int, c cache.Cache, ttls cache.TTLs) *MerklClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &MerklClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chainID:    chainID,
		pageSize:   cfg.PageSize,
		maxPages:   cfg.MaxPages,
		pageDelay:  time.Duration(cfg.PageDelayMS) * time.Millisecond,
		httpClient: &http.Client{Timeout: timeout},
		cache:      c,
		ttls:       ttls,
	}
}

// MerklToken is the reward token on a campaign.
type MerklToken struct {
	Address  string  `json:"address"`
	Symbol   string  `json:"symbol"`
	Decimals int     `json:"decimals"`
	Price    float64 `json:"price"`
}

// MerklCampaign represents a funded incentive program.
type MerklCampaign struct {
	ID             string     `json:"id"`
	CampaignID     string     `json:"campaignId"`
	Type           string     `json:"type"`
	Status         string     `json:"status"`
	Amount         string     `json:"amount"` // reward amount in token base units
	StartTimestamp int64      `json:"startTimestamp"`
	EndTimestamp   int64      `json:"endTimestamp"`
	RewardToken    MerklToken `json:"rewardToken"`

	Opportunity *MerklCampaignOpportunity `json:"opportunity"`
	Creator     *MerklCreator             `json:"creator"`
}

// MerklCampaignOpportunity is the campaign's embedded opportunity ref.
type MerklCampaignOpportunity struct {
	Identifier string         `json:"identifier"`
	Name       string         `json:"name"`
	Action     string         `json:"action"`
	Protocol   *MerklProtocol `json:"protocol"`
}

// MerklProtocol identifies a protocol on Merkl.
type MerklProtocol struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MerklCreator is the campaign funder.
type MerklCreator struct {
	Address string   `json:"address"`
	Tags    []string `json:"tags"`
}

// AmountTokens converts the base-unit amount string to whole tokens.
func (c *MerklCampaign) AmountTokens() float64 {
	amount, err := strconv.ParseFloat(c.Amount, 64)
	if err != nil {
		return 0
	}
	decimals := c.RewardToken.Decimals
	if decimals == 0 {
		decimals = 18
	}
	return amount / math.Pow10(decimals)
}

// WindowOverlap returns the fraction of the campaign's runtime that
// falls inside [from, to]. Zero-length campaigns count as zero.
func (c *MerklCampaign) WindowOverlap(from, to time.Time) float64 {
	start := time.Unix(c.StartTimestamp, 0)
	end := time.Unix(c.EndTimestamp, 0)
	if !end.After(start) {
		return 0
	}
	lo := start
	if from.After(lo) {
		lo = from
	}
	hi := end
	if to.Before(hi) {
		hi = to
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo).Seconds() / end.Sub(start).Seconds()
}

// PlatformName returns the protocol hosting the targeted pool.
func (c *MerklCampaign) PlatformName() string {
	if c.Opportunity != nil && c.Opportunity.Protocol != nil && c.Opportunity.Protocol.Name != "" {
		return c.Opportunity.Protocol.Name
	}
	return "Unknown"
}

// FunderName returns the protocol paying for the campaign: the first
// creator tag when present, otherwise a shortened creator address.
func (c *MerklCampaign) FunderName() string {
	if c.Creator == nil {
		return "Unknown"
	}
	if len(c.Creator.Tags) > 0 && c.Creator.Tags[0] != "" {
		return c.Creator.Tags[0]
	}
	if addr := c.Creator.Address; len(addr) >= 10 {
		return addr[:6] + "…" + addr[len(addr)-4:]
	}
	return "Unknown"
}

// MerklOpportunity represents the market/pool a campaign targets.
type MerklOpportunity struct {
	ID           string         `json:"id"`
	Identifier   string         `json:"identifier"`
	Name         string         `json:"name"`
	Status       string         `json:"status"`
	Action       string         `json:"action"`
	TVL          float64        `json:"tvl"`
	DailyRewards float64        `json:"dailyRewards"`
	APR          float64        `json:"apr"`
	Protocol     *MerklProtocol `json:"protocol"`
	Tokens       []MerklToken   `json:"tokens"`
}

// FetchCampaigns pages through /campaigns for the configured chain.
// Each page is served from cache when possible; the fetch aborts on
// the first API error so partial windows are never aggregated.
func (c *MerklClient) FetchCampaigns(ctx context.Context) ([]MerklCampaign, error) {
	var all []MerklCampaign
	for page := 0; page < c.maxPages; page++ {
		var batch []MerklCampaign
		fetched, err := c.fetchPage(ctx, "/campaigns", cache.CategoryCampaigns, page, &batch)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			break
		}
		if fetched {
			// Only live fetches are rate limited.
			time.Sleep(c.pageDelay)
		}
	}
	logrus.WithFields(logrus.Fields{
		"chain_id": c.chainID,
		"count":    len(all),
	}).Info("📥 Merkl campaigns fetched")
	return all, nil
}

// FetchOpportunities pages through /opportunities for the chain.
func (c *MerklClient) FetchOpportunities(ctx context.Context) ([]MerklOpportunity, error) {
	var all []MerklOpportunity
	for page := 0; page < c.maxPages; page++ {
		var batch []MerklOpportunity
		fetched, err := c.fetchPage(ctx, "/opportunities", cache.CategoryOpportunities, page, &batch)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			break
		}
		if fetched {
			time.Sleep(c.pageDelay)
		}
	}
	logrus.WithFields(logrus.Fields{
		"chain_id": c.chainID,
		"count":    len(all),
	}).Info("📥 Merkl opportunities fetched")
	return all, nil
}

// fetchPage loads one page, preferring the cache. The boolean result
// reports whether a live request was made.
func (c *MerklClient) fetchPage(ctx context.Context, path string, category cache.Category, page int, out interface{}) (bool, error) {
	key := cache.Key(category, c.chainID, fmt.Sprintf("page-%d", page))
	if data, ok := c.cache.Get(ctx, key); ok {
		if err := json.Unmarshal(data, out); err == nil {
			metrics.CacheHits.WithLabelValues(string(category)).Inc()
			metrics.FetchPages.WithLabelValues("merkl", "true").Inc()
			return false, nil
		}
		// Corrupt entry: drop it and fall through to a live fetch.
		c.cache.Delete(ctx, key)
	}
	metrics.CacheMisses.WithLabelValues(string(category)).Inc()

	url := fmt.Sprintf("%s%s?chainId=%d&items=%d&page=%d", c.baseURL, path, c.chainID, c.pageSize, page)
	body, err := c.get(ctx, url)
	if err != nil {
		return true, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return true, fmt.Errorf("decode merkl %s page %d: %w", path, page, err)
	}

	c.cache.Set(ctx, key, body, c.ttls.For(category))
	metrics.FetchPages.WithLabelValues("merkl", "false").Inc()
	return true, nil
}

func (c *MerklClient) get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("merkl", "error").Inc()
		return nil, fmt.Errorf("merkl API: %w", err)
	}
	defer resp.Body.Close()
	metrics.FetchDuration.WithLabelValues("merkl").Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("merkl", "error").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FetchRequests.WithLabelValues("merkl", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &APIError{Source: "merkl", StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	metrics.FetchRequests.WithLabelValues("merkl", "200").Inc()
	return body, nil
}

// APIError is a non-2xx response from an upstream API.
type APIError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Body)
}

// snippet truncates a response body for error messages.
func snippet(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}
