package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/config"
	"incentives-backend/internal/metrics"

	"github.com/sirupsen/logrus"
)

// LlamaClient fetches protocol TVL and DEX volume from the DeFiLlama
// free-tier API. Responses are cached with the tvl/volume TTLs.
type LlamaClient struct {
	baseURL        string
	volumesBaseURL string
	chain          string
	chainID        int
	httpClient     *http.Client
	cache          cache.Cache
	ttls           cache.TTLs
}

// NewLlamaClient creates a new DeFiLlama client.
func NewLlamaClient(cfg config.LlamaConfig, chain config.ChainConfig, c cache.Cache, ttls cache.TTLs) *LlamaClient {
	timeout := 30 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &LlamaClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		volumesBaseURL: strings.TrimRight(cfg.VolumesBaseURL, "/"),
		chain:          chain.Name,
		chainID:        chain.ID,
		httpClient:     &http.Client{Timeout: timeout},
		cache:          c,
		ttls:           ttls,
	}
}

// ProtocolTVL is a protocol's current TVL plus the value one week ago,
// extracted from the historical series.
type ProtocolTVL struct {
	Protocol string  `json:"protocol"`
	TVL      float64 `json:"tvl"`
	TVL7dAgo float64 `json:"tvl_7d_ago"`
}

// DexVolume is a protocol's recent DEX volume on the configured chain.
type DexVolume struct {
	Protocol string  `json:"protocol"`
	Total24h float64 `json:"total_24h"`
	Total7d  float64 `json:"total_7d"`
}

type llamaProtocolResponse struct {
	Name string `json:"name"`
	TVL  []struct {
		Date              int64   `json:"date"`
		TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
	} `json:"tvl"`
	CurrentChainTvls map[string]float64 `json:"currentChainTvls"`
}

// GetProtocolTVL returns a protocol's TVL on the configured chain,
// with the 7d-ago value taken from the series tail.
func (c *LlamaClient) GetProtocolTVL(ctx context.Context, slug string) (*ProtocolTVL, error) {
	key := cache.Key(cache.CategoryTVL, c.chainID, slug)
	if data, ok := c.cache.Get(ctx, key); ok {
		var cached ProtocolTVL
		if err := json.Unmarshal(data, &cached); err == nil {
			metrics.CacheHits.WithLabelValues(string(cache.CategoryTVL)).Inc()
			return &cached, nil
		}
		c.cache.Delete(ctx, key)
	}
	metrics.CacheMisses.WithLabelValues(string(cache.CategoryTVL)).Inc()

	body, err := c.get(ctx, fmt.Sprintf("%s/protocol/%s", c.baseURL, slug))
	if err != nil {
		return nil, err
	}

	var resp llamaProtocolResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode llama protocol %s: %w", slug, err)
	}

	result := &ProtocolTVL{Protocol: slug}

	// Prefer the per-chain figure when the API provides it.
	for name, tvl := range resp.CurrentChainTvls {
		if strings.EqualFold(name, c.chain) {
			result.TVL = tvl
			break
		}
	}

	if n := len(resp.TVL); n > 0 {
		if result.TVL == 0 {
			result.TVL = resp.TVL[n-1].TotalLiquidityUSD
		}
		weekAgo := time.Now().AddDate(0, 0, -7).Unix()
		for i := n - 1; i >= 0; i-- {
			if resp.TVL[i].Date <= weekAgo {
				result.TVL7dAgo = resp.TVL[i].TotalLiquidityUSD
				break
			}
		}
	}

	if data, err := json.Marshal(result); err == nil {
		c.cache.Set(ctx, key, data, c.ttls.For(cache.CategoryTVL))
	}
	return result, nil
}

type llamaDexResponse struct {
	Total24h float64 `json:"total24h"`
	Total7d  float64 `json:"total7d"`
}

// GetDexVolume returns recent DEX volume for a protocol on the chain.
// A 404 means DeFiLlama does not track the protocol as a DEX; callers
// treat that as "no volume data", not an error.
func (c *LlamaClient) GetDexVolume(ctx context.Context, slug string) (*DexVolume, error) {
	key := cache.Key(cache.CategoryVolume, c.chainID, slug)
	if data, ok := c.cache.Get(ctx, key); ok {
		var cached DexVolume
		if err := json.Unmarshal(data, &cached); err == nil {
			metrics.CacheHits.WithLabelValues(string(cache.CategoryVolume)).Inc()
			return &cached, nil
		}
		c.cache.Delete(ctx, key)
	}
	metrics.CacheMisses.WithLabelValues(string(cache.CategoryVolume)).Inc()

	url := fmt.Sprintf("%s/overview/dexs/%s?chain=%s&excludeTotalDataChart=true", c.volumesBaseURL, slug, c.chain)
	body, err := c.get(ctx, url)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			logrus.WithField("protocol", slug).Debug("no DEX volume data on DeFiLlama")
			return nil, nil
		}
		return nil, err
	}

	var resp llamaDexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode llama dex %s: %w", slug, err)
	}

	result := &DexVolume{Protocol: slug, Total24h: resp.Total24h, Total7d: resp.Total7d}
	if data, err := json.Marshal(result); err == nil {
		c.cache.Set(ctx, key, data, c.ttls.For(cache.CategoryVolume))
	}
	return result, nil
}

func (c *LlamaClient) get(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("llama", "error").Inc()
		return nil, fmt.Errorf("llama API: %w", err)
	}
	defer resp.Body.Close()
	metrics.FetchDuration.WithLabelValues("llama").Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.FetchRequests.WithLabelValues("llama", "error").Inc()
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.FetchRequests.WithLabelValues("llama", strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &APIError{Source: "llama", StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	metrics.FetchRequests.WithLabelValues("llama", "200").Inc()
	return body, nil
}
