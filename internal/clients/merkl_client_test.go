package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMerklClient(t *testing.T, baseURL string) *MerklClient {
	t.Helper()
	mem, err := cache.NewMemoryCache()
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })

	cfg := config.MerklConfig{
		BaseURL:  baseURL,
		PageSize: 2,
		MaxPages: 10,
	}
	return NewMerklClient(cfg, 143, mem, cache.TTLs{Campaigns: time.Minute, Opportunities: time.Minute})
}

func TestFetchCampaignsPaginates(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		switch page {
		case "0":
			fmt.Fprint(w, `[{"campaignId":"c1","amount":"1"},{"campaignId":"c2","amount":"2"}]`)
		case "1":
			fmt.Fprint(w, `[{"campaignId":"c3","amount":"3"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer srv.Close()

	client := newTestMerklClient(t, srv.URL)
	campaigns, err := client.FetchCampaigns(context.Background())
	require.NoError(t, err)

	// Short final page stops the loop.
	assert.Len(t, campaigns, 3)
	assert.Len(t, requests, 2)
	assert.Equal(t, "c3", campaigns[2].CampaignID)
	assert.Contains(t, requests[0], "chainId=143")
	assert.Contains(t, requests[0], "items=2")
}

func TestFetchCampaignsAbortsOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestMerklClient(t, srv.URL)
	_, err := client.FetchCampaigns(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "merkl", apiErr.Source)
}

func TestFetchOpportunitiesUsesCache(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, `[{"identifier":"0xaaa","name":"MON/USDC","tvl":1000000}]`)
	}))
	defer srv.Close()

	client := newTestMerklClient(t, srv.URL)

	first, err := client.FetchOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Ristretto applies writes asynchronously.
	time.Sleep(50 * time.Millisecond)

	second, err := client.FetchOpportunities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)
}

func TestAmountTokens(t *testing.T) {
	c := MerklCampaign{Amount: "1500000000000000000000", RewardToken: MerklToken{Decimals: 18}}
	assert.InDelta(t, 1500, c.AmountTokens(), 0.001)

	// Missing decimals defaults to 18.
	c = MerklCampaign{Amount: "2000000000000000000"}
	assert.InDelta(t, 2, c.AmountTokens(), 0.001)

	c = MerklCampaign{Amount: "not-a-number"}
	assert.Zero(t, c.AmountTokens())
}

func TestWindowOverlap(t *testing.T) {
	from := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	inside := MerklCampaign{StartTimestamp: from.Unix(), EndTimestamp: to.Unix()}
	assert.InDelta(t, 1.0, inside.WindowOverlap(from, to), 0.001)

	// Second half of the campaign falls outside the window.
	half := MerklCampaign{StartTimestamp: from.Unix(), EndTimestamp: from.AddDate(0, 0, 14).Unix()}
	assert.InDelta(t, 0.5, half.WindowOverlap(from, to), 0.001)

	before := MerklCampaign{StartTimestamp: from.AddDate(0, 0, -14).Unix(), EndTimestamp: from.AddDate(0, 0, -7).Unix()}
	assert.Zero(t, before.WindowOverlap(from, to))

	zeroLength := MerklCampaign{StartTimestamp: from.Unix(), EndTimestamp: from.Unix()}
	assert.Zero(t, zeroLength.WindowOverlap(from, to))
}

func TestFunderName(t *testing.T) {
	tagged := MerklCampaign{Creator: &MerklCreator{Tags: []string{"Curvance"}, Address: "0x1234567890abcdef"}}
	assert.Equal(t, "Curvance", tagged.FunderName())

	untagged := MerklCampaign{Creator: &MerklCreator{Address: "0x1234567890abcdef"}}
	assert.Equal(t, "0x1234…cdef", untagged.FunderName())

	assert.Equal(t, "Unknown", (&MerklCampaign{}).FunderName())
}

func TestPlatformName(t *testing.T) {
	c := MerklCampaign{Opportunity: &MerklCampaignOpportunity{Protocol: &MerklProtocol{Name: "Kuru"}}}
	assert.Equal(t, "Kuru", c.PlatformName())

	assert.Equal(t, "Unknown", (&MerklCampaign{}).PlatformName())
	assert.Equal(t, "Unknown", (&MerklCampaign{Opportunity: &MerklCampaignOpportunity{}}).PlatformName())
}

func TestCampaignJSONDecoding(t *testing.T) {
	raw := `{
		"campaignId": "c1",
		"amount": "5000000000000000000",
		"startTimestamp": 1755648000,
		"endTimestamp": 1756252800,
		"rewardToken": {"symbol": "MON", "decimals": 18, "price": 1.5},
		"opportunity": {"identifier": "0xaaa", "name": "MON/USDC", "action": "POOL", "protocol": {"name": "Curvance"}},
		"creator": {"address": "0xfeed", "tags": ["Curvance"]}
	}`
	var c MerklCampaign
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, "MON", c.RewardToken.Symbol)
	assert.Equal(t, "0xaaa", c.Opportunity.Identifier)
	assert.Equal(t, "Curvance", c.PlatformName())
	assert.Equal(t, "Curvance", c.FunderName())
	assert.InDelta(t, 5, c.AmountTokens(), 0.001)
}
