package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/clients"
	"incentives-backend/internal/config"
	"incentives-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newDashboardTestRouter wires the dashboard routes against an
// httptest upstream, with an empty cache and no LLM client.
func newDashboardTestRouter(t *testing.T, upstream http.HandlerFunc) *gin.Engine {
	t.Helper()

	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)

	mem, err := cache.NewMemoryCache()
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	ttls := cache.TTLs{Snapshot: 14 * 24 * time.Hour}

	merkl := clients.NewMerklClient(config.MerklConfig{BaseURL: srv.URL, PageSize: 100, MaxPages: 5}, 143, mem, ttls)
	llama := clients.NewLlamaClient(config.LlamaConfig{BaseURL: srv.URL, VolumesBaseURL: srv.URL}, config.ChainConfig{ID: 143, Name: "monad"}, mem, ttls)
	agg := services.NewAggregationService(merkl, llama, "MON", 143)
	report := services.NewReportService(nil, 1)
	dash := services.NewDashboardService(agg, report, mem, ttls, nil, nil, 143, 7)

	h := NewDashboardHandler(dash, services.NewWebSocketPushService())

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/api/dashboard", h.GetDashboardHandler)
	r.GET("/api/dashboard/:date", h.GetDashboardHandler)
	return r
}

// merklUpstream serves one MON campaign and its opportunity.
func merklUpstream() http.HandlerFunc {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -10).Unix()
	end := now.AddDate(0, 0, 1).Unix()

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/campaigns":
			fmt.Fprintf(w, `[{
				"campaignId": "c1",
				"amount": "1000000000000000000000",
				"startTimestamp": %d,
				"endTimestamp": %d,
				"rewardToken": {"symbol": "MON", "decimals": 18, "price": 2.0},
				"opportunity": {"identifier": "0xaaa", "name": "MON/USDC", "action": "POOL", "protocol": {"name": "Curvance"}},
				"creator": {"address": "0xfeed", "tags": ["Curvance"]}
			}]`, start, end)
		case "/opportunities":
			fmt.Fprint(w, `[{"identifier": "0xaaa", "name": "MON/USDC", "action": "POOL", "tvl": 2000000}]`)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	}
}

func TestGetDashboardTodayRefreshesOnDemand(t *testing.T) {
	r := newDashboardTestRouter(t, merklUpstream())

	today := time.Now().UTC().Format("2006-01-02")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/dashboard/"+today, nil))

	// Empty cache plus today's date: the snapshot is built on the spot.
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), today)
	assert.Contains(t, w.Body.String(), "0xaaa")
}

func TestGetDashboardPastDateMiss(t *testing.T) {
	r := newDashboardTestRouter(t, merklUpstream())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/dashboard/2020-01-01", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SNAPSHOT_NOT_FOUND")
}

func TestGetDashboardMalformedDate(t *testing.T) {
	r := newDashboardTestRouter(t, merklUpstream())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/dashboard/27-08-2026", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_DATE")
}

func TestGetDashboardUpstreamFailure(t *testing.T) {
	r := newDashboardTestRouter(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "merkl down", http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/dashboard", nil))

	// A failed on-demand refresh is an upstream problem, not a miss.
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "REFRESH_FAILED")
}
