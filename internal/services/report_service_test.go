package services

import (
	"context"
	"fmt"
	"testing"

	"incentives-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validReportJSON = `{
  "summary": "Spend is concentrated on two markets.",
  "top_performers": ["0xaaa"],
  "underperformers": ["0xbbb"],
  "markets": [
    {"market_id": "0xaaa", "verdict": "efficient", "comment": "Cheap liquidity."},
    {"market_id": "0xbbb", "verdict": "wasteful", "comment": "Cost far above peers."}
  ],
  "recommendations": ["Shift budget from 0xbbb to 0xaaa."]
}`

func TestParseReportCleanJSON(t *testing.T) {
	report, repaired, err := parseReport(validReportJSON)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Equal(t, "Spend is concentrated on two markets.", report.Summary)
	require.Len(t, report.Markets, 2)
	assert.Equal(t, "wasteful", report.Markets[1].Verdict)
}

func TestParseReportCodeFenced(t *testing.T) {
	fenced := "```json\n" + validReportJSON + "\n```"
	report, repaired, err := parseReport(fenced)
	require.NoError(t, err)
	assert.False(t, repaired)
	assert.Len(t, report.TopPerformers, 1)
}

func TestParseReportSurroundingProse(t *testing.T) {
	noisy := "Here is my analysis:\n" + validReportJSON + "\nLet me know if you need more."
	report, _, err := parseReport(noisy)
	require.NoError(t, err)
	assert.Len(t, report.Markets, 2)
}

func TestParseReportTrailingCommas(t *testing.T) {
	raw := `{
  "summary": "ok",
  "top_performers": ["0xaaa",],
  "underperformers": [],
  "markets": [
    {"market_id": "0xaaa", "verdict": "efficient", "comment": "fine",},
  ],
  "recommendations": [],
}`
	report, repaired, err := parseReport(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, []string{"0xaaa"}, report.TopPerformers)
	require.Len(t, report.Markets, 1)
}

func TestParseReportRawNewlineInString(t *testing.T) {
	raw := "{\"summary\": \"line one\nline two\", \"markets\": []}"
	report, repaired, err := parseReport(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	assert.Equal(t, "line one\nline two", report.Summary)
}

func TestParseReportTruncatedObject(t *testing.T) {
	// Completion cut off mid-array, mid-string.
	raw := `{"summary": "ok", "markets": [{"market_id": "0xaaa", "verdict": "efficient", "comment": "trunca`
	report, repaired, err := parseReport(raw)
	require.NoError(t, err)
	assert.True(t, repaired)
	require.Len(t, report.Markets, 1)
	assert.Equal(t, "0xaaa", report.Markets[0].MarketID)
}

func TestParseReportNoJSON(t *testing.T) {
	_, _, err := parseReport("I cannot produce a report right now.")
	assert.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
}

func TestExtractJSONIgnoresBracesInStrings(t *testing.T) {
	raw := `{"summary": "uses {braces} inside"} trailing`
	assert.Equal(t, `{"summary": "uses {braces} inside"}`, extractJSON(raw))
}

// fakeReportClient scripts a sequence of completions.
type fakeReportClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeReportClient) CompleteWithSystem(_ context.Context, _, _ string) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", fmt.Errorf("no scripted response for call %d", i)
}

func (f *fakeReportClient) Provider() string { return "fake" }

func testAggregate() *models.Aggregate {
	return buildAggWithMarket(models.MarketStats{
		MarketID: "0xaaa", MarketName: "MON/USDC", Platform: "Curvance",
		Funder: "Curvance", IncentivesUSD: 1000, TVL: 1_000_000, TVLCostPct: 5.2,
	})
}

func TestGenerateRetriesOnGarbage(t *testing.T) {
	client := &fakeReportClient{responses: []string{"not json at all", validReportJSON}}
	svc := NewReportService(client, 3)

	report, err := svc.Generate(context.Background(), testAggregate())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	assert.Len(t, report.Markets, 2)
}

func TestGenerateRetriesOnCompletionError(t *testing.T) {
	client := &fakeReportClient{
		errs:      []error{fmt.Errorf("upstream 429")},
		responses: []string{"", validReportJSON},
	}
	svc := NewReportService(client, 3)

	_, err := svc.Generate(context.Background(), testAggregate())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	client := &fakeReportClient{responses: []string{"nope", "nope", "nope"}}
	svc := NewReportService(client, 3)

	_, err := svc.Generate(context.Background(), testAggregate())
	require.Error(t, err)
	assert.Equal(t, 3, client.calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestGenerateWithoutClient(t *testing.T) {
	svc := NewReportService(nil, 3)
	_, err := svc.Generate(context.Background(), testAggregate())
	assert.Error(t, err)
	assert.Empty(t, svc.Provider())
}
