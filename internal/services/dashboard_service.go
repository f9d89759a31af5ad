package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/clients"
	"incentives-backend/internal/metrics"
	"incentives-backend/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// latestKeyPart is the extra snapshot key that always points at the
// most recent refresh, regardless of date.
const latestKeyPart = "latest"

// DashboardService owns the refresh pipeline: aggregate, compare to
// the previous window, generate commentary, snapshot, publish.
type DashboardService struct {
	aggregation *AggregationService
	report      *ReportService
	cache       cache.Cache
	ttls        cache.TTLs
	nats        *clients.NATSClient
	push        *WebSocketPushService
	chainID     int
	windowDays  int

	mu         sync.Mutex
	refreshing bool
}

// NewDashboardService creates a new dashboard service. nats and push
// may be nil; the refresh pipeline runs without them.
func NewDashboardService(
	aggregation *AggregationService,
	report *ReportService,
	c cache.Cache,
	ttls cache.TTLs,
	nats *clients.NATSClient,
	push *WebSocketPushService,
	chainID, windowDays int,
) *DashboardService {
	return &DashboardService{
		aggregation: aggregation,
		report:      report,
		cache:       c,
		ttls:        ttls,
		nats:        nats,
		push:        push,
		chainID:     chainID,
		windowDays:  windowDays,
	}
}

// Refresh runs one full dashboard refresh. trigger is "scheduled" or
// "manual" and only feeds logs and metrics. Concurrent refreshes are
// rejected rather than queued.
func (s *DashboardService) Refresh(ctx context.Context, trigger string) (*models.Snapshot, error) {
	s.mu.Lock()
	if s.refreshing {
		s.mu.Unlock()
		return nil, fmt.Errorf("refresh already in progress")
	}
	s.refreshing = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.refreshing = false
		s.mu.Unlock()
	}()

	start := time.Now()
	to := start.UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -s.windowDays)
	date := to.Format(dateLayout)

	logrus.WithFields(logrus.Fields{
		"trigger": trigger,
		"date":    date,
		"window":  fmt.Sprintf("%s..%s", from.Format(dateLayout), to.Format(dateLayout)),
	}).Info("🔄 dashboard refresh started")

	agg, err := s.aggregation.BuildAggregate(ctx, from, to)
	if err != nil {
		metrics.RefreshRuns.WithLabelValues(trigger, "error").Inc()
		return nil, fmt.Errorf("dashboard refresh: %w", err)
	}

	// Week over week against the snapshot one window back. Missing
	// history just means no WoW columns this run.
	prevDate := to.AddDate(0, 0, -s.windowDays).Format(dateLayout)
	if prev, err := s.Load(ctx, prevDate); err == nil && prev.Aggregate != nil {
		ApplyWoW(agg, prev.Aggregate)
	} else {
		logrus.WithField("date", prevDate).Debug("no previous snapshot, skipping WoW")
	}

	snapshot := &models.Snapshot{
		ID:          uuid.New().String(),
		Date:        date,
		GeneratedAt: time.Now(),
		Aggregate:   agg,
		Provider:    s.report.Provider(),
	}

	// Commentary is best effort: the dashboard ships without it when
	// the LLM fails or returns garbage on every attempt.
	if report, err := s.report.Generate(ctx, agg); err != nil {
		snapshot.ReportError = err.Error()
		logrus.WithError(err).Warn("⚠️ refresh continuing without LLM commentary")
	} else {
		snapshot.Report = report
	}

	snapshot.DurationMS = time.Since(start).Milliseconds()

	if err := s.store(ctx, snapshot); err != nil {
		metrics.RefreshRuns.WithLabelValues(trigger, "error").Inc()
		return nil, err
	}

	metrics.RefreshRuns.WithLabelValues(trigger, "ok").Inc()
	metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	metrics.RefreshLastSuccess.SetToCurrentTime()

	s.publish(snapshot)

	logrus.WithFields(logrus.Fields{
		"snapshot_id": snapshot.ID,
		"markets":     len(agg.Markets()),
		"duration":    time.Since(start),
		"has_report":  snapshot.Report != nil,
	}).Info("✅ dashboard refresh complete")
	return snapshot, nil
}

// Load returns the snapshot for a date (YYYY-MM-DD), or the most
// recent one when date is empty.
func (s *DashboardService) Load(ctx context.Context, date string) (*models.Snapshot, error) {
	part := date
	if part == "" {
		part = latestKeyPart
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", date)
	}

	key := cache.Key(cache.CategorySnapshot, s.chainID, part)
	data, ok := s.cache.Get(ctx, key)
	if !ok {
		return nil, fmt.Errorf("no snapshot for %s", part)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		s.cache.Delete(ctx, key)
		return nil, fmt.Errorf("corrupt snapshot for %s: %w", part, err)
	}
	return &snapshot, nil
}

// LoadOrRefresh returns the snapshot for date ("" means latest),
// running a refresh on demand when the request is for the current
// window (no date, or today's date) and the cache has nothing: first
// start, or the snapshot TTL lapsed while the scheduler was down.
// Past dates are never refreshed since their inputs are gone. A
// refresh already in flight is surfaced to the caller instead of
// waited on.
func (s *DashboardService) LoadOrRefresh(ctx context.Context, date string) (*models.Snapshot, error) {
	snapshot, err := s.Load(ctx, date)
	if err == nil {
		return snapshot, nil
	}
	today := time.Now().UTC().Format(dateLayout)
	if date != "" && date != today {
		return nil, err
	}
	logrus.Info("🔄 no cached snapshot, refreshing on demand")
	return s.Refresh(ctx, "on-demand")
}

// Refreshing reports whether a refresh is currently running.
func (s *DashboardService) Refreshing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing
}

// store writes the snapshot under its date key and the latest key.
func (s *DashboardService) store(ctx context.Context, snapshot *models.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	ttl := s.ttls.For(cache.CategorySnapshot)
	s.cache.Set(ctx, cache.Key(cache.CategorySnapshot, s.chainID, snapshot.Date), data, ttl)
	s.cache.Set(ctx, cache.Key(cache.CategorySnapshot, s.chainID, latestKeyPart), data, ttl)
	return nil
}

// publish notifies NATS and WebSocket clients. Both are best effort.
func (s *DashboardService) publish(snapshot *models.Snapshot) {
	event := clients.RefreshEvent{
		Date:          snapshot.Date,
		SnapshotID:    snapshot.ID,
		Markets:       len(snapshot.Aggregate.Markets()),
		IncentivesUSD: snapshot.Aggregate.IncentivesUSD,
		DurationMS:    snapshot.DurationMS,
		HasReport:     snapshot.Report != nil,
	}

	if s.nats != nil {
		if err := s.nats.PublishRefresh(event); err != nil {
			logrus.WithError(err).Warn("failed to publish refresh event")
		}
	}
	if s.push != nil {
		s.push.BroadcastRefresh(event)
	}
}
