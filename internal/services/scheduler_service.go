// Scheduler Service
// Manages the periodic dashboard refresh
package services

import (
	"context"
	"log"
	"time"
)

// SchedulerService runs the dashboard refresh on a fixed interval.
type SchedulerService struct {
	dashboard       *DashboardService
	refreshInterval time.Duration
	refreshTimeout  time.Duration
	stopChan        chan struct{}
}

// NewSchedulerService creates a new SchedulerService instance
func NewSchedulerService(dashboard *DashboardService, refreshInterval time.Duration) *SchedulerService {
	return &SchedulerService{
		dashboard:       dashboard,
		refreshInterval: refreshInterval,
		refreshTimeout:  30 * time.Minute,
		stopChan:        make(chan struct{}),
	}
}

// Start begins the scheduled refresh loop
func (s *SchedulerService) Start() {
	log.Println("🚀 Scheduler service starting...")
	log.Printf("📅 Dashboard refresh interval: %v", s.refreshInterval)

	go s.runDashboardRefresh()

	log.Println("✅ Scheduler service started")
}

// Stop gracefully stops the scheduled tasks
func (s *SchedulerService) Stop() {
	log.Println("🛑 Stopping scheduler service...")
	close(s.stopChan)
	log.Println("✅ Scheduler service stopped")
}

// runDashboardRefresh refreshes once on startup, then on every tick.
func (s *SchedulerService) runDashboardRefresh() {
	log.Println("🔄 Running initial dashboard refresh...")
	s.refreshOnce()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			log.Println("⏰ Dashboard refresh scheduled task triggered")
			s.refreshOnce()

		case <-s.stopChan:
			log.Println("🛑 Dashboard refresh task stopped")
			return
		}
	}
}

func (s *SchedulerService) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.refreshTimeout)
	defer cancel()

	if _, err := s.dashboard.Refresh(ctx, "scheduled"); err != nil {
		log.Printf("❌ Scheduled dashboard refresh failed: %v", err)
	}
}

// ManualRefresh triggers a refresh outside the schedule.
func (s *SchedulerService) ManualRefresh(ctx context.Context) error {
	log.Println("🔧 Manual dashboard refresh triggered")
	_, err := s.dashboard.Refresh(ctx, "manual")
	return err
}
