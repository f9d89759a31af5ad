package app

import (
	"context"
	"fmt"
	"log"
	"sync"

	"incentives-backend/internal/cache"
	"incentives-backend/internal/clients"
	"incentives-backend/internal/config"
	"incentives-backend/internal/events"
	"incentives-backend/internal/services"
)

// ServiceContainer wires clients and services together once at startup.
type ServiceContainer struct {
	// Cache
	Cache cache.Cache
	TTLs  cache.TTLs

	// External API clients
	MerklClient *clients.MerklClient
	LlamaClient *clients.LlamaClient

	// Core Services
	AggregationService *services.AggregationService
	ReportService      *services.ReportService
	DashboardService   *services.DashboardService
	SchedulerService   *services.SchedulerService

	// Push Services
	WebSocketPushService *services.WebSocketPushService
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container (idempotent).
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		cfg := config.AppConfig
		if cfg == nil {
			initErr = fmt.Errorf("configuration not loaded")
			return
		}

		container := &ServiceContainer{}

		// 1. Cache: Redis, in-memory fallback when Redis is down.
		container.TTLs = cache.TTLsFromConfig(cfg.Dashboard)
		container.Cache = cache.New(context.Background(), cfg.Redis)

		// 2. NATS publisher (optional, based on config)
		if err := events.InitNATSServices(); err != nil {
			// Event publishing is optional, log but don't fail.
			log.Printf("⚠️ NATS initialization skipped or failed: %v", err)
		}

		// 3. External API clients
		container.MerklClient = clients.NewMerklClient(cfg.Merkl, cfg.Chain.ID, container.Cache, container.TTLs)
		container.LlamaClient = clients.NewLlamaClient(cfg.Llama, cfg.Chain, container.Cache, container.TTLs)

		// 4. Core services
		container.WebSocketPushService = services.NewWebSocketPushService()
		container.AggregationService = services.NewAggregationService(
			container.MerklClient,
			container.LlamaClient,
			cfg.Merkl.RewardSymbol,
			cfg.Chain.ID,
		)
		container.ReportService = services.NewReportService(newReportClient(cfg.LLM), cfg.LLM.MaxAttempts)
		container.DashboardService = services.NewDashboardService(
			container.AggregationService,
			container.ReportService,
			container.Cache,
			container.TTLs,
			events.GetNATSClient(),
			container.WebSocketPushService,
			cfg.Chain.ID,
			cfg.Dashboard.Window(),
		)
		container.SchedulerService = services.NewSchedulerService(
			container.DashboardService,
			cfg.Dashboard.RefreshIntervalDuration(),
		)

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

// newReportClient picks the LLM client for the configured provider.
// An unknown provider or a missing API key leaves the report service
// without a client; refreshes then ship without commentary.
func newReportClient(cfg config.LLMConfig) services.ReportClient {
	timeout := cfg.TimeoutDuration()
	switch cfg.Provider {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			log.Println("⚠️ ANTHROPIC_API_KEY not set, LLM commentary disabled")
			return nil
		}
		return clients.NewClaudeClient(cfg.ClaudeAPIKey, cfg.Model, cfg.MaxTokens, timeout)
	case "grok", "":
		if cfg.GrokAPIKey == "" {
			log.Println("⚠️ GROK_API_KEY not set, LLM commentary disabled")
			return nil
		}
		return clients.NewGrokClient(cfg.GrokAPIKey, cfg.Model, cfg.MaxTokens, timeout)
	default:
		log.Printf("⚠️ Unknown LLM provider %q, commentary disabled", cfg.Provider)
		return nil
	}
}

// Cleanup releases container resources on shutdown.
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.SchedulerService != nil {
		c.SchedulerService.Stop()
	}
	events.CloseNATS()
	if c.Cache != nil {
		c.Cache.Close()
	}

	log.Println("✅ Service Container cleaned up")
}
