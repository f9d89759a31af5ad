package events

import (
	"fmt"
	"log"
	"sync"

	"incentives-backend/internal/clients"
	"incentives-backend/internal/config"
)

var (
	natsClient *clients.NATSClient
	natsOnce   sync.Once
)

// InitNATSServices connects the refresh-event publisher. NATS is
// optional: without a configured URL the service runs standalone and
// downstream consumers simply get no events.
func InitNATSServices() error {
	var initErr error
	natsOnce.Do(func() {
		if config.AppConfig == nil || config.AppConfig.NATS.URL == "" {
			log.Println("NATS not configured, skipping initialization")
			return
		}

		client, err := clients.NewNATSClient(config.AppConfig.NATS)
		if err != nil {
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}

		natsClient = client
		log.Printf("✅ NATS client initialized successfully")
	})

	return initErr
}

// GetNATSClient returns the publisher, nil when NATS is not configured.
func GetNATSClient() *clients.NATSClient {
	return natsClient
}

// PublishRefreshEvent publishes a dashboard refresh event.
func PublishRefreshEvent(event clients.RefreshEvent) error {
	if natsClient == nil {
		return fmt.Errorf("NATS client not initialized")
	}
	return natsClient.PublishRefresh(event)
}

// CloseNATS closes the publisher connection.
func CloseNATS() {
	if natsClient != nil {
		natsClient.Close()
	}
}
