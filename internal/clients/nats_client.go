package clients

import (
	"encoding/json"
	"fmt"
	"time"

	"incentives-backend/internal/config"
	"incentives-backend/internal/metrics"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes dashboard refresh events. The whole client is
// optional: when NATS is not configured the service runs without it.
type NATSClient struct {
	conn    *nats.Conn
	subject string
}

const defaultRefreshSubject = "incentives.dashboard.refreshed"

// NewNATSClient connects to the NATS server.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logrus.WithError(err).Warn("NATS disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logrus.Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	subject := cfg.Subject
	if subject == "" {
		subject = defaultRefreshSubject
	}

	return &NATSClient{conn: conn, subject: subject}, nil
}

// RefreshEvent is the payload published after each dashboard refresh.
type RefreshEvent struct {
	Date          string    `json:"date"`
	SnapshotID    string    `json:"snapshot_id"`
	Markets       int       `json:"markets"`
	IncentivesUSD float64   `json:"incentives_usd"`
	DurationMS    int64     `json:"duration_ms"`
	HasReport     bool      `json:"has_report"`
	PublishedAt   time.Time `json:"published_at"`
}

// PublishRefresh publishes a refresh event. Best effort: callers log
// the error but never fail a refresh over it.
func (c *NATSClient) PublishRefresh(event RefreshEvent) error {
	event.PublishedAt = time.Now()
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal refresh event: %w", err)
	}
	if err := c.conn.Publish(c.subject, data); err != nil {
		return fmt.Errorf("failed to publish refresh event: %w", err)
	}
	return nil
}

// Close drains and closes the connection.
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}
