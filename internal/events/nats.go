// Package events publishes run-completion and run-failure notifications
// over NATS. Publishing is entirely optional: when NATSConfig.URL is empty,
// callers should skip constructing a Publisher and proceed without one —
// the ETL pipeline has no functional dependency on a message bus.
//
// Usage:
//
//	if cfg.NATS.URL != "" {
//	    publisher, err := events.NewPublisher(cfg.NATS, logger)
//	    ...
//	    defer publisher.Close()
//	}
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
)

// Event subjects.
const (
	SubjectSyncCompleted = "etl.sync.completed"
	SubjectSyncFailed    = "etl.sync.failed"
)

// Publisher provides NATS publishing functionality for run events.
type Publisher struct {
	conn   *nats.Conn
	logger *slog.Logger
	mu     sync.Mutex
}

// NewPublisher connects to NATS using the given configuration.
func NewPublisher(cfg config.NATSConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("events: NATS URL not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", slog.String("url", cfg.URL))

	return &Publisher{conn: nc, logger: logger}, nil
}

// Close closes the NATS connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return nil
}

// Publish publishes a message to a NATS subject.
func (p *Publisher) Publish(ctx context.Context, subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return fmt.Errorf("events: publisher is closed")
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("events: failed to marshal event data: %w", err)
	}

	if err := p.conn.Publish(subject, jsonData); err != nil {
		return fmt.Errorf("events: failed to publish to %s: %w", subject, err)
	}

	p.logger.Debug("published event", slog.String("subject", subject), slog.Int("size", len(jsonData)))
	return nil
}

// SyncCompletedEvent is published after a successful run.
type SyncCompletedEvent struct {
	EventID     string    `json:"event_id"`
	Source      string    `json:"source"`
	Stream      string    `json:"stream"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	RowCount    int       `json:"row_count"`
	DurationSec float64   `json:"duration_sec"`
}

// SyncFailedEvent is published on run failure.
type SyncFailedEvent struct {
	EventID     string    `json:"event_id"`
	Source      string    `json:"source"`
	Stream      string    `json:"stream"`
	StartedAt   time.Time `json:"started_at"`
	FailedAt    time.Time `json:"failed_at"`
	Error       string    `json:"error"`
	Retryable   bool      `json:"retryable"`
	DurationSec float64   `json:"duration_sec"`
}

// PublishSyncCompleted publishes a run completion event.
func (p *Publisher) PublishSyncCompleted(ctx context.Context, event *SyncCompletedEvent) error {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	return p.Publish(ctx, SubjectSyncCompleted, event)
}

// PublishSyncFailed publishes a run failure event.
func (p *Publisher) PublishSyncFailed(ctx context.Context, event *SyncFailedEvent) error {
	if event.EventID == "" {
		event.EventID = generateEventID()
	}
	return p.Publish(ctx, SubjectSyncFailed, event)
}

func generateEventID() string {
	return fmt.Sprintf("evt-%d", time.Now().UnixNano())
}
