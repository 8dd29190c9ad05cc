// Package events publishes scored transmissions to the message bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

// ScoredEvent is the payload published for every completed pipeline run.
type ScoredEvent struct {
	RunID     string                      `json:"run_id"`
	Source    string                      `json:"source"`
	Filename  string                      `json:"filename,omitempty"`
	Timestamp time.Time                   `json:"timestamp"`
	Result    types.TranscriptionResponse `json:"result"`
}

// Publisher delivers scored events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, evt ScoredEvent) error
	Close()
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, ScoredEvent) error { return nil }
func (Noop) Close()                                     {}

// NATSConfig configures the bus connection.
type NATSConfig struct {
	URL            string
	Subject        string
	Name           string
	ConnectTimeout time.Duration
}

// NATSPublisher publishes JSON events on a single subject.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	log     *logger.Logger
}

func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATSPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("no NATS url configured")
	}
	if cfg.Subject == "" {
		return nil, errors.New("no NATS subject configured")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 2 * time.Second
	}
	log = log.Component("events")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("disconnected from NATS")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.WithField("url", c.ConnectedUrl()).Info("reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.WithField("url", cfg.URL).WithField("subject", cfg.Subject).Info("connected to NATS")
	return &NATSPublisher{conn: conn, subject: cfg.Subject, log: log}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, evt ScoredEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	p.log.WithField("run_id", evt.RunID).Debug("scored event published")
	return nil
}

func (p *NATSPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.log.Info("closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}
