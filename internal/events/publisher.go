// Package events publishes consensus events onto NATS for downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/tradeconsensus/internal/config"
	"github.com/ajitpratap0/tradeconsensus/internal/db"
)

// Publisher pushes detected consensus events onto the bus. A publisher
// built from a disabled config is a no-op, so callers never need a nil
// check.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// NewPublisher connects to NATS. With cfg.Enabled false it returns a
// no-op publisher and never dials.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	log := config.NewLogger("event_publisher")

	if !cfg.Enabled {
		log.Debug().Msg("NATS publishing disabled")
		return &Publisher{log: log}, nil
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name("tradeconsensus"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "consensus."
	}

	log.Info().Str("url", cfg.URL).Str("prefix", prefix).Msg("NATS publisher connected")

	return &Publisher{
		nc:     nc,
		prefix: prefix,
		log:    log,
	}, nil
}

// PublishConsensus publishes one event on <prefix>detected.<TICKER>
func (p *Publisher) PublishConsensus(ctx context.Context, event *db.ConsensusEvent) error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if !p.nc.IsConnected() {
		return fmt.Errorf("event publisher not connected")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal consensus event: %w", err)
	}

	subject := p.prefix + "detected." + event.Ticker
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish consensus event: %w", err)
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID.String()).
		Msg("Consensus event published")

	return nil
}

// Close drains the connection
func (p *Publisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}
