package results

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Event subjects published by this package.
const (
	SubjectRaceFinished   = "typerace.results.race"
	SubjectResultRecorded = "typerace.results.recorded"
)

// Publisher emits result events for downstream consumers (leaderboards,
// analytics). Publishing is best-effort: a failed publish is logged, never
// propagated, so the race flow does not depend on the broker.
type Publisher interface {
	Publish(subject, eventType string, payload any)
}

// NATSConfig holds connection settings for the event broker.
type NATSConfig struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSPublisher publishes result events over core NATS.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Publish(subject, eventType string, payload any) {
	envelope := map[string]any{
		"eventId":   uuid.New().String(),
		"eventType": eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"payload":   payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal result event")
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish result event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Str("event_type", eventType).
		Msg("result event published")
}

func (p *NATSPublisher) Close() {
	p.nc.Close()
}

// NoopPublisher is used when no broker is configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(subject, eventType string, payload any) {}
