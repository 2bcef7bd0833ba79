// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"caption-ingress-service/internal/observability/metrics"
)

// Publisher publishes caption events to separate Kafka topics: finalized
// utterances on one, streaming deltas on the other.
type Publisher struct {
	writerUtterance *kafka.Writer
	writerDelta     *kafka.Writer
	principal       string
	topicUtterance  string
	topicDelta      string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicUtterance string
	TopicDelta     string
	Principal      string
	Enabled        bool
}

// New creates a new Kafka event publisher. When disabled (or given no
// brokers) it runs in log-only mode: events are logged and counted but
// never written.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicUtterance: cfg.TopicUtterance,
			topicDelta:     cfg.TopicDelta,
			enabled:        false,
			metrics:        m,
		}
	}

	// Custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerUtterance := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicUtterance,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerDelta := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicDelta,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicUtterance", cfg.TopicUtterance).
		Str("topicDelta", cfg.TopicDelta).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerUtterance: writerUtterance,
		writerDelta:     writerDelta,
		principal:       cfg.Principal,
		topicUtterance:  cfg.TopicUtterance,
		topicDelta:      cfg.TopicDelta,
		enabled:         true,
		metrics:         m,
	}
}

// PublishUtterance publishes a finalized utterance event.
func (p *Publisher) PublishUtterance(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerUtterance, p.topicUtterance, "utterance", key, event)
}

// PublishDelta publishes a streaming caption delta event.
func (p *Publisher) PublishDelta(ctx context.Context, key string, event any) error {
	return p.publish(ctx, p.writerDelta, p.topicDelta, "delta", key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerUtterance != nil {
		if e := p.writerUtterance.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing utterance writer")
			err = e
		}
	}
	if p.writerDelta != nil {
		if e := p.writerDelta.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing delta writer")
			err = e
		}
	}
	return err
}
