// Package events publishes transcript events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"speech-transcribe-service/internal/models"
	"speech-transcribe-service/internal/observability/metrics"
)

// Publisher writes live-text updates and finalized transcripts to separate topics.
// With Kafka disabled it only logs, so callers never need a nil check.
type Publisher struct {
	live      topicWriter
	final     topicWriter
	principal string
	enabled   bool
	metrics   *metrics.Metrics
}

type topicWriter struct {
	topic  string
	writer *kafka.Writer
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers      []string
	TopicPartial string
	TopicFinal   string
	Principal    string
	Enabled      bool
}

// New creates a publisher. A nil config or a disabled/broker-less config yields log-only mode.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{metrics: m}
	}

	p := &Publisher{
		live:      topicWriter{topic: cfg.TopicPartial},
		final:     topicWriter{topic: cfg.TopicFinal},
		principal: cfg.Principal,
		metrics:   m,
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return p
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	p.live.writer = newWriter(cfg.Brokers, cfg.TopicPartial, transport)
	p.final.writer = newWriter(cfg.Brokers, cfg.TopicFinal, transport)
	p.enabled = true

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicPartial", cfg.TopicPartial).
		Str("topicFinal", cfg.TopicFinal).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return p
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishLiveText publishes a flushed live-text snapshot, keyed by session.
func (p *Publisher) PublishLiveText(ctx context.Context, ev models.LiveTextEvent) error {
	return p.publish(ctx, p.live, ev.EventType, ev.SessionID, ev)
}

// PublishBlock publishes a finalized realtime block, keyed by session.
func (p *Publisher) PublishBlock(ctx context.Context, ev models.BlockEvent) error {
	return p.publish(ctx, p.final, ev.EventType, ev.SessionID, ev)
}

// PublishBatch publishes a completed segmented transcript, keyed by job.
func (p *Publisher) PublishBatch(ctx context.Context, ev models.BatchTranscriptEvent) error {
	return p.publish(ctx, p.final, ev.EventType, ev.JobID, ev)
}

func (p *Publisher) publish(ctx context.Context, tw topicWriter, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", tw.topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", tw.topic).
		Str("key", key).
		Int("bytes", len(payload)).
		Msg("Publishing event")

	if !p.enabled || tw.writer == nil {
		p.metrics.RecordKafkaPublish(tw.topic, eventType, nil, time.Since(start).Seconds())
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

	if err := tw.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", tw.topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(tw.topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(tw.topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	for _, tw := range []topicWriter{p.live, p.final} {
		if tw.writer == nil {
			continue
		}
		if e := tw.writer.Close(); e != nil {
			log.Error().Err(e).Str("topic", tw.topic).Msg("Error closing Kafka writer")
			err = e
		}
	}
	return err
}
