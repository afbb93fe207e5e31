// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"voice-order-logger/internal/models"
	"voice-order-logger/internal/observability/metrics"
)

// Publisher writes recorded-order and refresh events to separate topics.
// When disabled it degrades to log-only mode; publishes never fail.
type Publisher struct {
	writerRecorded *kafka.Writer
	writerRefresh  *kafka.Writer
	topicRecorded  string
	topicRefresh   string
	principal      string
	enabled        bool
	metrics        *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers       []string
	TopicRecorded string
	TopicRefresh  string
	Principal     string
	Enabled       bool
}

// New creates a Kafka publisher. A nil or disabled config, or an empty
// broker list, yields a log-only publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			topicRecorded: cfg.TopicRecorded,
			topicRefresh:  cfg.TopicRefresh,
			principal:     cfg.Principal,
			enabled:       false,
			metrics:       m,
		}
	}

	// Longer dial timeouts for DNS resolution in Kubernetes.
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicRecorded", cfg.TopicRecorded).
		Str("topicRefresh", cfg.TopicRefresh).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerRecorded: newWriter(cfg.TopicRecorded),
		writerRefresh:  newWriter(cfg.TopicRefresh),
		topicRecorded:  cfg.TopicRecorded,
		topicRefresh:   cfg.TopicRefresh,
		principal:      cfg.Principal,
		enabled:        true,
		metrics:        m,
	}
}

// PublishRecorded publishes the persisted order, keyed by order id.
func (p *Publisher) PublishRecorded(ctx context.Context, order models.Order) error {
	event := models.OrderRecorded{
		EventType: "order_recorded",
		OrderID:   order.ID,
		Item:      order.Item,
		Price:     order.Price,
		Quantity:  order.Quantity,
		Timestamp: time.Now().UnixMilli(),
	}
	return p.publish(ctx, p.writerRecorded, p.topicRecorded, "recorded", order.ID, event)
}

// PublishRefresh tells read-model consumers to reload listings and totals.
func (p *Publisher) PublishRefresh(ctx context.Context, reason string) error {
	event := models.OrdersRefresh{
		EventType: "orders_refresh",
		Reason:    reason,
		Timestamp: time.Now().UnixMilli(),
	}
	return p.publish(ctx, p.writerRefresh, p.topicRefresh, "refresh", reason, event)
}

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
	if p.writerRecorded != nil {
		if e := p.writerRecorded.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing recorded writer")
			err = e
		}
	}
	if p.writerRefresh != nil {
		if e := p.writerRefresh.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing refresh writer")
			err = e
		}
	}
	return err
}
