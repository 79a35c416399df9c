// Package alerts publishes critical audit events to Kafka for real-time
// security monitoring.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"veristat/internal/audit/models"
	dErrors "veristat/pkg/domain-errors"
	"veristat/pkg/platform/circuit"
)

const (
	// DefaultTopic carries critical audit alerts.
	DefaultTopic = "veristat.audit.alerts"

	produceTimeout = 5 * time.Second
)

// KafkaSink publishes critical audit events to a Kafka topic. Produces
// are synchronous so a delivery failure surfaces to the caller, who
// treats alerting as best-effort.
type KafkaSink struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type Option func(*KafkaSink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *KafkaSink) { s.logger = logger }
}

func WithTopic(topic string) Option {
	return func(s *KafkaSink) { s.topic = topic }
}

// NewKafkaSink connects to the brokers and ensures the alert topic
// exists. The returned sink owns the client; call Close on shutdown.
func NewKafkaSink(ctx context.Context, brokers []string, opts ...Option) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one broker is required")
	}
	s := &KafkaSink{
		topic:   DefaultTopic,
		logger:  slog.Default(),
		breaker: circuit.New("kafka-alerts", circuit.WithFailureThreshold(3)),
	}
	for _, opt := range opts {
		opt(s)
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(s.topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create kafka client")
	}
	s.client = client

	if err := s.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return s, nil
}

func (s *KafkaSink) ensureTopic(ctx context.Context) error {
	admin := kadm.NewClient(s.client)
	resp, err := admin.CreateTopic(ctx, 3, 1, nil, s.topic)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create alert topic")
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return dErrors.Wrap(resp.Err, dErrors.CodeInternal, "create alert topic")
	}
	return nil
}

// Publish sends the event keyed by source address so bursts from one
// source stay ordered within a partition.
func (s *KafkaSink) Publish(ctx context.Context, event *models.Event) error {
	if event == nil {
		return dErrors.New(dErrors.CodeValidation, "event is required")
	}
	value, err := json.Marshal(event)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode alert")
	}

	produceCtx, cancel := context.WithTimeout(ctx, produceTimeout)
	defer cancel()
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.SourceAddress),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "severity", Value: []byte(event.Severity)},
		},
	}
	if err := s.client.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		useFallback, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.ErrorContext(ctx, "alert delivery circuit opened",
				"breaker", s.breaker.Name(), "error", err)
		}
		if useFallback {
			// Broker is unhealthy; degrade to a dropped alert rather
			// than wrapping every produce error up the call chain.
			s.logger.WarnContext(ctx, "alert dropped, broker circuit open",
				"event_id", event.EventID, "event_type", event.EventType)
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "produce alert")
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "alert delivery circuit closed",
			"breaker", s.breaker.Name())
	}
	s.logger.DebugContext(ctx, "alert published",
		"event_id", event.EventID, "event_type", event.EventType)
	return nil
}

// Close flushes pending produces and releases the client.
func (s *KafkaSink) Close(ctx context.Context) error {
	if err := s.client.Flush(ctx); err != nil {
		s.logger.WarnContext(ctx, "alert flush failed", "error", err)
	}
	s.client.Close()
	return nil
}
