package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producer is the part of *kgo.Client the sink needs.
type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// Event is the JSON record published for every measurement.
type Event struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Tags       map[string]string `json:"tags,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// KafkaSink publishes measurements to a topic without waiting for acks.
type KafkaSink struct {
	client producer
	closer func(context.Context)
	logger *slog.Logger
	now    func() time.Time
}

// NewKafkaSink connects a franz-go producer to brokers, producing to topic.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(50*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	sink := newKafkaSink(cl, logger)
	sink.closer = func(ctx context.Context) {
		if err := cl.Flush(ctx); err != nil {
			sink.logger.Warn("flush telemetry records", "error", err)
		}
		cl.Close()
	}
	return sink, nil
}

func newKafkaSink(p producer, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{
		client: p,
		logger: logger.With("component", "telemetry.kafka"),
		now:    time.Now,
	}
}

func (k *KafkaSink) Record(name string, value float64, tags map[string]string) {
	payload, err := json.Marshal(Event{
		Name:       name,
		Value:      value,
		Tags:       tags,
		RecordedAt: k.now().UTC(),
	})
	if err != nil {
		k.logger.Warn("marshal telemetry event", "metric", name, "error", err)
		return
	}

	k.client.Produce(context.Background(), &kgo.Record{Key: []byte(name), Value: payload}, func(_ *kgo.Record, err error) {
		if err != nil {
			k.logger.Warn("publish telemetry event", "metric", name, "error", err)
		}
	})
}

// Close flushes buffered records and shuts the client down.
func (k *KafkaSink) Close(ctx context.Context) {
	if k.closer != nil {
		k.closer(ctx)
	}
}

var _ Sink = (*KafkaSink)(nil)
