// Package sink ships finished pipeline reports to external systems.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/okian/draftboard/internal/app/pipeline"
	"github.com/okian/draftboard/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// withWriter replaces the Kafka writer.
func withWriter(w messageWriter) Option {
	return func(o *options) {
		o.writer = w
	}
}

// Kafka publishes each report as one JSON message keyed by execution id.
type Kafka struct {
	writer       messageWriter
	topic        string
	maxAttempts  int
	writeTimeout time.Duration
	backoff      time.Duration
	log          logger.Logger
}

// NewKafka creates a Kafka sink writing to topic.
func NewKafka(brokers []string, topic string, opts ...Option) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if topic == "" {
		return nil, ErrNoTopic
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	w := o.writer
	if w == nil {
		w = kafka.NewWriter(kafka.WriterConfig{
			Brokers:      brokers,
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: o.writeTimeout,
			Async:        false,
		})
	}

	return &Kafka{
		writer:       w,
		topic:        topic,
		maxAttempts:  o.maxAttempts,
		writeTimeout: o.writeTimeout,
		backoff:      o.backoff,
		log:          o.log,
	}, nil
}

// Name implements pipeline.ReportSink.
func (k *Kafka) Name() string { return "kafka" }

// Deliver implements pipeline.ReportSink.
func (k *Kafka) Deliver(ctx context.Context, r *pipeline.Report) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(r.ExecutionID),
		Value: value,
		Time:  r.FinishedAt.UTC(),
		Headers: []kafka.Header{
			{Key: "success", Value: []byte(strconv.FormatBool(r.Success))},
		},
	}

	var lastErr error
	backoff := k.backoff
	for attempt := 1; attempt <= k.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, k.writeTimeout)
		err := k.writer.WriteMessages(actx, msg)
		cancel()
		if err == nil {
			k.log.Debug(ctx, "report published",
				logger.String("topic", k.topic),
				logger.String("execution_id", r.ExecutionID),
				logger.Int("attempt", attempt))
			return nil
		}
		lastErr = err

		if attempt == k.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("publish report: %w", ctx.Err())
		case <-time.After(backoff):
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
	return fmt.Errorf("publish report after %d attempts: %w", k.maxAttempts, lastErr)
}

// Close shuts down the underlying writer.
func (k *Kafka) Close() error {
	if k == nil || k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
