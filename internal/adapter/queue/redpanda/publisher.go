// Package redpanda publishes and consumes interview report events on a
// Kafka-compatible broker.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// DefaultReportsTopic receives one record per evaluated interview.
const DefaultReportsTopic = "interview-reports"

// EventType is carried in the event_type header of every report record.
const EventType = "interview.completed"

// producer is the slice of *kgo.Client the publisher needs.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher implements domain.ReportPublisher.
type Publisher struct {
	client producer
	topic  string
}

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewPublisher connects to brokers and makes sure topic exists.
func NewPublisher(ctx context.Context, brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_publisher: %w: no seed brokers", domain.ErrInvalidArgument)
	}
	if topic == "" {
		topic = DefaultReportsTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.DialTimeout(10*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_publisher: %w", err)
	}
	if err := createTopicIfNotExists(ctx, client, topic, 1, 1); err != nil {
		// The broker may auto-create topics; producing will surface real problems.
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("report publisher ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Publisher{client: client, topic: topic}, nil
}

// newPublisherWithClient is used by tests.
func newPublisherWithClient(c producer, topic string) *Publisher {
	return &Publisher{client: c, topic: topic}
}

// Record builds the Kafka record for ev: keyed by user so a user's reports stay ordered.
func Record(topic string, ev domain.ReportEvent) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.record: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.UserID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "user_id", Value: []byte(ev.UserID)},
			{Key: "interview_id", Value: []byte(ev.InterviewID)},
			{Key: "verdict", Value: []byte(ev.Report.Verdict)},
		},
	}, nil
}

// PublishReport produces ev synchronously.
func (p *Publisher) PublishReport(ctx context.Context, ev domain.ReportEvent) error {
	rec, err := Record(p.topic, ev)
	if err != nil {
		observability.ReportPublished("error")
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		observability.ReportPublished("error")
		return fmt.Errorf("op=redpanda.publish_report: %w", err)
	}
	observability.ReportPublished("ok")
	slog.Debug("report published",
		slog.String("topic", p.topic),
		slog.String("interview_id", ev.InterviewID),
		slog.String("verdict", string(ev.Report.Verdict)))
	return nil
}

// Close flushes and closes the client.
func (p *Publisher) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// NoopPublisher drops events. Used when no brokers are configured.
type NoopPublisher struct{}

// PublishReport implements domain.ReportPublisher.
func (NoopPublisher) PublishReport(context.Context, domain.ReportEvent) error {
	observability.ReportPublished("skipped")
	return nil
}

// Close implements io.Closer.
func (NoopPublisher) Close() error { return nil }
