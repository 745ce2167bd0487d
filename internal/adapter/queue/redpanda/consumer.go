package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
)

// Handler processes one decoded report event.
type Handler func(ctx context.Context, ev domain.ReportEvent) error

// fetcher is the slice of *kgo.Client the consumer needs.
type fetcher interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	Close()
}

// Consumer reads report events in a consumer group and hands them to a Handler.
// Offsets are marked after the handler returns and committed in the background.
type Consumer struct {
	client  fetcher
	handler Handler
	topic   string
}

// NewConsumer joins groupID on topic.
func NewConsumer(brokers []string, groupID, topic string, h Handler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.new_consumer: %w: no seed brokers", domain.ErrInvalidArgument)
	}
	if topic == "" {
		topic = DefaultReportsTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
		kgo.DialTimeout(10*time.Second),
		kgo.SessionTimeout(30*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.new_consumer: %w", err)
	}
	return &Consumer{client: client, handler: h, topic: topic}, nil
}

// Run polls until ctx is done. Undecodable records are logged and skipped;
// handler errors are logged and the record is still marked.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("report consumer started", slog.String("topic", c.topic))
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if !errors.Is(err, context.Canceled) {
				slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
			}
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			c.process(ctx, rec)
			c.client.MarkCommitRecords(rec)
		})
	}
}

func (c *Consumer) process(ctx context.Context, rec *kgo.Record) {
	var ev domain.ReportEvent
	if err := json.Unmarshal(rec.Value, &ev); err != nil {
		slog.Warn("skipping undecodable report record",
			slog.Int64("offset", rec.Offset), slog.Any("error", err))
		return
	}
	if err := c.handler(ctx, ev); err != nil {
		slog.Error("report handler failed",
			slog.String("interview_id", ev.InterviewID), slog.Any("error", err))
	}
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
