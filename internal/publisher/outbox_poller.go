package publisher

import (
	"context"
	"log/slog"
	"time"

	r "github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "order-events"

type OutboxStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*r.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	PurgeProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type Options struct {
	Topic     string
	BatchSize int
	EventTick time.Duration
	PurgeTick time.Duration
	// Retention is how long published events stay in the outbox table.
	Retention time.Duration
}

// OutboxPoller relays order events committed with each order to Kafka.
type OutboxPoller struct {
	timeout   time.Duration
	eventTick time.Duration
	purgeTick time.Duration
	retention time.Duration
	batchSize int
	repo      OutboxStore
	writer    MessageWriter
}

func NewOutboxPoller(repo OutboxStore, opts Options, brokers ...string) (*OutboxPoller, *kafka.Writer) {
	topic := opts.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newOutboxPoller(repo, w, opts), w
}

func newOutboxPoller(repo OutboxStore, writer MessageWriter, opts Options) *OutboxPoller {
	p := &OutboxPoller{
		timeout:   5 * time.Second,
		eventTick: time.Second,
		purgeTick: time.Hour,
		retention: 7 * 24 * time.Hour,
		batchSize: 100,
		repo:      repo,
		writer:    writer,
	}
	if opts.EventTick > 0 {
		p.eventTick = opts.EventTick
	}
	if opts.PurgeTick > 0 {
		p.purgeTick = opts.PurgeTick
	}
	if opts.Retention > 0 {
		p.retention = opts.Retention
	}
	if opts.BatchSize > 0 {
		p.batchSize = opts.BatchSize
	}
	return p
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	purgeTicker := time.NewTicker(p.purgeTick)
	defer eventTicker.Stop()
	defer purgeTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-purgeTicker.C:
			p.purgePublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	events, err := p.repo.GetUnprocessedEvents(fetchCtx, p.batchSize)
	cancel()
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch outbox events", "error", err)
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			slog.ErrorContext(ctx, "failed to publish outbox event", "event_id", event.ID, "error", err)
			// keep ordering per batch: later events wait for the next tick
			return
		}

		markCtx, cancel := context.WithTimeout(ctx, p.timeout)
		err := p.repo.MarkEventAsProcessed(markCtx, event.ID)
		cancel()
		if err != nil {
			slog.ErrorContext(ctx, "failed to mark outbox event as processed", "event_id", event.ID, "error", err)
			continue
		}
		slog.DebugContext(ctx, "outbox event published", "event_id", event.ID, "aggregate_id", event.AggregateId)
	}
}

func (p *OutboxPoller) purgePublishedEvents(ctx context.Context) {
	purgeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	n, err := p.repo.PurgeProcessedEvents(purgeCtx, time.Now().Add(-p.retention))
	if err != nil {
		slog.ErrorContext(ctx, "failed to purge outbox events", "error", err)
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "purged published outbox events", "count", n)
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *r.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // order id
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.writer.WriteMessages(writeCtx, msg)
}
