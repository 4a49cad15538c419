package events

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tair/marketplace-catalog/pkg/clock"
	"github.com/tair/marketplace-catalog/pkg/logger"
)

// Publisher announces catalog refreshes on Kafka
type Publisher struct {
	producer sarama.SyncProducer
	service  string
	clock    clock.Clock
}

// NewPublisher connects a sync producer to brokers
func NewPublisher(brokers []string, service string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Retry.Max = 3
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kafka producer")
	}

	logger.Logger.Info().
		Strs("brokers", brokers).
		Msg("Kafka publisher initialized")

	return NewPublisherWithProducer(producer, service, clock.NewRealClock()), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, service string, clk clock.Clock) *Publisher {
	return &Publisher{producer: producer, service: service, clock: clk}
}

// CatalogRefreshed publishes a catalog.refreshed event
func (p *Publisher) CatalogRefreshed(ctx context.Context, count int) error {
	tracer := otel.Tracer("kafka-publisher")
	ctx, span := tracer.Start(ctx, "kafka.publish.catalog_refreshed",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", TopicCatalogRefreshed),
			attribute.String("event.type", EventTypeCatalogRefreshed),
			attribute.Int("catalog.count", count),
		),
	)
	defer span.End()

	event := CatalogRefreshedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeCatalogRefreshed,
		Service:   p.service,
		Count:     count,
		Timestamp: p.clock.Now().UTC(),
	}
	span.SetAttributes(attribute.String("event.id", event.EventID))

	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to marshal event")
		return errors.Wrap(err, "failed to marshal event")
	}

	msg := &sarama.ProducerMessage{
		Topic:   TopicCatalogRefreshed,
		Key:     sarama.StringEncoder(p.service),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers(ctx, event.EventType, event.EventID),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to send message")
		return errors.Wrap(err, "failed to send message to Kafka")
	}

	span.SetAttributes(
		attribute.Int("messaging.kafka.partition", int(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	logger.Debug(ctx).
		Str("event_id", event.EventID).
		Int("count", count).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Catalog refreshed event published")
	return nil
}

func (p *Publisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// headers carries the event metadata and the trace context
func headers(ctx context.Context, eventType, eventID string) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	out := []sarama.RecordHeader{
		{Key: []byte("event_type"), Value: []byte(eventType)},
		{Key: []byte("event_id"), Value: []byte(eventID)},
	}
	for key, value := range carrier {
		out = append(out, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}
	return out
}
