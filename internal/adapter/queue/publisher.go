package queue

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kzeybek/push-fanout/internal/domain"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

const eventsTopic = "push.events"

type notificationQueuedEvent struct {
	Type           string            `json:"type"`
	NotificationID int64             `json:"notification_id"`
	Title          string            `json:"title"`
	DeviceCount    int               `json:"device_count"`
	Carrier        map[string]string `json:"carrier,omitempty"`
}

type drainCompletedEvent struct {
	Type    string               `json:"type"`
	Reports []domain.DrainReport `json:"reports"`
	Carrier map[string]string    `json:"carrier,omitempty"`
}

// Publisher emits lifecycle events to Kafka for downstream consumers
// (analytics, audit). Callers treat publishing as best effort.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        eventsTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

func (p *Publisher) NotificationQueued(ctx context.Context, n *domain.Notification, deviceCount int) error {
	ctx, span := tracing.Tracer().Start(ctx, "kafka.produce")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", eventsTopic),
		attribute.Int64("notification.id", n.ID),
	)

	event := notificationQueuedEvent{
		Type:           "notification_queued",
		NotificationID: n.ID,
		Title:          n.Title,
		DeviceCount:    deviceCount,
		Carrier:        propagateTraceContext(ctx),
	}
	return p.write(ctx, span, strconv.FormatInt(n.ID, 10), event)
}

func (p *Publisher) DrainCompleted(ctx context.Context, reports []domain.DrainReport) error {
	ctx, span := tracing.Tracer().Start(ctx, "kafka.produce")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", eventsTopic),
		attribute.Int("drain.report_count", len(reports)),
	)

	event := drainCompletedEvent{
		Type:    "drain_completed",
		Reports: reports,
		Carrier: propagateTraceContext(ctx),
	}
	return p.write(ctx, span, "drain", event)
}

func (p *Publisher) write(ctx context.Context, span trace.Span, key string, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	}); err != nil {
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func propagateTraceContext(ctx context.Context) map[string]string {
	carrier := make(map[string]string)
	propagation.TraceContext{}.Inject(ctx, propagation.MapCarrier(carrier))
	return carrier
}
