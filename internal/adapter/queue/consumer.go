package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/kzeybek/push-fanout/internal/port"
	"github.com/kzeybek/push-fanout/pkg/tracing"
)

const requestsTopic = "push.requests"

// SendRequestPayload is the wire format for send requests ingested from
// Kafka. Field names mirror the HTTP action body.
type SendRequestPayload struct {
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	CountryID int64             `json:"country_id"`
	Carrier   map[string]string `json:"carrier,omitempty"`
}

type ConsumerConfig struct {
	Brokers []string
	Group   string
	Logger  *zap.Logger
}

// Consumer ingests send requests from Kafka as an alternate path to the
// HTTP action. Each message triggers the same fan-out as a "send" call.
type Consumer struct {
	cfg    ConsumerConfig
	reader *kafka.Reader
	logger *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

func (c *Consumer) Start(ctx context.Context, handler port.SendRequestHandler) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.reader = kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		Topic:          requestsTopic,
		GroupID:        c.cfg.Group,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	c.wg.Add(1)
	go c.consume(ctx, handler)

	c.logger.Info("kafka consumer started",
		zap.Strings("brokers", c.cfg.Brokers),
		zap.String("group", c.cfg.Group),
		zap.String("topic", requestsTopic),
	)

	<-ctx.Done()
	return ctx.Err()
}

func (c *Consumer) Stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func (c *Consumer) consume(ctx context.Context, handler port.SendRequestHandler) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch message failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		var payload SendRequestPayload
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			c.logger.Error("unmarshal send request failed",
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := ctx
		if len(payload.Carrier) > 0 {
			msgCtx = propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier(payload.Carrier))
		}

		msgCtx, span := tracing.Tracer().Start(msgCtx, "kafka.consume")
		span.SetAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.source.name", msg.Topic),
			attribute.String("messaging.consumer.group.id", c.cfg.Group),
			attribute.Int64("messaging.kafka.message.offset", msg.Offset),
			attribute.Int64("notification.country_id", payload.CountryID),
		)

		if err := handler(msgCtx, payload.Title, payload.Message, payload.CountryID); err != nil {
			// Fan-out is observable through the details query; a bad or
			// failed request is logged and committed rather than redelivered.
			tracing.RecordError(span, err)
			c.logger.Error("ingested send request failed",
				zap.Int64("country_id", payload.CountryID),
				zap.Error(err),
			)
		}

		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}
